// Package downloader provides the fixed-size worker pool used by both
// phases of a scrape pass.
package downloader
