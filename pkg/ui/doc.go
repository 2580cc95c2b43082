// Package ui renders pass summaries and status lines on the terminal and
// sends optional desktop notifications.
package ui
