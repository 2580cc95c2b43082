// Package normalize maps raw API records onto models.MediaItem.
//
// Each record kind has its own function. All of them drop media the account
// cannot view; posts and archived posts additionally drop the whole record
// when it has no media or when it expires and temporary content is skipped.
package normalize
