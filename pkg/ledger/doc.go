// Package ledger persists which media of a remote user were mirrored.
//
// Every remote user gets an independent SQLite file next to their
// downloads. A row is written only after the file is in its final place;
// the newest row per collection is the high-water mark that lets the next
// pass stop paginating early.
package ledger
