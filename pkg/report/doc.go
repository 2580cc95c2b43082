// Package report records what a scrape pass did and which units of work it
// had to give up on. Reports are saved as JSON so a failed collection can
// be retried by hand from the recorded account, collection, user and
// cursor.
package report
