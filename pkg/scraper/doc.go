// Package scraper drives incremental mirroring for configured accounts.
//
// A pass for one account has two phases separated by a barrier:
//
//  1. Fetch: list subscriptions and chat partners, then walk posts,
//     archived posts, messages, highlights and stories for every user on a
//     bounded worker pool. Each walk starts from the user's ledger
//     high-water mark and stops at the first record already mirrored.
//  2. Download: for every user with new media, refresh the avatar and
//     header, then stream each item to a temporary file, rename it into
//     place and record it in the ledger.
//
// Failures of a single user or item are written to the pass report and
// the pass continues. Failing to list users, or failing to write a ledger,
// aborts the account for that pass. Accounts run independently; see
// RunAll and RunForever.
package scraper
