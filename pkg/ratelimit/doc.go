// Package ratelimit throttles requests to the remote API.
//
// Each account gets its own TokenBucket built on golang.org/x/time/rate, so
// accounts never share a budget. Backoff lets the transport pause all of an
// account's workers at once when the server answers 429.
package ratelimit
