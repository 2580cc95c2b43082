// Package retry provides bounded exponential backoff for transient failures
// of remote API and media CDN calls.
//
// Only transport errors carrying a retryable status (429, 500, 502, 503,
// 504, or a network failure) are retried by default; decode and signing
// errors surface immediately.
//
//	err := retry.Do(ctx, func(ctx context.Context) error {
//		return client.fetchOnce(ctx, req)
//	}, &retry.Config{
//		MaxAttempts: 4,
//		Backoff:     retry.DefaultExponentialBackoff(),
//	})
package retry
