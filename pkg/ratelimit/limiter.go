package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limiter gates outbound API requests for one account
type Limiter interface {
	// Allow reports whether a request may proceed right now
	Allow() bool
	// Wait blocks until a request may proceed or ctx is done
	Wait(ctx context.Context) error
	// Backoff pauses every caller for d, typically after a 429
	Backoff(d time.Duration)
}

// TokenBucket is a token bucket limiter with an optional pause window
type TokenBucket struct {
	limiter *rate.Limiter

	mu          sync.Mutex
	pausedUntil time.Time
}

// NewTokenBucket allows rps requests per second with the given burst
func NewTokenBucket(rps float64, burst int) *TokenBucket {
	if burst < 1 {
		burst = 1
	}
	return &TokenBucket{limiter: rate.NewLimiter(rate.Limit(rps), burst)}
}

// Allow checks if a request can proceed without waiting
func (tb *TokenBucket) Allow() bool {
	if tb.pause() > 0 {
		return false
	}
	return tb.limiter.Allow()
}

// Wait blocks until a token is available
func (tb *TokenBucket) Wait(ctx context.Context) error {
	if d := tb.pause(); d > 0 {
		timer := time.NewTimer(d)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return tb.limiter.Wait(ctx)
}

// Backoff extends the pause window to at least now+d
func (tb *TokenBucket) Backoff(d time.Duration) {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	until := time.Now().Add(d)
	if until.After(tb.pausedUntil) {
		tb.pausedUntil = until
	}
}

func (tb *TokenBucket) pause() time.Duration {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	return time.Until(tb.pausedUntil)
}

// Unlimited never blocks
type Unlimited struct{}

func (Unlimited) Allow() bool                    { return true }
func (Unlimited) Wait(ctx context.Context) error { return ctx.Err() }
func (Unlimited) Backoff(time.Duration)          {}
