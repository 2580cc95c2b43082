package retry

import (
	"context"
	"math/rand/v2"
	"time"
)

// BackoffStrategy gives the pause after a failed attempt (1-based)
type BackoffStrategy interface {
	NextDelay(attempt int) time.Duration
}

// ExponentialBackoff doubles (or multiplies) the pause after every failure.
// JitterFactor spreads each pause by up to that fraction in either direction.
type ExponentialBackoff struct {
	BaseDelay    time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	JitterFactor float64
}

// DefaultExponentialBackoff mirrors a backoff factor of one second
func DefaultExponentialBackoff() *ExponentialBackoff {
	return &ExponentialBackoff{
		BaseDelay:    time.Second,
		MaxDelay:     30 * time.Second,
		Multiplier:   2,
		JitterFactor: 0.1,
	}
}

// NextDelay never exceeds MaxDelay, jitter included
func (eb *ExponentialBackoff) NextDelay(attempt int) time.Duration {
	if attempt < 1 {
		return 0
	}

	limit := float64(eb.MaxDelay)
	d := float64(eb.BaseDelay)
	for i := 1; i < attempt && d < limit; i++ {
		d *= eb.Multiplier
	}
	if eb.JitterFactor > 0 {
		d *= 1 + eb.JitterFactor*(2*rand.Float64()-1)
	}
	return time.Duration(max(0, min(d, limit)))
}

// ConstantBackoff pauses for Delay after every failure
type ConstantBackoff struct {
	Delay time.Duration
}

func (cb *ConstantBackoff) NextDelay(attempt int) time.Duration {
	if attempt < 1 {
		return 0
	}
	return cb.Delay
}

// Wait sleeps for delay unless ctx ends first
func Wait(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return ctx.Err()
	}

	t := time.NewTimer(delay)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
