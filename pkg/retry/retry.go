package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	errs "fansync/pkg/errors"
	"fansync/pkg/logger"
)

// Operation is one attempt of a retried call
type Operation func(ctx context.Context) error

// Config controls Do. MaxAttempts counts the first call; zero means no limit.
type Config struct {
	MaxAttempts int
	Backoff     BackoffStrategy
	// RetryIf decides whether an error is worth another attempt.
	// DefaultRetryIf is used when nil.
	RetryIf func(error) bool
	// OnRetry runs before each pause
	OnRetry func(attempt int, err error, delay time.Duration)
	Logger  logger.Logger
}

// DefaultConfig is the budget used for API calls: four attempts with a
// one second exponential backoff.
func DefaultConfig() *Config {
	return &Config{
		MaxAttempts: 4,
		Backoff:     DefaultExponentialBackoff(),
		RetryIf:     DefaultRetryIf,
	}
}

// DefaultRetryIf accepts network failures, 429 and the transient 5xx codes.
func DefaultRetryIf(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return errs.IsTransport(err) && errs.IsRetryableStatusCode(errs.StatusCode(err))
}

// ErrMaxAttempts is wrapped together with the last failure once the budget
// is spent.
var ErrMaxAttempts = errors.New("max retry attempts exceeded")

func (c *Config) debug(msg string, err error, fields map[string]interface{}) {
	if c.Logger == nil {
		return
	}
	c.Logger.WithError(err).DebugWithFields(msg, fields)
}

// Do calls op until it succeeds, fails with an error RetryIf rejects, runs
// out of attempts or ctx ends.
func Do(ctx context.Context, op Operation, cfg *Config) error {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	shouldRetry := cfg.RetryIf
	if shouldRetry == nil {
		shouldRetry = DefaultRetryIf
	}
	backoff := cfg.Backoff
	if backoff == nil {
		backoff = DefaultExponentialBackoff()
	}

	attempt := 0
	for {
		attempt++
		err := op(ctx)
		switch {
		case err == nil:
			if attempt > 1 {
				cfg.debug("succeeded after retry", nil, map[string]interface{}{"attempt": attempt})
			}
			return nil
		case !shouldRetry(err):
			return err
		case cfg.MaxAttempts > 0 && attempt >= cfg.MaxAttempts:
			if cfg.Logger != nil {
				cfg.Logger.WithError(err).WarnWithFields("retry budget exhausted", map[string]interface{}{"attempts": attempt})
			}
			return fmt.Errorf("%w (%d): %w", ErrMaxAttempts, cfg.MaxAttempts, err)
		}

		delay := backoff.NextDelay(attempt)
		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt, err, delay)
		}
		cfg.debug("retrying", err, map[string]interface{}{
			"attempt":  attempt,
			"delay_ms": delay.Milliseconds(),
		})
		if werr := Wait(ctx, delay); werr != nil {
			return fmt.Errorf("retry cancelled: %w", werr)
		}
	}
}

// DoWithResult is Do for operations that produce a value
func DoWithResult[T any](ctx context.Context, op func(ctx context.Context) (T, error), cfg *Config) (T, error) {
	var out T
	err := Do(ctx, func(ctx context.Context) error {
		v, err := op(ctx)
		if err == nil {
			out = v
		}
		return err
	}, cfg)
	return out, err
}
