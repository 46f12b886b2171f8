package retry

import (
	"context"
	"math/rand"
	"time"
)

// Options tune a retry loop.
type Options struct {
	// MaxRetries is the number of retries after the first attempt.
	MaxRetries int
	// BaseDelay is the delay before the first retry.
	BaseDelay time.Duration
	// MaxDelay caps the exponential growth.
	MaxDelay time.Duration
	// Jitter in [0,1] randomizes each delay by up to that fraction.
	Jitter float64
	// IsRetryable classifies failures. Nil means everything retries.
	IsRetryable func(error) bool
}

// Do runs op, retrying retryable failures with backoff
// min(BaseDelay * 2^attempt, MaxDelay) * (1 + rand*Jitter).
// Non-retryable errors propagate immediately; exhaustion propagates
// the last error. Context cancellation aborts the wait.
func Do(ctx context.Context, op func(ctx context.Context) error, opts Options) error {
	if opts.BaseDelay <= 0 {
		opts.BaseDelay = 100 * time.Millisecond
	}
	if opts.MaxDelay <= 0 {
		opts.MaxDelay = 30 * time.Second
	}

	var lastErr error
	for attempt := 0; ; attempt++ {
		lastErr = op(ctx)
		if lastErr == nil {
			return nil
		}
		if opts.IsRetryable != nil && !opts.IsRetryable(lastErr) {
			return lastErr
		}
		if attempt >= opts.MaxRetries {
			return lastErr
		}

		delay := opts.BaseDelay << uint(attempt)
		if delay > opts.MaxDelay || delay <= 0 {
			delay = opts.MaxDelay
		}
		if opts.Jitter > 0 {
			delay = time.Duration(float64(delay) * (1 + rand.Float64()*opts.Jitter))
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}
