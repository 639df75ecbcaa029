// Package resilience provides reliability patterns for delegated executor calls.
package resilience

import (
	"context"
	"time"
)

// RetryPolicy retries an operation a fixed number of times with a fixed
// delay between attempts. Zero MaxRetries means a single attempt.
type RetryPolicy struct {
	MaxRetries int
	Delay      time.Duration
}

// Do runs fn up to 1+MaxRetries times. Between attempts it sleeps for Delay,
// returning early if ctx is cancelled. onRetry, if non-nil, is invoked with
// the upcoming attempt number (2..n) and the error that triggered the retry.
// The last error is returned after the final attempt.
func (p RetryPolicy) Do(ctx context.Context, fn func(ctx context.Context, attempt int) error, onRetry func(attempt int, err error)) error {
	var lastErr error
	for attempt := 1; attempt <= p.MaxRetries+1; attempt++ {
		lastErr = fn(ctx, attempt)
		if lastErr == nil {
			return nil
		}
		if attempt > p.MaxRetries {
			break
		}
		if onRetry != nil {
			onRetry(attempt+1, lastErr)
		}
		if p.Delay > 0 {
			timer := time.NewTimer(p.Delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		} else if ctx.Err() != nil {
			return ctx.Err()
		}
	}
	return lastErr
}
