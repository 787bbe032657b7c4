// Package resilience provides retry-with-backoff and circuit breaker
// primitives guarding all outbound calls to providers and the agent binary.
package resilience

import (
	"context"
	"fmt"
	"log"
	"math"
	"math/rand"
	"time"
)

// RetryPolicy is a pure description of a backoff schedule. It carries no
// mutable state; DelayFor is a function of the attempt index alone (modulo
// jitter).
type RetryPolicy struct {
	MaxAttempts     int
	BaseDelay       time.Duration
	MaxDelay        time.Duration
	ExponentialBase float64
	Jitter          bool
}

// DefaultRetryPolicy is suitable for provider API calls.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:     3,
		BaseDelay:       time.Second,
		MaxDelay:        30 * time.Second,
		ExponentialBase: 2.0,
		Jitter:          true,
	}
}

// DelayFor returns the delay before attempt i (0-indexed):
// min(base * exponentialBase^i, max), scaled by a uniform factor in
// [0.5, 1.0] when jitter is enabled.
func (p RetryPolicy) DelayFor(attempt int) time.Duration {
	d := float64(p.BaseDelay) * math.Pow(p.ExponentialBase, float64(attempt))
	if max := float64(p.MaxDelay); d > max {
		d = max
	}
	if p.Jitter {
		d *= 0.5 + rand.Float64()*0.5
	}
	return time.Duration(d)
}

// Retry runs op up to policy.MaxAttempts times, sleeping policy.DelayFor(i)
// before retry i. Only errors for which retryable returns true are retried;
// any other error propagates immediately. Exhausting all attempts returns
// the last error. A nil retryable treats every error as retryable.
func Retry(ctx context.Context, name string, policy RetryPolicy, retryable func(error) bool, op func() error) error {
	var lastErr error

	for attempt := 0; attempt < policy.MaxAttempts; attempt++ {
		if attempt > 0 {
			delay := policy.DelayFor(attempt - 1)
			log.Printf("[Retry] %s: attempt %d/%d after %v (last error: %v)",
				name, attempt+1, policy.MaxAttempts, delay.Round(time.Millisecond), lastErr)
			select {
			case <-ctx.Done():
				return fmt.Errorf("retry of %s aborted: %w", name, ctx.Err())
			case <-time.After(delay):
			}
		}

		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if retryable != nil && !retryable(lastErr) {
			return lastErr
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", name, policy.MaxAttempts, lastErr)
}
