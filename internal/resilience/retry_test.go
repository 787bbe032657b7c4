package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDelayForSchedule(t *testing.T) {
	p := RetryPolicy{
		MaxAttempts:     6,
		BaseDelay:       time.Second,
		MaxDelay:        60 * time.Second,
		ExponentialBase: 2.0,
		Jitter:          false,
	}

	want := []time.Duration{
		1 * time.Second,
		2 * time.Second,
		4 * time.Second,
		8 * time.Second,
		16 * time.Second,
	}
	for i, w := range want {
		assert.Equal(t, w, p.DelayFor(i), "attempt %d", i)
	}
}

func TestDelayForCapped(t *testing.T) {
	p := RetryPolicy{BaseDelay: time.Second, MaxDelay: 5 * time.Second, ExponentialBase: 2.0}
	assert.Equal(t, 5*time.Second, p.DelayFor(10))
}

func TestDelayForJitterRange(t *testing.T) {
	p := RetryPolicy{BaseDelay: 8 * time.Second, MaxDelay: time.Minute, ExponentialBase: 2.0, Jitter: true}
	for i := 0; i < 100; i++ {
		d := p.DelayFor(0)
		assert.GreaterOrEqual(t, d, 4*time.Second)
		assert.LessOrEqual(t, d, 8*time.Second)
	}
}

func TestRetrySucceedsAfterFailures(t *testing.T) {
	policy := RetryPolicy{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond, ExponentialBase: 2.0}

	calls := 0
	err := Retry(context.Background(), "flaky", policy, nil, func() error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetryExhaustionWrapsLastError(t *testing.T) {
	policy := RetryPolicy{MaxAttempts: 2, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond, ExponentialBase: 2.0}

	sentinel := errors.New("still broken")
	err := Retry(context.Background(), "doomed", policy, nil, func() error { return sentinel })

	require.Error(t, err)
	assert.ErrorIs(t, err, sentinel)
}

func TestRetryNonRetryableStopsImmediately(t *testing.T) {
	policy := RetryPolicy{MaxAttempts: 5, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond, ExponentialBase: 2.0}

	fatal := errors.New("permanent")
	calls := 0
	err := Retry(context.Background(), "fatal", policy, func(e error) bool { return !errors.Is(e, fatal) }, func() error {
		calls++
		return fatal
	})

	assert.ErrorIs(t, err, fatal)
	assert.Equal(t, 1, calls)
}

func TestRetryHonorsContextCancel(t *testing.T) {
	policy := RetryPolicy{MaxAttempts: 10, BaseDelay: time.Hour, MaxDelay: time.Hour, ExponentialBase: 2.0}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	err := Retry(ctx, "cancelled", policy, nil, func() error { return errors.New("nope") })
	assert.ErrorIs(t, err, context.Canceled)
}
