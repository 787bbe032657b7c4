package resilience

import (
	"fmt"
	"log"
	"sync"
	"time"
)

// BreakerState is one of the three circuit breaker states.
type BreakerState int

const (
	StateClosed BreakerState = iota
	StateOpen
	StateHalfOpen
)

func (s BreakerState) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// OpenError is returned when the breaker rejects a call without attempting
// it. Callers distinguish it from operation errors with errors.As.
type OpenError struct {
	Name       string
	RetryAfter time.Duration
}

func (e *OpenError) Error() string {
	return fmt.Sprintf("circuit breaker %s is open, retry after %v", e.Name, e.RetryAfter.Round(time.Second))
}

// BreakerSettings tunes a CircuitBreaker.
type BreakerSettings struct {
	// FailureThreshold consecutive failures in CLOSED trip the breaker.
	FailureThreshold int
	// SuccessThreshold consecutive successes in HALF_OPEN close it again.
	SuccessThreshold int
	// Timeout is how long OPEN rejects calls before allowing a trial.
	Timeout time.Duration
	// Fallback, when set, runs instead of returning an OpenError on a
	// rejected call. Its error (usually nil) becomes the call's result.
	Fallback func() error
	// OnStateChange is invoked outside the lock after each transition.
	OnStateChange func(name string, from, to BreakerState)
}

// DefaultBreakerSettings matches the provider-posting defaults.
func DefaultBreakerSettings() BreakerSettings {
	return BreakerSettings{
		FailureThreshold: 5,
		SuccessThreshold: 2,
		Timeout:          60 * time.Second,
	}
}

// CircuitBreaker guards a downstream dependency. CLOSED passes calls through
// and counts consecutive failures; OPEN rejects until Timeout elapses, at
// which point the next call becomes the trial that moves it to HALF_OPEN;
// HALF_OPEN closes after SuccessThreshold consecutive successes and reopens
// on any failure.
type CircuitBreaker struct {
	name     string
	settings BreakerSettings

	mu           sync.Mutex
	state        BreakerState
	failures     int
	successes    int
	openedAt     time.Time
	now          func() time.Time // injectable for tests
}

// NewCircuitBreaker returns a breaker in the CLOSED state.
func NewCircuitBreaker(name string, settings BreakerSettings) *CircuitBreaker {
	if settings.FailureThreshold <= 0 {
		settings.FailureThreshold = 5
	}
	if settings.SuccessThreshold <= 0 {
		settings.SuccessThreshold = 2
	}
	if settings.Timeout <= 0 {
		settings.Timeout = 60 * time.Second
	}
	return &CircuitBreaker{
		name:     name,
		settings: settings,
		state:    StateClosed,
		now:      time.Now,
	}
}

// State reports the current state without advancing it.
func (cb *CircuitBreaker) State() BreakerState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Call runs op under the breaker's admission policy.
func (cb *CircuitBreaker) Call(op func() error) error {
	if err := cb.beforeCall(); err != nil {
		if cb.settings.Fallback != nil {
			log.Printf("[Breaker] %s open, running fallback", cb.name)
			return cb.settings.Fallback()
		}
		return err
	}

	err := op()
	cb.afterCall(err)
	return err
}

// beforeCall admits or rejects the call. On an admitted trial call out of
// OPEN it transitions to HALF_OPEN first.
func (cb *CircuitBreaker) beforeCall() error {
	cb.mu.Lock()

	switch cb.state {
	case StateClosed, StateHalfOpen:
		cb.mu.Unlock()
		return nil
	case StateOpen:
		elapsed := cb.now().Sub(cb.openedAt)
		if elapsed < cb.settings.Timeout {
			retryAfter := cb.settings.Timeout - elapsed
			cb.mu.Unlock()
			return &OpenError{Name: cb.name, RetryAfter: retryAfter}
		}
		cb.transition(StateHalfOpen)
		cb.mu.Unlock()
		return nil
	}

	cb.mu.Unlock()
	return nil
}

func (cb *CircuitBreaker) afterCall(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if err != nil {
		cb.successes = 0
		cb.failures++
		switch cb.state {
		case StateClosed:
			if cb.failures >= cb.settings.FailureThreshold {
				cb.openedAt = cb.now()
				cb.transition(StateOpen)
			}
		case StateHalfOpen:
			// A single failed trial reopens the breaker.
			cb.openedAt = cb.now()
			cb.transition(StateOpen)
		}
		return
	}

	cb.failures = 0
	if cb.state == StateHalfOpen {
		cb.successes++
		if cb.successes >= cb.settings.SuccessThreshold {
			cb.transition(StateClosed)
		}
	}
}

// transition must be called with cb.mu held.
func (cb *CircuitBreaker) transition(to BreakerState) {
	from := cb.state
	cb.state = to
	cb.failures = 0
	cb.successes = 0
	log.Printf("[Breaker] %s: %s -> %s", cb.name, from, to)
	if cb.settings.OnStateChange != nil {
		go cb.settings.OnStateChange(cb.name, from, to)
	}
}
