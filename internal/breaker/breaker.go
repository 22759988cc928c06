// Package breaker implements the circuit breaker pattern for calls to
// downstream dependencies.
//
// A breaker has three states:
//
//   - CLOSED: normal operation, calls pass through
//   - OPEN: dependency failing, calls rejected without being attempted
//   - HALF_OPEN: trial state probing whether the dependency recovered
//
// Transitions happen lazily on Execute; there is no background timer. An OPEN
// breaker that is never invoked again simply stays OPEN, which is harmless
// since no calls means no risk.
package breaker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// State is the circuit breaker state.
type State string

const (
	StateClosed   State = "CLOSED"
	StateOpen     State = "OPEN"
	StateHalfOpen State = "HALF_OPEN"
)

// ErrCircuitOpen is returned by Execute when the circuit rejects a call
// without attempting it. Callers can use errors.Is to distinguish fast
// failure from a real downstream error.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// Config holds circuit breaker settings. Non-positive values fall back to the
// package defaults.
type Config struct {
	Name string

	// FailureThreshold is the number of consecutive failures while CLOSED
	// that opens the circuit.
	FailureThreshold int

	// SuccessThreshold is the number of consecutive trial successes while
	// HALF_OPEN that closes the circuit.
	SuccessThreshold int

	// OpenTimeout is how long the circuit stays OPEN before the next call is
	// let through as a trial.
	OpenTimeout time.Duration
}

// Default thresholds applied when a config leaves them unset.
const (
	DefaultFailureThreshold = 5
	DefaultSuccessThreshold = 2
	DefaultOpenTimeout      = 60 * time.Second
)

// Stats is a snapshot of breaker state for health reporting.
type Stats struct {
	Name         string    `json:"name"`
	State        State     `json:"state"`
	FailureCount int       `json:"failureCount"`
	SuccessCount int       `json:"successCount"`
	NextAttempt  time.Time `json:"nextAttempt,omitempty"`
}

// CircuitBreaker protects calls to a single downstream dependency.
// Safe for concurrent use; the wrapped call runs outside the lock.
type CircuitBreaker struct {
	mu           sync.Mutex
	cfg          Config
	state        State
	failureCount int
	successCount int
	nextAttempt  time.Time
}

// New creates a circuit breaker in the CLOSED state.
func New(cfg Config) *CircuitBreaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = DefaultFailureThreshold
	}
	if cfg.SuccessThreshold <= 0 {
		cfg.SuccessThreshold = DefaultSuccessThreshold
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = DefaultOpenTimeout
	}
	return &CircuitBreaker{
		cfg:   cfg,
		state: StateClosed,
	}
}

// Execute runs fn under the breaker. While OPEN and before the retry deadline
// it rejects immediately with ErrCircuitOpen and fn is not invoked. Otherwise
// fn runs, the outcome updates breaker state, and fn's own error is returned
// unchanged.
func Execute[T any](ctx context.Context, cb *CircuitBreaker, fn func(context.Context) (T, error)) (T, error) {
	if err := cb.allow(); err != nil {
		var zero T
		return zero, err
	}

	val, err := fn(ctx)
	if err != nil {
		cb.recordFailure()
		var zero T
		return zero, err
	}

	cb.recordSuccess()
	return val, nil
}

// ExecuteWithFallback runs fn under the breaker and returns fallback instead
// of an error for any failure, circuit-open included.
func ExecuteWithFallback[T any](ctx context.Context, cb *CircuitBreaker, fallback T, fn func(context.Context) (T, error)) T {
	val, err := Execute(ctx, cb, fn)
	if err != nil {
		return fallback
	}
	return val
}

// allow decides whether a call may proceed, transitioning OPEN to HALF_OPEN
// once the retry deadline has passed.
func (cb *CircuitBreaker) allow() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == StateOpen {
		if time.Now().Before(cb.nextAttempt) {
			return fmt.Errorf("%w: %s", ErrCircuitOpen, cb.cfg.Name)
		}
		cb.state = StateHalfOpen
		cb.successCount = 0
	}
	return nil
}

func (cb *CircuitBreaker) recordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateHalfOpen:
		cb.successCount++
		if cb.successCount >= cb.cfg.SuccessThreshold {
			cb.state = StateClosed
			cb.failureCount = 0
			cb.successCount = 0
		}
	case StateClosed:
		// Failures do not accumulate across unrelated successes.
		cb.failureCount = 0
	}
}

func (cb *CircuitBreaker) recordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateHalfOpen:
		// A single trial failure reopens the circuit.
		cb.state = StateOpen
		cb.successCount = 0
		cb.nextAttempt = time.Now().Add(cb.cfg.OpenTimeout)
	case StateClosed:
		cb.failureCount++
		if cb.failureCount >= cb.cfg.FailureThreshold {
			cb.state = StateOpen
			cb.nextAttempt = time.Now().Add(cb.cfg.OpenTimeout)
		}
	case StateOpen:
		// A straggler failing after another caller reopened the circuit
		// pushes the retry deadline out.
		cb.nextAttempt = time.Now().Add(cb.cfg.OpenTimeout)
	}
}

// State returns the current state.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Stats returns a snapshot of the breaker.
func (cb *CircuitBreaker) Stats() Stats {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return Stats{
		Name:         cb.cfg.Name,
		State:        cb.state,
		FailureCount: cb.failureCount,
		SuccessCount: cb.successCount,
		NextAttempt:  cb.nextAttempt,
	}
}

// Reset forces the breaker back to CLOSED with zeroed counters. Operational
// escape hatch.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.state = StateClosed
	cb.failureCount = 0
	cb.successCount = 0
	cb.nextAttempt = time.Time{}
}
