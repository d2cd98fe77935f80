package reliability

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/krathor2212/medcrypt/internal/cryptoerr"
)

// CircuitState represents the current state of the circuit breaker
type CircuitState int

const (
	// StateClosed lets every call through
	StateClosed CircuitState = iota
	// StateOpen fails every call fast
	StateOpen
	// StateHalfOpen lets a limited number of probes through
	StateHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateOpen:
		return "OPEN"
	case StateHalfOpen:
		return "HALF_OPEN"
	default:
		return "UNKNOWN"
	}
}

// CircuitBreakerConfig holds configuration for the circuit breaker
type CircuitBreakerConfig struct {
	// FailureThreshold is the number of consecutive failures that opens the circuit
	FailureThreshold int
	// SuccessThreshold is the number of half-open successes that closes it again
	SuccessThreshold int
	// Timeout is how long the circuit stays open before probing
	Timeout time.Duration
	// MaxConcurrentProbes bounds calls in the half-open state
	MaxConcurrentProbes int
	// ShouldTrip defaults to IsTransient; other errors count as successes
	ShouldTrip    func(error) bool
	OnStateChange func(name string, from, to CircuitState)
	// Now defaults to time.Now
	Now func() time.Time
}

// DefaultCircuitBreakerConfig returns a default configuration
func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		FailureThreshold:    5,
		SuccessThreshold:    2,
		Timeout:             30 * time.Second,
		MaxConcurrentProbes: 1,
	}
}

// CircuitBreaker fails calls to a backend fast once it has failed
// FailureThreshold times in a row.
type CircuitBreaker struct {
	name   string
	config CircuitBreakerConfig

	mu              sync.Mutex
	state           CircuitState
	failureCount    int
	successCount    int
	probes          int
	lastFailureTime time.Time
	nextAttemptTime time.Time
}

// NewCircuitBreaker creates a closed circuit breaker
func NewCircuitBreaker(name string, config CircuitBreakerConfig) *CircuitBreaker {
	def := DefaultCircuitBreakerConfig()
	if config.FailureThreshold <= 0 {
		config.FailureThreshold = def.FailureThreshold
	}
	if config.SuccessThreshold <= 0 {
		config.SuccessThreshold = def.SuccessThreshold
	}
	if config.Timeout <= 0 {
		config.Timeout = def.Timeout
	}
	if config.MaxConcurrentProbes <= 0 {
		config.MaxConcurrentProbes = def.MaxConcurrentProbes
	}
	if config.ShouldTrip == nil {
		config.ShouldTrip = IsTransient
	}
	if config.Now == nil {
		config.Now = time.Now
	}
	return &CircuitBreaker{name: name, config: config, state: StateClosed}
}

// Name returns the breaker's name
func (cb *CircuitBreaker) Name() string { return cb.name }

// Execute runs fn unless the circuit is open.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func(context.Context) error) error {
	probe, err := cb.beforeRequest()
	if err != nil {
		return err
	}
	err = fn(ctx)
	cb.afterRequest(probe, err)
	return err
}

func (cb *CircuitBreaker) beforeRequest() (bool, error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.currentState(cb.config.Now()) {
	case StateOpen:
		return false, &CircuitOpenError{CircuitName: cb.name, NextAttemptTime: cb.nextAttemptTime}
	case StateHalfOpen:
		if cb.probes >= cb.config.MaxConcurrentProbes {
			return false, &CircuitOpenError{CircuitName: cb.name, NextAttemptTime: cb.nextAttemptTime}
		}
		cb.probes++
		return true, nil
	}
	return false, nil
}

func (cb *CircuitBreaker) afterRequest(probe bool, err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if probe && cb.probes > 0 {
		cb.probes--
	}
	now := cb.config.Now()
	if cb.config.ShouldTrip(err) {
		cb.onFailure(now)
	} else {
		cb.onSuccess(now)
	}
}

func (cb *CircuitBreaker) onFailure(now time.Time) {
	cb.failureCount++
	cb.lastFailureTime = now

	switch cb.state {
	case StateClosed:
		if cb.failureCount >= cb.config.FailureThreshold {
			cb.setState(StateOpen, now)
		}
	case StateHalfOpen:
		cb.setState(StateOpen, now)
	}
}

func (cb *CircuitBreaker) onSuccess(now time.Time) {
	switch cb.state {
	case StateHalfOpen:
		cb.successCount++
		if cb.successCount >= cb.config.SuccessThreshold {
			cb.setState(StateClosed, now)
		}
	case StateClosed:
		cb.failureCount = 0
	}
}

func (cb *CircuitBreaker) setState(state CircuitState, now time.Time) {
	prev := cb.state
	cb.state = state

	switch state {
	case StateClosed:
		cb.failureCount = 0
		cb.successCount = 0
		cb.nextAttemptTime = time.Time{}
	case StateOpen:
		cb.nextAttemptTime = now.Add(cb.config.Timeout)
		cb.successCount = 0
	case StateHalfOpen:
		cb.successCount = 0
		cb.probes = 0
	}

	if cb.config.OnStateChange != nil && prev != state {
		cb.config.OnStateChange(cb.name, prev, state)
	}
}

// currentState moves an open circuit to half-open once its timeout elapses.
func (cb *CircuitBreaker) currentState(now time.Time) CircuitState {
	if cb.state == StateOpen && !now.Before(cb.nextAttemptTime) {
		cb.setState(StateHalfOpen, now)
	}
	return cb.state
}

// State returns the current state of the circuit breaker
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.currentState(cb.config.Now())
}

// Stats returns a snapshot of the breaker's counters
func (cb *CircuitBreaker) Stats() CircuitBreakerStats {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return CircuitBreakerStats{
		Name:            cb.name,
		State:           cb.state,
		FailureCount:    cb.failureCount,
		SuccessCount:    cb.successCount,
		LastFailureTime: cb.lastFailureTime,
		NextAttemptTime: cb.nextAttemptTime,
	}
}

// CircuitBreakerStats contains statistics about a circuit breaker
type CircuitBreakerStats struct {
	Name            string       `json:"name"`
	State           CircuitState `json:"state"`
	FailureCount    int          `json:"failure_count"`
	SuccessCount    int          `json:"success_count"`
	LastFailureTime time.Time    `json:"last_failure_time,omitempty"`
	NextAttemptTime time.Time    `json:"next_attempt_time,omitempty"`
}

// CircuitOpenError is returned while the circuit is open. It matches
// ErrDatabaseUnavailable.
type CircuitOpenError struct {
	CircuitName     string
	NextAttemptTime time.Time
}

func (e *CircuitOpenError) Error() string {
	return fmt.Sprintf("circuit breaker '%s' is open, next attempt allowed at %s",
		e.CircuitName, e.NextAttemptTime.Format(time.RFC3339))
}

func (e *CircuitOpenError) Unwrap() error { return cryptoerr.ErrDatabaseUnavailable }

// IsCircuitOpenError checks if an error is a circuit open error
func IsCircuitOpenError(err error) bool {
	var openErr *CircuitOpenError
	return errors.As(err, &openErr)
}
