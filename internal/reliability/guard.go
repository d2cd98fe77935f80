// Package reliability retries transient backend failures and stops calling a
// backend that keeps failing. Only errors matching ErrDatabaseUnavailable are
// considered transient; access, integrity and not-found errors pass through
// on the first attempt.
package reliability

import "context"

// Guard combines a retry policy with a circuit breaker for one backend.
type Guard struct {
	policy  RetryPolicy
	breaker *CircuitBreaker
}

// NewGuard returns a Guard named after the backend it protects.
func NewGuard(name string, policy RetryPolicy, breaker CircuitBreakerConfig) *Guard {
	return &Guard{policy: policy, breaker: NewCircuitBreaker(name, breaker)}
}

// NewDefaultGuard uses DefaultRetryPolicy and DefaultCircuitBreakerConfig.
func NewDefaultGuard(name string) *Guard {
	return NewGuard(name, DefaultRetryPolicy(), DefaultCircuitBreakerConfig())
}

// Do runs op through the breaker, retrying transient failures.
func (g *Guard) Do(ctx context.Context, op func(context.Context) error) error {
	return Retry(ctx, g.policy, func(ctx context.Context) error {
		return g.breaker.Execute(ctx, op)
	})
}

// Breaker exposes the underlying circuit breaker.
func (g *Guard) Breaker() *CircuitBreaker { return g.breaker }
