package reliability

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"time"

	"github.com/krathor2212/medcrypt/internal/cryptoerr"
)

// RetryPolicy controls how often and how patiently an operation is retried.
type RetryPolicy struct {
	// MaxAttempts includes the initial attempt
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	// Jitter is a fraction of the delay in [0, 1]
	Jitter float64
	// ShouldRetry defaults to IsTransient
	ShouldRetry func(error) bool
	// OnRetry is called before sleeping for the next attempt
	OnRetry func(attempt int, delay time.Duration, err error)
}

// DefaultRetryPolicy returns three attempts with exponential backoff from 50ms.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:  3,
		InitialDelay: 50 * time.Millisecond,
		MaxDelay:     2 * time.Second,
		Multiplier:   2.0,
		Jitter:       0.1,
	}
}

func (p RetryPolicy) withDefaults() RetryPolicy {
	def := DefaultRetryPolicy()
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = def.MaxAttempts
	}
	if p.InitialDelay < 0 {
		p.InitialDelay = def.InitialDelay
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = def.MaxDelay
	}
	if p.Multiplier <= 0 {
		p.Multiplier = def.Multiplier
	}
	if p.Jitter < 0 || p.Jitter > 1 {
		p.Jitter = def.Jitter
	}
	if p.ShouldRetry == nil {
		p.ShouldRetry = IsTransient
	}
	return p
}

// NextDelay returns the delay after the given 0-indexed attempt.
func (p RetryPolicy) NextDelay(attempt int) time.Duration {
	if attempt < 0 {
		return 0
	}
	delay := float64(p.InitialDelay) * math.Pow(p.Multiplier, float64(attempt))
	if delay > float64(p.MaxDelay) {
		delay = float64(p.MaxDelay)
	}
	if p.Jitter > 0 {
		delay += (rand.Float64() - 0.5) * 2 * delay * p.Jitter
	}
	if delay < 0 {
		delay = 0
	}
	return time.Duration(delay)
}

// Retry runs op until it succeeds, returns an error the policy does not retry,
// or exhausts MaxAttempts. The last error is returned unchanged.
func Retry(ctx context.Context, policy RetryPolicy, op func(context.Context) error) error {
	p := policy.withDefaults()

	var lastErr error
	for attempt := 0; attempt < p.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			if lastErr != nil {
				return lastErr
			}
			return err
		}

		lastErr = op(ctx)
		if lastErr == nil {
			return nil
		}
		if !p.ShouldRetry(lastErr) || attempt == p.MaxAttempts-1 {
			break
		}

		delay := p.NextDelay(attempt)
		if p.OnRetry != nil {
			p.OnRetry(attempt+1, delay, lastErr)
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return lastErr
		case <-timer.C:
		}
	}
	return lastErr
}

// IsTransient reports whether err marks a backend that may recover on its own.
// An open circuit is not transient: retrying it only burns the backoff.
func IsTransient(err error) bool {
	if err == nil || IsCircuitOpenError(err) {
		return false
	}
	return errors.Is(err, cryptoerr.ErrDatabaseUnavailable)
}
