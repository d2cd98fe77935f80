// Package health runs connectivity checks against the backends a medcrypt
// deployment depends on and folds them into one report.
package health

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/krathor2212/medcrypt/internal/reliability"
)

// Status represents the health status of a component
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
	StatusUnknown   Status = "unknown"
)

// Check is one named probe. A failing critical check makes the whole report
// unhealthy; a failing non-critical check only degrades it.
type Check struct {
	Name     string
	Critical bool
	Timeout  time.Duration
	Func     func(context.Context) (Status, error)
}

// Result is the outcome of one check.
type Result struct {
	Name     string        `json:"name"`
	Status   Status        `json:"status"`
	Error    string        `json:"error,omitempty"`
	Duration time.Duration `json:"duration"`
	Critical bool          `json:"critical"`
}

// Report is the outcome of every registered check, sorted by name.
type Report struct {
	Status      Status    `json:"status"`
	ServiceName string    `json:"service_name"`
	Version     string    `json:"version"`
	Timestamp   time.Time `json:"timestamp"`
	Results     []Result  `json:"results"`
}

// Checker holds the registered checks.
type Checker struct {
	mu          sync.RWMutex
	checks      map[string]*Check
	serviceName string
	version     string
	timeout     time.Duration
	now         func() time.Time
}

// NewChecker creates a checker with a 5s default per-check timeout.
func NewChecker(serviceName, version string) *Checker {
	return &Checker{
		checks:      make(map[string]*Check),
		serviceName: serviceName,
		version:     version,
		timeout:     5 * time.Second,
		now:         time.Now,
	}
}

// Register adds or replaces a check.
func (c *Checker) Register(check *Check) error {
	if check == nil || check.Name == "" || check.Func == nil {
		return errors.New("health check needs a name and a function")
	}
	if check.Timeout <= 0 {
		check.Timeout = c.timeout
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.checks[check.Name] = check
	return nil
}

// Run executes every check concurrently.
func (c *Checker) Run(ctx context.Context) *Report {
	c.mu.RLock()
	checks := make([]*Check, 0, len(c.checks))
	for _, check := range c.checks {
		checks = append(checks, check)
	}
	c.mu.RUnlock()

	results := make([]Result, len(checks))
	var wg sync.WaitGroup
	for i, check := range checks {
		wg.Add(1)
		go func(i int, check *Check) {
			defer wg.Done()
			results[i] = run(ctx, check)
		}(i, check)
	}
	wg.Wait()

	sort.Slice(results, func(i, j int) bool { return results[i].Name < results[j].Name })
	return &Report{
		Status:      overall(results),
		ServiceName: c.serviceName,
		Version:     c.version,
		Timestamp:   c.now(),
		Results:     results,
	}
}

func run(ctx context.Context, check *Check) Result {
	ctx, cancel := context.WithTimeout(ctx, check.Timeout)
	defer cancel()

	start := time.Now()
	status, err := check.Func(ctx)
	result := Result{
		Name:     check.Name,
		Status:   status,
		Duration: time.Since(start),
		Critical: check.Critical,
	}
	if err != nil {
		result.Error = err.Error()
		if status == StatusHealthy || status == "" {
			result.Status = StatusUnhealthy
		}
	}
	return result
}

func overall(results []Result) Status {
	if len(results) == 0 {
		return StatusUnknown
	}
	status := StatusHealthy
	for _, r := range results {
		switch r.Status {
		case StatusHealthy:
		case StatusUnhealthy, StatusUnknown:
			if r.Critical {
				return StatusUnhealthy
			}
			status = StatusDegraded
		default:
			status = StatusDegraded
		}
	}
	return status
}

// PingCheck wraps a function that returns nil when the backend answers.
func PingCheck(name string, critical bool, ping func(context.Context) error) *Check {
	return &Check{
		Name:     name,
		Critical: critical,
		Func: func(ctx context.Context) (Status, error) {
			if err := ping(ctx); err != nil {
				return StatusUnhealthy, err
			}
			return StatusHealthy, nil
		},
	}
}

// BreakerCheck reports a backend whose circuit is not closed as degraded.
func BreakerCheck(breaker *reliability.CircuitBreaker) *Check {
	return &Check{
		Name: "circuit:" + breaker.Name(),
		Func: func(context.Context) (Status, error) {
			if state := breaker.State(); state != reliability.StateClosed {
				return StatusDegraded, fmt.Errorf("circuit breaker is %s", state)
			}
			return StatusHealthy, nil
		},
	}
}
