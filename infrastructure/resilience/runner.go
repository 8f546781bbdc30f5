// Package resilience provides resilient factory execution using fortify.
package resilience

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/felixgeelhaar/fortify/bulkhead"
	"github.com/felixgeelhaar/fortify/retry"

	"github.com/felixgeelhaar/lode/domain/resource"
)

// Runner executes resource factories with bulkhead, retry, and
// per-attempt timeout patterns.
type Runner[V any] struct {
	bulkhead bulkhead.Bulkhead[V]
	retry    retry.Retry[V]
	timeout  time.Duration
}

// Config configures the runner.
type Config struct {
	// MaxConcurrent limits concurrent factory executions.
	MaxConcurrent int

	// RetryAttempts is the number of additional retries after the
	// first attempt. The total number of tries is RetryAttempts+1.
	RetryAttempts int

	// RetryDelay is the delay before the first retry. It doubles on
	// each subsequent retry.
	RetryDelay time.Duration

	// BackoffMultiplier is the exponential backoff multiplier.
	BackoffMultiplier float64

	// AttemptTimeout bounds a single factory attempt. A timed-out
	// attempt counts as a failure and is retried.
	AttemptTimeout time.Duration
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() Config {
	return Config{
		MaxConcurrent:     16,
		RetryAttempts:     3,
		RetryDelay:        time.Second,
		BackoffMultiplier: 2.0,
		AttemptTimeout:    30 * time.Second,
	}
}

// New creates a runner with the given configuration.
func New[V any](config Config) *Runner[V] {
	maxConcurrent := config.MaxConcurrent
	if maxConcurrent <= 0 {
		maxConcurrent = 16
	}
	attempts := config.RetryAttempts
	if attempts < 0 {
		attempts = 0
	}
	multiplier := config.BackoffMultiplier
	if multiplier <= 0 {
		multiplier = 2.0
	}

	return &Runner[V]{
		bulkhead: bulkhead.New[V](bulkhead.Config{
			MaxConcurrent: maxConcurrent,
		}),
		retry: retry.New[V](retry.Config{
			MaxAttempts:   attempts + 1,
			InitialDelay:  config.RetryDelay,
			BackoffPolicy: retry.BackoffExponential,
			Multiplier:    multiplier,
		}),
		timeout: config.AttemptTimeout,
	}
}

// Run executes the factory under the configured resilience policy.
// Composition order: Bulkhead → Retry → per-attempt Timeout. The error
// returned after exhaustion is always the most recent attempt's error.
func (r *Runner[V]) Run(ctx context.Context, factory resource.Factory[V]) (V, error) {
	return r.bulkhead.Execute(ctx, func(ctx context.Context) (V, error) {
		return r.retry.Do(ctx, func(ctx context.Context) (V, error) {
			return r.attempt(ctx, factory)
		})
	})
}

// attempt races one factory invocation against the attempt timeout.
// The factory goroutine is not interrupted on timeout beyond context
// cancellation; it runs to completion and its result is discarded.
func (r *Runner[V]) attempt(ctx context.Context, factory resource.Factory[V]) (V, error) {
	var zero V

	if r.timeout <= 0 {
		return factory(ctx)
	}

	actx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	type outcome struct {
		value V
		err   error
	}
	done := make(chan outcome, 1)

	go func() {
		value, err := factory(actx)
		done <- outcome{value: value, err: err}
	}()

	select {
	case o := <-done:
		if o.err != nil && errors.Is(o.err, context.DeadlineExceeded) {
			return zero, fmt.Errorf("attempt exceeded %s: %w", r.timeout, resource.ErrTimeout)
		}
		return o.value, o.err
	case <-actx.Done():
		if errors.Is(actx.Err(), context.DeadlineExceeded) {
			return zero, fmt.Errorf("attempt exceeded %s: %w", r.timeout, resource.ErrTimeout)
		}
		return zero, actx.Err()
	}
}
