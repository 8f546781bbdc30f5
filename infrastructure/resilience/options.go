package resilience

import "time"

// Option configures the runner.
type Option func(*Config)

// WithMaxConcurrent sets the maximum concurrent factory executions.
func WithMaxConcurrent(n int) Option {
	return func(c *Config) {
		c.MaxConcurrent = n
	}
}

// WithRetryAttempts sets the number of retries after the first attempt.
func WithRetryAttempts(n int) Option {
	return func(c *Config) {
		c.RetryAttempts = n
	}
}

// WithRetryDelay sets the initial retry delay.
func WithRetryDelay(d time.Duration) Option {
	return func(c *Config) {
		c.RetryDelay = d
	}
}

// WithBackoffMultiplier sets the exponential backoff multiplier.
func WithBackoffMultiplier(m float64) Option {
	return func(c *Config) {
		c.BackoffMultiplier = m
	}
}

// WithAttemptTimeout sets the per-attempt timeout.
func WithAttemptTimeout(d time.Duration) Option {
	return func(c *Config) {
		c.AttemptTimeout = d
	}
}

// NewWithOptions creates a runner with the given options applied to the
// default configuration.
func NewWithOptions[V any](opts ...Option) *Runner[V] {
	config := DefaultConfig()
	for _, opt := range opts {
		opt(&config)
	}
	return New[V](config)
}
