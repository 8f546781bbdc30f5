// Package redis provides a Redis-backed cache persistence backend.
package redis

import (
	"time"
)

// Config holds the Redis connection settings the backend needs.
// Snapshot persistence is a low-frequency bulk read/write, so pool and
// socket tuning stays at the client library's defaults.
type Config struct {
	// Address is the Redis server address (host:port).
	Address string

	// Password for authentication (optional).
	Password string

	// DB selects the Redis database index.
	DB int

	// DialTimeout bounds connection establishment and the initial ping.
	DialTimeout time.Duration

	// KeyPrefix is prepended to all snapshot keys for namespacing.
	KeyPrefix string
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Address:     "localhost:6379",
		DialTimeout: 5 * time.Second,
		KeyPrefix:   "lode:",
	}
}

// ConfigOption configures the Redis connection.
type ConfigOption func(*Config)

// WithAddress sets the Redis server address.
func WithAddress(addr string) ConfigOption {
	return func(c *Config) {
		c.Address = addr
	}
}

// WithPassword sets the authentication password.
func WithPassword(password string) ConfigOption {
	return func(c *Config) {
		c.Password = password
	}
}

// WithDB sets the database index.
func WithDB(db int) ConfigOption {
	return func(c *Config) {
		c.DB = db
	}
}

// WithKeyPrefix sets the key prefix for namespacing.
func WithKeyPrefix(prefix string) ConfigOption {
	return func(c *Config) {
		c.KeyPrefix = prefix
	}
}

// WithDialTimeout sets the connection establishment timeout.
func WithDialTimeout(d time.Duration) ConfigOption {
	return func(c *Config) {
		c.DialTimeout = d
	}
}
