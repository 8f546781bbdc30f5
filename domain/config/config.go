// Package config provides domain models for lode configuration.
package config

import "time"

// Settings is the complete lode configuration.
type Settings struct {
	// Name is a human-readable name for this configuration.
	Name string `json:"name" yaml:"name"`
	// Version is the configuration schema version.
	Version string `json:"version,omitempty" yaml:"version,omitempty"`

	// Logging configures structured logging.
	Logging LoggingSettings `json:"logging,omitempty" yaml:"logging,omitempty"`
	// Loader configures the resource loader.
	Loader LoaderSettings `json:"loader,omitempty" yaml:"loader,omitempty"`
	// Caches configures named cache stores.
	Caches map[string]CacheSettings `json:"caches,omitempty" yaml:"caches,omitempty"`
	// Persistence configures the snapshot backend.
	Persistence PersistenceSettings `json:"persistence,omitempty" yaml:"persistence,omitempty"`
}

// LoggingSettings configures the logger.
type LoggingSettings struct {
	// Level is the minimum level: trace, debug, info, warn, error.
	Level string `json:"level,omitempty" yaml:"level,omitempty"`
	// Format is the output format: json or console.
	Format string `json:"format,omitempty" yaml:"format,omitempty"`
}

// CacheSettings configures one named cache store.
type CacheSettings struct {
	// MaxEntries bounds the entry count.
	MaxEntries int `json:"max_entries,omitempty" yaml:"max_entries,omitempty"`
	// MaxMemoryBytes bounds the estimated value memory.
	MaxMemoryBytes int64 `json:"max_memory_bytes,omitempty" yaml:"max_memory_bytes,omitempty"`
	// DefaultTTL applies to entries stored without an explicit TTL.
	DefaultTTL Duration `json:"default_ttl,omitempty" yaml:"default_ttl,omitempty"`
	// CleanupInterval is how often expired entries are swept.
	CleanupInterval Duration `json:"cleanup_interval,omitempty" yaml:"cleanup_interval,omitempty"`
	// Persistence enables the snapshot round trip for this cache.
	Persistence bool `json:"persistence,omitempty" yaml:"persistence,omitempty"`
}

// LoaderSettings configures the resource loader.
type LoaderSettings struct {
	// CacheName names the loader's cache store.
	CacheName string `json:"cache_name,omitempty" yaml:"cache_name,omitempty"`
	// ResultTTL is the TTL applied to loaded values.
	ResultTTL Duration `json:"result_ttl,omitempty" yaml:"result_ttl,omitempty"`
	// MaxConcurrent limits concurrent factory executions.
	MaxConcurrent int `json:"max_concurrent,omitempty" yaml:"max_concurrent,omitempty"`
	// RetryAttempts is the number of retries after the first attempt.
	RetryAttempts int `json:"retry_attempts,omitempty" yaml:"retry_attempts,omitempty"`
	// RetryDelay is the delay before the first retry.
	RetryDelay Duration `json:"retry_delay,omitempty" yaml:"retry_delay,omitempty"`
	// BackoffMultiplier is the exponential backoff multiplier.
	BackoffMultiplier float64 `json:"backoff_multiplier,omitempty" yaml:"backoff_multiplier,omitempty"`
	// AttemptTimeout bounds a single factory attempt.
	AttemptTimeout Duration `json:"attempt_timeout,omitempty" yaml:"attempt_timeout,omitempty"`
	// PreloadBatchSize is how many queued preloads drain per chunk.
	PreloadBatchSize int `json:"preload_batch_size,omitempty" yaml:"preload_batch_size,omitempty"`
	// PreloadDebounce coalesces bursts of preload calls.
	PreloadDebounce Duration `json:"preload_debounce,omitempty" yaml:"preload_debounce,omitempty"`
	// PreloadChunkDelay is the pause between drained chunks.
	PreloadChunkDelay Duration `json:"preload_chunk_delay,omitempty" yaml:"preload_chunk_delay,omitempty"`
}

// PersistenceSettings selects and configures a snapshot backend.
type PersistenceSettings struct {
	// Backend is one of: none, filesystem, badger, redis.
	Backend string `json:"backend,omitempty" yaml:"backend,omitempty"`
	// Filesystem configures the filesystem backend.
	Filesystem FilesystemSettings `json:"filesystem,omitempty" yaml:"filesystem,omitempty"`
	// Badger configures the BadgerDB backend.
	Badger BadgerSettings `json:"badger,omitempty" yaml:"badger,omitempty"`
	// Redis configures the Redis backend.
	Redis RedisSettings `json:"redis,omitempty" yaml:"redis,omitempty"`
}

// Recognized persistence backends.
const (
	BackendNone       = "none"
	BackendFilesystem = "filesystem"
	BackendBadger     = "badger"
	BackendRedis      = "redis"
)

// FilesystemSettings configures the filesystem snapshot backend.
type FilesystemSettings struct {
	// Dir is the snapshot directory.
	Dir string `json:"dir,omitempty" yaml:"dir,omitempty"`
}

// BadgerSettings configures the BadgerDB snapshot backend.
type BadgerSettings struct {
	// Dir is the data directory.
	Dir string `json:"dir,omitempty" yaml:"dir,omitempty"`
	// InMemory uses in-memory storage.
	InMemory bool `json:"in_memory,omitempty" yaml:"in_memory,omitempty"`
	// SyncWrites enables synchronous writes.
	SyncWrites bool `json:"sync_writes,omitempty" yaml:"sync_writes,omitempty"`
	// KeyPrefix is added to all keys.
	KeyPrefix string `json:"key_prefix,omitempty" yaml:"key_prefix,omitempty"`
}

// RedisSettings configures the Redis snapshot backend.
type RedisSettings struct {
	// Address is the Redis server address (host:port).
	Address string `json:"address,omitempty" yaml:"address,omitempty"`
	// Password for authentication (optional).
	Password string `json:"password,omitempty" yaml:"password,omitempty"`
	// DB selects the Redis database index.
	DB int `json:"db,omitempty" yaml:"db,omitempty"`
	// KeyPrefix is prepended to all keys.
	KeyPrefix string `json:"key_prefix,omitempty" yaml:"key_prefix,omitempty"`
}

// Duration is a time.Duration that supports JSON/YAML string
// representation ("30s", "5m").
type Duration time.Duration

// MarshalJSON implements json.Marshaler.
func (d Duration) MarshalJSON() ([]byte, error) {
	return []byte(`"` + time.Duration(d).String() + `"`), nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *Duration) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		return nil
	}
	s := string(b)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	dur, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(dur)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(unmarshal func(any) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	dur, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(dur)
	return nil
}

// Duration returns the underlying time.Duration.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}
