package cache

import "time"

// Entry is one cached value plus its bookkeeping metadata.
type Entry[V any] struct {
	// Key is the unique identity of the entry.
	Key string `json:"key"`

	// Value is the cached payload.
	Value V `json:"value"`

	// CreatedAt is the insertion timestamp.
	CreatedAt time.Time `json:"created_at"`

	// TTL is the duration after CreatedAt at which the entry expires,
	// independent of access. Zero or negative means no expiry.
	TTL time.Duration `json:"ttl"`

	// SizeBytes is the estimated serialized size, used for memory
	// accounting.
	SizeBytes int64 `json:"size_bytes"`

	// AccessCount is incremented on every successful read.
	AccessCount int64 `json:"access_count"`

	// LastAccessedAt is the timestamp of the most recent read.
	LastAccessedAt time.Time `json:"last_accessed_at"`

	// Tags are optional labels for bulk group operations.
	Tags []string `json:"tags,omitempty"`
}

// Expired reports whether the entry is past its TTL at the given time.
func (e *Entry[V]) Expired(now time.Time) bool {
	if e.TTL <= 0 {
		return false
	}
	return now.After(e.CreatedAt.Add(e.TTL))
}

// HasTag reports whether the entry carries the given tag.
func (e *Entry[V]) HasTag(tag string) bool {
	for _, t := range e.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// Config configures a single cache store instance. All fields have
// defaults; overriding is per-instance.
type Config struct {
	// MaxEntries is the maximum number of entries before count
	// eviction kicks in.
	MaxEntries int

	// MaxMemoryBytes is the memory budget for cached values before
	// memory eviction kicks in.
	MaxMemoryBytes int64

	// DefaultTTL applies to entries stored without an explicit TTL.
	DefaultTTL time.Duration

	// CleanupInterval is how often the background sweep purges expired
	// entries. Zero disables the sweep.
	CleanupInterval time.Duration

	// Persistence enables the load-on-construct / save-on-dispose
	// round trip through the configured backend.
	Persistence bool
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() Config {
	return Config{
		MaxEntries:      1000,
		MaxMemoryBytes:  50 * 1024 * 1024,
		DefaultTTL:      time.Hour,
		CleanupInterval: 5 * time.Minute,
	}
}
