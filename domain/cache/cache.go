// Package cache provides the domain model for bounded, TTL-aware
// resource caching.
package cache

import (
	"context"
	"time"
)

// Store defines the interface for a bounded key/value cache with TTL
// expiration. Implementations own the full entry lifecycle: insertion,
// expiry, and eviction.
type Store[V any] interface {
	// Get retrieves a cached value by key. An expired entry is removed
	// as a side effect and reported as a miss.
	Get(ctx context.Context, key string) (V, bool, error)

	// Set stores a value, evicting low-score entries first if the new
	// entry would exceed the memory or count bounds. An existing entry
	// for the same key is overwritten.
	Set(ctx context.Context, key string, value V, opts SetOptions) error

	// GetOrSet returns the cached value if present, otherwise invokes
	// factory, stores the result, and returns it.
	//
	// GetOrSet does NOT collapse concurrent callers: two goroutines
	// missing at the same time both invoke factory. Callers that need
	// the single-flight guarantee use the resource loader instead.
	GetOrSet(ctx context.Context, key string, factory func(context.Context) (V, error), opts SetOptions) (V, error)

	// Delete removes an entry. Reports whether an entry was present.
	Delete(ctx context.Context, key string) (bool, error)

	// Has checks whether a live (non-expired) entry exists for key.
	Has(ctx context.Context, key string) (bool, error)

	// Clear removes all entries.
	Clear(ctx context.Context) error

	// GetByTag returns all live entries carrying the given tag.
	GetByTag(ctx context.Context, tag string) ([]Entry[V], error)

	// DeleteByTag removes all entries carrying the given tag and
	// returns the number removed.
	DeleteByTag(ctx context.Context, tag string) (int, error)

	// Cleanup removes all expired entries and returns the number
	// removed. It also runs periodically on the configured interval.
	Cleanup(ctx context.Context) (int, error)

	// Resize evicts lowest-score entries until at most target remain.
	Resize(ctx context.Context, target int) (int, error)

	// Export returns a snapshot of all live entries.
	Export(ctx context.Context) ([]Entry[V], error)

	// Dispose stops the cleanup timer and, if persistence is enabled,
	// saves all live entries to the backend.
	Dispose(ctx context.Context) error
}

// SetOptions configures how a value is stored.
type SetOptions struct {
	// TTL is the time-to-live for the entry. Zero means the store's
	// default TTL applies.
	TTL time.Duration

	// Tags label the entry for bulk group operations.
	Tags []string
}

// Backend is the persistence collaborator. It is invoked only at store
// construction (LoadAll) and disposal (SaveAll), never on individual
// writes.
type Backend[V any] interface {
	// LoadAll returns all previously saved entries for the named cache.
	LoadAll(ctx context.Context, name string) ([]Entry[V], error)

	// SaveAll replaces the saved entries for the named cache.
	SaveAll(ctx context.Context, name string, entries []Entry[V]) error
}

// Stats provides cache statistics.
type Stats struct {
	// Hits is the number of cache hits.
	Hits int64
	// Misses is the number of cache misses.
	Misses int64
	// EntryCount is the current number of entries.
	EntryCount int
	// MemoryBytes is the estimated memory used by cached values.
	MemoryBytes int64
	// OldestCreatedAt is the creation time of the oldest entry.
	// Zero when the cache is empty.
	OldestCreatedAt time.Time
	// NewestCreatedAt is the creation time of the newest entry.
	// Zero when the cache is empty.
	NewestCreatedAt time.Time
}

// HitRatio returns hits/(hits+misses), or 0 when there have been no
// accesses yet.
func (s Stats) HitRatio() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

// StatsProvider is an optional interface for stores that report
// statistics.
type StatsProvider interface {
	// Stats returns current cache statistics.
	Stats() Stats
}
