// Package memory provides the in-memory cache store and registry.
package memory

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/felixgeelhaar/lode/domain/cache"
	"github.com/felixgeelhaar/lode/infrastructure/logging"
)

// Eviction score weights. Lower score evicts first:
//
//	score = 1000*accessCount - 0.5*msSinceLastAccess - 0.3*msAge
//
// Recently and frequently accessed entries score high and survive;
// long-lived, rarely touched entries score low and go first. The large
// weight on access count deliberately favors frequency over pure
// recency: one extra access outweighs moderate recency and age
// differences. These are tunable constants, not invariants.
const (
	recencyWeight   = 0.5
	ageWeight       = 0.3
	frequencyWeight = 1000.0
)

// Sizer estimates the in-memory footprint of a cached value.
type Sizer[V any] func(key string, value V) int64

// defaultSizer estimates size as the JSON-encoded length plus the key.
func defaultSizer[V any](key string, value V) int64 {
	data, err := json.Marshal(value)
	if err != nil {
		return int64(len(key)) + 64
	}
	return int64(len(key) + len(data))
}

// Store is a bounded in-memory implementation of cache.Store with TTL
// expiration and score-based eviction.
type Store[V any] struct {
	name    string
	cfg     cache.Config
	sizer   Sizer[V]
	backend cache.Backend[V]

	mu          sync.Mutex
	entries     map[string]*cache.Entry[V]
	memoryBytes int64
	hits        int64
	misses      int64
	disposed    bool

	stopCleanup chan struct{}
	wg          sync.WaitGroup
}

// Option configures the store.
type Option[V any] func(*Store[V])

// WithConfig overrides the default configuration.
func WithConfig[V any](cfg cache.Config) Option[V] {
	return func(s *Store[V]) {
		s.cfg = cfg
	}
}

// WithSizer overrides the default JSON-length size estimator.
func WithSizer[V any](sizer Sizer[V]) Option[V] {
	return func(s *Store[V]) {
		s.sizer = sizer
	}
}

// WithBackend attaches a persistence backend. It is only consulted
// when the configuration enables persistence.
func WithBackend[V any](backend cache.Backend[V]) Option[V] {
	return func(s *Store[V]) {
		s.backend = backend
	}
}

// NewStore creates a named in-memory store. If persistence is enabled
// and a backend is attached, previously saved live entries are
// restored; restore failures are logged and the store starts empty.
func NewStore[V any](name string, opts ...Option[V]) *Store[V] {
	s := &Store[V]{
		name:        name,
		cfg:         cache.DefaultConfig(),
		sizer:       defaultSizer[V],
		entries:     make(map[string]*cache.Entry[V]),
		stopCleanup: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.cfg.Persistence && s.backend != nil {
		s.restore()
	}

	if s.cfg.CleanupInterval > 0 {
		s.wg.Add(1)
		go s.cleanupLoop()
	}

	return s
}

// Name returns the store's name.
func (s *Store[V]) Name() string {
	return s.name
}

// Get retrieves a cached value. Expired entries are removed and count
// as misses.
func (s *Store[V]) Get(ctx context.Context, key string) (V, bool, error) {
	var zero V
	if err := ctx.Err(); err != nil {
		return zero, false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.disposed {
		return zero, false, cache.ErrDisposed
	}

	entry, ok := s.entries[key]
	if !ok {
		s.misses++
		return zero, false, nil
	}

	now := time.Now()
	if entry.Expired(now) {
		s.removeLocked(key)
		s.misses++
		return zero, false, nil
	}

	entry.AccessCount++
	entry.LastAccessedAt = now
	s.hits++
	return entry.Value, true, nil
}

// Set stores a value, evicting low-score entries to satisfy the memory
// and count bounds. An existing entry for the key is overwritten.
func (s *Store[V]) Set(ctx context.Context, key string, value V, opts cache.SetOptions) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if key == "" {
		return cache.ErrInvalidKey
	}

	ttl := opts.TTL
	if ttl <= 0 {
		ttl = s.cfg.DefaultTTL
	}
	size := s.sizer(key, value)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.disposed {
		return cache.ErrDisposed
	}

	// Overwrite: drop the old entry's accounting first.
	if _, exists := s.entries[key]; exists {
		s.removeLocked(key)
	}

	// Memory eviction, then count eviction.
	if s.cfg.MaxMemoryBytes > 0 {
		for s.memoryBytes+size > s.cfg.MaxMemoryBytes && len(s.entries) > 0 {
			s.evictLowestLocked()
		}
	}
	if s.cfg.MaxEntries > 0 && len(s.entries) >= s.cfg.MaxEntries {
		s.evictLowestLocked()
	}

	now := time.Now()
	s.entries[key] = &cache.Entry[V]{
		Key:            key,
		Value:          value,
		CreatedAt:      now,
		TTL:            ttl,
		SizeBytes:      size,
		LastAccessedAt: now,
		Tags:           append([]string(nil), opts.Tags...),
	}
	s.memoryBytes += size
	return nil
}

// GetOrSet returns the cached value if present, otherwise invokes the
// factory, stores its result, and returns it.
//
// Concurrent callers that miss at the same time each invoke the
// factory: GetOrSet is not single-flight. The resource loader provides
// that guarantee.
func (s *Store[V]) GetOrSet(ctx context.Context, key string, factory func(context.Context) (V, error), opts cache.SetOptions) (V, error) {
	if value, ok, err := s.Get(ctx, key); err != nil || ok {
		return value, err
	}

	value, err := factory(ctx)
	if err != nil {
		var zero V
		return zero, err
	}
	if err := s.Set(ctx, key, value, opts); err != nil {
		var zero V
		return zero, err
	}
	return value, nil
}

// Delete removes an entry and reports whether one was present.
func (s *Store[V]) Delete(ctx context.Context, key string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.disposed {
		return false, cache.ErrDisposed
	}

	if _, ok := s.entries[key]; !ok {
		return false, nil
	}
	s.removeLocked(key)
	return true, nil
}

// Has checks whether a live entry exists for the key. It does not
// mutate access statistics.
func (s *Store[V]) Has(ctx context.Context, key string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.disposed {
		return false, cache.ErrDisposed
	}

	entry, ok := s.entries[key]
	if !ok {
		return false, nil
	}
	return !entry.Expired(time.Now()), nil
}

// Clear removes all entries.
func (s *Store[V]) Clear(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.disposed {
		return cache.ErrDisposed
	}

	s.entries = make(map[string]*cache.Entry[V])
	s.memoryBytes = 0
	return nil
}

// GetByTag returns snapshots of all live entries carrying the tag.
func (s *Store[V]) GetByTag(ctx context.Context, tag string) ([]cache.Entry[V], error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.disposed {
		return nil, cache.ErrDisposed
	}

	now := time.Now()
	var matches []cache.Entry[V]
	for _, entry := range s.entries {
		if entry.Expired(now) || !entry.HasTag(tag) {
			continue
		}
		matches = append(matches, *entry)
	}
	return matches, nil
}

// DeleteByTag removes all entries carrying the tag, expired or not,
// and returns the number removed.
func (s *Store[V]) DeleteByTag(ctx context.Context, tag string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.disposed {
		return 0, cache.ErrDisposed
	}

	var removed int
	for key, entry := range s.entries {
		if entry.HasTag(tag) {
			s.removeLocked(key)
			removed++
		}
	}
	return removed, nil
}

// Cleanup removes all expired entries and returns the number removed.
func (s *Store[V]) Cleanup(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.disposed {
		return 0, cache.ErrDisposed
	}
	return s.cleanupLocked(), nil
}

// Resize evicts lowest-score entries until at most target remain.
// Returns the number evicted.
func (s *Store[V]) Resize(ctx context.Context, target int) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if target < 0 {
		target = 0
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.disposed {
		return 0, cache.ErrDisposed
	}

	var evicted int
	for len(s.entries) > target {
		s.evictLowestLocked()
		evicted++
	}
	return evicted, nil
}

// Export returns snapshots of all live entries.
func (s *Store[V]) Export(ctx context.Context) ([]cache.Entry[V], error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.disposed {
		return nil, cache.ErrDisposed
	}
	return s.exportLocked(), nil
}

// Stats returns current cache statistics.
func (s *Store[V]) Stats() cache.Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats := cache.Stats{
		Hits:        s.hits,
		Misses:      s.misses,
		EntryCount:  len(s.entries),
		MemoryBytes: s.memoryBytes,
	}
	for _, entry := range s.entries {
		if stats.OldestCreatedAt.IsZero() || entry.CreatedAt.Before(stats.OldestCreatedAt) {
			stats.OldestCreatedAt = entry.CreatedAt
		}
		if entry.CreatedAt.After(stats.NewestCreatedAt) {
			stats.NewestCreatedAt = entry.CreatedAt
		}
	}
	return stats
}

// Dispose stops the cleanup goroutine and, when persistence is
// enabled, saves all live entries. Persistence failures are logged as
// warnings; the store is disposed regardless.
func (s *Store[V]) Dispose(ctx context.Context) error {
	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return nil
	}
	s.disposed = true
	entries := s.exportLocked()
	s.mu.Unlock()

	close(s.stopCleanup)
	s.wg.Wait()

	if s.cfg.Persistence && s.backend != nil {
		if err := s.backend.SaveAll(ctx, s.name, entries); err != nil {
			logging.Warn().
				Add(logging.CacheName(s.name)).
				Add(logging.ErrorField(err)).
				Msg("cache snapshot save failed")
		}
	}
	return nil
}

// restore loads previously saved entries, skipping any already expired.
func (s *Store[V]) restore() {
	ctx := context.Background()
	saved, err := s.backend.LoadAll(ctx, s.name)
	if err != nil {
		logging.Warn().
			Add(logging.CacheName(s.name)).
			Add(logging.ErrorField(err)).
			Msg("cache snapshot load failed, starting empty")
		return
	}

	now := time.Now()
	for _, entry := range saved {
		if entry.Expired(now) || entry.Key == "" {
			continue
		}
		e := entry
		s.entries[e.Key] = &e
		s.memoryBytes += e.SizeBytes
	}

	// Restored contents still honor the configured bounds.
	if s.cfg.MaxMemoryBytes > 0 {
		for s.memoryBytes > s.cfg.MaxMemoryBytes && len(s.entries) > 0 {
			s.evictLowestLocked()
		}
	}
	if s.cfg.MaxEntries > 0 {
		for len(s.entries) > s.cfg.MaxEntries {
			s.evictLowestLocked()
		}
	}

	logging.Debug().
		Add(logging.CacheName(s.name)).
		Add(logging.Count(len(s.entries))).
		Msg("cache restored from snapshot")
}

// cleanupLoop periodically purges expired entries until disposed.
func (s *Store[V]) cleanupLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cfg.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCleanup:
			return
		case <-ticker.C:
			s.mu.Lock()
			if s.disposed {
				s.mu.Unlock()
				return
			}
			removed := s.cleanupLocked()
			s.mu.Unlock()
			if removed > 0 {
				logging.Debug().
					Add(logging.CacheName(s.name)).
					Add(logging.Count(removed)).
					Msg("expired cache entries purged")
			}
		}
	}
}

// cleanupLocked removes expired entries. Must be called with lock held.
func (s *Store[V]) cleanupLocked() int {
	now := time.Now()
	var removed int
	for key, entry := range s.entries {
		if entry.Expired(now) {
			s.removeLocked(key)
			removed++
		}
	}
	return removed
}

// exportLocked snapshots all live entries. Must be called with lock
// held.
func (s *Store[V]) exportLocked() []cache.Entry[V] {
	now := time.Now()
	entries := make([]cache.Entry[V], 0, len(s.entries))
	for _, entry := range s.entries {
		if entry.Expired(now) {
			continue
		}
		entries = append(entries, *entry)
	}
	return entries
}

// removeLocked deletes an entry and its memory accounting. Must be
// called with lock held.
func (s *Store[V]) removeLocked(key string) {
	entry, ok := s.entries[key]
	if !ok {
		return
	}
	s.memoryBytes -= entry.SizeBytes
	delete(s.entries, key)
}

// evictLowestLocked removes the entry with the lowest eviction score.
// Must be called with lock held.
func (s *Store[V]) evictLowestLocked() {
	now := time.Now()
	var victim string
	var lowest float64
	first := true

	for key, entry := range s.entries {
		sc := score(entry, now)
		if first || sc < lowest {
			victim = key
			lowest = sc
			first = false
		}
	}
	if !first {
		s.removeLocked(victim)
	}
}

// score ranks an entry for eviction; lower is evicted first.
func score[V any](entry *cache.Entry[V], now time.Time) float64 {
	sinceAccess := float64(now.Sub(entry.LastAccessedAt).Milliseconds())
	age := float64(now.Sub(entry.CreatedAt).Milliseconds())
	return frequencyWeight*float64(entry.AccessCount) - recencyWeight*sinceAccess - ageWeight*age
}

// Ensure Store implements the domain contracts.
var (
	_ cache.Store[any]    = (*Store[any])(nil)
	_ cache.StatsProvider = (*Store[any])(nil)
)
