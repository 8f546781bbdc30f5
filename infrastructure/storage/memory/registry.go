package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/felixgeelhaar/lode/domain/cache"
)

// Registry is a named collection of independent cache stores, so
// independent subsystems get isolated bounds and statistics.
type Registry[V any] struct {
	mu       sync.Mutex
	stores   map[string]*Store[V]
	defaults []Option[V]
}

// NewRegistry creates a registry. The given options are applied to
// every store the registry creates, before per-store options.
func NewRegistry[V any](defaults ...Option[V]) *Registry[V] {
	return &Registry[V]{
		stores:   make(map[string]*Store[V]),
		defaults: defaults,
	}
}

// GetOrCreate returns the store registered under name, creating it on
// first use. The call is idempotent: options are only applied when the
// store is created.
func (r *Registry[V]) GetOrCreate(name string, opts ...Option[V]) *Store[V] {
	r.mu.Lock()
	defer r.mu.Unlock()

	if store, ok := r.stores[name]; ok {
		return store
	}

	combined := make([]Option[V], 0, len(r.defaults)+len(opts))
	combined = append(combined, r.defaults...)
	combined = append(combined, opts...)

	store := NewStore[V](name, combined...)
	r.stores[name] = store
	return store
}

// Names returns the sorted names of all registered stores.
func (r *Registry[V]) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	names := make([]string, 0, len(r.stores))
	for name := range r.stores {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// StatsAll returns statistics for every registered store.
func (r *Registry[V]) StatsAll() map[string]cache.Stats {
	r.mu.Lock()
	defer r.mu.Unlock()

	stats := make(map[string]cache.Stats, len(r.stores))
	for name, store := range r.stores {
		stats[name] = store.Stats()
	}
	return stats
}

// ClearAll clears every registered store.
func (r *Registry[V]) ClearAll(ctx context.Context) error {
	for _, store := range r.snapshot() {
		if err := store.Clear(ctx); err != nil {
			return err
		}
	}
	return nil
}

// CleanupAll purges expired entries from every registered store and
// returns the total removed.
func (r *Registry[V]) CleanupAll(ctx context.Context) (int, error) {
	var total int
	for _, store := range r.snapshot() {
		removed, err := store.Cleanup(ctx)
		if err != nil {
			return total, err
		}
		total += removed
	}
	return total, nil
}

// DisposeAll disposes every registered store and forgets them.
func (r *Registry[V]) DisposeAll(ctx context.Context) error {
	r.mu.Lock()
	stores := make([]*Store[V], 0, len(r.stores))
	for _, store := range r.stores {
		stores = append(stores, store)
	}
	r.stores = make(map[string]*Store[V])
	r.mu.Unlock()

	var firstErr error
	for _, store := range stores {
		if err := store.Dispose(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// snapshot copies the current store list so bulk operations run
// without holding the registry lock.
func (r *Registry[V]) snapshot() []*Store[V] {
	r.mu.Lock()
	defer r.mu.Unlock()

	stores := make([]*Store[V], 0, len(r.stores))
	for _, store := range r.stores {
		stores = append(stores, store)
	}
	return stores
}
