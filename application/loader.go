// Package application provides the resource loading service: lazy,
// dependency-aware loads with single-flight deduplication, retries,
// and prioritized preloading over a cache store.
package application

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/felixgeelhaar/statekit"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/felixgeelhaar/lode/domain/cache"
	"github.com/felixgeelhaar/lode/domain/resource"
	"github.com/felixgeelhaar/lode/infrastructure/lifecycle"
	"github.com/felixgeelhaar/lode/infrastructure/logging"
	"github.com/felixgeelhaar/lode/infrastructure/resilience"
	"github.com/felixgeelhaar/lode/infrastructure/storage/memory"
)

// ErrDisposed is returned for operations on a disposed loader.
var ErrDisposed = errors.New("resource loader disposed")

// record tracks one registered resource: its definition, lifecycle
// tracker, and last outcome.
type record[V any] struct {
	def      resource.Resource[V]
	tracker  *lifecycle.Tracker
	err      error
	duration time.Duration
	loadedAt time.Time
}

// Config configures the loader.
type Config struct {
	// CacheName names the owned cache store when none is supplied.
	CacheName string

	// ResultTTL is the TTL applied to loaded values. Zero means the
	// store's default TTL.
	ResultTTL time.Duration

	// PreloadBatchSize is how many queued preloads drain per chunk.
	PreloadBatchSize int

	// PreloadDebounce coalesces bursts of Preload calls before the
	// queue starts draining.
	PreloadDebounce time.Duration

	// PreloadChunkDelay is the pause between drained chunks, so
	// preloading does not saturate a rate-limited source.
	PreloadChunkDelay time.Duration

	// Resilience configures retry, backoff, per-attempt timeout, and
	// the concurrency bulkhead for factory execution.
	Resilience resilience.Config
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() Config {
	return Config{
		CacheName:         "resources",
		PreloadBatchSize:  5,
		PreloadDebounce:   50 * time.Millisecond,
		PreloadChunkDelay: 100 * time.Millisecond,
		Resilience:        resilience.DefaultConfig(),
	}
}

// Loader lazily loads registered resources. Concurrent loads of the
// same ID collapse into one factory execution; dependencies resolve
// before the dependent's factory runs.
type Loader[V any] struct {
	store     cache.Store[V]
	ownsStore bool
	runner    *resilience.Runner[V]
	machine   *statekit.MachineConfig[*lifecycle.Context]
	cfg       Config

	mu       sync.Mutex
	records  map[string]*record[V]
	disposed bool

	flights singleflight.Group

	// waits is the flight wait-for graph: which flight is blocked on
	// which resource's flight. Used to fail mutually dependent flights
	// started concurrently instead of deadlocking them on each other.
	waitMu sync.Mutex
	waits  map[string][]string

	preloadMu    sync.Mutex
	preloadQueue []string
	preloadTimer *time.Timer
	draining     bool

	stop chan struct{}
}

// NewLoader creates a loader. Without WithStore it owns a fresh
// in-memory store and disposes it with itself.
func NewLoader[V any](opts ...Option[V]) (*Loader[V], error) {
	l := &Loader[V]{
		cfg:     DefaultConfig(),
		records: make(map[string]*record[V]),
		waits:   make(map[string][]string),
		stop:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(l)
	}

	machine, err := lifecycle.NewMachine()
	if err != nil {
		return nil, fmt.Errorf("build lifecycle machine: %w", err)
	}
	l.machine = machine

	if l.store == nil {
		l.store = memory.NewStore[V](l.cfg.CacheName)
		l.ownsStore = true
	}
	if l.runner == nil {
		l.runner = resilience.New[V](l.cfg.Resilience)
	}
	return l, nil
}

// Register adds a resource to the catalogue in pending state.
// Re-registering an ID overwrites its definition but keeps the
// lifecycle state and any cached value; a load already in flight
// completes with the definition it started with.
func (l *Loader[V]) Register(res resource.Resource[V]) error {
	if res.ID == "" {
		return fmt.Errorf("%w: empty ID", resource.ErrInvalidResource)
	}
	if res.Load == nil {
		return fmt.Errorf("%w: %q has no factory", resource.ErrInvalidResource, res.ID)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.disposed {
		return ErrDisposed
	}

	if existing, ok := l.records[res.ID]; ok {
		existing.def = res
		return nil
	}
	l.records[res.ID] = &record[V]{
		def:     res,
		tracker: lifecycle.NewTracker(l.machine, res.ID),
	}
	return nil
}

// RegisterBatch registers each resource, stopping at the first invalid
// declaration.
func (l *Loader[V]) RegisterBatch(resources []resource.Resource[V]) error {
	for _, res := range resources {
		if err := l.Register(res); err != nil {
			return err
		}
	}
	return nil
}

// Load returns the resource's value, loading it on demand. Concurrent
// callers for the same ID share a single factory execution and all
// receive the same result. Dependencies load first, in parallel; a
// dependency failure propagates as-is and the dependent's factory
// never runs.
func (l *Loader[V]) Load(ctx context.Context, id string) (V, error) {
	return l.load(ctx, id, nil)
}

// LoadBatch loads all IDs concurrently. A failing ID is logged and
// excluded from the result; it never fails the whole batch.
func (l *Loader[V]) LoadBatch(ctx context.Context, ids []string) map[string]V {
	results := make(map[string]V, len(ids))
	var mu sync.Mutex
	var wg sync.WaitGroup

	for _, id := range ids {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			value, err := l.Load(ctx, id)
			if err != nil {
				logging.Warn().
					Add(logging.ResourceID(id)).
					Add(logging.ErrorField(err)).
					Msg("batch load failed for resource")
				return
			}
			mu.Lock()
			results[id] = value
			mu.Unlock()
		}(id)
	}
	wg.Wait()
	return results
}

// Invalidate drops the cached value, forgets any in-flight load, and
// resets the lifecycle to pending.
func (l *Loader[V]) Invalidate(ctx context.Context, id string) error {
	l.mu.Lock()
	rec, ok := l.records[id]
	if !ok {
		l.mu.Unlock()
		return fmt.Errorf("%w: %s", resource.ErrNotRegistered, id)
	}
	rec.err = nil
	rec.duration = 0
	rec.loadedAt = time.Time{}
	l.mu.Unlock()

	l.flights.Forget(id)
	if _, err := l.store.Delete(ctx, id); err != nil {
		return err
	}
	return rec.tracker.Invalidate()
}

// InvalidateBatch invalidates every given ID, ignoring unregistered
// ones.
func (l *Loader[V]) InvalidateBatch(ctx context.Context, ids []string) error {
	for _, id := range ids {
		if err := l.Invalidate(ctx, id); err != nil && !errors.Is(err, resource.ErrNotRegistered) {
			return err
		}
	}
	return nil
}

// IsLoaded reports whether the resource reached the loaded state.
func (l *Loader[V]) IsLoaded(id string) bool {
	status, ok := l.Status(id)
	return ok && status.State == resource.StateLoaded
}

// IsLoading reports whether a load is currently in flight.
func (l *Loader[V]) IsLoading(id string) bool {
	status, ok := l.Status(id)
	return ok && status.State == resource.StateLoading
}

// Status returns the lifecycle snapshot for the ID.
func (l *Loader[V]) Status(id string) (resource.Status, bool) {
	l.mu.Lock()
	rec, ok := l.records[id]
	if !ok {
		l.mu.Unlock()
		return resource.Status{}, false
	}
	status := resource.Status{
		ID:       id,
		Err:      rec.err,
		Duration: rec.duration,
		LoadedAt: rec.loadedAt,
	}
	tracker := rec.tracker
	l.mu.Unlock()

	status.State = tracker.State()
	return status, true
}

// Statuses returns lifecycle snapshots for the given IDs, omitting
// unregistered ones.
func (l *Loader[V]) Statuses(ids []string) map[string]resource.Status {
	statuses := make(map[string]resource.Status, len(ids))
	for _, id := range ids {
		if status, ok := l.Status(id); ok {
			statuses[id] = status
		}
	}
	return statuses
}

// Dispose stops the preload queue, stops all lifecycle trackers, and
// disposes the owned cache store.
func (l *Loader[V]) Dispose(ctx context.Context) error {
	l.mu.Lock()
	if l.disposed {
		l.mu.Unlock()
		return nil
	}
	l.disposed = true
	records := make([]*record[V], 0, len(l.records))
	for _, rec := range l.records {
		records = append(records, rec)
	}
	l.records = make(map[string]*record[V])
	l.mu.Unlock()

	close(l.stop)

	l.preloadMu.Lock()
	if l.preloadTimer != nil {
		l.preloadTimer.Stop()
		l.preloadTimer = nil
	}
	l.preloadQueue = nil
	l.preloadMu.Unlock()

	for _, rec := range records {
		rec.tracker.Stop()
	}

	if l.ownsStore {
		return l.store.Dispose(ctx)
	}
	return nil
}

// load is the recursive worker behind Load. path holds the dependency
// chain of the current top-level call for cycle detection.
func (l *Loader[V]) load(ctx context.Context, id string, path []string) (V, error) {
	var zero V

	l.mu.Lock()
	if l.disposed {
		l.mu.Unlock()
		return zero, ErrDisposed
	}
	rec, ok := l.records[id]
	var def resource.Resource[V]
	if ok {
		// Snapshot the definition under the lock: a concurrent
		// re-registration must not change it under a running flight.
		def = rec.def
	}
	l.mu.Unlock()
	if !ok {
		return zero, fmt.Errorf("%w: %s", resource.ErrNotRegistered, id)
	}

	// Cached values short-circuit everything, including state changes.
	value, found, err := l.store.Get(ctx, id)
	if err != nil && ctx.Err() != nil {
		// The caller is gone; don't start a fresh flight on its behalf.
		return zero, err
	}
	if err == nil && found {
		return value, nil
	}

	if slices.Contains(path, id) {
		return zero, &resource.CycleError{Path: append(slices.Clone(path), id)}
	}

	// A dependency load blocks its parent's flight until it resolves.
	if waiter := parent(path); waiter != "" {
		if err := l.await(waiter, id, path); err != nil {
			return zero, err
		}
		defer l.release(waiter, id)
	}

	// The flight runs detached from the first caller's cancellation:
	// abandoning callers never stop a load already underway.
	flightCtx := context.WithoutCancel(ctx)
	chain := append(slices.Clone(path), id)

	result, err, _ := l.flights.Do(id, func() (any, error) {
		return l.execute(flightCtx, rec, def, chain)
	})
	if err != nil {
		return zero, err
	}
	loaded, ok := result.(V)
	if !ok {
		return zero, fmt.Errorf("unexpected value type for resource %q", id)
	}
	return loaded, nil
}

// parent returns the flight waiting on the current load, if any.
func parent(path []string) string {
	if len(path) == 0 {
		return ""
	}
	return path[len(path)-1]
}

// await records that waiter's flight is blocked on id's flight. It
// fails with a CycleError when the edge would close a cycle in the
// wait-for graph: two concurrent top-level loads of mutually dependent
// resources each join the other's flight, and without this check they
// would block forever.
func (l *Loader[V]) await(waiter, id string, path []string) error {
	l.waitMu.Lock()
	defer l.waitMu.Unlock()

	if l.blockedOnLocked(id, waiter, make(map[string]bool)) {
		return &resource.CycleError{Path: append(slices.Clone(path), id)}
	}
	l.waits[waiter] = append(l.waits[waiter], id)
	return nil
}

// release removes the wait-for edge recorded by await.
func (l *Loader[V]) release(waiter, id string) {
	l.waitMu.Lock()
	defer l.waitMu.Unlock()

	targets := l.waits[waiter]
	if i := slices.Index(targets, id); i >= 0 {
		l.waits[waiter] = slices.Delete(targets, i, i+1)
	}
	if len(l.waits[waiter]) == 0 {
		delete(l.waits, waiter)
	}
}

// blockedOnLocked reports whether from's flight transitively waits on
// to's flight. Must be called with waitMu held.
func (l *Loader[V]) blockedOnLocked(from, to string, seen map[string]bool) bool {
	if from == to {
		return true
	}
	if seen[from] {
		return false
	}
	seen[from] = true
	for _, next := range l.waits[from] {
		if l.blockedOnLocked(next, to, seen) {
			return true
		}
	}
	return false
}

// execute performs the single deduplicated load: dependencies, factory
// under the resilience policy, cache write, lifecycle transitions.
// def is the caller's snapshot of the definition; a concurrent
// re-registration must not swap the factory mid-flight.
func (l *Loader[V]) execute(ctx context.Context, rec *record[V], def resource.Resource[V], path []string) (any, error) {
	id := def.ID
	loadID := uuid.NewString()

	l.transition(id, func() error { return rec.tracker.Begin() })

	logging.Debug().
		Add(logging.ResourceID(id)).
		Add(logging.LoadID(loadID)).
		Add(logging.Count(len(def.DependsOn))).
		Msg("resource load started")

	if len(def.DependsOn) > 0 {
		var g errgroup.Group
		for _, dep := range def.DependsOn {
			depPath := slices.Clone(path)
			g.Go(func() error {
				_, err := l.load(ctx, dep, depPath)
				return err
			})
		}
		if err := g.Wait(); err != nil {
			l.fail(id, rec, err)
			logging.Warn().
				Add(logging.ResourceID(id)).
				Add(logging.LoadID(loadID)).
				Add(logging.ErrorField(err)).
				Msg("dependency load failed")
			return nil, err
		}
	}

	start := time.Now()
	value, err := l.runner.Run(ctx, def.Load)
	if err != nil {
		loadErr := &resource.LoadError{
			ID:       id,
			Attempts: l.cfg.Resilience.RetryAttempts + 1,
			Err:      err,
		}
		l.fail(id, rec, loadErr)
		logging.Warn().
			Add(logging.ResourceID(id)).
			Add(logging.LoadID(loadID)).
			Add(logging.ErrorField(err)).
			Msg("resource load exhausted all attempts")
		return nil, loadErr
	}
	duration := time.Since(start)

	if err := l.store.Set(ctx, id, value, cache.SetOptions{TTL: l.cfg.ResultTTL}); err != nil {
		logging.Warn().
			Add(logging.ResourceID(id)).
			Add(logging.ErrorField(err)).
			Msg("caching loaded resource failed")
	}

	l.mu.Lock()
	rec.err = nil
	rec.duration = duration
	rec.loadedAt = time.Now()
	l.mu.Unlock()
	l.transition(id, func() error { return rec.tracker.Succeed() })

	logging.Debug().
		Add(logging.ResourceID(id)).
		Add(logging.LoadID(loadID)).
		Add(logging.Duration(duration)).
		Msg("resource loaded")
	return value, nil
}

// fail records a load failure on the record.
func (l *Loader[V]) fail(id string, rec *record[V], err error) {
	l.mu.Lock()
	rec.err = err
	rec.duration = 0
	rec.loadedAt = time.Time{}
	l.mu.Unlock()
	l.transition(id, func() error { return rec.tracker.Fail() })
}

// transition applies a lifecycle transition, tolerating rejections:
// an invalidated-mid-flight resource may already be back in pending,
// and the completing flight's bookkeeping must not fail the load.
func (l *Loader[V]) transition(id string, fn func() error) {
	if err := fn(); err != nil {
		logging.Trace().
			Add(logging.ResourceID(id)).
			Add(logging.ErrorField(err)).
			Msg("lifecycle transition skipped")
	}
}
