package application

import (
	"context"
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/felixgeelhaar/lode/domain/resource"
	"github.com/felixgeelhaar/lode/infrastructure/logging"
)

// Preload warms resources ahead of use. High-priority resources load
// immediately and concurrently; medium and low ones queue in priority
// order and drain in chunks after a debounce window, so bursts of
// Preload calls coalesce. Unregistered IDs are logged and skipped.
// Failures never propagate to the caller.
func (l *Loader[V]) Preload(ctx context.Context, ids []string) {
	l.mu.Lock()
	if l.disposed {
		l.mu.Unlock()
		return
	}

	var immediate []string
	var deferred []resource.Resource[V]
	for _, id := range ids {
		rec, ok := l.records[id]
		if !ok {
			logging.Warn().
				Add(logging.ResourceID(id)).
				Msg("preload skipped unregistered resource")
			continue
		}
		if rec.def.Priority.Rank() == resource.PriorityHigh.Rank() {
			immediate = append(immediate, id)
		} else {
			deferred = append(deferred, rec.def)
		}
	}
	l.mu.Unlock()

	// Preloading outlives the caller's context.
	background := context.WithoutCancel(ctx)

	for _, id := range immediate {
		go l.preloadOne(background, id)
	}

	if len(deferred) == 0 {
		return
	}
	resource.SortByPriority(deferred)

	l.preloadMu.Lock()
	for _, def := range deferred {
		if !slices.Contains(l.preloadQueue, def.ID) {
			l.preloadQueue = append(l.preloadQueue, def.ID)
		}
	}
	if l.preloadTimer == nil {
		l.preloadTimer = time.AfterFunc(l.cfg.PreloadDebounce, l.drainPreloadQueue)
	} else {
		l.preloadTimer.Reset(l.cfg.PreloadDebounce)
	}
	l.preloadMu.Unlock()
}

// PreloadQueueLen reports how many resources are waiting in the
// deferred preload queue.
func (l *Loader[V]) PreloadQueueLen() int {
	l.preloadMu.Lock()
	defer l.preloadMu.Unlock()
	return len(l.preloadQueue)
}

// drainPreloadQueue empties the deferred queue in chunks, pausing
// between chunks. Runs on the debounce timer's goroutine; only one
// drain runs at a time.
func (l *Loader[V]) drainPreloadQueue() {
	l.preloadMu.Lock()
	if l.draining {
		l.preloadMu.Unlock()
		return
	}
	l.draining = true
	l.preloadMu.Unlock()

	defer func() {
		l.preloadMu.Lock()
		l.draining = false
		l.preloadTimer = nil
		l.preloadMu.Unlock()
	}()

	ctx := context.Background()
	for {
		select {
		case <-l.stop:
			return
		default:
		}

		l.preloadMu.Lock()
		if len(l.preloadQueue) == 0 {
			l.preloadMu.Unlock()
			return
		}
		n := min(l.cfg.PreloadBatchSize, len(l.preloadQueue))
		chunk := slices.Clone(l.preloadQueue[:n])
		l.preloadQueue = l.preloadQueue[n:]
		remaining := len(l.preloadQueue)
		l.preloadMu.Unlock()

		var wg sync.WaitGroup
		for _, id := range chunk {
			wg.Add(1)
			go func(id string) {
				defer wg.Done()
				l.preloadOne(ctx, id)
			}(id)
		}
		wg.Wait()

		logging.Debug().
			Add(logging.Count(len(chunk))).
			Add(logging.Int("remaining", remaining)).
			Msg("preload chunk drained")

		if remaining == 0 {
			return
		}
		select {
		case <-l.stop:
			return
		case <-time.After(l.cfg.PreloadChunkDelay):
		}
	}
}

// preloadOne loads a single resource, absorbing failures.
func (l *Loader[V]) preloadOne(ctx context.Context, id string) {
	if _, err := l.Load(ctx, id); err != nil && !errors.Is(err, ErrDisposed) {
		logging.Debug().
			Add(logging.ResourceID(id)).
			Add(logging.ErrorField(err)).
			Msg("preload failed")
	}
}
