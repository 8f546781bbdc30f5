package application

import (
	"time"

	"github.com/felixgeelhaar/lode/domain/cache"
	"github.com/felixgeelhaar/lode/infrastructure/resilience"
)

// Option configures a Loader.
type Option[V any] func(*Loader[V])

// WithStore supplies an external cache store for loaded values. The
// loader will not dispose a store it did not create.
func WithStore[V any](store cache.Store[V]) Option[V] {
	return func(l *Loader[V]) {
		l.store = store
		l.ownsStore = false
	}
}

// WithCacheName names the loader's owned cache store. Ignored when
// WithStore is used.
func WithCacheName[V any](name string) Option[V] {
	return func(l *Loader[V]) {
		l.cfg.CacheName = name
	}
}

// WithResultTTL sets the TTL applied to loaded values.
func WithResultTTL[V any](ttl time.Duration) Option[V] {
	return func(l *Loader[V]) {
		l.cfg.ResultTTL = ttl
	}
}

// WithResilience sets the retry, timeout, and concurrency policy for
// factory execution.
func WithResilience[V any](cfg resilience.Config) Option[V] {
	return func(l *Loader[V]) {
		l.cfg.Resilience = cfg
		l.runner = resilience.New[V](cfg)
	}
}

// WithPreloadBatchSize sets how many deferred preloads drain per chunk.
func WithPreloadBatchSize[V any](n int) Option[V] {
	return func(l *Loader[V]) {
		if n > 0 {
			l.cfg.PreloadBatchSize = n
		}
	}
}

// WithPreloadDebounce sets the window in which Preload bursts coalesce.
func WithPreloadDebounce[V any](d time.Duration) Option[V] {
	return func(l *Loader[V]) {
		if d > 0 {
			l.cfg.PreloadDebounce = d
		}
	}
}

// WithPreloadChunkDelay sets the pause between drained preload chunks.
func WithPreloadChunkDelay[V any](d time.Duration) Option[V] {
	return func(l *Loader[V]) {
		if d >= 0 {
			l.cfg.PreloadChunkDelay = d
		}
	}
}
