// Package observability exports cache statistics as OpenTelemetry
// metrics.
package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/felixgeelhaar/lode/domain/cache"
)

// MeterName identifies this instrumentation scope.
const MeterName = "github.com/felixgeelhaar/lode"

// StatsSource supplies per-cache statistics at observation time. The
// registry's StatsAll is the usual source.
type StatsSource func() map[string]cache.Stats

// CacheMetrics observes cache statistics through the global meter
// provider. Values are read lazily on collection, never pushed.
type CacheMetrics struct {
	registration metric.Registration
}

// NewCacheMetrics registers observable instruments for every cache the
// source reports. Each observation carries a "cache" attribute with
// the cache name.
func NewCacheMetrics(source StatsSource) (*CacheMetrics, error) {
	meter := otel.Meter(MeterName)

	hits, err := meter.Int64ObservableCounter("lode.cache.hits",
		metric.WithDescription("Number of cache hits"))
	if err != nil {
		return nil, err
	}
	misses, err := meter.Int64ObservableCounter("lode.cache.misses",
		metric.WithDescription("Number of cache misses"))
	if err != nil {
		return nil, err
	}
	entries, err := meter.Int64ObservableGauge("lode.cache.entries",
		metric.WithDescription("Current number of cached entries"))
	if err != nil {
		return nil, err
	}
	memory, err := meter.Int64ObservableGauge("lode.cache.memory_bytes",
		metric.WithDescription("Estimated memory used by cached values"),
		metric.WithUnit("By"))
	if err != nil {
		return nil, err
	}
	ratio, err := meter.Float64ObservableGauge("lode.cache.hit_ratio",
		metric.WithDescription("Hits over total accesses"))
	if err != nil {
		return nil, err
	}

	registration, err := meter.RegisterCallback(
		func(ctx context.Context, o metric.Observer) error {
			for name, stats := range source() {
				attrs := metric.WithAttributes(attribute.String("cache", name))
				o.ObserveInt64(hits, stats.Hits, attrs)
				o.ObserveInt64(misses, stats.Misses, attrs)
				o.ObserveInt64(entries, int64(stats.EntryCount), attrs)
				o.ObserveInt64(memory, stats.MemoryBytes, attrs)
				o.ObserveFloat64(ratio, stats.HitRatio(), attrs)
			}
			return nil
		},
		hits, misses, entries, memory, ratio,
	)
	if err != nil {
		return nil, err
	}

	return &CacheMetrics{registration: registration}, nil
}

// Close unregisters the observation callback.
func (m *CacheMetrics) Close() error {
	return m.registration.Unregister()
}
