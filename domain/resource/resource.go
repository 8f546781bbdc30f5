// Package resource provides the domain model for lazily loaded
// resources: declarations, priorities, and loading lifecycle states.
package resource

import (
	"context"
	"sort"
	"time"
)

// Factory produces the value of a resource. Factories are expected to
// be idempotent and safely retryable; the loader may invoke them more
// than once on failure.
type Factory[V any] func(ctx context.Context) (V, error)

// Priority orders resources for preloading.
type Priority string

// Recognized priorities. An empty priority is treated as medium.
const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// Rank returns the sort rank of the priority: high=0, medium=1, low=2.
// Unknown or empty priorities rank as medium.
func (p Priority) Rank() int {
	switch p {
	case PriorityHigh:
		return 0
	case PriorityLow:
		return 2
	default:
		return 1
	}
}

// Resource declares a loadable resource.
type Resource[V any] struct {
	// ID uniquely identifies the resource.
	ID string

	// Load produces the value. Required.
	Load Factory[V]

	// Priority controls preload ordering. Empty means medium.
	Priority Priority

	// DependsOn lists resource IDs that must be loaded before this
	// resource's factory runs.
	DependsOn []string

	// Metadata is opaque to the loader.
	Metadata map[string]any
}

// SortByPriority stably sorts resources by priority rank, high first.
func SortByPriority[V any](resources []Resource[V]) {
	sort.SliceStable(resources, func(i, j int) bool {
		return resources[i].Priority.Rank() < resources[j].Priority.Rank()
	})
}

// State is the loading lifecycle state of a registered resource.
type State string

// Lifecycle states. Transitions: pending → loading → {loaded | error};
// Invalidate resets back to pending.
const (
	StatePending State = "pending"
	StateLoading State = "loading"
	StateLoaded  State = "loaded"
	StateError   State = "error"
)

// Status is a point-in-time snapshot of a resource's lifecycle.
type Status struct {
	// ID is the resource ID.
	ID string

	// State is the current lifecycle state.
	State State

	// Err holds the last load error. Set only in StateError.
	Err error

	// Duration is how long the successful load took. Set only in
	// StateLoaded.
	Duration time.Duration

	// LoadedAt is when the load completed. Set only in StateLoaded.
	LoadedAt time.Time
}
