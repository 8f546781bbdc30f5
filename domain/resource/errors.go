package resource

import (
	"errors"
	"fmt"
	"strings"
)

// Domain errors for resource loading.
var (
	// ErrNotRegistered is returned when a load is requested for an ID
	// that was never registered.
	ErrNotRegistered = errors.New("resource not registered")

	// ErrTimeout is returned when a single load attempt exceeds the
	// configured attempt timeout. It is retried like any other failure.
	ErrTimeout = errors.New("resource load timed out")

	// ErrCycle is returned when resource dependencies form a cycle.
	ErrCycle = errors.New("resource dependency cycle")

	// ErrInvalidResource is returned when a resource declaration is
	// missing an ID or a factory.
	ErrInvalidResource = errors.New("invalid resource declaration")
)

// LoadError reports the exhaustion of all load attempts for a
// resource. It wraps the most recent attempt's error.
type LoadError struct {
	// ID is the resource that failed to load.
	ID string

	// Attempts is the total number of attempts the load was allowed.
	Attempts int

	// Err is the last attempt's error.
	Err error
}

// Error implements the error interface.
func (e *LoadError) Error() string {
	return fmt.Sprintf("load %q failed after %d attempt(s): %v", e.ID, e.Attempts, e.Err)
}

// Unwrap returns the underlying error.
func (e *LoadError) Unwrap() error {
	return e.Err
}

// CycleError reports the resolution path that closed a dependency
// cycle.
type CycleError struct {
	// Path is the dependency chain, ending at the repeated ID.
	Path []string
}

// Error implements the error interface.
func (e *CycleError) Error() string {
	return fmt.Sprintf("resource dependency cycle: %s", strings.Join(e.Path, " -> "))
}

// Unwrap makes the error match ErrCycle.
func (e *CycleError) Unwrap() error {
	return ErrCycle
}
