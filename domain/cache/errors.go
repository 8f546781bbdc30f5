package cache

import "errors"

// Domain errors for cache operations.
var (
	// ErrInvalidKey is returned when a key is invalid (e.g., empty).
	ErrInvalidKey = errors.New("invalid cache key")

	// ErrDisposed is returned when an operation is attempted on a
	// disposed store.
	ErrDisposed = errors.New("cache store disposed")

	// ErrPersistence wraps failures to load or save cache contents.
	// Persistence failures are warnings: the cache keeps functioning
	// in-memory-only.
	ErrPersistence = errors.New("cache persistence failed")
)
