package config

import (
	"fmt"
	"strings"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	// Path is the path to the invalid field.
	Path string
	// Message describes the validation error.
	Message string
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	if e.Path == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Path, e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

// Error implements the error interface.
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	if len(e) == 1 {
		return e[0].Error()
	}
	var msgs []string
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return fmt.Sprintf("%d validation errors:\n  - %s", len(e), strings.Join(msgs, "\n  - "))
}

// HasErrors returns true if there are any validation errors.
func (e ValidationErrors) HasErrors() bool {
	return len(e) > 0
}

// Validator validates lode configuration.
type Validator struct {
	errors ValidationErrors
}

// NewValidator creates a new validator.
func NewValidator() *Validator {
	return &Validator{}
}

// Validate validates the settings and returns any errors.
func (v *Validator) Validate(s *Settings) ValidationErrors {
	v.errors = nil

	if s.Name == "" {
		v.addError("name", "name is required")
	}
	v.validateLogging(&s.Logging)
	v.validateLoader(&s.Loader)
	for name, cs := range s.Caches {
		v.validateCache("caches."+name, &cs)
	}
	v.validatePersistence(&s.Persistence)

	return v.errors
}

func (v *Validator) addError(path, message string) {
	v.errors = append(v.errors, ValidationError{Path: path, Message: message})
}

func (v *Validator) validateLogging(s *LoggingSettings) {
	switch s.Level {
	case "", "trace", "debug", "info", "warn", "error":
	default:
		v.addError("logging.level", fmt.Sprintf("unknown level %q", s.Level))
	}
	switch s.Format {
	case "", "json", "console":
	default:
		v.addError("logging.format", fmt.Sprintf("unknown format %q", s.Format))
	}
}

func (v *Validator) validateLoader(s *LoaderSettings) {
	if s.MaxConcurrent < 0 {
		v.addError("loader.max_concurrent", "must not be negative")
	}
	if s.RetryAttempts < 0 {
		v.addError("loader.retry_attempts", "must not be negative")
	}
	if s.RetryDelay < 0 {
		v.addError("loader.retry_delay", "must not be negative")
	}
	if s.BackoffMultiplier < 0 {
		v.addError("loader.backoff_multiplier", "must not be negative")
	}
	if s.AttemptTimeout < 0 {
		v.addError("loader.attempt_timeout", "must not be negative")
	}
	if s.PreloadBatchSize < 0 {
		v.addError("loader.preload_batch_size", "must not be negative")
	}
}

func (v *Validator) validateCache(path string, s *CacheSettings) {
	if s.MaxEntries < 0 {
		v.addError(path+".max_entries", "must not be negative")
	}
	if s.MaxMemoryBytes < 0 {
		v.addError(path+".max_memory_bytes", "must not be negative")
	}
	if s.DefaultTTL < 0 {
		v.addError(path+".default_ttl", "must not be negative")
	}
	if s.CleanupInterval < 0 {
		v.addError(path+".cleanup_interval", "must not be negative")
	}
}

func (v *Validator) validatePersistence(s *PersistenceSettings) {
	switch s.Backend {
	case "", BackendNone:
	case BackendFilesystem:
		if s.Filesystem.Dir == "" {
			v.addError("persistence.filesystem.dir", "dir is required for the filesystem backend")
		}
	case BackendBadger:
		if s.Badger.Dir == "" && !s.Badger.InMemory {
			v.addError("persistence.badger.dir", "dir is required unless in_memory is set")
		}
	case BackendRedis:
		if s.Redis.Address == "" {
			v.addError("persistence.redis.address", "address is required for the redis backend")
		}
	default:
		v.addError("persistence.backend", fmt.Sprintf("unknown backend %q", s.Backend))
	}
}
