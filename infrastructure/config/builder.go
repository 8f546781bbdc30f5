package config

import (
	domainconfig "github.com/felixgeelhaar/lode/domain/config"

	"github.com/felixgeelhaar/lode/domain/cache"
	"github.com/felixgeelhaar/lode/infrastructure/logging"
	"github.com/felixgeelhaar/lode/infrastructure/resilience"
)

// BuildResult contains ready-to-use component configurations derived
// from the settings, with defaults filled in for anything unset.
type BuildResult struct {
	// Logging is the logger configuration.
	Logging logging.Config
	// Caches maps cache names to their store configuration.
	Caches map[string]cache.Config
	// Resilience is the factory execution policy.
	Resilience resilience.Config
	// Loader holds the remaining loader knobs (TTL, preload shape).
	Loader domainconfig.LoaderSettings
}

// Build converts validated settings into component configurations.
func Build(s *domainconfig.Settings) *BuildResult {
	result := &BuildResult{
		Logging:    buildLogging(s.Logging),
		Caches:     make(map[string]cache.Config, len(s.Caches)),
		Resilience: buildResilience(s.Loader),
		Loader:     s.Loader,
	}
	for name, cs := range s.Caches {
		result.Caches[name] = buildCache(cs)
	}
	return result
}

func buildLogging(s domainconfig.LoggingSettings) logging.Config {
	cfg := logging.DefaultConfig()
	if s.Level != "" {
		cfg.Level = s.Level
	}
	if s.Format != "" {
		cfg.Format = s.Format
	}
	return cfg
}

func buildCache(s domainconfig.CacheSettings) cache.Config {
	cfg := cache.DefaultConfig()
	if s.MaxEntries > 0 {
		cfg.MaxEntries = s.MaxEntries
	}
	if s.MaxMemoryBytes > 0 {
		cfg.MaxMemoryBytes = s.MaxMemoryBytes
	}
	if s.DefaultTTL > 0 {
		cfg.DefaultTTL = s.DefaultTTL.Duration()
	}
	if s.CleanupInterval > 0 {
		cfg.CleanupInterval = s.CleanupInterval.Duration()
	}
	cfg.Persistence = s.Persistence
	return cfg
}

func buildResilience(s domainconfig.LoaderSettings) resilience.Config {
	cfg := resilience.DefaultConfig()
	if s.MaxConcurrent > 0 {
		cfg.MaxConcurrent = s.MaxConcurrent
	}
	if s.RetryAttempts > 0 {
		cfg.RetryAttempts = s.RetryAttempts
	}
	if s.RetryDelay > 0 {
		cfg.RetryDelay = s.RetryDelay.Duration()
	}
	if s.BackoffMultiplier > 0 {
		cfg.BackoffMultiplier = s.BackoffMultiplier
	}
	if s.AttemptTimeout > 0 {
		cfg.AttemptTimeout = s.AttemptTimeout.Duration()
	}
	return cfg
}
