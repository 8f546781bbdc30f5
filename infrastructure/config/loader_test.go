package config_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	domainconfig "github.com/felixgeelhaar/lode/domain/config"
	"github.com/felixgeelhaar/lode/infrastructure/config"
)

const sampleYAML = `
name: asset-pipeline
logging:
  level: debug
  format: json
loader:
  retry_attempts: 2
  retry_delay: 500ms
  attempt_timeout: 10s
  preload_batch_size: 3
caches:
  images:
    max_entries: 200
    max_memory_bytes: 1048576
    default_ttl: 30m
    persistence: true
  templates:
    max_entries: 50
persistence:
  backend: filesystem
  filesystem:
    dir: /var/lib/lode
`

func TestLoader_LoadString(t *testing.T) {
	t.Parallel()

	settings, err := config.NewLoader().LoadString(sampleYAML, config.FormatYAML)
	if err != nil {
		t.Fatalf("LoadString() error = %v", err)
	}

	if settings.Name != "asset-pipeline" {
		t.Errorf("Name = %s, want asset-pipeline", settings.Name)
	}
	if settings.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %s, want debug", settings.Logging.Level)
	}
	if settings.Loader.RetryDelay.Duration() != 500*time.Millisecond {
		t.Errorf("RetryDelay = %s, want 500ms", settings.Loader.RetryDelay.Duration())
	}
	images, ok := settings.Caches["images"]
	if !ok {
		t.Fatal("caches.images missing")
	}
	if images.MaxEntries != 200 || !images.Persistence {
		t.Errorf("images = %+v, want MaxEntries 200 and persistence", images)
	}
	if images.DefaultTTL.Duration() != 30*time.Minute {
		t.Errorf("images.DefaultTTL = %s, want 30m", images.DefaultTTL.Duration())
	}
	if settings.Persistence.Backend != domainconfig.BackendFilesystem {
		t.Errorf("Persistence.Backend = %s, want filesystem", settings.Persistence.Backend)
	}
}

func TestLoader_LoadString_JSON(t *testing.T) {
	t.Parallel()

	settings, err := config.NewLoader().LoadString(
		`{"name": "app", "loader": {"result_ttl": "1h"}}`, config.FormatJSON)
	if err != nil {
		t.Fatalf("LoadString() error = %v", err)
	}
	if settings.Loader.ResultTTL.Duration() != time.Hour {
		t.Errorf("ResultTTL = %s, want 1h", settings.Loader.ResultTTL.Duration())
	}
}

func TestLoader_LoadFile(t *testing.T) {
	t.Parallel()

	t.Run("loads by extension", func(t *testing.T) {
		t.Parallel()

		path := filepath.Join(t.TempDir(), "lode.yaml")
		os.WriteFile(path, []byte(sampleYAML), 0o644)

		settings, err := config.NewLoader().LoadFile(path)
		if err != nil {
			t.Fatalf("LoadFile() error = %v", err)
		}
		if settings.Name != "asset-pipeline" {
			t.Errorf("Name = %s", settings.Name)
		}
	})

	t.Run("missing file", func(t *testing.T) {
		t.Parallel()
		_, err := config.NewLoader().LoadFile("/nonexistent/lode.yaml")
		if !errors.Is(err, domainconfig.ErrConfigNotFound) {
			t.Errorf("LoadFile() error = %v, want ErrConfigNotFound", err)
		}
	})

	t.Run("unsupported extension", func(t *testing.T) {
		t.Parallel()

		path := filepath.Join(t.TempDir(), "lode.toml")
		os.WriteFile(path, []byte("name = 'x'"), 0o644)

		_, err := config.NewLoader().LoadFile(path)
		if !errors.Is(err, domainconfig.ErrUnsupportedFormat) {
			t.Errorf("LoadFile() error = %v, want ErrUnsupportedFormat", err)
		}
	})
}

func TestLoader_Validation(t *testing.T) {
	t.Parallel()

	t.Run("invalid settings are rejected", func(t *testing.T) {
		t.Parallel()
		_, err := config.NewLoader().LoadString("logging:\n  level: loud\n", config.FormatYAML)
		if !errors.Is(err, domainconfig.ErrValidationFailed) {
			t.Errorf("LoadString() error = %v, want ErrValidationFailed", err)
		}
	})

	t.Run("validation can be disabled", func(t *testing.T) {
		t.Parallel()
		loader := config.NewLoaderWithOptions(config.WithValidation(false))
		if _, err := loader.LoadString("logging:\n  level: loud\n", config.FormatYAML); err != nil {
			t.Errorf("LoadString() error = %v, want nil with validation off", err)
		}
	})

	t.Run("malformed YAML", func(t *testing.T) {
		t.Parallel()
		_, err := config.NewLoader().LoadString("name: [unclosed", config.FormatYAML)
		if !errors.Is(err, domainconfig.ErrInvalidFormat) {
			t.Errorf("LoadString() error = %v, want ErrInvalidFormat", err)
		}
	})
}

func TestLoader_EnvExpansion(t *testing.T) {
	t.Setenv("LODE_TEST_NAME", "from-env")

	t.Run("expands set variables", func(t *testing.T) {
		settings, err := config.NewLoader().LoadString("name: ${LODE_TEST_NAME}\n", config.FormatYAML)
		if err != nil {
			t.Fatalf("LoadString() error = %v", err)
		}
		if settings.Name != "from-env" {
			t.Errorf("Name = %s, want from-env", settings.Name)
		}
	})

	t.Run("uses defaults for unset variables", func(t *testing.T) {
		settings, err := config.NewLoader().LoadString(
			"name: ${LODE_TEST_UNSET:-fallback}\n", config.FormatYAML)
		if err != nil {
			t.Fatalf("LoadString() error = %v", err)
		}
		if settings.Name != "fallback" {
			t.Errorf("Name = %s, want fallback", settings.Name)
		}
	})

	t.Run("required variables fail when unset", func(t *testing.T) {
		_, err := config.NewLoader().LoadString(
			"name: ${LODE_TEST_UNSET:?set the name}\n", config.FormatYAML)
		if !errors.Is(err, domainconfig.ErrMissingEnvVar) {
			t.Errorf("LoadString() error = %v, want ErrMissingEnvVar", err)
		}
	})

	t.Run("strict mode fails on any unset variable", func(t *testing.T) {
		loader := config.NewLoaderWithOptions(config.WithStrictEnv(true))
		_, err := loader.LoadString("name: ${LODE_TEST_UNSET}\n", config.FormatYAML)
		if !errors.Is(err, domainconfig.ErrMissingEnvVar) {
			t.Errorf("LoadString() error = %v, want ErrMissingEnvVar", err)
		}
	})

	t.Run("expansion can be disabled", func(t *testing.T) {
		loader := config.NewLoaderWithOptions(config.WithEnvExpansion(false))
		settings, err := loader.LoadString("name: ${LODE_TEST_NAME}\n", config.FormatYAML)
		if err != nil {
			t.Fatalf("LoadString() error = %v", err)
		}
		if settings.Name != "${LODE_TEST_NAME}" {
			t.Errorf("Name = %s, want the literal reference", settings.Name)
		}
	})
}
