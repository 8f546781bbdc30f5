package logging

import (
	"bytes"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/felixgeelhaar/bolt/v3"
)

// testLogger creates a logger that writes to a buffer for testing.
func testLogger() (*bolt.Logger, *bytes.Buffer) {
	buf := &bytes.Buffer{}
	handler := bolt.NewJSONHandler(buf)
	logger := bolt.New(handler).SetLevel(bolt.TRACE)
	return logger, buf
}

func TestDefaultConfig(t *testing.T) {
	t.Parallel()

	config := DefaultConfig()

	if config.Level != "info" {
		t.Errorf("Level = %s, want info", config.Level)
	}
	if config.Format != "console" {
		t.Errorf("Format = %s, want console", config.Format)
	}
	if config.Output != os.Stdout {
		t.Errorf("Output = %v, want os.Stdout", config.Output)
	}
}

func TestParseLevel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input    string
		expected bolt.Level
	}{
		{"trace", bolt.TRACE},
		{"debug", bolt.DEBUG},
		{"info", bolt.INFO},
		{"warn", bolt.WARN},
		{"error", bolt.ERROR},
		{"bogus", bolt.INFO},
		{"", bolt.INFO},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			t.Parallel()
			if got := parseLevel(tt.input); got != tt.expected {
				t.Errorf("parseLevel(%q) = %v, want %v", tt.input, got, tt.expected)
			}
		})
	}
}

func TestFields(t *testing.T) {
	t.Parallel()

	t.Run("applies cache and key fields", func(t *testing.T) {
		t.Parallel()

		logger, buf := testLogger()
		event := logger.Info()
		event = CacheName("templates")(event)
		event = Key("tpl:main")(event)
		event.Msg("hit")

		out := buf.String()
		if !strings.Contains(out, "templates") {
			t.Errorf("output missing cache name: %s", out)
		}
		if !strings.Contains(out, "tpl:main") {
			t.Errorf("output missing key: %s", out)
		}
	})

	t.Run("applies resource and duration fields", func(t *testing.T) {
		t.Parallel()

		logger, buf := testLogger()
		event := logger.Info()
		event = ResourceID("img:logo")(event)
		event = Duration(1500 * time.Millisecond)(event)
		event.Msg("loaded")

		out := buf.String()
		if !strings.Contains(out, "img:logo") {
			t.Errorf("output missing resource: %s", out)
		}
		if !strings.Contains(out, "1500") {
			t.Errorf("output missing duration: %s", out)
		}
	})

	t.Run("error field tolerates nil", func(t *testing.T) {
		t.Parallel()

		logger, buf := testLogger()
		event := logger.Info()
		event = ErrorField(nil)(event)
		event.Msg("ok")

		if buf.Len() == 0 {
			t.Error("expected output for nil error field")
		}
	})

	t.Run("error field records error", func(t *testing.T) {
		t.Parallel()

		logger, buf := testLogger()
		event := logger.Error()
		event = ErrorField(errors.New("backend unavailable"))(event)
		event.Msg("load failed")

		if !strings.Contains(buf.String(), "backend unavailable") {
			t.Errorf("output missing error: %s", buf.String())
		}
	})
}

func TestLogEvent_Chaining(t *testing.T) {
	t.Parallel()

	logger, buf := testLogger()
	le := &LogEvent{event: logger.Info()}
	le.Add(CacheName("images")).Add(Count(3)).Msg("preload drained")

	out := buf.String()
	if !strings.Contains(out, "images") || !strings.Contains(out, "3") {
		t.Errorf("chained fields missing from output: %s", out)
	}
}
