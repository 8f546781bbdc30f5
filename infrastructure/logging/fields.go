package logging

import (
	"time"

	"github.com/felixgeelhaar/bolt/v3"
)

// Field is a function that applies structured data to a log event.
type Field func(*bolt.Event) *bolt.Event

// LogEvent wraps a bolt.Event so Fields can be chained onto it.
type LogEvent struct {
	event *bolt.Event
}

// Add applies a field to the event and returns the wrapper for chaining.
func (l *LogEvent) Add(f Field) *LogEvent {
	l.event = f(l.event)
	return l
}

// Msg sends the log event with a message.
func (l *LogEvent) Msg(msg string) {
	l.event.Msg(msg)
}

// Trace returns a LogEvent wrapper for trace level logging.
func Trace() *LogEvent {
	return &LogEvent{event: Get().Trace()}
}

// Debug returns a LogEvent wrapper for debug level logging.
func Debug() *LogEvent {
	return &LogEvent{event: Get().Debug()}
}

// Info returns a LogEvent wrapper for info level logging.
func Info() *LogEvent {
	return &LogEvent{event: Get().Info()}
}

// Warn returns a LogEvent wrapper for warn level logging.
func Warn() *LogEvent {
	return &LogEvent{event: Get().Warn()}
}

// Error returns a LogEvent wrapper for error level logging.
func Error() *LogEvent {
	return &LogEvent{event: Get().Error()}
}

// Common field constructors for cache and loader logging.

// CacheName adds a cache field.
func CacheName(name string) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Str("cache", name)
	}
}

// Key adds a cache key field.
func Key(key string) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Str("key", key)
	}
}

// ResourceID adds a resource ID field.
func ResourceID(id string) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Str("resource", id)
	}
}

// LoadID adds a load correlation ID field.
func LoadID(id string) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Str("load_id", id)
	}
}

// State adds a lifecycle state field.
func State(s string) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Str("state", s)
	}
}

// Count adds a count field.
func Count(n int) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Int("count", n)
	}
}

// Bytes adds a size-in-bytes field.
func Bytes(n int64) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Int64("bytes", n)
	}
}

// Duration adds a duration field in milliseconds.
func Duration(d time.Duration) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Int64("duration_ms", d.Milliseconds())
	}
}

// ErrorField adds an error field.
func ErrorField(err error) Field {
	return func(e *bolt.Event) *bolt.Event {
		if err == nil {
			return e
		}
		return e.Err(err)
	}
}

// Str adds an arbitrary string field.
func Str(key, value string) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Str(key, value)
	}
}

// Int adds an arbitrary integer field.
func Int(key string, value int) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Int(key, value)
	}
}
