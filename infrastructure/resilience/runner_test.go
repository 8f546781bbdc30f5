package resilience

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/felixgeelhaar/lode/domain/resource"
)

func TestRunner_Run(t *testing.T) {
	t.Parallel()

	t.Run("returns factory value on first success", func(t *testing.T) {
		t.Parallel()

		r := New[string](Config{RetryAttempts: 3, RetryDelay: time.Millisecond, AttemptTimeout: time.Second})

		var calls atomic.Int32
		value, err := r.Run(context.Background(), func(ctx context.Context) (string, error) {
			calls.Add(1)
			return "ok", nil
		})
		if err != nil {
			t.Fatalf("Run() error = %v", err)
		}
		if value != "ok" {
			t.Errorf("Run() = %q, want ok", value)
		}
		if calls.Load() != 1 {
			t.Errorf("factory calls = %d, want 1", calls.Load())
		}
	})

	t.Run("retries until success", func(t *testing.T) {
		t.Parallel()

		r := New[int](Config{RetryAttempts: 3, RetryDelay: time.Millisecond, AttemptTimeout: time.Second})

		var calls atomic.Int32
		value, err := r.Run(context.Background(), func(ctx context.Context) (int, error) {
			if calls.Add(1) < 3 {
				return 0, errors.New("transient")
			}
			return 42, nil
		})
		if err != nil {
			t.Fatalf("Run() error = %v", err)
		}
		if value != 42 {
			t.Errorf("Run() = %d, want 42", value)
		}
		if calls.Load() != 3 {
			t.Errorf("factory calls = %d, want 3", calls.Load())
		}
	})

	t.Run("exhausts after retryAttempts plus one tries", func(t *testing.T) {
		t.Parallel()

		r := New[int](Config{RetryAttempts: 2, RetryDelay: time.Millisecond, AttemptTimeout: time.Second})

		var calls atomic.Int32
		lastErr := errors.New("attempt 3 failed")
		_, err := r.Run(context.Background(), func(ctx context.Context) (int, error) {
			n := calls.Add(1)
			if n == 3 {
				return 0, lastErr
			}
			return 0, errors.New("earlier failure")
		})
		if err == nil {
			t.Fatal("Run() should fail after exhaustion")
		}
		if calls.Load() != 3 {
			t.Errorf("factory calls = %d, want 3 (initial + 2 retries)", calls.Load())
		}
		if !errors.Is(err, lastErr) {
			t.Errorf("Run() error = %v, want last attempt error", err)
		}
	})

	t.Run("inter-attempt delays never shrink", func(t *testing.T) {
		t.Parallel()

		r := New[int](Config{
			RetryAttempts:     3,
			RetryDelay:        40 * time.Millisecond,
			BackoffMultiplier: 2.0,
			AttemptTimeout:    time.Second,
		})

		var mu sync.Mutex
		var starts []time.Time
		_, err := r.Run(context.Background(), func(ctx context.Context) (int, error) {
			mu.Lock()
			starts = append(starts, time.Now())
			mu.Unlock()
			return 0, errors.New("always fails")
		})
		if err == nil {
			t.Fatal("Run() should fail after exhaustion")
		}

		mu.Lock()
		defer mu.Unlock()
		if len(starts) != 4 {
			t.Fatalf("factory ran %d times, want 4", len(starts))
		}
		if first := starts[1].Sub(starts[0]); first < 40*time.Millisecond {
			t.Errorf("first delay = %s, want >= the initial retry delay", first)
		}
		// The delay doubles each retry, so scheduling noise cannot
		// invert the ordering of consecutive gaps.
		var prev time.Duration
		for i := 1; i < len(starts); i++ {
			gap := starts[i].Sub(starts[i-1])
			if gap < prev {
				t.Errorf("delay before attempt %d = %s, shrank from %s", i+1, gap, prev)
			}
			prev = gap
		}
	})

	t.Run("attempt timeout maps to ErrTimeout and is retried", func(t *testing.T) {
		t.Parallel()

		r := New[int](Config{RetryAttempts: 1, RetryDelay: time.Millisecond, AttemptTimeout: 20 * time.Millisecond})

		var calls atomic.Int32
		_, err := r.Run(context.Background(), func(ctx context.Context) (int, error) {
			calls.Add(1)
			select {
			case <-time.After(time.Second):
				return 1, nil
			case <-ctx.Done():
				return 0, ctx.Err()
			}
		})
		if !errors.Is(err, resource.ErrTimeout) {
			t.Errorf("Run() error = %v, want ErrTimeout", err)
		}
		if calls.Load() != 2 {
			t.Errorf("factory calls = %d, want 2", calls.Load())
		}
	})

	t.Run("timeout on a hung factory does not block the attempt", func(t *testing.T) {
		t.Parallel()

		r := New[int](Config{RetryAttempts: 0, RetryDelay: time.Millisecond, AttemptTimeout: 20 * time.Millisecond})

		start := time.Now()
		_, err := r.Run(context.Background(), func(ctx context.Context) (int, error) {
			// Ignores ctx entirely.
			time.Sleep(500 * time.Millisecond)
			return 1, nil
		})
		if !errors.Is(err, resource.ErrTimeout) {
			t.Errorf("Run() error = %v, want ErrTimeout", err)
		}
		if elapsed := time.Since(start); elapsed > 250*time.Millisecond {
			t.Errorf("attempt blocked for %s, want prompt timeout", elapsed)
		}
	})

	t.Run("zero attempt timeout disables the race", func(t *testing.T) {
		t.Parallel()

		r := New[string](Config{RetryAttempts: 0, RetryDelay: time.Millisecond})

		value, err := r.Run(context.Background(), func(ctx context.Context) (string, error) {
			if _, ok := ctx.Deadline(); ok {
				return "", errors.New("unexpected deadline")
			}
			return "no-deadline", nil
		})
		if err != nil {
			t.Fatalf("Run() error = %v", err)
		}
		if value != "no-deadline" {
			t.Errorf("Run() = %q, want no-deadline", value)
		}
	})
}

func TestNewWithOptions(t *testing.T) {
	t.Parallel()

	r := NewWithOptions[int](
		WithMaxConcurrent(2),
		WithRetryAttempts(0),
		WithRetryDelay(time.Millisecond),
		WithBackoffMultiplier(1.5),
		WithAttemptTimeout(time.Second),
	)
	if r == nil {
		t.Fatal("NewWithOptions() returned nil")
	}

	var calls atomic.Int32
	_, err := r.Run(context.Background(), func(ctx context.Context) (int, error) {
		calls.Add(1)
		return 0, errors.New("always fails")
	})
	if err == nil {
		t.Fatal("Run() should fail")
	}
	if calls.Load() != 1 {
		t.Errorf("factory calls = %d, want 1 with zero retries", calls.Load())
	}
}
