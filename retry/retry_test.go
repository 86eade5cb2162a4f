package retry

import (
	"errors"
	"fmt"
	"syscall"
	"testing"
	"time"
)

func never() bool { return false }

func newTestCaller() (*Caller, *[]time.Duration) {
	var slept []time.Duration
	c := New(never)
	c.Sleep = func(d time.Duration) { slept = append(slept, d) }
	return c, &slept
}

func TestDoStructuralErrorNotRetried(t *testing.T) {
	c, slept := newTestCaller()
	attempts := 0
	structural := errors.New("malformed response")

	err := c.Do("text generation", func() error {
		attempts++
		return structural
	})

	if attempts != 1 {
		t.Errorf("structural error attempted %d times, want 1", attempts)
	}
	if !errors.Is(err, structural) {
		t.Errorf("expected wrapped structural error, got %v", err)
	}
	if len(*slept) != 0 {
		t.Errorf("should not back off before a structural failure, slept %v", *slept)
	}
}

func TestDoTransientBudgetExhausted(t *testing.T) {
	c, slept := newTestCaller()
	attempts := 0

	err := c.Do("tts request", func() error {
		attempts++
		return Transient(errors.New("connection dropped"))
	})

	if attempts != 3 {
		t.Errorf("attempted %d times, want exactly 3", attempts)
	}
	if err == nil {
		t.Fatal("expected error after budget exhausted")
	}
	want := []time.Duration{1 * time.Second, 2 * time.Second}
	if len(*slept) != len(want) {
		t.Fatalf("backoff sleeps = %v, want %v", *slept, want)
	}
	for i := range want {
		if (*slept)[i] != want[i] {
			t.Errorf("sleep %d = %v, want %v", i, (*slept)[i], want[i])
		}
	}
}

func TestDoTransientThenSuccess(t *testing.T) {
	c, _ := newTestCaller()
	attempts := 0

	err := c.Do("image request", func() error {
		attempts++
		if attempts < 3 {
			return Transient(errors.New("timeout"))
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if attempts != 3 {
		t.Errorf("attempts = %d, want 3", attempts)
	}
}

func TestDoCancelledBeforeFirstAttempt(t *testing.T) {
	c := New(func() bool { return true })
	c.Sleep = func(time.Duration) {}
	attempts := 0

	err := c.Do("anything", func() error {
		attempts++
		return nil
	})
	if !errors.Is(err, ErrCancelled) {
		t.Errorf("expected ErrCancelled, got %v", err)
	}
	if attempts != 0 {
		t.Errorf("cancelled call still ran %d times", attempts)
	}
}

func TestDoCancelledMidRetry(t *testing.T) {
	cancelled := false
	c := New(func() bool { return cancelled })
	c.Sleep = func(time.Duration) {}
	attempts := 0

	err := c.Do("anything", func() error {
		attempts++
		cancelled = true
		return Transient(errors.New("timeout"))
	})
	if !errors.Is(err, ErrCancelled) {
		t.Errorf("expected ErrCancelled after flag set, got %v", err)
	}
	if attempts != 1 {
		t.Errorf("attempts = %d, want 1", attempts)
	}
}

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"explicit wrap", Transient(errors.New("x")), true},
		{"wrapped deeper", fmt.Errorf("call: %w", Transient(errors.New("x"))), true},
		{"connection refused", syscall.ECONNREFUSED, true},
		{"connection reset", fmt.Errorf("post: %w", syscall.ECONNRESET), true},
		{"plain error", errors.New("bad json"), false},
		{"cancelled", ErrCancelled, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsTransient(tt.err); got != tt.want {
				t.Errorf("IsTransient(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}
