package retry

import (
	"errors"
	"fmt"
	"log"
	"net"
	"runtime"
	"syscall"
	"time"
)

// ErrCancelled is returned when the owning run's cancellation flag is set.
// It is never retried and is distinct from every failure class.
var ErrCancelled = errors.New("operation cancelled by user")

type transientError struct {
	err error
}

func (e *transientError) Error() string { return e.err.Error() }
func (e *transientError) Unwrap() error { return e.err }

// Transient marks err as a transient failure so the caller will retry it.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &transientError{err: err}
}

// IsTransient reports whether err is worth retrying: an explicit Transient
// wrap, a network timeout, or a dropped connection. Anything else is treated
// as a structural failure and propagates on the first attempt.
func IsTransient(err error) bool {
	var te *transientError
	if errors.As(err, &te) {
		return true
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return true
	}
	return errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNABORTED) ||
		errors.Is(err, syscall.EPIPE)
}

// Caller wraps flaky calls with bounded exponential backoff and cancellation
// checks. The zero value is not usable; use New.
type Caller struct {
	MaxRetries int
	Sleep      func(time.Duration)
	Cancelled  func() bool

	// FreeMemory hints garbage reclamation after each successful call.
	// Image and audio payloads can be tens of MB, and long batches otherwise
	// keep peak memory high.
	FreeMemory bool
}

// New returns a Caller with the standard budget of 3 attempts.
func New(cancelled func() bool) *Caller {
	return &Caller{
		MaxRetries: 3,
		Sleep:      time.Sleep,
		Cancelled:  cancelled,
	}
}

// Do runs fn, retrying transient failures up to MaxRetries total attempts
// with 2^attempt seconds of backoff between them. The cancellation flag is
// checked before every attempt, including the first; cancellation is never
// retried. On exhaustion the last error is returned, tagged with site.
func (c *Caller) Do(site string, fn func() error) error {
	var err error
	for attempt := 0; attempt < c.MaxRetries; attempt++ {
		if c.Cancelled != nil && c.Cancelled() {
			return ErrCancelled
		}

		err = fn()
		if err == nil {
			if c.FreeMemory {
				runtime.GC()
			}
			return nil
		}
		if errors.Is(err, ErrCancelled) {
			return err
		}
		if !IsTransient(err) {
			return fmt.Errorf("%s: %w", site, err)
		}

		log.Printf("[retry] %s failed, attempt %d/%d: %v", site, attempt+1, c.MaxRetries, err)
		if attempt < c.MaxRetries-1 {
			c.Sleep(time.Duration(1<<uint(attempt)) * time.Second)
		}
	}
	return fmt.Errorf("%s failed after %d attempts: %w", site, c.MaxRetries, err)
}
