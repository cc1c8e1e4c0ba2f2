package incr

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors
var (
	// ErrEntryNotFound is returned by EntryStore.Lookup when no entry is
	// stored under the key.
	ErrEntryNotFound = errors.New("cache entry not found")
)

// TimeoutError reports that a bounded wait elapsed: the buffer pool was
// exhausted and no buffer came back, or the background writer did not
// finish in time.
type TimeoutError struct {
	Op   string
	Wait time.Duration
}

// Error implements the error interface.
func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s timed out after %s", e.Op, e.Wait)
}

// IllegalStateError reports an operation invoked in a state that does not
// permit it. It marks a programming defect in the caller, not a build
// failure, and must never be silently swallowed.
type IllegalStateError struct {
	State string
	Op    string
}

// Error implements the error interface.
func (e *IllegalStateError) Error() string {
	return fmt.Sprintf("illegal state: cannot %s while %s", e.Op, e.State)
}

// WriterError wraps a failure captured on the background writer and
// re-raised on the producer side.
type WriterError struct {
	Cause error
}

// Error implements the error interface.
func (e *WriterError) Error() string {
	return fmt.Sprintf("background writer failed: %v", e.Cause)
}

// Unwrap returns the captured failure for errors.Is and errors.As.
func (e *WriterError) Unwrap() error {
	return e.Cause
}
