package priochan

import (
	"errors"
	"fmt"
)

// Sentinel errors returned by the non-suspending and suspending channel and
// queue operations. Wrap with fmt.Errorf("...: %w", ErrX) at call sites that
// need additional context; callers should match with errors.Is.
var (
	// ErrClosed is returned by a write performed after TryComplete, or by a
	// read performed once the channel has been completed and drained.
	ErrClosed = errors.New("priochan: channel is closed")

	// ErrEmpty names the empty-store condition. The synchronous
	// peek/dequeue operations in this package report it as a false ok
	// result and do not return this error.
	ErrEmpty = errors.New("priochan: empty")

	// ErrFull names the bounded-queue-at-capacity condition. Every queue in
	// this package is unbounded, so no operation returns it.
	ErrFull = errors.New("priochan: full")

	// ErrNotPresent names the condition of an update/remove targeting an
	// item no longer present in the priority queue. Those operations report
	// it as a false result and do not return this error.
	ErrNotPresent = errors.New("priochan: not present")

	// ErrInvalidPriority is returned by the dynamic channel when asked to
	// enqueue a NaN priority.
	ErrInvalidPriority = errors.New("priochan: priority must not be NaN")
)

// completionError is the error a read returns once the channel is closed
// and drained. It always matches ErrClosed via errors.Is and, when
// TryComplete was given a non-nil cause, matches that cause as well.
type completionError struct {
	cause error
}

func (e *completionError) Error() string {
	if e.cause == nil {
		return ErrClosed.Error()
	}
	return fmt.Sprintf("%s: %s", ErrClosed, e.cause)
}

func (e *completionError) Unwrap() []error {
	if e.cause == nil {
		return []error{ErrClosed}
	}
	return []error{ErrClosed, e.cause}
}
