package priochan

import (
	"context"
	"sync"
	"sync/atomic"

	"golang.org/x/exp/constraints"
)

// asyncOp is a single-shot awaitable: the async operation object of
// spec.md §4.4, used to park a reader (or a "wait to read" waiter) until a
// writer rendezvous-delivers a value, the channel completes, or the
// caller's context is cancelled.
//
// Its lifecycle mirrors the state table in spec.md §4.4: pooled-available
// (reset, owned by the op pool, parked in no list), pending (parked in a
// channel's waiter list, possibly already holding a registered
// continuation), and completed (result/err set, done closed, any
// continuation invoked). completed is terminal except for pooled,
// non-cancellable operations, which reset and return to pooled-available.
//
// Every completing path goes through tryComplete (try-set-result,
// try-set-error) or tryCancel (the context.AfterFunc cancellation
// callback); for cancellable operations both use reserved as the
// single-bit completion_reserved gate so that exactly one of them wins the
// race, matching "a completion_reserved flag is used only
// when the operation is cancellable, atomically gating a single terminal
// transition".
type asyncOp[P constraints.Ordered, T any] struct {
	mu       sync.Mutex
	done     chan struct{}
	value    PriorityItem[P, T]
	err      error
	completed bool

	// reserved gates the single terminal transition for cancellable ops,
	// per spec.md §4.4 ("completion_reserved flag is used only when the
	// operation is cancellable"). Pooled ops are never cancellable and so
	// never use it: tryComplete short-circuits on op.poolable.
	reserved atomic.Bool

	// cancelStop unregisters the context.AfterFunc cancellation callback,
	// implementing Design Note 9: "the cancellation registration holds a
	// weak handle to the node and is explicitly unregistered before the
	// node is completed and dropped".
	cancelStop func() bool

	// poolable marks an operation as eligible to return to a pool after its
	// result has been observed. Pooled operations are never cancellable
	// (spec.md §4.4: "A pooled operation must be non-cancellable").
	poolable bool

	// continuation, if non-nil, is invoked (once, outside any lock) when
	// the operation completes. Registered via onCompleted.
	continuation func()

	// token is a generation counter bumped on every reset. No method of
	// asyncOp compares it, so it does not by itself reject a stale
	// reference into a reused operation.
	token uint64

	// prev/next make this node a member of an intrusive doubly linked list
	// (the blocked-reader deque or waiting-reader list, C5) while parked.
	// Access is guarded by the owning channel's lock, not op.mu.
	prev, next *asyncOp[P, T]
}

// newAsyncOp creates a fresh, pending async operation.
func newAsyncOp[P constraints.Ordered, T any](poolable bool) *asyncOp[P, T] {
	op := &asyncOp[P, T]{poolable: poolable}
	op.done = make(chan struct{})
	return op
}

// reset reinitializes a pooled-available operation for reuse as pending,
// bumping its generation token. Must only be called on an operation
// currently in the pooled-available state (i.e. not reachable from any
// waiter list).
func (op *asyncOp[P, T]) reset() {
	op.mu.Lock()
	op.done = make(chan struct{})
	op.value = PriorityItem[P, T]{}
	op.err = nil
	op.completed = false
	op.continuation = nil
	op.cancelStop = nil
	op.token++
	op.reserved.Store(false)
	op.mu.Unlock()
}

// armCancellation registers ctx's cancellation against this operation: once
// ctx is done, onCancel is invoked with ctx's cause. armCancellation must be
// called before the operation is published to any waiter list, and only for
// non-pooled (cancellable) operations.
func (op *asyncOp[P, T]) armCancellation(ctx context.Context, onCancel func(cause error)) {
	op.cancelStop = context.AfterFunc(ctx, func() {
		onCancel(context.Cause(ctx))
	})
}

// tryComplete attempts the single terminal transition to completed, storing
// value/err. It returns false if the operation was already completed (by a
// prior tryComplete or by racing cancellation). On success it unregisters any armed
// cancellation and invokes the registered continuation, if any.
func (op *asyncOp[P, T]) tryComplete(value PriorityItem[P, T], err error) bool {
	if !op.poolable {
		if !op.reserved.CompareAndSwap(false, true) {
			return false
		}
	}

	op.mu.Lock()
	if op.completed {
		op.mu.Unlock()
		return false
	}
	op.completed = true
	op.value = value
	op.err = err
	stop := op.cancelStop
	cont := op.continuation
	done := op.done
	op.mu.Unlock()

	if stop != nil {
		stop()
	}
	close(done)
	if cont != nil {
		cont()
	}
	return true
}

// tryCancel is tryComplete specialized for the cancellation path: it never
// unregisters cancelStop via itself (it *is* the cancellation callback), it
// just completes with cause.
func (op *asyncOp[P, T]) tryCancel(cause error) bool {
	if !op.reserved.CompareAndSwap(false, true) {
		return false
	}
	op.mu.Lock()
	if op.completed {
		op.mu.Unlock()
		return false
	}
	op.completed = true
	op.err = cause
	cont := op.continuation
	done := op.done
	op.mu.Unlock()

	close(done)
	if cont != nil {
		cont()
	}
	return true
}

// onCompleted registers cb to run when the operation completes. If it is
// already completed, cb runs immediately (synchronously, on the calling
// goroutine), matching spec.md §4.4's "if it has not yet been registered,
// the completer publishes a completed sentinel and the next on_completed
// runs the callback inline".
func (op *asyncOp[P, T]) onCompleted(cb func()) {
	op.mu.Lock()
	if op.completed {
		op.mu.Unlock()
		cb()
		return
	}
	op.continuation = cb
	op.mu.Unlock()
}

// wait blocks until the operation completes, returning its result.
func (op *asyncOp[P, T]) wait() (PriorityItem[P, T], error) {
	<-op.done
	op.mu.Lock()
	defer op.mu.Unlock()
	return op.value, op.err
}

// isCompleted reports whether the operation has reached its terminal state,
// without blocking.
func (op *asyncOp[P, T]) isCompleted() bool {
	select {
	case <-op.done:
		return true
	default:
		return false
	}
}
