package priochan

import (
	"context"
	"sync"
	"sync/atomic"

	"golang.org/x/exp/constraints"
)

// chanCore holds the state that is common to FixedChannel and
// DynamicChannel: the rendezvous lock, the blocked-reader deque, the
// waiting-reader list, the done-writing marker, the live count, and the
// completion promise. Both channel types embed one and supply their own
// storage (K queues, or a single priority queue) plus the store-specific
// halves of tryRead/tryWrite.
//
// The mutual-exclusivity invariant from spec.md §3 — storage non-empty XOR
// blocked-reader deque non-empty — is enforced entirely by always
// performing "check storage, else check blocked readers" under mu, as in
// §4.5's write/read path descriptions.
type chanCore[P constraints.Ordered, T any] struct {
	mu sync.Mutex

	blocked waiterList[P, T] // parked ReadAsync callers
	waiting waiterList[P, T] // parked WaitToReadAsync callers

	doneWriting   atomic.Bool
	completionErr error

	count atomic.Int64

	completion    *asyncOp[P, T]
	completionSet atomic.Bool

	logger *Logger
}

func (c *chanCore[P, T]) init(logger *Logger) {
	if logger == nil {
		logger = &defaultLogger
	}
	c.logger = logger
	c.completion = newAsyncOp[P, T](false)
}

// Count returns the number of items currently live: stored plus delivered-
// to-a-parked-reader-but-not-yet-observed (spec.md §3's Count invariant).
func (c *chanCore[P, T]) Count() int {
	n := c.count.Load()
	if n < 0 {
		return 0
	}
	return int(n)
}

// Completion returns a channel closed once the channel is closed and
// drained, matching the completion promise of spec.md §4.5/§4.8.
func (c *chanCore[P, T]) Completion() <-chan struct{} {
	return c.completion.done
}

// isDoneWriting reports whether TryComplete has been called.
func (c *chanCore[P, T]) isDoneWriting() bool { return c.doneWriting.Load() }

// maybeCompleteLocked finishes the completion promise if writing is done and
// Count has reached zero. Must be called with mu held. Count, not "storage
// empty," is the right test: Count also covers an item that has been
// handed to a parked reader by rendezvous but not yet observed (spec.md §3),
// and completion must wait for that handoff to land too. It only touches
// completionSet (a CAS-guarded one-shot) so it is safe even though
// tryComplete itself runs the actual async-op completion outside the lock.
func (c *chanCore[P, T]) maybeCompleteLocked() (fire bool, err error) {
	if !c.doneWriting.Load() || c.count.Load() != 0 {
		return false, nil
	}
	if !c.completionSet.CompareAndSwap(false, true) {
		return false, nil
	}
	return true, c.completionErr
}

// fireWaiters resolves, outside the lock, every waiter in ops to true
// (open) or false (closed, with err). Callers detach the waiting-reader
// list into ops with detachAll while still holding mu, to avoid mutating
// the list from two goroutines.
func fireWaiters[P constraints.Ordered, T any](ops []*asyncOp[P, T], open bool, err error) {
	for _, op := range ops {
		if open {
			op.tryComplete(PriorityItem[P, T]{}, nil)
		} else {
			op.tryComplete(PriorityItem[P, T]{}, err)
		}
	}
}

// detachAll empties l, returning its former members in order.
func detachAll[P constraints.Ordered, T any](l *waiterList[P, T]) []*asyncOp[P, T] {
	out := make([]*asyncOp[P, T], 0, l.len())
	for {
		op := l.popFront()
		if op == nil {
			break
		}
		out = append(out, op)
	}
	return out
}

// parkReader creates and links a new reader awaitable into c.blocked,
// arming ctx cancellation to remove it from the list and complete it with
// ctx's error. Must be called with mu held; the returned op is unlinked by
// whichever of (rendezvous delivery, cancellation, TryComplete) reaches it
// first, each under mu.
func (c *chanCore[P, T]) parkReader(ctx context.Context) *asyncOp[P, T] {
	op := newAsyncOp[P, T](false)
	c.blocked.pushBack(op)
	op.armCancellation(ctx, func(cause error) {
		c.mu.Lock()
		if op.prev != nil || op.next != nil || c.blocked.head == op {
			c.blocked.remove(op)
		}
		c.mu.Unlock()
		op.tryCancel(cause)
	})
	return op
}

// parkWaiter is parkReader's analogue for WaitToReadAsync: the op completes
// with a boolean encoded as (PriorityItem{}, nil) for "true, something is
// available" — callers inspect which path fired rather than the item.
func (c *chanCore[P, T]) parkWaiter(ctx context.Context) *asyncOp[P, T] {
	op := newAsyncOp[P, T](false)
	c.waiting.pushBack(op)
	op.armCancellation(ctx, func(cause error) {
		c.mu.Lock()
		if op.prev != nil || op.next != nil || c.waiting.head == op {
			c.waiting.remove(op)
		}
		c.mu.Unlock()
		op.tryCancel(cause)
	})
	return op
}
