package priochan

import "golang.org/x/exp/constraints"

// waiterList is a non-thread-safe intrusive doubly linked deque of asyncOp
// nodes (spec.md's C5). Every operation runs under the owning channel's
// lock, so the list itself does no synchronization of its own; it exists
// purely to give O(1) push/pop at either end and O(1) removal of an
// arbitrary member (needed when a parked reader's context is cancelled
// out of order).
//
// A channel keeps two of these: the blocked-reader deque (readers parked
// waiting for a value) and, on the write side, any readers parked in
// WaitToReadAsync. Both share this same structure since the shape of the
// problem — "FIFO of single-shot awaitables, with cancellable mid-list
// removal" — is identical either way.
type waiterList[P constraints.Ordered, T any] struct {
	head, tail *asyncOp[P, T]
	length     int
}

// pushBack appends op to the tail of the list. op must not already be a
// member of any list.
func (l *waiterList[P, T]) pushBack(op *asyncOp[P, T]) {
	op.prev = l.tail
	op.next = nil
	if l.tail != nil {
		l.tail.next = op
	} else {
		l.head = op
	}
	l.tail = op
	l.length++
}

// popFront removes and returns the head of the list, or nil if empty.
func (l *waiterList[P, T]) popFront() *asyncOp[P, T] {
	op := l.head
	if op == nil {
		return nil
	}
	l.remove(op)
	return op
}

// remove detaches op from the list. op must currently be a member of this
// list; behavior is undefined otherwise (this mirrors the teacher's
// intrusive lists, which trust their caller rather than scanning to
// verify membership).
func (l *waiterList[P, T]) remove(op *asyncOp[P, T]) {
	if op.prev != nil {
		op.prev.next = op.next
	} else {
		l.head = op.next
	}
	if op.next != nil {
		op.next.prev = op.prev
	} else {
		l.tail = op.prev
	}
	op.prev = nil
	op.next = nil
	l.length--
}

// len returns the number of members currently in the list.
func (l *waiterList[P, T]) len() int { return l.length }

// empty reports whether the list has no members.
func (l *waiterList[P, T]) empty() bool { return l.head == nil }
