package priochan

import (
	"sync/atomic"

	"golang.org/x/exp/constraints"
)

// ringSegment is a fixed-capacity MPMC slot array (spec.md's C1): a single
// segment of a larger segmented queue (C2). Capacity is always a power of
// two so index masking (idx & mask) replaces a division on every
// enqueue/dequeue, the same trick catrate/ring.go uses for its ring buffer.
//
// Each slot carries a sequence number instead of a pair of head/tail
// cursors per slot; this is the classic bounded MPMC queue protocol (as
// implemented, for instance, by ZenQ's Slot.State CAS dance), generalized
// here to also support try_remove (marking an already-claimed slot's
// payload as tombstoned without disturbing its sequence) and
// ensure_frozen_for_enqueues (used when a segment is retired: further
// enqueues must bounce so the segment can be unlinked once fully drained).
//
// Slot state machine, keyed off seq relative to a slot's "home" position
// pos (pos = head or tail index at the time an index was claimed):
//
//	seq == pos         : slot is empty, ready for a producer to claim it
//	seq == pos+1        : slot holds a committed value, ready for a consumer
//	seq == pos+capacity : slot has been consumed, ready to be reclaimed by a
//	                      producer one full lap later
//
// This mirrors the classic Vyukov bounded MPMC queue, which is the same
// lineage ZenQ's slot protocol is drawn from.
type ringSegment[P constraints.Ordered, T any] struct {
	mask uint64
	buf  []ringSlot[P, T]

	// frozen, once set, rejects all further tryEnqueue calls: used by the
	// owning segmented queue to retire a segment once it has started
	// filling its successor.
	frozen atomic.Bool

	enqueuePos paddedUint64
	dequeuePos paddedUint64
}

// paddedUint64 cache-line pads an atomic counter so independent producer
// and consumer cursors don't false-share, the same concern eventloop/
// state.go's FastState pads for its CAS state word.
type paddedUint64 struct {
	v   atomic.Uint64
	_   [7]uint64
}

type ringSlot[P constraints.Ordered, T any] struct {
	seq     atomic.Uint64
	value   PriorityItem[P, T]
	idx     insertionIndex
	removed atomic.Bool
}

// newRingSegment allocates a segment of the given power-of-two capacity.
func newRingSegment[P constraints.Ordered, T any](capacity int) *ringSegment[P, T] {
	if capacity <= 0 || capacity&(capacity-1) != 0 {
		panic("priochan: ring segment capacity must be a positive power of two")
	}
	s := &ringSegment[P, T]{
		mask: uint64(capacity - 1),
		buf:  make([]ringSlot[P, T], capacity),
	}
	for i := range s.buf {
		s.buf[i].seq.Store(uint64(i))
	}
	return s
}

func (s *ringSegment[P, T]) capacity() int { return len(s.buf) }

// tryEnqueue attempts to claim the next free slot and store value/idx in
// it. It returns false if the segment is full or frozen, in which case the
// caller (the segmented queue) must retry against the next segment,
// allocating one if necessary.
func (s *ringSegment[P, T]) tryEnqueue(value PriorityItem[P, T], idx insertionIndex) bool {
	if s.frozen.Load() {
		return false
	}
	pos := s.enqueuePos.v.Load()
	for {
		slot := &s.buf[pos&s.mask]
		seq := slot.seq.Load()
		diff := int64(seq) - int64(pos)
		switch {
		case diff == 0:
			if s.enqueuePos.v.CompareAndSwap(pos, pos+1) {
				slot.value = value
				slot.idx = idx
				slot.removed.Store(false)
				slot.seq.Store(pos + 1)
				return true
			}
			pos = s.enqueuePos.v.Load()
		case diff < 0:
			// Segment is full (consumer cursor has not caught up).
			return false
		default:
			pos = s.enqueuePos.v.Load()
		}
	}
}

// tryDequeue attempts to claim and remove the next committed, non-tombstoned
// slot. It skips (and permanently retires) slots tombstoned by tryRemove,
// so a removed item never surfaces to a reader.
//
// Winning the dequeuePos CAS below only establishes that this goroutine is
// the consumer for pos among other concurrent dequeuers; it says nothing
// about a concurrent tryRemoveIdx/tryRemoveValue targeting the same pos.
// The slot's removed flag is the actual arbiter between the two: both this
// function and the remove functions resolve ownership by attempting the
// same CompareAndSwap(false, true), so exactly one of "deliver the value to
// a reader" or "report the item removed" ever wins for a given commit of
// pos. Losing that CAS here means a remove already claimed the slot, so the
// payload is never read back out — it is released for producer reuse
// untouched, rather than read concurrently with whatever the winning
// remover is doing.
func (s *ringSegment[P, T]) tryDequeue() (PriorityItem[P, T], insertionIndex, bool) {
	for {
		pos := s.dequeuePos.v.Load()
		slot := &s.buf[pos&s.mask]
		seq := slot.seq.Load()
		diff := int64(seq) - int64(pos+1)
		switch {
		case diff == 0:
			if s.dequeuePos.v.CompareAndSwap(pos, pos+1) {
				if !slot.removed.CompareAndSwap(false, true) {
					slot.seq.Store(pos + uint64(s.capacity()))
					continue
				}
				value, idx := slot.value, slot.idx
				slot.seq.Store(pos + uint64(s.capacity()))
				return value, idx, true
			}
		case diff < 0:
			return PriorityItem[P, T]{}, 0, false
		default:
			// Another consumer is ahead of us; reload and retry.
		}
	}
}

// tryPeek returns the next committed, non-tombstoned value without claiming
// its slot, skipping tombstoned slots the same way tryDequeue does.
// Because peek doesn't move dequeuePos, a concurrent tryRemove targeting
// the same insertionIndex can still tombstone it before an actual dequeue;
// no lock is taken here, so the result is a point-in-time view only.
func (s *ringSegment[P, T]) tryPeek() (PriorityItem[P, T], insertionIndex, bool) {
	for pos := s.dequeuePos.v.Load(); ; pos++ {
		slot := &s.buf[pos&s.mask]
		if slot.seq.Load() != pos+1 {
			return PriorityItem[P, T]{}, 0, false
		}
		if !slot.removed.Load() {
			return slot.value, slot.idx, true
		}
	}
}

// tryRemoveIdx tombstones the first not-yet-dequeued, not-already-removed
// slot whose insertion index equals idx. It returns false if no such slot
// is currently present in this segment.
//
// The seq check is only a cheap filter for "is pos still this commit, and
// not yet fully drained"; the CompareAndSwap is what actually decides the
// race against a concurrent tryDequeue reaching the same pos (see the
// comment on tryDequeue). A lost CAS here means tryDequeue already claimed
// the slot, so this call correctly reports no removal.
func (s *ringSegment[P, T]) tryRemoveIdx(idx insertionIndex) bool {
	dequeued := s.dequeuePos.v.Load()
	enqueued := s.enqueuePos.v.Load()
	for pos := dequeued; pos < enqueued; pos++ {
		slot := &s.buf[pos&s.mask]
		if slot.seq.Load() != pos+1 || slot.idx != idx {
			continue
		}
		if slot.removed.CompareAndSwap(false, true) {
			return true
		}
	}
	return false
}

// tryRemoveValue tombstones the first not-yet-dequeued, not-already-removed
// slot whose payload equals value under eq. Used when a caller identifies
// an entry by value rather than by insertion index (the public
// TryRemove(PriorityItem) surface). See tryRemoveIdx for the ownership
// race this resolves against a concurrent tryDequeue.
func (s *ringSegment[P, T]) tryRemoveValue(value PriorityItem[P, T], eq func(a, b T) bool) bool {
	dequeued := s.dequeuePos.v.Load()
	enqueued := s.enqueuePos.v.Load()
	for pos := dequeued; pos < enqueued; pos++ {
		slot := &s.buf[pos&s.mask]
		if slot.seq.Load() != pos+1 {
			continue
		}
		if slot.value.Priority != value.Priority || !eq(slot.value.Item, value.Item) {
			continue
		}
		if slot.removed.CompareAndSwap(false, true) {
			return true
		}
	}
	return false
}

// freeze rejects all further tryEnqueue calls against this segment.
func (s *ringSegment[P, T]) freeze() { s.frozen.Store(true) }

// drained reports whether every slot committed so far has also been
// consumed, i.e. this segment is empty and (once frozen) safe to unlink.
func (s *ringSegment[P, T]) drained() bool {
	return s.dequeuePos.v.Load() >= s.enqueuePos.v.Load()
}

// count returns the number of committed-but-not-yet-consumed entries,
// including tombstoned ones (an exact tombstone-aware count would require
// a full scan; the segmented queue instead tracks a precise atomic count
// alongside the segment chain).
func (s *ringSegment[P, T]) count() int {
	n := int64(s.enqueuePos.v.Load()) - int64(s.dequeuePos.v.Load())
	if n < 0 {
		return 0
	}
	return int(n)
}
