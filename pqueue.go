package priochan

import (
	"container/heap"
	"sort"
	"sync"

	"golang.org/x/exp/constraints"
)

// pqueue is spec.md's C3, the concurrent priority queue backing a
// DynamicChannel: an indexed binary min-heap ordered by (priority,
// insertion index), so equal priorities drain in FIFO arrival order. The
// indexing (each entry carries its own heap slot, kept current as
// container/heap swaps elements) is what makes update_priority and remove
// O(log n) instead of a linear scan; the same back-pointer trick is used
// by eventloop/loop.go's timerHeap and, in the wider pack, by
// other_examples/52b79350_jackzampolin-shelf's workUnitHeap (which tags
// each entry with a seq uint64 for the identical tie-break purpose).
//
// Reads that don't mutate the heap shape (peek, len, findByValue, toArray,
// sortedSnapshot) take the
// RWMutex for reading; every structural change takes it for writing. This
// mirrors spec.md's guidance that peek is a shared-read operation while
// enqueue/dequeue/update/remove are exclusive.
type pqueue[P constraints.Ordered, T any] struct {
	mu   sync.RWMutex
	h    pqHeap[P, T]
	byID map[uint64]*pqEntry[P, T]
	next uint64
	idx  uint64
}

// pqHandle identifies a live entry for update_priority/remove, surviving
// heap reshuffles (unlike a plain slice index).
type pqHandle uint64

type pqEntry[P constraints.Ordered, T any] struct {
	id       uint64
	priority P
	insOrd   insertionIndex
	value    T
	slot     int // current index within h; maintained by pqHeap's swap
}

// pqHeap implements container/heap.Interface over []*pqEntry.
type pqHeap[P constraints.Ordered, T any] []*pqEntry[P, T]

func (h pqHeap[P, T]) Len() int { return len(h) }

func (h pqHeap[P, T]) Less(i, j int) bool {
	if h[i].priority != h[j].priority {
		return h[i].priority < h[j].priority
	}
	return h[i].insOrd < h[j].insOrd
}

func (h pqHeap[P, T]) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].slot = i
	h[j].slot = j
}

func (h *pqHeap[P, T]) Push(x any) {
	e := x.(*pqEntry[P, T])
	e.slot = len(*h)
	*h = append(*h, e)
}

func (h *pqHeap[P, T]) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return e
}

// newPQueue constructs an empty priority queue.
func newPQueue[P constraints.Ordered, T any]() *pqueue[P, T] {
	return &pqueue[P, T]{byID: make(map[uint64]*pqEntry[P, T])}
}

// enqueue inserts value at priority, returning a handle usable with
// updatePriority/remove.
func (q *pqueue[P, T]) enqueue(priority P, value T) pqHandle {
	q.mu.Lock()
	defer q.mu.Unlock()
	id := q.next
	q.next++
	ins := insertionIndex(q.idx)
	q.idx++
	e := &pqEntry[P, T]{id: id, priority: priority, insOrd: ins, value: value}
	q.byID[id] = e
	heap.Push(&q.h, e)
	return pqHandle(id)
}

// dequeue removes and returns the minimum-priority entry. ok is false iff
// the queue was empty.
func (q *pqueue[P, T]) dequeue() (priority P, value T, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.h) == 0 {
		return priority, value, false
	}
	e := heap.Pop(&q.h).(*pqEntry[P, T])
	delete(q.byID, e.id)
	return e.priority, e.value, true
}

// peek returns the minimum-priority entry without removing it.
func (q *pqueue[P, T]) peek() (priority P, value T, ok bool) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if len(q.h) == 0 {
		return priority, value, false
	}
	return q.h[0].priority, q.h[0].value, true
}

// len returns the number of live entries.
func (q *pqueue[P, T]) len() int {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return len(q.h)
}

// updatePriority changes the priority of the entry identified by handle,
// re-heapifying it in place (O(log n)). It returns false if the handle no
// longer identifies a live entry. The entry's insertion-order tie-break is
// preserved, so re-priming to the same priority leaves its relative order
// among same-priority entries unchanged.
func (q *pqueue[P, T]) updatePriority(handle pqHandle, priority P) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	e, ok := q.byID[uint64(handle)]
	if !ok {
		return false
	}
	e.priority = priority
	heap.Fix(&q.h, e.slot)
	return true
}

// remove unconditionally removes the entry identified by handle, returning
// its value. ok is false if the handle is stale.
func (q *pqueue[P, T]) remove(handle pqHandle) (value T, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	e, exists := q.byID[uint64(handle)]
	if !exists {
		return value, false
	}
	heap.Remove(&q.h, e.slot)
	delete(q.byID, e.id)
	return e.value, true
}

// findByValue returns the handle of the first live entry matching
// (priority, value) under eq, scanning heap-internal order. ok is false if
// no such entry is currently live. This is the lookup TryRemove(value) on
// the channel types is built on, kept here so callers never need to reach
// into h directly.
func (q *pqueue[P, T]) findByValue(priority P, value T, eq func(a, b T) bool) (handle pqHandle, ok bool) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	for _, e := range q.h {
		if e.priority == priority && eq(e.value, value) {
			return pqHandle(e.id), true
		}
	}
	return 0, false
}

// clear discards every entry.
func (q *pqueue[P, T]) clear() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.h = q.h[:0]
	q.byID = make(map[uint64]*pqEntry[P, T])
}

// toArray returns a snapshot of every live (priority, value) pair. Order is
// heap-internal order, not sorted; callers wanting priority order should
// use sortedSnapshot instead.
func (q *pqueue[P, T]) toArray() []PriorityItem[P, T] {
	q.mu.RLock()
	defer q.mu.RUnlock()
	out := make([]PriorityItem[P, T], 0, len(q.h))
	for _, e := range q.h {
		out = append(out, PriorityItem[P, T]{Priority: e.priority, Item: e.value})
	}
	return out
}

// sortedSnapshot returns every live (priority, value) pair ordered by
// (priority, insertion order) ascending — the order a drain would return
// them in, absent further writes.
func (q *pqueue[P, T]) sortedSnapshot() []PriorityItem[P, T] {
	q.mu.RLock()
	entries := make([]*pqEntry[P, T], len(q.h))
	copy(entries, q.h)
	q.mu.RUnlock()

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].priority != entries[j].priority {
			return entries[i].priority < entries[j].priority
		}
		return entries[i].insOrd < entries[j].insOrd
	})
	out := make([]PriorityItem[P, T], len(entries))
	for i, e := range entries {
		out[i] = PriorityItem[P, T]{Priority: e.priority, Item: e.value}
	}
	return out
}
