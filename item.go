package priochan

import "golang.org/x/exp/constraints"

// PriorityItem is an immutable (priority, payload) pair. Equality is
// structural: two PriorityItem values of comparable T are equal iff both
// Priority and Item are equal.
type PriorityItem[P constraints.Ordered, T any] struct {
	Priority P
	Item     T
}

// insertionIndex is assigned to every enqueued item, strictly increasing
// across the lifetime of a single queue/channel, and used as the tie-break
// within equal priorities: smaller insertion index sorts first.
type insertionIndex uint64
