package priochan

import (
	"context"
	"errors"
)

// FixedChannel is spec.md's C8: a priority channel whose priorities are
// small integers in [0, K), implemented as K per-level segmented queues
// (C2) drained in ascending level order. Level 0 is most urgent.
//
// The zero value is not usable; construct with NewFixedChannel.
type FixedChannel[T comparable] struct {
	chanCore[int, T]
	queues []*segmentedQueue[int, T]
}

// FixedChannelOption configures a FixedChannel at construction.
type FixedChannelOption func(*fixedChannelConfig)

type fixedChannelConfig struct {
	logger *Logger
}

// WithFixedChannelLogger attaches a structured logger used for segment
// lifecycle diagnostics.
func WithFixedChannelLogger(l *Logger) FixedChannelOption {
	return func(c *fixedChannelConfig) { c.logger = l }
}

// NewFixedChannel constructs an open channel with levels queues. levels
// must be at least 1.
func NewFixedChannel[T comparable](levels int, opts ...FixedChannelOption) *FixedChannel[T] {
	if levels < 1 {
		panic("priochan: FixedChannel requires at least one priority level")
	}
	cfg := &fixedChannelConfig{}
	for _, opt := range opts {
		opt(cfg)
	}
	ch := &FixedChannel[T]{
		queues: make([]*segmentedQueue[int, T], levels),
	}
	ch.chanCore.init(cfg.logger)
	for i := range ch.queues {
		ch.queues[i] = newSegmentedQueue[int, T](ch.logger)
	}
	return ch
}

// Levels returns the number of priority levels K.
func (ch *FixedChannel[T]) Levels() int { return len(ch.queues) }

func (ch *FixedChannel[T]) validLevel(p int) bool { return p >= 0 && p < len(ch.queues) }

// TryWrite attempts to enqueue item synchronously. It returns false if the
// channel is already closed (TryComplete has run) or if priority is out of
// range.
func (ch *FixedChannel[T]) TryWrite(item PriorityItem[int, T]) bool {
	if !ch.validLevel(item.Priority) {
		return false
	}
	ch.mu.Lock()
	if ch.isDoneWriting() {
		ch.mu.Unlock()
		return false
	}

	reader := ch.blocked.popFront()
	if reader == nil {
		ch.queues[item.Priority].enqueue(item)
		ch.count.Add(1)
		waiters := detachAll(&ch.waiting)
		ch.mu.Unlock()
		fireWaiters(waiters, true, nil)
		return true
	}
	ch.count.Add(1)
	ch.mu.Unlock()

	for {
		if reader.tryComplete(item, nil) {
			return true
		}
		// Reader was already cancelled; retry with the next one, per
		// spec.md §4.5 ("writers that later target a cancelled reader
		// observe a failed try_set_result and retry with the next reader").
		logRendezvousMiss(ch.logger)
		ch.mu.Lock()
		reader = ch.blocked.popFront()
		if reader == nil {
			ch.queues[item.Priority].enqueue(item)
			waiters := detachAll(&ch.waiting)
			ch.mu.Unlock()
			fireWaiters(waiters, true, nil)
			return true
		}
		ch.mu.Unlock()
	}
}

// WriteAsync is the suspending form of TryWrite. Because this channel is
// unbounded, it never actually suspends: it either succeeds immediately or
// fails with ErrClosed.
func (ch *FixedChannel[T]) WriteAsync(ctx context.Context, item PriorityItem[int, T]) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if ch.TryWrite(item) {
		return nil
	}
	return ErrClosed
}

// WaitToWriteAsync reports whether the channel is (still) open to writes.
// It never actually suspends, matching spec.md §5 ("WriteAsync / TryWrite
// never suspend").
func (ch *FixedChannel[T]) WaitToWriteAsync(ctx context.Context) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	return !ch.isDoneWriting(), nil
}

// storeEmptyLocked reports whether every level queue is empty. Must be
// called with mu held.
func (ch *FixedChannel[T]) storeEmptyLocked() bool {
	for _, q := range ch.queues {
		if q.len() > 0 {
			return false
		}
	}
	return true
}

// TryComplete marks the channel closed to further writes. It returns false
// if the channel was already closed. cause, if non-nil, becomes the error
// observed by the completion promise and by every reader that drains the
// channel after it empties.
func (ch *FixedChannel[T]) TryComplete(cause error) bool {
	ch.mu.Lock()
	if !ch.doneWriting.CompareAndSwap(false, true) {
		ch.mu.Unlock()
		return false
	}
	ch.completionErr = cause
	blocked := detachAll(&ch.blocked)
	waiters := detachAll(&ch.waiting)
	fire, completionErr := ch.maybeCompleteLocked()
	ch.mu.Unlock()

	closedErr := &completionError{cause: cause}
	for _, op := range blocked {
		op.tryComplete(PriorityItem[int, T]{}, closedErr)
	}
	fireWaiters(waiters, false, closedErr)
	if fire {
		ch.completion.tryComplete(PriorityItem[int, T]{}, completionErr)
	}
	return true
}

// TryRead attempts to dequeue the highest-priority item synchronously.
func (ch *FixedChannel[T]) TryRead() (PriorityItem[int, T], bool) {
	for _, q := range ch.queues {
		if item, _, ok := q.tryDequeue(); ok {
			ch.afterDequeue()
			return item, true
		}
	}
	return PriorityItem[int, T]{}, false
}

// afterDequeue runs the channel-lock-guarded bookkeeping shared by every
// successful dequeue: decrement count, and complete the channel if writing
// is done and Count has just reached zero.
func (ch *FixedChannel[T]) afterDequeue() {
	ch.count.Add(-1)
	ch.mu.Lock()
	fire, err := ch.maybeCompleteLocked()
	ch.mu.Unlock()
	if fire {
		ch.completion.tryComplete(PriorityItem[int, T]{}, err)
	}
}

// ReadAsync dequeues the highest-priority item, suspending if the channel
// is currently empty but still open. It fails with ErrClosed once the
// channel is closed and drained (or with the channel's completion error,
// if one was supplied to TryComplete).
func (ch *FixedChannel[T]) ReadAsync(ctx context.Context) (PriorityItem[int, T], error) {
	if item, ok := ch.TryRead(); ok {
		return item, nil
	}

	ch.mu.Lock()
	for _, q := range ch.queues {
		if item, _, ok := q.tryDequeue(); ok {
			ch.mu.Unlock()
			ch.afterDequeue()
			return item, nil
		}
	}
	if ch.isDoneWriting() {
		ch.mu.Unlock()
		return PriorityItem[int, T]{}, ch.closedErr()
	}
	op := ch.parkReader(ctx)
	ch.mu.Unlock()

	item, err := op.wait()
	if err != nil {
		return PriorityItem[int, T]{}, err
	}
	// The item was handed to us directly by a writer's rendezvous delivery
	// and never touched storage; Count was incremented at delivery time
	// (spec.md §3's Count invariant), so it falls to us to bring it back
	// down now that we have observed the result.
	ch.count.Add(-1)
	ch.mu.Lock()
	fire, completionErr := ch.maybeCompleteLocked()
	ch.mu.Unlock()
	if fire {
		ch.completion.tryComplete(PriorityItem[int, T]{}, completionErr)
	}
	return item, nil
}

func (ch *FixedChannel[T]) closedErr() error {
	return &completionError{cause: ch.completionErr}
}

// WaitToReadAsync reports whether an item is or will become available. It
// returns false once the channel is closed and drained.
func (ch *FixedChannel[T]) WaitToReadAsync(ctx context.Context) (bool, error) {
	ch.mu.Lock()
	if !ch.storeEmptyLocked() {
		ch.mu.Unlock()
		return true, nil
	}
	if ch.isDoneWriting() {
		ch.mu.Unlock()
		return false, nil
	}
	op := ch.parkWaiter(ctx)
	ch.mu.Unlock()

	_, err := op.wait()
	if err != nil {
		if errors.Is(err, ErrClosed) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// TryPeek returns the highest-priority item without removing it.
func (ch *FixedChannel[T]) TryPeek() (PriorityItem[int, T], bool) {
	for _, q := range ch.queues {
		if item, _, ok := q.tryPeek(); ok {
			return item, true
		}
	}
	return PriorityItem[int, T]{}, false
}

// TryRemove removes the first stored item structurally equal to item,
// without regard to read order. It returns false if no such item is
// currently stored (it may have already been read, removed, or never
// enqueued).
func (ch *FixedChannel[T]) TryRemove(item PriorityItem[int, T]) bool {
	if !ch.validLevel(item.Priority) {
		return false
	}
	eq := func(a, b T) bool { return a == b }
	if ch.queues[item.Priority].tryRemoveValue(item, eq) {
		ch.afterDequeue()
		return true
	}
	return false
}

// ToArray returns a snapshot of every stored item, ordered by level then
// by arrival within each level (i.e. the order a drain would return them
// in, absent further writes).
func (ch *FixedChannel[T]) ToArray() []PriorityItem[int, T] {
	out := make([]PriorityItem[int, T], 0, ch.Count())
	for _, q := range ch.queues {
		out = append(out, q.toArray()...)
	}
	return out
}

// RunParallelReader drains the channel, invoking body for each item under
// a resizable concurrency throttle. See runParallelReader in parallel.go
// for the shared implementation used by both channel types.
func (ch *FixedChannel[T]) RunParallelReader(ctx context.Context, opts *ParallelOptions, body func(ctx context.Context, item PriorityItem[int, T]) error) error {
	return runParallelReader[int, T](ctx, opts, ch.ReadAsync, body)
}

// Stats returns a snapshot of Count, whether TryComplete has run, and the
// current depth of each level's queue.
func (ch *FixedChannel[T]) Stats() ChannelStats {
	depths := make([]int, len(ch.queues))
	for i, q := range ch.queues {
		depths[i] = q.len()
	}
	return ChannelStats{
		Count:       ch.Count(),
		DoneWriting: ch.isDoneWriting(),
		LevelDepths: depths,
	}
}
