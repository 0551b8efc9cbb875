package priochan

import (
	"context"
	"errors"
	"math"
)

// DynamicChannel is spec.md's C9: a priority channel whose priorities are
// arbitrary floats, backed by a single concurrent priority queue (C3)
// instead of fixed per-level queues. It mirrors FixedChannel's rendezvous
// protocol exactly; only the storage half differs.
type DynamicChannel[T comparable] struct {
	chanCore[float64, T]
	store *pqueue[float64, T]
}

// DynamicChannelOption configures a DynamicChannel at construction.
type DynamicChannelOption func(*dynamicChannelConfig)

type dynamicChannelConfig struct {
	logger *Logger
}

// WithDynamicChannelLogger attaches a structured logger.
func WithDynamicChannelLogger(l *Logger) DynamicChannelOption {
	return func(c *dynamicChannelConfig) { c.logger = l }
}

// NewDynamicChannel constructs an open, empty channel.
func NewDynamicChannel[T comparable](opts ...DynamicChannelOption) *DynamicChannel[T] {
	cfg := &dynamicChannelConfig{}
	for _, opt := range opts {
		opt(cfg)
	}
	ch := &DynamicChannel[T]{store: newPQueue[float64, T]()}
	ch.chanCore.init(cfg.logger)
	return ch
}

// ErrInvalidPriority's NaN check lives here: TryWrite/WriteAsync reject NaN
// priorities outright, per Design Note's resolution of the spec's open
// question ("reject NaN priorities with an invalid-argument failure").
func validPriority(p float64) bool { return !math.IsNaN(p) }

// TryWrite attempts to enqueue item synchronously. It returns false if the
// channel is closed or priority is NaN.
func (ch *DynamicChannel[T]) TryWrite(item PriorityItem[float64, T]) bool {
	if !validPriority(item.Priority) {
		return false
	}
	ch.mu.Lock()
	if ch.isDoneWriting() {
		ch.mu.Unlock()
		return false
	}

	reader := ch.blocked.popFront()
	if reader == nil {
		ch.store.enqueue(item.Priority, item.Item)
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
		logRendezvousMiss(ch.logger)
		ch.mu.Lock()
		reader = ch.blocked.popFront()
		if reader == nil {
			ch.store.enqueue(item.Priority, item.Item)
			waiters := detachAll(&ch.waiting)
			ch.mu.Unlock()
			fireWaiters(waiters, true, nil)
			return true
		}
		ch.mu.Unlock()
	}
}

// WriteAsync never actually suspends (the store is unbounded).
func (ch *DynamicChannel[T]) WriteAsync(ctx context.Context, item PriorityItem[float64, T]) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !validPriority(item.Priority) {
		return ErrInvalidPriority
	}
	if ch.TryWrite(item) {
		return nil
	}
	return ErrClosed
}

// WaitToWriteAsync reports whether the channel remains open.
func (ch *DynamicChannel[T]) WaitToWriteAsync(ctx context.Context) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	return !ch.isDoneWriting(), nil
}

func (ch *DynamicChannel[T]) storeEmptyLocked() bool { return ch.store.len() == 0 }

// TryComplete marks the channel closed to further writes.
func (ch *DynamicChannel[T]) TryComplete(cause error) bool {
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
		op.tryComplete(PriorityItem[float64, T]{}, closedErr)
	}
	fireWaiters(waiters, false, closedErr)
	if fire {
		ch.completion.tryComplete(PriorityItem[float64, T]{}, completionErr)
	}
	return true
}

// TryRead attempts to dequeue the minimum-priority item synchronously.
func (ch *DynamicChannel[T]) TryRead() (PriorityItem[float64, T], bool) {
	if p, v, ok := ch.store.dequeue(); ok {
		ch.afterDequeue()
		return PriorityItem[float64, T]{Priority: p, Item: v}, true
	}
	return PriorityItem[float64, T]{}, false
}

func (ch *DynamicChannel[T]) afterDequeue() {
	ch.count.Add(-1)
	ch.mu.Lock()
	fire, err := ch.maybeCompleteLocked()
	ch.mu.Unlock()
	if fire {
		ch.completion.tryComplete(PriorityItem[float64, T]{}, err)
	}
}

// ReadAsync dequeues the minimum-priority item, suspending if empty but
// still open.
func (ch *DynamicChannel[T]) ReadAsync(ctx context.Context) (PriorityItem[float64, T], error) {
	if item, ok := ch.TryRead(); ok {
		return item, nil
	}

	ch.mu.Lock()
	if p, v, ok := ch.store.dequeue(); ok {
		ch.mu.Unlock()
		ch.afterDequeue()
		return PriorityItem[float64, T]{Priority: p, Item: v}, nil
	}
	if ch.isDoneWriting() {
		ch.mu.Unlock()
		return PriorityItem[float64, T]{}, ch.closedErr()
	}
	op := ch.parkReader(ctx)
	ch.mu.Unlock()

	item, err := op.wait()
	if err != nil {
		return PriorityItem[float64, T]{}, err
	}
	ch.count.Add(-1)
	ch.mu.Lock()
	fire, completionErr := ch.maybeCompleteLocked()
	ch.mu.Unlock()
	if fire {
		ch.completion.tryComplete(PriorityItem[float64, T]{}, completionErr)
	}
	return item, nil
}

func (ch *DynamicChannel[T]) closedErr() error {
	return &completionError{cause: ch.completionErr}
}

// WaitToReadAsync reports whether an item is or will become available.
func (ch *DynamicChannel[T]) WaitToReadAsync(ctx context.Context) (bool, error) {
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

// TryPeek returns the minimum-priority item without removing it.
func (ch *DynamicChannel[T]) TryPeek() (PriorityItem[float64, T], bool) {
	p, v, ok := ch.store.peek()
	if !ok {
		return PriorityItem[float64, T]{}, false
	}
	return PriorityItem[float64, T]{Priority: p, Item: v}, true
}

// TryRemove removes the first stored item structurally equal to item.
func (ch *DynamicChannel[T]) TryRemove(item PriorityItem[float64, T]) bool {
	eq := func(a, b T) bool { return a == b }
	handle, found := ch.store.findByValue(item.Priority, item.Item, eq)
	if !found {
		return false
	}
	if _, ok := ch.store.remove(handle); ok {
		ch.afterDequeue()
		return true
	}
	return false
}

// ToArray returns a snapshot of every stored item, sorted by (priority,
// insertion order) ascending — the order a drain would return them in,
// absent further writes.
func (ch *DynamicChannel[T]) ToArray() []PriorityItem[float64, T] {
	return ch.store.sortedSnapshot()
}

// RunParallelReader drains the channel, invoking body for each item under a
// resizable concurrency throttle.
func (ch *DynamicChannel[T]) RunParallelReader(ctx context.Context, opts *ParallelOptions, body func(ctx context.Context, item PriorityItem[float64, T]) error) error {
	return runParallelReader[float64, T](ctx, opts, ch.ReadAsync, body)
}

// Stats returns a snapshot of Count and whether TryComplete has run.
// DynamicChannel's storage isn't partitioned by level, so LevelDepths is
// always nil here.
func (ch *DynamicChannel[T]) Stats() ChannelStats {
	return ChannelStats{
		Count:       ch.Count(),
		DoneWriting: ch.isDoneWriting(),
	}
}
