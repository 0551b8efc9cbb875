package priochan

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFixedChannel_DrainsInLevelOrder(t *testing.T) {
	ch := NewFixedChannel[string](3)
	require.True(t, ch.TryWrite(PriorityItem[int, string]{Priority: 2, Item: "a"}))
	require.True(t, ch.TryWrite(PriorityItem[int, string]{Priority: 0, Item: "b"}))
	require.True(t, ch.TryWrite(PriorityItem[int, string]{Priority: 1, Item: "c"}))
	require.True(t, ch.TryWrite(PriorityItem[int, string]{Priority: 0, Item: "d"}))

	want := []string{"b", "d", "c", "a"}
	for _, w := range want {
		item, ok := ch.TryRead()
		require.True(t, ok)
		assert.Equal(t, w, item.Item)
	}
	_, ok := ch.TryRead()
	assert.False(t, ok)
}

func TestFixedChannel_CountInvariant(t *testing.T) {
	ch := NewFixedChannel[int](2)
	for i := 0; i < 5; i++ {
		ch.TryWrite(PriorityItem[int, int]{Priority: i % 2, Item: i})
	}
	assert.Equal(t, 5, ch.Count())

	ch.TryRead()
	assert.Equal(t, 4, ch.Count())

	removed := ch.TryRemove(PriorityItem[int, int]{Priority: 1, Item: 3})
	require.True(t, removed)
	assert.Equal(t, 3, ch.Count())
}

func TestFixedChannel_TryCompleteIdempotentAndDrains(t *testing.T) {
	ch := NewFixedChannel[string](1)
	ch.TryWrite(PriorityItem[int, string]{Item: "a"})
	ch.TryWrite(PriorityItem[int, string]{Item: "b"})

	require.True(t, ch.TryComplete(nil))
	assert.False(t, ch.TryComplete(nil), "second TryComplete must fail")

	_, ok := ch.TryRead()
	require.True(t, ok)
	_, ok = ch.TryRead()
	require.True(t, ok)

	_, err := ch.ReadAsync(context.Background())
	assert.ErrorIs(t, err, ErrClosed)

	select {
	case <-ch.Completion():
	case <-time.After(time.Second):
		t.Fatal("Completion must resolve once drained and closed")
	}
}

func TestFixedChannel_TryCompleteWithError(t *testing.T) {
	ch := NewFixedChannel[string](1)
	cause := errors.New("boom")
	require.True(t, ch.TryComplete(cause))

	select {
	case <-ch.Completion():
	case <-time.After(time.Second):
		t.Fatal("Completion must resolve even with no items stored")
	}

	_, err := ch.ReadAsync(context.Background())
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, err, cause)
}

func TestFixedChannel_ParkedReaderRendezvous(t *testing.T) {
	ch := NewFixedChannel[string](1)

	type result struct {
		item PriorityItem[int, string]
		err  error
	}
	resCh := make(chan result, 1)
	go func() {
		item, err := ch.ReadAsync(context.Background())
		resCh <- result{item, err}
	}()

	// Give the reader time to park.
	deadline := time.Now().Add(time.Second)
	for ch.blocked.len() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	require.Equal(t, 1, ch.blocked.len())

	require.True(t, ch.TryWrite(PriorityItem[int, string]{Item: "p"}))

	select {
	case res := <-resCh:
		require.NoError(t, res.err)
		assert.Equal(t, "p", res.item.Item)
	case <-time.After(time.Second):
		t.Fatal("parked reader must observe the rendezvous delivery")
	}
	assert.Equal(t, 0, ch.Count())
}

func TestFixedChannel_CancellationReturnsItemToStore(t *testing.T) {
	ch := NewFixedChannel[string](1)
	ctx, cancel := context.WithCancel(context.Background())

	errCh := make(chan error, 1)
	go func() {
		_, err := ch.ReadAsync(ctx)
		errCh <- err
	}()

	deadline := time.Now().Add(time.Second)
	for ch.blocked.len() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	require.Equal(t, 1, ch.blocked.len())

	cancel()
	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("cancelled reader must complete with context.Canceled")
	}

	require.True(t, ch.TryWrite(PriorityItem[int, string]{Item: "late"}))
	item, ok := ch.TryRead()
	require.True(t, ok)
	assert.Equal(t, "late", item.Item)
}

func TestFixedChannel_TryRemoveThenReadNeverResurfaces(t *testing.T) {
	ch := NewFixedChannel[string](1)
	ch.TryWrite(PriorityItem[int, string]{Item: "x"})
	require.True(t, ch.TryRemove(PriorityItem[int, string]{Item: "x"}))

	_, ok := ch.TryRead()
	assert.False(t, ok)
}

func TestFixedChannel_ToArrayExactCount(t *testing.T) {
	ch := NewFixedChannel[int](2)
	for i := 0; i < 6; i++ {
		ch.TryWrite(PriorityItem[int, int]{Priority: i % 2, Item: i})
	}
	arr := ch.ToArray()
	assert.Len(t, arr, ch.Count())
}

func TestFixedChannel_WaitToReadAsync(t *testing.T) {
	ch := NewFixedChannel[int](1)

	// Empty and open: WaitToReadAsync suspends until an item arrives or the
	// context is done, so a short deadline must surface as an error rather
	// than a quick false.
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := ch.WaitToReadAsync(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	ch.TryComplete(nil)
	ok, err := ch.WaitToReadAsync(context.Background())
	require.NoError(t, err)
	assert.False(t, ok, "closed and drained channel reports false")
}

func TestFixedChannel_WaitToReadAsync_WakesOnWrite(t *testing.T) {
	ch := NewFixedChannel[int](1)

	resCh := make(chan bool, 1)
	go func() {
		ok, _ := ch.WaitToReadAsync(context.Background())
		resCh <- ok
	}()

	deadline := time.Now().Add(time.Second)
	for ch.waiting.len() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	require.Equal(t, 1, ch.waiting.len())

	ch.TryWrite(PriorityItem[int, int]{Item: 1})

	select {
	case ok := <-resCh:
		assert.True(t, ok)
	case <-time.After(time.Second):
		t.Fatal("WaitToReadAsync must wake once an item is written")
	}
}

func TestFixedChannel_TryWriteRejectsAfterComplete(t *testing.T) {
	ch := NewFixedChannel[int](1)
	ch.TryComplete(nil)
	assert.False(t, ch.TryWrite(PriorityItem[int, int]{Item: 1}))
}

func TestFixedChannel_InvalidLevelRejected(t *testing.T) {
	ch := NewFixedChannel[int](2)
	assert.False(t, ch.TryWrite(PriorityItem[int, int]{Priority: 5, Item: 1}))
}

func TestFixedChannel_Stats(t *testing.T) {
	ch := NewFixedChannel[int](2)
	ch.TryWrite(PriorityItem[int, int]{Priority: 0, Item: 1})
	ch.TryWrite(PriorityItem[int, int]{Priority: 0, Item: 2})
	ch.TryWrite(PriorityItem[int, int]{Priority: 1, Item: 3})

	stats := ch.Stats()
	assert.Equal(t, 3, stats.Count)
	assert.False(t, stats.DoneWriting)
	require.Len(t, stats.LevelDepths, 2)
	assert.Equal(t, 2, stats.LevelDepths[0])
	assert.Equal(t, 1, stats.LevelDepths[1])

	ch.TryComplete(nil)
	assert.True(t, ch.Stats().DoneWriting)
}

func TestFixedChannel_TryRemove_ConcurrentWithTryRead(t *testing.T) {
	// Many goroutines race TryRead against TryRemove(sameItem) on the same
	// queue; exactly one caller total (across every goroutine, for every
	// item) may ever observe success for a given logical entry, so the
	// total number of successes must equal the number of items written.
	const n = 500
	ch := NewFixedChannel[int](1)
	for i := 0; i < n; i++ {
		ch.TryWrite(PriorityItem[int, int]{Item: i})
	}

	var successes atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			if _, ok := ch.TryRead(); ok {
				successes.Add(1)
			}
		}()
		go func(item int) {
			defer wg.Done()
			if ch.TryRemove(PriorityItem[int, int]{Item: item}) {
				successes.Add(1)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int64(n), successes.Load())
	assert.Equal(t, 0, ch.Count())
}
