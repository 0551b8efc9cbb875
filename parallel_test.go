package priochan

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunParallelReader_DrainsAllItems(t *testing.T) {
	ch := NewFixedChannel[int](1)
	const n = 50
	for i := 0; i < n; i++ {
		ch.TryWrite(PriorityItem[int, int]{Item: i})
	}
	ch.TryComplete(nil)

	var sum atomic.Int64
	err := ch.RunParallelReader(context.Background(), NewParallelOptions(WithMaxDegreeOfParallelism(4)),
		func(ctx context.Context, item PriorityItem[int, int]) error {
			sum.Add(int64(item.Item))
			return nil
		})
	require.NoError(t, err)
	assert.Equal(t, int64((n-1)*n/2), sum.Load())
}

func TestRunParallelReader_HonorsMaxConcurrency(t *testing.T) {
	ch := NewFixedChannel[int](1)
	const n = 20
	for i := 0; i < n; i++ {
		ch.TryWrite(PriorityItem[int, int]{Item: i})
	}
	ch.TryComplete(nil)

	opts := NewParallelOptions(WithMaxDegreeOfParallelism(2))
	var current, maxSeen atomic.Int32
	var mu sync.Mutex

	err := ch.RunParallelReader(context.Background(), opts, func(ctx context.Context, item PriorityItem[int, int]) error {
		n := current.Add(1)
		mu.Lock()
		if int32(n) > maxSeen.Load() {
			maxSeen.Store(n)
		}
		mu.Unlock()
		time.Sleep(5 * time.Millisecond)
		current.Add(-1)
		return nil
	})
	require.NoError(t, err)
	assert.LessOrEqual(t, maxSeen.Load(), int32(2))
}

func TestRunParallelReader_ResizeIncreasesConcurrency(t *testing.T) {
	ch := NewFixedChannel[int](1)
	const n = 12
	for i := 0; i < n; i++ {
		ch.TryWrite(PriorityItem[int, int]{Item: i})
	}
	ch.TryComplete(nil)

	opts := NewParallelOptions(WithMaxDegreeOfParallelism(2))
	var current, maxSeen atomic.Int32

	go func() {
		time.Sleep(20 * time.Millisecond)
		opts.SetMaxDegreeOfParallelism(6)
	}()

	err := ch.RunParallelReader(context.Background(), opts, func(ctx context.Context, item PriorityItem[int, int]) error {
		n := current.Add(1)
		for {
			old := maxSeen.Load()
			if n <= old || maxSeen.CompareAndSwap(old, n) {
				break
			}
		}
		time.Sleep(15 * time.Millisecond)
		current.Add(-1)
		return nil
	})
	require.NoError(t, err)
	assert.Greater(t, maxSeen.Load(), int32(2), "raising max parallelism must allow more concurrent bodies")
}

func TestRunParallelReader_PropagatesBodyError(t *testing.T) {
	ch := NewFixedChannel[int](1)
	ch.TryWrite(PriorityItem[int, int]{Item: 1})
	ch.TryComplete(nil)

	boom := assert.AnError
	err := ch.RunParallelReader(context.Background(), nil, func(ctx context.Context, item PriorityItem[int, int]) error {
		return boom
	})
	assert.ErrorIs(t, err, boom)
}
