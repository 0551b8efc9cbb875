package priochan

import (
	"context"
	"errors"

	"golang.org/x/exp/constraints"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// parallelHardCap bounds the maximum concurrency a single RunParallelReader
// invocation can ever reach, regardless of how high ParallelOptions is
// raised at runtime. It exists only because golang.org/x/sync/semaphore.
// Weighted is constructed with a fixed total weight; resizing the
// *effective* limit at runtime (per Design Note 9's observer-delta
// approach) is implemented by reserving the unused portion of that total
// up front and releasing/reacquiring reserved units as the option changes,
// the same "acquire to shrink, release to grow" trick sclevine-xsum's
// pqueue.go applies to its own semaphore-gated worker pool.
const parallelHardCap = 1 << 20

// runParallelReader is the shared implementation behind both
// FixedChannel.RunParallelReader and DynamicChannel.RunParallelReader. read
// is the channel's ReadAsync method, passed in rather than an interface so
// this stays a plain generic function instead of needing a Reader
// interface with its own type parameters.
func runParallelReader[P constraints.Ordered, T any](
	ctx context.Context,
	opts *ParallelOptions,
	read func(ctx context.Context) (PriorityItem[P, T], error),
	body func(ctx context.Context, item PriorityItem[P, T]) error,
) error {
	if opts == nil {
		opts = NewParallelOptions()
	}

	sem := semaphore.NewWeighted(parallelHardCap)
	initial := opts.MaxDegreeOfParallelism()
	reserved := int64(parallelHardCap - initial)
	if reserved > 0 {
		if err := sem.Acquire(ctx, reserved); err != nil {
			return err
		}
	}

	unsubscribe := opts.onDelta(func(delta int) {
		if delta > 0 {
			sem.Release(int64(delta))
			return
		}
		if delta < 0 {
			// Reacquire the capacity in the background, as running bodies
			// finish and give it back, so the resize call itself does not
			// block. The acquire uses a context-less background ctx so the
			// shrink is not tied to any one caller's ctx.
			go func() { _ = sem.Acquire(context.Background(), int64(-delta)) }()
		}
	})
	defer unsubscribe()

	pauseToken := opts.PauseToken()

	g, gctx := errgroup.WithContext(ctx)
	for {
		if err := pauseToken.WaitWhilePaused(gctx); err != nil {
			break
		}

		item, err := read(gctx)
		if err != nil {
			if errors.Is(err, ErrClosed) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				break
			}
			_ = g.Wait()
			return err
		}

		if err := sem.Acquire(gctx, 1); err != nil {
			break
		}
		g.Go(func() error {
			defer sem.Release(1)
			return body(gctx, item)
		})
	}

	return g.Wait()
}
