// Package priochan provides priority-aware asynchronous channels.
//
// Two shapes are provided: [FixedChannel], backed by K concurrent FIFO
// queues drained in ascending numeric priority order, and [DynamicChannel],
// backed by a single concurrent priority queue ordering items by
// (priority, insertion index) across the full range of float64. Both expose
// the same read/write surface: TryRead/TryWrite for the non-blocking case,
// ReadAsync/WriteAsync/WaitToReadAsync for the suspending case, and
// RunParallelReader for draining under a resizable concurrency throttle.
//
// Items of equal priority are delivered FIFO. Items of differing priority
// are delivered strictly in priority order; starvation of low-priority items
// under sustained high-priority load is by design. The channels are
// unbounded: writes never block, and fail only after completion or for an
// invalid priority (outside [0, K) for FixedChannel, NaN for
// DynamicChannel).
package priochan
