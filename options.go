package priochan

import (
	"runtime"
	"sync"
)

// ParallelOptions configures a RunParallelReader driver (C10). It is
// intentionally mutable after construction: SetMaxDegreeOfParallelism may be
// called at any time, including while a driver is actively running against
// it, and the change takes effect without restarting the drain.
//
// Construction follows the functional-options idiom used throughout this
// tree (see eventloop/options.go's LoopOption), rather than exposing a
// struct literal with exported fields, so future options can be added
// without breaking callers.
type ParallelOptions struct {
	mu         sync.Mutex
	maxDOP     int
	pauseToken PauseToken
	observers  map[int]func(delta int)
	nextObs    int
}

// ParallelOption configures a ParallelOptions at construction time.
type ParallelOption interface {
	apply(*ParallelOptions)
}

type parallelOptionFunc func(*ParallelOptions)

func (f parallelOptionFunc) apply(o *ParallelOptions) { f(o) }

// WithMaxDegreeOfParallelism sets the initial maximum number of concurrently
// running reader bodies. Values less than 1 are treated as 1.
func WithMaxDegreeOfParallelism(n int) ParallelOption {
	return parallelOptionFunc(func(o *ParallelOptions) {
		if n < 1 {
			n = 1
		}
		o.maxDOP = n
	})
}

// WithPauseToken attaches a cooperative pause signal; RunParallelReader
// consults it between dispatched items.
func WithPauseToken(t PauseToken) ParallelOption {
	return parallelOptionFunc(func(o *ParallelOptions) { o.pauseToken = t })
}

// NewParallelOptions builds a ParallelOptions. The default
// MaxDegreeOfParallelism is runtime.NumCPU(), matching the .NET
// ParallelOptions default this component mirrors.
func NewParallelOptions(opts ...ParallelOption) *ParallelOptions {
	o := &ParallelOptions{
		maxDOP:    runtime.NumCPU(),
		observers: make(map[int]func(delta int)),
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt.apply(o)
	}
	return o
}

// MaxDegreeOfParallelism returns the current maximum concurrency.
func (o *ParallelOptions) MaxDegreeOfParallelism() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.maxDOP
}

// SetMaxDegreeOfParallelism updates the maximum concurrency and notifies
// every subscribed driver of the signed delta, so it can grow or shrink its
// throttle in place. Values less than 1 are treated as 1.
func (o *ParallelOptions) SetMaxDegreeOfParallelism(n int) {
	if n < 1 {
		n = 1
	}
	o.mu.Lock()
	delta := n - o.maxDOP
	o.maxDOP = n
	observers := make([]func(int), 0, len(o.observers))
	for _, fn := range o.observers {
		observers = append(observers, fn)
	}
	o.mu.Unlock()

	if delta == 0 {
		return
	}
	for _, fn := range observers {
		fn(delta)
	}
}

// PauseToken returns the configured pause signal (the zero PauseToken if
// none was set, which never pauses).
func (o *ParallelOptions) PauseToken() PauseToken {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.pauseToken
}

// onDelta subscribes fn to future MaxDegreeOfParallelism changes, returning
// an unsubscribe function. A driver calls this once, for its own lifetime,
// per Design Note 9 ("re-architect as an observer registered by the driver,
// with unsubscription tied to the driver's lifetime").
func (o *ParallelOptions) onDelta(fn func(delta int)) (unsubscribe func()) {
	o.mu.Lock()
	id := o.nextObs
	o.nextObs++
	o.observers[id] = fn
	o.mu.Unlock()

	return func() {
		o.mu.Lock()
		delete(o.observers, id)
		o.mu.Unlock()
	}
}
