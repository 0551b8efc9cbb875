package priochan

import "context"

// pauseState is the shared, mutable state behind a PauseTokenSource. gate is
// nil while running and a fresh channel (closed by Resume) while paused,
// mirroring the "optional completion promise" described in spec.md §4.8:
// its presence, not its value, carries the paused/resumed signal.
type pauseState struct {
	mu     chan struct{} // 1-buffered mutex; see lock/unlock below
	gate   chan struct{}
	parent *PauseToken
}

func (s *pauseState) lock()   { s.mu <- struct{}{} }
func (s *pauseState) unlock() { <-s.mu }

// PauseToken is a read-only, cooperative pause signal. A RunParallelReader
// body (or any other worker loop) calls WaitWhilePaused between units of
// work; it returns immediately while running and blocks, without spinning,
// while paused.
type PauseToken struct {
	state *pauseState
}

// IsPaused reports whether this token, or its parent (if chained), is
// currently paused.
func (t PauseToken) IsPaused() bool {
	if t.state == nil {
		return false
	}
	t.state.lock()
	paused := t.state.gate != nil
	t.state.unlock()
	return paused || (t.state.parent != nil && t.state.parent.IsPaused())
}

// WaitWhilePaused blocks until neither this token nor its parent is paused,
// or until ctx is done. A zero-value PauseToken never pauses and returns
// immediately.
func (t PauseToken) WaitWhilePaused(ctx context.Context) error {
	for {
		if t.state == nil {
			return nil
		}
		t.state.lock()
		gate := t.state.gate
		t.state.unlock()

		var parentGate <-chan struct{}
		if t.state.parent != nil {
			// Snapshot the parent's gate so a resume racing with pause
			// can't make us miss a wakeup: worst case we loop once more.
			t.state.parent.state.lock()
			parentGate = t.state.parent.state.gate
			t.state.parent.state.unlock()
		}

		if gate == nil && parentGate == nil {
			return nil
		}

		// A nil channel in a select blocks forever, so whichever of
		// gate/parentGate is absent simply never fires.
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-gate:
		case <-parentGate:
		}
	}
}

// PauseTokenSource is the mutator side of a PauseToken: Pause()/Resume()
// flip the shared gate; Token() hands out the read-only view.
type PauseTokenSource struct {
	state *pauseState
}

// NewPauseTokenSource creates a source whose token is initially not paused.
// parent, if non-nil, is chained: the resulting token is paused whenever
// either this source or parent is paused.
func NewPauseTokenSource(parent *PauseToken) *PauseTokenSource {
	s := &pauseState{mu: make(chan struct{}, 1), parent: parent}
	return &PauseTokenSource{state: s}
}

// Token returns the read-only PauseToken backed by this source.
func (s *PauseTokenSource) Token() PauseToken { return PauseToken{state: s.state} }

// Pause installs a fresh gate if one is not already present. Idempotent.
func (s *PauseTokenSource) Pause() {
	s.state.lock()
	if s.state.gate == nil {
		s.state.gate = make(chan struct{})
	}
	s.state.unlock()
}

// Resume clears the gate, waking every waiter blocked in WaitWhilePaused.
// Idempotent.
func (s *PauseTokenSource) Resume() {
	s.state.lock()
	if s.state.gate != nil {
		close(s.state.gate)
		s.state.gate = nil
	}
	s.state.unlock()
}
