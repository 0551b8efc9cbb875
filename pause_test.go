package priochan

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPauseToken_NotPausedByDefault(t *testing.T) {
	src := NewPauseTokenSource(nil)
	tok := src.Token()
	assert.False(t, tok.IsPaused())
	require.NoError(t, tok.WaitWhilePaused(context.Background()))
}

func TestPauseToken_PauseBlocksWaitWhilePaused(t *testing.T) {
	src := NewPauseTokenSource(nil)
	tok := src.Token()
	src.Pause()
	assert.True(t, tok.IsPaused())

	done := make(chan error, 1)
	go func() { done <- tok.WaitWhilePaused(context.Background()) }()

	select {
	case <-done:
		t.Fatal("WaitWhilePaused must block while paused")
	case <-time.After(30 * time.Millisecond):
	}

	src.Resume()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("WaitWhilePaused must unblock on Resume")
	}
}

func TestPauseToken_ContextCancelUnblocks(t *testing.T) {
	src := NewPauseTokenSource(nil)
	src.Pause()
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- src.Token().WaitWhilePaused(ctx) }()
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("WaitWhilePaused must observe context cancellation")
	}
}

func TestPauseToken_ChainedParent(t *testing.T) {
	parentSrc := NewPauseTokenSource(nil)
	parentTok := parentSrc.Token()
	childSrc := NewPauseTokenSource(&parentTok)
	child := childSrc.Token()

	assert.False(t, child.IsPaused())
	parentSrc.Pause()
	assert.True(t, child.IsPaused(), "child must report paused when parent is paused")
	parentSrc.Resume()
	assert.False(t, child.IsPaused())

	childSrc.Pause()
	assert.True(t, child.IsPaused())
}

func TestPauseToken_PauseIdempotent(t *testing.T) {
	src := NewPauseTokenSource(nil)
	src.Pause()
	src.Pause()
	assert.True(t, src.Token().IsPaused())
	src.Resume()
	src.Resume()
	assert.False(t, src.Token().IsPaused())
}
