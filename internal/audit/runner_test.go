package audit_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rawinstinctart/rawauditpro/internal/audit"
	"github.com/rawinstinctart/rawauditpro/internal/logger"
)

func TestRunner_BoundsConcurrency(t *testing.T) {
	r := audit.NewRunner(2, logger.NewNop())
	release := make(chan struct{})
	var running, peak atomic.Int32

	for range 5 {
		require.NoError(t, r.Submit("job", func() {
			n := running.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			<-release
			running.Add(-1)
		}, nil))
	}

	require.Eventually(t, func() bool { return r.Active() == 2 }, time.Second, 5*time.Millisecond)
	close(release)
	r.Wait()
	assert.Equal(t, int32(2), peak.Load())
}

func TestRunner_DrainRejectsNewWork(t *testing.T) {
	r := audit.NewRunner(1, logger.NewNop())
	assert.Equal(t, audit.RunnerRunning, r.State())

	done := make(chan struct{})
	require.NoError(t, r.Submit("job", func() { close(done) }, nil))
	<-done

	require.NoError(t, r.Drain(context.Background()))
	assert.Equal(t, audit.RunnerStopped, r.State())
	assert.ErrorIs(t, r.Submit("late", func() {}, nil), audit.ErrRunnerStopped)
	assert.ErrorIs(t, r.Drain(context.Background()), audit.ErrRunnerStopped)
}

func TestRunner_DrainDropsQueuedJobs(t *testing.T) {
	r := audit.NewRunner(1, logger.NewNop())
	release := make(chan struct{})
	started := make(chan struct{})
	var queuedRan atomic.Bool

	require.NoError(t, r.Submit("blocker", func() {
		close(started)
		<-release
	}, nil))
	<-started
	dropped := make(chan struct{})
	require.NoError(t, r.Submit("queued", func() { queuedRan.Store(true) }, func() { close(dropped) }))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	require.ErrorIs(t, r.Drain(ctx), context.DeadlineExceeded)
	assert.Equal(t, audit.RunnerDraining, r.State())
	<-dropped

	close(release)
	r.Wait()
	assert.False(t, queuedRan.Load())
	assert.Equal(t, audit.RunnerStopped, r.State())
}

func TestRunner_RecoversPanics(t *testing.T) {
	r := audit.NewRunner(1, logger.NewNop())
	require.NoError(t, r.Submit("boom", func() { panic("boom") }, nil))

	done := make(chan struct{})
	require.NoError(t, r.Submit("after", func() { close(done) }, nil))
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("runner did not recover from panic")
	}
	r.Wait()
}

func TestRunner_FreeSlotWinsOverDrain(t *testing.T) {
	for range 100 {
		r := audit.NewRunner(4, logger.NewNop())
		var ran, dropped atomic.Bool
		require.NoError(t, r.Submit("job", func() { ran.Store(true) }, func() { dropped.Store(true) }))
		require.NoError(t, r.Drain(context.Background()))
		require.True(t, ran.Load())
		require.False(t, dropped.Load())
	}
}
