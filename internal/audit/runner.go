package audit

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/rawinstinctart/rawauditpro/internal/logger"
	"github.com/rawinstinctart/rawauditpro/internal/safego"
)

// ErrRunnerStopped is returned by Submit once the runner is draining.
var ErrRunnerStopped = errors.New("audit runner is not accepting work")

// RunnerState is the lifecycle of a Runner.
type RunnerState int32

const (
	RunnerStopped RunnerState = iota
	RunnerRunning
	RunnerDraining
)

func (s RunnerState) String() string {
	switch s {
	case RunnerStopped:
		return "stopped"
	case RunnerRunning:
		return "running"
	case RunnerDraining:
		return "draining"
	default:
		return "unknown"
	}
}

const defaultRunnerSize = 2

// Runner executes submitted jobs in the background with at most size jobs
// running at once. Jobs still waiting for a slot when the runner drains are
// dropped and their onDrop hook runs instead.
type Runner struct {
	mu     sync.Mutex
	sem    chan struct{}
	wg     sync.WaitGroup
	state  atomic.Int32
	stopCh chan struct{}
	active atomic.Int32
	log    logger.Logger
}

// NewRunner returns a running Runner.
func NewRunner(size int, log logger.Logger) *Runner {
	if size <= 0 {
		size = defaultRunnerSize
	}
	r := &Runner{
		sem:    make(chan struct{}, size),
		stopCh: make(chan struct{}),
		log:    log.With(logger.Component("audit_runner")),
	}
	r.state.Store(int32(RunnerRunning))
	return r
}

// Submit schedules fn and returns without waiting for a slot. onDrop, if
// set, runs in place of fn when the job is dropped on drain.
func (r *Runner) Submit(name string, fn, onDrop func()) error {
	r.mu.Lock()
	if r.State() != RunnerRunning {
		r.mu.Unlock()
		return ErrRunnerStopped
	}
	r.wg.Add(1)
	r.mu.Unlock()

	safego.Go(r.log, name, func() {
		defer r.wg.Done()

		if !r.acquire() {
			r.log.Warn("Dropped queued job on drain", logger.String("job", name))
			if onDrop != nil {
				safego.Run(r.log, name, onDrop)
			}
			return
		}
		defer func() { <-r.sem }()

		r.active.Add(1)
		defer r.active.Add(-1)
		safego.Run(r.log, name, fn)
	})
	return nil
}

// acquire takes a slot, preferring a free one over the stop signal. It
// reports false when the runner drained before a slot opened.
func (r *Runner) acquire() bool {
	select {
	case r.sem <- struct{}{}:
		return true
	default:
	}
	select {
	case r.sem <- struct{}{}:
		return true
	case <-r.stopCh:
		return false
	}
}

// Drain stops accepting work and waits for running jobs. It returns
// ctx.Err() if ctx ends first; jobs keep running in that case.
func (r *Runner) Drain(ctx context.Context) error {
	r.mu.Lock()
	if !r.state.CompareAndSwap(int32(RunnerRunning), int32(RunnerDraining)) {
		r.mu.Unlock()
		return ErrRunnerStopped
	}
	r.mu.Unlock()
	r.log.Info("Audit runner draining", logger.Int("active", r.Active()))
	close(r.stopCh)

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		r.state.Store(int32(RunnerStopped))
		r.log.Info("Audit runner stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Wait blocks until every submitted job has returned.
func (r *Runner) Wait() {
	r.wg.Wait()
	r.state.Store(int32(RunnerStopped))
}

func (r *Runner) State() RunnerState {
	return RunnerState(r.state.Load())
}

// Active counts jobs holding a slot.
func (r *Runner) Active() int {
	return int(r.active.Load())
}
