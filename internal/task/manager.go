// Package task runs named goroutines whose lifetime is tied to a context,
// with panic recovery and a way to wait for all of them to finish.
package task

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/arloliu/go-mbserial/internal/pool"
	"github.com/arloliu/go-mbserial/logger"
)

// ErrStopped is returned by Start after the manager has been stopped or its
// parent context is done.
var ErrStopped = errors.New("task: manager stopped")

// Func is one iteration of a task. It returns false to end the task.
type Func func() bool

// CancelFunc is called once when a task exits, whatever the reason.
type CancelFunc func()

// Manager manages the lifecycle of goroutines started with Start.
//
// Stop cancels the context every task observes between iterations; Wait
// blocks until all tasks have returned and re-arms the manager so it can be
// started again.
//
//	mgr := task.NewManager(ctx, logger)
//	_ = mgr.Start("receiver", func() bool {
//	    // ... one iteration ...
//	    return true
//	}, nil)
//	mgr.Stop()
//	mgr.Wait()
type Manager struct {
	pctx   context.Context
	logger logger.Logger
	wg     sync.WaitGroup
	count  atomic.Int32

	mu     sync.RWMutex // protects ctx and cancel
	ctx    context.Context
	cancel context.CancelFunc
	waitMu sync.RWMutex // keeps Start from racing with Wait
}

// NewManager returns a Manager whose tasks stop when ctx is done.
func NewManager(ctx context.Context, l logger.Logger) *Manager {
	mgr := &Manager{pctx: ctx, logger: l}
	mgr.ctx, mgr.cancel = context.WithCancel(ctx)

	return mgr
}

// Context returns the context the running tasks observe.
func (mgr *Manager) Context() context.Context {
	mgr.mu.RLock()
	defer mgr.mu.RUnlock()

	return mgr.ctx
}

// Start runs fn repeatedly on a new goroutine until it returns false, fn
// panics, or the manager is stopped. onExit, if not nil, runs when the task
// ends.
func (mgr *Manager) Start(name string, fn Func, onExit CancelFunc) error {
	ctx := mgr.Context()
	if ctx.Err() != nil {
		return fmt.Errorf("%w: cannot start %s", ErrStopped, name)
	}

	mgr.waitMu.RLock()
	defer mgr.waitMu.RUnlock()

	mgr.logger.Debug("start task", "name", name)

	mgr.wg.Add(1)
	mgr.count.Add(1)

	go func() {
		defer mgr.wg.Done()
		defer func() {
			mgr.count.Add(-1)
			mgr.logger.Debug("task terminated", "name", name, "task_count", mgr.Count())
		}()
		if onExit != nil {
			defer onExit()
		}

		mgr.runLoop(ctx, name, fn)
	}()

	return nil
}

func (mgr *Manager) runLoop(ctx context.Context, name string, fn Func) {
	defer func() {
		if r := recover(); r != nil {
			mgr.logger.Error("panic in task loop", "name", name, "panic", r)
		}
	}()

	for ctx.Err() == nil {
		if !fn() {
			return
		}
	}
}

// Stop signals every running task to end after its current iteration.
func (mgr *Manager) Stop() {
	mgr.mu.Lock()
	mgr.cancel()
	mgr.mu.Unlock()
}

// Wait blocks until every task has returned, then re-arms the manager.
func (mgr *Manager) Wait() {
	mgr.waitMu.Lock()
	defer mgr.waitMu.Unlock()

	mgr.wg.Wait()

	mgr.mu.Lock()
	mgr.ctx, mgr.cancel = context.WithCancel(mgr.pctx)
	mgr.mu.Unlock()
}

// WaitTimeout is Wait bounded by d. It reports whether every task returned
// in time; the manager is re-armed only in that case.
func (mgr *Manager) WaitTimeout(d time.Duration) bool {
	done := make(chan struct{})
	go func() {
		mgr.wg.Wait()
		close(done)
	}()

	timer := pool.GetTimer(d)
	defer pool.PutTimer(timer)

	select {
	case <-done:
		mgr.Wait()
		return true
	case <-timer.C:
		return false
	}
}

// Count returns the number of running tasks.
func (mgr *Manager) Count() int {
	return int(mgr.count.Load())
}
