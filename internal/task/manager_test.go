package task

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/arloliu/go-mbserial/logger"
)

func newTestManager(t *testing.T, ctx context.Context) (*Manager, *logger.MockLogger) {
	t.Helper()

	l := logger.NewMockLogger().AllowAll()

	return NewManager(ctx, l), l
}

func TestManager_RunsUntilFalse(t *testing.T) {
	mgr, _ := newTestManager(t, context.Background())

	var iterations atomic.Int32
	var exited atomic.Bool
	err := mgr.Start("counter", func() bool {
		return iterations.Add(1) < 5
	}, func() { exited.Store(true) })
	require.NoError(t, err)

	mgr.Wait()
	assert.Equal(t, int32(5), iterations.Load())
	assert.True(t, exited.Load())
	assert.Zero(t, mgr.Count())
}

func TestManager_Stop(t *testing.T) {
	mgr, _ := newTestManager(t, context.Background())

	started := make(chan struct{})
	var once atomic.Bool
	require.NoError(t, mgr.Start("spin", func() bool {
		if once.CompareAndSwap(false, true) {
			close(started)
		}
		time.Sleep(time.Millisecond)

		return true
	}, nil))

	<-started
	assert.Equal(t, 1, mgr.Count())

	mgr.Stop()
	require.True(t, mgr.WaitTimeout(time.Second), "task did not stop")
	assert.Zero(t, mgr.Count())
}

func TestManager_WaitTimeoutExpires(t *testing.T) {
	mgr, _ := newTestManager(t, context.Background())

	release := make(chan struct{})
	require.NoError(t, mgr.Start("blocked", func() bool {
		<-release
		return false
	}, nil))

	assert.False(t, mgr.WaitTimeout(20*time.Millisecond))
	assert.Equal(t, 1, mgr.Count())

	close(release)
	assert.True(t, mgr.WaitTimeout(time.Second))
}

func TestManager_StartAfterStop(t *testing.T) {
	mgr, _ := newTestManager(t, context.Background())

	mgr.Stop()
	err := mgr.Start("late", func() bool { return false }, nil)
	assert.ErrorIs(t, err, ErrStopped)

	// Wait re-arms the manager.
	mgr.Wait()
	require.NoError(t, mgr.Start("again", func() bool { return false }, nil))
	mgr.Wait()
}

func TestManager_ParentCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	mgr, _ := newTestManager(t, ctx)

	require.NoError(t, mgr.Start("spin", func() bool {
		time.Sleep(time.Millisecond)
		return true
	}, nil))

	cancel()
	mgr.Wait()
	assert.Zero(t, mgr.Count())
	assert.ErrorIs(t, mgr.Start("late", func() bool { return false }, nil), ErrStopped)
}

func TestManager_RecoversPanic(t *testing.T) {
	l := logger.NewMockLogger()
	l.On("Debug", mock.Anything, mock.Anything).Maybe()
	l.On("Error", "panic in task loop", mock.Anything).Once()

	mgr := NewManager(context.Background(), l)

	var exited atomic.Bool
	require.NoError(t, mgr.Start("boom", func() bool {
		panic("boom")
	}, func() { exited.Store(true) }))

	mgr.Wait()
	assert.True(t, exited.Load())
	l.AssertExpectations(t)
}
