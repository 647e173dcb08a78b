package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"TradePull/pkg/logger"
)

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	l, err := logger.New(&logger.Config{Level: "error", Format: "json", Output: "stderr"})
	require.NoError(t, err)
	return l
}

func TestSchedulerRunsImmediatelyThenOnInterval(t *testing.T) {
	s := New(testLogger(t))
	defer s.StopAll()

	var runs atomic.Int32
	require.NoError(t, s.Start("counter", 20*time.Millisecond, func(ctx context.Context) {
		runs.Add(1)
	}))

	require.Eventually(t, func() bool {
		return runs.Load() >= 3
	}, 2*time.Second, 5*time.Millisecond, "first run is immediate, later runs follow the interval")
}

func TestSchedulerDuplicateName(t *testing.T) {
	s := New(testLogger(t))
	defer s.StopAll()

	require.NoError(t, s.Start("once", time.Hour, func(ctx context.Context) {}))
	require.Error(t, s.Start("once", time.Hour, func(ctx context.Context) {}))
	assert.Equal(t, []string{"once"}, s.Running())
}

func TestSchedulerStop(t *testing.T) {
	s := New(testLogger(t))

	var runs atomic.Int32
	require.NoError(t, s.Start("stoppable", time.Hour, func(ctx context.Context) {
		runs.Add(1)
	}))

	require.Eventually(t, func() bool { return runs.Load() == 1 }, time.Second, 5*time.Millisecond)
	require.NoError(t, s.Stop("stoppable"))
	assert.Empty(t, s.Running())

	require.Error(t, s.Stop("stoppable"), "stopping twice is an error")
	assert.Equal(t, int32(1), runs.Load())
}

func TestSchedulerTaskPanicRecovered(t *testing.T) {
	s := New(testLogger(t))
	defer s.StopAll()

	var runs atomic.Int32
	require.NoError(t, s.Start("flaky", 10*time.Millisecond, func(ctx context.Context) {
		if runs.Add(1) == 1 {
			panic("boom")
		}
	}))

	require.Eventually(t, func() bool {
		return runs.Load() >= 2
	}, 2*time.Second, 5*time.Millisecond, "panic does not kill the worker")
}

func TestSchedulerStopCancelsTaskContext(t *testing.T) {
	s := New(testLogger(t))

	started := make(chan struct{})
	cancelled := make(chan struct{})
	require.NoError(t, s.Start("blocking", time.Hour, func(ctx context.Context) {
		close(started)
		<-ctx.Done()
		close(cancelled)
	}))

	<-started
	require.NoError(t, s.Stop("blocking"))

	select {
	case <-cancelled:
	case <-time.After(time.Second):
		t.Fatal("task context was not cancelled on stop")
	}
}

func TestStoreBackoff(t *testing.T) {
	b := NewStoreBackoff(3, 300*time.Second)
	now := time.Now()

	assert.False(t, b.ShouldSkip(now))

	for i := 0; i < 3; i++ {
		b.Failure(now)
	}
	assert.False(t, b.ShouldSkip(now), "skip starts past the threshold, not at it")

	b.Failure(now)
	assert.True(t, b.ShouldSkip(now))
	assert.True(t, b.ShouldSkip(now.Add(299*time.Second)))
	assert.False(t, b.ShouldSkip(now.Add(301*time.Second)), "retry window elapsed")

	b.Failure(now)
	b.Success()
	assert.False(t, b.ShouldSkip(now), "one success resets the counter")
}
