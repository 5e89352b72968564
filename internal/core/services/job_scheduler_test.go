package services

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJobScheduler_ConcurrencyLimit(t *testing.T) {
	scheduler := NewJobScheduler(testLogger(), SchedulerConfig{MaxConcurrentJobs: 2})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	scheduler.Start(ctx)

	var runningJobs int32
	var maxRunningJobs int32
	var wg sync.WaitGroup

	totalJobs := 5
	wg.Add(totalJobs)

	work := func(ctx context.Context) {
		current := atomic.AddInt32(&runningJobs, 1)
		for {
			peak := atomic.LoadInt32(&maxRunningJobs)
			if current <= peak || atomic.CompareAndSwapInt32(&maxRunningJobs, peak, current) {
				break
			}
		}
		time.Sleep(100 * time.Millisecond)
		atomic.AddInt32(&runningJobs, -1)
		wg.Done()
	}

	for i := 0; i < totalJobs; i++ {
		require.NoError(t, scheduler.SubmitJob(ctx, Task{ID: fmt.Sprintf("task-%d", i), Run: work}))
	}

	wg.Wait()

	peak := atomic.LoadInt32(&maxRunningJobs)
	assert.LessOrEqual(t, peak, int32(2), "should not exceed max concurrency")
	assert.Greater(t, peak, int32(0), "should have run some jobs")
}

func TestJobScheduler_QueueFull(t *testing.T) {
	scheduler := NewJobScheduler(testLogger(), SchedulerConfig{MaxConcurrentJobs: 1, QueueSize: 1})
	noop := func(context.Context) {}

	// not started, so nothing drains the queue
	require.NoError(t, scheduler.SubmitJob(context.Background(), Task{ID: "a", Run: noop}))
	assert.ErrorIs(t, scheduler.SubmitJob(context.Background(), Task{ID: "b", Run: noop}), ErrQueueFull)
}

func TestJobScheduler_RunWaitsForInFlight(t *testing.T) {
	scheduler := NewJobScheduler(testLogger(), SchedulerConfig{MaxConcurrentJobs: 1})
	ctx, cancel := context.WithCancel(context.Background())

	started := make(chan struct{})
	var finished atomic.Bool
	require.NoError(t, scheduler.SubmitJob(ctx, Task{ID: "slow", Run: func(ctx context.Context) {
		close(started)
		<-ctx.Done()
		time.Sleep(20 * time.Millisecond)
		finished.Store(true)
	}}))

	done := make(chan error)
	go func() { done <- scheduler.Run(ctx) }()

	<-started
	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
		assert.True(t, finished.Load())
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
