package worker

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wallet-tracker/internal/logging"
)

func testLogger() *logging.Logger {
	return logging.NewLogger(logging.LevelError, logging.FormatText)
}

func TestSyncPoolRunsSubmittedJobs(t *testing.T) {
	pool := NewSyncPool(2, 8, testLogger())
	pool.Start()
	defer pool.Stop()

	var mu sync.Mutex
	ran := 0
	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		require.NoError(t, pool.Submit(func() {
			defer wg.Done()
			mu.Lock()
			ran++
			mu.Unlock()
		}))
	}
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 5, ran)
}

func TestSyncPoolRejectsWhenQueueFull(t *testing.T) {
	pool := NewSyncPool(1, 1, testLogger())
	pool.Start()
	defer pool.Stop()

	gate := make(chan struct{})
	started := make(chan struct{})
	require.NoError(t, pool.Submit(func() {
		close(started)
		<-gate
	}))
	<-started

	// Worker is blocked; one more job fits in the queue
	require.NoError(t, pool.Submit(func() {}))
	assert.ErrorIs(t, pool.Submit(func() {}), ErrQueueFull)

	close(gate)
}

func TestSyncPoolStopDrainsQueuedJobs(t *testing.T) {
	pool := NewSyncPool(1, 8, testLogger())
	pool.Start()

	var mu sync.Mutex
	ran := 0
	for i := 0; i < 4; i++ {
		require.NoError(t, pool.Submit(func() {
			mu.Lock()
			ran++
			mu.Unlock()
		}))
	}

	pool.Stop()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 4, ran)
}

func TestSyncPoolRejectsAfterStop(t *testing.T) {
	pool := NewSyncPool(1, 1, testLogger())
	pool.Start()
	pool.Stop()

	assert.ErrorIs(t, pool.Submit(func() {}), ErrPoolStopped)
}

func TestSyncPoolSurvivesPanickingJob(t *testing.T) {
	pool := NewSyncPool(1, 4, testLogger())
	pool.Start()
	defer pool.Stop()

	done := make(chan struct{})
	require.NoError(t, pool.Submit(func() { panic("job exploded") }))
	require.NoError(t, pool.Submit(func() { close(done) }))

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not survive a panicking job")
	}
}

func TestSyncPoolStopIsIdempotent(t *testing.T) {
	pool := NewSyncPool(2, 4, testLogger())
	pool.Start()
	pool.Stop()
	assert.NotPanics(t, pool.Stop)
}
