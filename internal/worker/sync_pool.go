// Package worker provides the bounded background pool that runs wallet syncs
// off the request path.
package worker

import (
	"errors"
	"fmt"
	"sync"

	"github.com/wallet-tracker/internal/logging"
)

var (
	// ErrQueueFull is returned when the job queue cannot accept more work
	ErrQueueFull = errors.New("sync queue is full")
	// ErrPoolStopped is returned when the pool is shutting down
	ErrPoolStopped = errors.New("sync pool is stopped")
)

// SyncPool runs submitted jobs on a fixed set of workers over a bounded
// queue. Submission never blocks: when the queue is full the caller gets
// ErrQueueFull and decides what to do with the sync record.
type SyncPool struct {
	logger  *logging.Logger
	workers int

	jobs chan func()
	wg   sync.WaitGroup

	mu      sync.Mutex
	stopped bool
}

// NewSyncPool creates a pool with the given worker count and queue capacity
func NewSyncPool(workers, queueSize int, logger *logging.Logger) *SyncPool {
	if workers < 1 {
		workers = 1
	}
	return &SyncPool{
		logger:  logger,
		workers: workers,
		jobs:    make(chan func(), queueSize),
	}
}

// Start launches the workers
func (p *SyncPool) Start() {
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.run(i)
	}
	p.logger.WithField("workers", p.workers).Info("Sync pool started")
}

func (p *SyncPool) run(id int) {
	defer p.wg.Done()
	for job := range p.jobs {
		p.execute(id, job)
	}
}

func (p *SyncPool) execute(id int, job func()) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.WithFields(map[string]interface{}{
				"worker": id,
				"panic":  fmt.Sprint(r),
			}).Error("Sync job panicked")
		}
	}()
	job()
}

// Submit enqueues a job without blocking
func (p *SyncPool) Submit(job func()) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopped {
		return ErrPoolStopped
	}
	select {
	case p.jobs <- job:
		return nil
	default:
		return ErrQueueFull
	}
}

// Stop rejects new work, drains queued jobs, and waits for workers to exit
func (p *SyncPool) Stop() {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	close(p.jobs)
	p.mu.Unlock()

	p.wg.Wait()
	p.logger.Info("Sync pool stopped")
}
