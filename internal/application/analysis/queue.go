package analysis

import (
	"context"
	"sync"
	"time"

	domain "github.com/bryanwahyu/memtriage/internal/domain/analysis"
)

// Queue is a bounded multi-producer / single-consumer job queue.
// Producers wait at most the enqueue timeout for space, then get ErrQueueFull.
type Queue struct {
	jobs    chan domain.Job
	timeout time.Duration

	mu     sync.RWMutex
	closed bool
}

func NewQueue(size int, enqueueTimeout time.Duration) *Queue {
	if size <= 0 {
		size = 1
	}
	return &Queue{
		jobs:    make(chan domain.Job, size),
		timeout: enqueueTimeout,
	}
}

// Enqueue adds job, blocking up to the enqueue timeout while the queue is full.
func (q *Queue) Enqueue(ctx context.Context, job domain.Job) error {
	// read lock keeps Close from closing the channel under a pending send
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		return domain.ErrQueueClosed
	}

	select {
	case q.jobs <- job:
		return nil
	default:
	}
	if q.timeout <= 0 {
		return domain.ErrQueueFull
	}

	timer := time.NewTimer(q.timeout)
	defer timer.Stop()

	select {
	case q.jobs <- job:
		return nil
	case <-timer.C:
		return domain.ErrQueueFull
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Jobs is the consumer side; it is closed after Close once drained.
func (q *Queue) Jobs() <-chan domain.Job { return q.jobs }

// Close stops intake. Jobs already queued stay readable.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.closed {
		q.closed = true
		close(q.jobs)
	}
}

func (q *Queue) Len() int { return len(q.jobs) }

func (q *Queue) Cap() int { return cap(q.jobs) }
