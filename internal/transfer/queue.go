package transfer

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/JakeFAU/mediavid-client/internal/media"
)

// ErrQueueClosed is returned once Close has been called.
var ErrQueueClosed = errors.New("queue closed")

// Job is one pending transfer.
type Job struct {
	Item media.BatchItem
	URL  string
}

// Queue is a bounded in-memory job queue with context-aware operations.
// Close never closes the job channel, so late enqueues fail instead of panic.
type Queue struct {
	ch        chan Job
	done      chan struct{}
	closeOnce sync.Once
}

// NewQueue constructs a queue with the provided capacity.
func NewQueue(capacity int) *Queue {
	if capacity < 0 {
		capacity = 0
	}
	return &Queue{
		ch:   make(chan Job, capacity),
		done: make(chan struct{}),
	}
}

// Enqueue pushes a job, blocking until there is room, the context ends or the
// queue closes.
func (q *Queue) Enqueue(ctx context.Context, job Job) error {
	select {
	case <-q.done:
		return ErrQueueClosed
	default:
	}
	select {
	case <-ctx.Done():
		return fmt.Errorf("enqueue canceled: %w", ctx.Err())
	case <-q.done:
		return ErrQueueClosed
	case q.ch <- job:
		return nil
	}
}

// TryEnqueue pushes a job only if there is room right now.
func (q *Queue) TryEnqueue(job Job) bool {
	select {
	case <-q.done:
		return false
	default:
	}
	select {
	case q.ch <- job:
		return true
	default:
		return false
	}
}

// Dequeue pops the next job, respecting context cancellation.
func (q *Queue) Dequeue(ctx context.Context) (Job, error) {
	select {
	case <-ctx.Done():
		return Job{}, fmt.Errorf("dequeue canceled: %w", ctx.Err())
	case <-q.done:
		return Job{}, ErrQueueClosed
	case job := <-q.ch:
		return job, nil
	}
}

// Len reports buffered jobs.
func (q *Queue) Len() int { return len(q.ch) }

// Close stops the queue. It is idempotent.
func (q *Queue) Close() {
	q.closeOnce.Do(func() { close(q.done) })
}
