// Package job runs the asynchronous classification pipeline: an
// in-memory queue feeds a worker pool, and a dispatcher applies the
// bounded retry policy for transient failures.
package job

import (
	"errors"
	"sync"

	"github.com/google/uuid"
)

var (
	// ErrQueueClosed is returned when enqueueing after shutdown began.
	ErrQueueClosed = errors.New("job queue is closed")

	// ErrQueueFull is returned when the queue buffer is at capacity.
	// Callers surface this as back-pressure rather than blocking.
	ErrQueueFull = errors.New("job queue is full, try again later")
)

// Message is one unit of queued work. Attempt counts completed
// processing attempts; a freshly submitted job carries attempt zero.
type Message struct {
	JobID   uuid.UUID
	Attempt int
}

// Queue is a bounded in-memory job queue. Job state lives in the job
// store, so a message lost to a crash is recoverable by re-enqueueing
// pending jobs at startup.
type Queue struct {
	mu     sync.Mutex
	ch     chan Message
	closed bool
}

// NewQueue creates a queue with the given buffer size.
func NewQueue(size int) *Queue {
	return &Queue{
		ch: make(chan Message, size),
	}
}

// Enqueue adds a message without blocking. Returns ErrQueueFull when
// the buffer is at capacity and ErrQueueClosed after Close.
func (q *Queue) Enqueue(msg Message) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrQueueClosed
	}

	select {
	case q.ch <- msg:
		return nil
	default:
		return ErrQueueFull
	}
}

// Chan exposes the receive side for workers.
func (q *Queue) Chan() <-chan Message {
	return q.ch
}

// Close stops accepting messages and closes the channel once no
// producer can be mid-send. Safe to call more than once.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	q.closed = true
	close(q.ch)
}
