// Package queue provides the bounded work queue feeding the submission engine.
package queue

import (
	"errors"
	"sync"
	"time"

	ptypes "github.com/gateway-fm/transactioneer/pkg/types"
)

// ErrQueueFull is returned when the queue is at capacity. Producers see
// backpressure immediately rather than blocking.
var ErrQueueFull = errors.New("work queue is full")

// ErrQueueClosed is returned when enqueueing after Close.
var ErrQueueClosed = errors.New("work queue is closed")

// DefaultCapacity bounds memory when producers outrun submission.
const DefaultCapacity = 1_000_000

// Queue is a bounded MPMC work queue. Dequeue takes a timeout so consumer
// loops can wake up to re-check their stop flag even when no work arrives.
type Queue struct {
	items     chan ptypes.WorkItem
	closed    chan struct{}
	closeOnce sync.Once
}

// New creates a queue with the given capacity. Zero or negative capacity
// falls back to DefaultCapacity.
func New(capacity int) *Queue {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Queue{
		items:  make(chan ptypes.WorkItem, capacity),
		closed: make(chan struct{}),
	}
}

// Enqueue adds one item. Fails fast with ErrQueueFull at capacity.
func (q *Queue) Enqueue(item ptypes.WorkItem) error {
	select {
	case <-q.closed:
		return ErrQueueClosed
	default:
	}

	select {
	case q.items <- item:
		return nil
	default:
		return ErrQueueFull
	}
}

// EnqueueBatch adds items until the queue fills, returning how many were
// accepted. err is ErrQueueFull when the batch was cut short.
func (q *Queue) EnqueueBatch(items []ptypes.WorkItem) (accepted int, err error) {
	for _, item := range items {
		if err := q.Enqueue(item); err != nil {
			return accepted, err
		}
		accepted++
	}
	return accepted, nil
}

// Dequeue waits up to timeout for an item. ok is false when the timeout
// expired or the queue was closed and drained; that is not an error, just a
// signal for the consumer to loop.
func (q *Queue) Dequeue(timeout time.Duration) (item ptypes.WorkItem, ok bool) {
	// Drain buffered items even after close.
	select {
	case item = <-q.items:
		return item, true
	default:
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case item = <-q.items:
		return item, true
	case <-q.closed:
		// Close raced with a late enqueue; one more non-blocking drain.
		select {
		case item = <-q.items:
			return item, true
		default:
			return item, false
		}
	case <-timer.C:
		return item, false
	}
}

// Depth returns the number of queued items.
func (q *Queue) Depth() int {
	return len(q.items)
}

// Close rejects further enqueues. Buffered items remain dequeueable.
// Safe to call more than once.
func (q *Queue) Close() {
	q.closeOnce.Do(func() { close(q.closed) })
}
