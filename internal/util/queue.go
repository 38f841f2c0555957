package util

import (
	"context"
	"errors"
	"sync"
)

var (
	ErrQueueClosed = errors.New("queue closed")
	ErrQueueFull   = errors.New("queue full")
)

// Queue is a bounded FIFO handing each item to exactly one dequeuer.
// Enqueue never blocks: at capacity it rejects with ErrQueueFull so the
// caller can apply backpressure instead of stalling the request path.
type Queue[T any] struct {
	ch        chan T
	closeOnce sync.Once
	mu        sync.RWMutex
	closed    bool
}

// NewQueue creates a queue with the given capacity.
func NewQueue[T any](capacity int) *Queue[T] {
	if capacity <= 0 {
		capacity = 1
	}
	return &Queue[T]{
		ch: make(chan T, capacity),
	}
}

// Enqueue adds an item without blocking.
func (q *Queue[T]) Enqueue(item T) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return ErrQueueClosed
	}
	select {
	case q.ch <- item:
		return nil
	default:
		return ErrQueueFull
	}
}

// Dequeue blocks until an item is available, the queue is drained after
// close, or the context ends.
func (q *Queue[T]) Dequeue(ctx context.Context) (T, error) {
	var zero T
	select {
	case item, ok := <-q.ch:
		if !ok {
			return zero, ErrQueueClosed
		}
		return item, nil
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// Depth reports the number of queued items.
func (q *Queue[T]) Depth() int {
	return len(q.ch)
}

// Capacity reports the configured bound.
func (q *Queue[T]) Capacity() int {
	return cap(q.ch)
}

// Close stops accepting items; queued items remain dequeueable.
func (q *Queue[T]) Close() {
	q.closeOnce.Do(func() {
		q.mu.Lock()
		q.closed = true
		close(q.ch)
		q.mu.Unlock()
	})
}
