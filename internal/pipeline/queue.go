package pipeline

import (
	"context"
	"sync"
	"sync/atomic"
)

// DefaultCapacity is the number of messages buffered before the oldest is evicted.
const DefaultCapacity = 5

// Queue is a bounded FIFO with drop-oldest overflow.
//
// Thread Safety:
//   - Push and Close may be called from any goroutine.
//   - Pop is intended for a single consumer.
type Queue[T any] struct {
	mu       sync.Mutex
	items    []T
	capacity int
	closed   bool

	// notify holds at most one wake-up token for the consumer.
	notify chan struct{}
	done   chan struct{}

	pushed  atomic.Uint64
	dropped atomic.Uint64
}

// NewQueue creates a queue holding at most capacity items.
// A capacity below 1 uses DefaultCapacity.
func NewQueue[T any](capacity int) *Queue[T] {
	if capacity < 1 {
		capacity = DefaultCapacity
	}
	return &Queue[T]{
		items:    make([]T, 0, capacity),
		capacity: capacity,
		notify:   make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
}

// Push appends item without blocking. When the queue is full the oldest item
// is discarded and evicted is true. Pushing to a closed queue is a no-op.
func (q *Queue[T]) Push(item T) (evicted bool) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return false
	}
	if len(q.items) >= q.capacity {
		var zero T
		q.items[0] = zero
		q.items = q.items[1:]
		evicted = true
	}
	q.items = append(q.items, item)
	q.mu.Unlock()

	q.pushed.Add(1)
	if evicted {
		q.dropped.Add(1)
	}

	select {
	case q.notify <- struct{}{}:
	default:
	}
	return evicted
}

// Pop blocks until an item is available, the queue is closed, or ctx is done.
// Items still buffered after Close are discarded and Pop returns ErrClosed.
func (q *Queue[T]) Pop(ctx context.Context) (T, error) {
	var zero T
	for {
		q.mu.Lock()
		if q.closed {
			q.mu.Unlock()
			return zero, ErrClosed
		}
		if len(q.items) > 0 {
			item := q.items[0]
			q.items[0] = zero
			q.items = q.items[1:]
			q.mu.Unlock()
			return item, nil
		}
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-q.done:
			return zero, ErrClosed
		case <-q.notify:
		}
	}
}

// Close stops accepting items and wakes a blocked Pop. Safe to call twice.
func (q *Queue[T]) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	q.items = nil
	close(q.done)
}

// Len returns the number of buffered items.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Capacity returns the configured bound.
func (q *Queue[T]) Capacity() int {
	return q.capacity
}
