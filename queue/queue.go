// Package queue provides the thread-safe FIFO that sits between network
// goroutines (producers) and the cooperative consumer that drains them.
//
// A buffered channel would be the natural FIFO here, but a channel cannot be
// unbounded and cannot be inspected for "full" atomically with a push, so the
// queue is a slice guarded by a mutex. Blocked producers wait on a signal
// channel that is closed and replaced every time an item leaves the queue.
package queue

import (
	"context"
	"iter"
	"sync"
)

// Queue is a FIFO of T. Capacity 0 means unbounded.
type Queue[T any] struct {
	mu       sync.Mutex
	items    []T
	capacity int
	space    chan struct{} // closed when an item is removed
}

// New creates a queue holding at most capacity items (0 = unbounded).
func New[T any](capacity int) *Queue[T] {
	if capacity < 0 {
		capacity = 0
	}
	return &Queue[T]{
		capacity: capacity,
		space:    make(chan struct{}),
	}
}

// Put appends v, blocking while the queue is full until room is made or ctx is done.
func (q *Queue[T]) Put(ctx context.Context, v T) error {
	for {
		q.mu.Lock()
		if !q.fullLocked() {
			q.items = append(q.items, v)
			q.mu.Unlock()
			return nil
		}
		wait := q.space
		q.mu.Unlock()

		select {
		case <-wait:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// TryPut appends v unless the queue is full. The fullness check and the
// append are atomic, so concurrent producers never exceed the capacity.
func (q *Queue[T]) TryPut(v T) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.fullLocked() {
		return false
	}
	q.items = append(q.items, v)
	return true
}

// TryGet removes and returns the oldest item without blocking.
func (q *Queue[T]) TryGet() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	var zero T
	if len(q.items) == 0 {
		return zero, false
	}
	v := q.items[0]
	q.items[0] = zero
	q.items = q.items[1:]
	if len(q.items) == 0 {
		q.items = nil
	}

	close(q.space)
	q.space = make(chan struct{})
	return v, true
}

// Drain yields queued items oldest first until the queue is empty. It never
// blocks; items added while ranging are yielded too. Ranging again later
// starts over with whatever is queued at that time.
func (q *Queue[T]) Drain() iter.Seq[T] {
	return func(yield func(T) bool) {
		for {
			v, ok := q.TryGet()
			if !ok {
				return
			}
			if !yield(v) {
				return
			}
		}
	}
}

func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

func (q *Queue[T]) Cap() int {
	return q.capacity
}

// Full reports whether a bounded queue is at capacity. Unbounded queues are never full.
func (q *Queue[T]) Full() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.fullLocked()
}

func (q *Queue[T]) fullLocked() bool {
	return q.capacity > 0 && len(q.items) >= q.capacity
}
