package buffer

import (
	"context"
	"errors"
	"sync"
)

// ErrClosed is returned by Receive once the queue is closed and drained.
var ErrClosed = errors.New("queue closed")

// Queue is a thread-safe FIFO ring that doubles its capacity when full, up
// to a limit. At the limit, Push evicts the oldest item.
type Queue[T any] struct {
	mu     sync.Mutex
	ring   []T
	head   int
	count  int
	limit  int
	closed bool

	ready chan struct{} // one token while items may be waiting
	done  chan struct{} // closed by Close

	stats Stats
}

// Stats contains queue statistics.
type Stats struct {
	Len      int
	Cap      int
	Pushed   int64
	Popped   int64
	Dropped  int64 // Evicted at the limit
	Resizes  int
	Rejected int64 // Pushed after Close
}

// New creates a queue with the given initial capacity. limit caps growth;
// a limit below initial is raised to initial.
func New[T any](initial, limit int) *Queue[T] {
	if initial < 1 {
		initial = 1
	}
	if limit < initial {
		limit = initial
	}
	return &Queue[T]{
		ring:  make([]T, initial),
		limit: limit,
		ready: make(chan struct{}, 1),
		done:  make(chan struct{}),
	}
}

// Push appends item. It never blocks. Returns false if the queue is closed.
func (q *Queue[T]) Push(item T) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		q.stats.Rejected++
		return false
	}

	if q.count == len(q.ring) {
		if len(q.ring) < q.limit {
			q.grow()
		} else {
			q.popLocked()
			q.stats.Dropped++
			q.stats.Popped--
		}
	}

	q.ring[(q.head+q.count)%len(q.ring)] = item
	q.count++
	q.stats.Pushed++
	q.signal()
	return true
}

// TryReceive pops the oldest item without blocking.
func (q *Queue[T]) TryReceive() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.count == 0 {
		var zero T
		return zero, false
	}
	return q.popLocked(), true
}

// Receive pops the oldest item, blocking until one is available. It returns
// ErrClosed once the queue is closed and empty, or ctx.Err() on cancellation.
func (q *Queue[T]) Receive(ctx context.Context) (T, error) {
	for {
		q.mu.Lock()
		if q.count > 0 {
			item := q.popLocked()
			if q.count > 0 {
				q.signal()
			}
			q.mu.Unlock()
			return item, nil
		}
		closed := q.closed
		q.mu.Unlock()

		var zero T
		if closed {
			return zero, ErrClosed
		}

		select {
		case <-q.ready:
		case <-q.done:
		case <-ctx.Done():
			return zero, ctx.Err()
		}
	}
}

// DrainTo pops up to max items (all when max <= 0) in FIFO order.
func (q *Queue[T]) DrainTo(max int) []T {
	q.mu.Lock()
	defer q.mu.Unlock()

	n := q.count
	if max > 0 && max < n {
		n = max
	}
	if n == 0 {
		return nil
	}

	out := make([]T, n)
	for i := range out {
		out[i] = q.popLocked()
	}
	return out
}

// Close stops accepting items. Queued items can still be received.
func (q *Queue[T]) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	q.closed = true
	close(q.done)
}

// Len returns the number of queued items.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.count
}

// Cap returns the current ring capacity.
func (q *Queue[T]) Cap() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.ring)
}

// Stats returns queue statistics.
func (q *Queue[T]) Stats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()
	s := q.stats
	s.Len = q.count
	s.Cap = len(q.ring)
	return s
}

// popLocked removes the head. Requires q.mu and count > 0.
func (q *Queue[T]) popLocked() T {
	var zero T
	item := q.ring[q.head]
	q.ring[q.head] = zero
	q.head = (q.head + 1) % len(q.ring)
	q.count--
	q.stats.Popped++
	return item
}

// grow doubles the ring, capped at limit, unwrapping items to index 0.
func (q *Queue[T]) grow() {
	size := len(q.ring) * 2
	if size > q.limit {
		size = q.limit
	}
	next := make([]T, size)
	n := copy(next, q.ring[q.head:])
	if n < q.count {
		copy(next[n:], q.ring[:q.count-n])
	}
	q.ring = next
	q.head = 0
	q.stats.Resizes++
}

func (q *Queue[T]) signal() {
	select {
	case q.ready <- struct{}{}:
	default:
	}
}
