package queue

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// Bounded is a thread-safe, capacity-limited FIFO queue.
//
// Items are held in a ring buffer guarded by a single mutex. Waiters park on
// one of two broadcast channels (notFull, notEmpty) which are closed and
// replaced whenever the corresponding condition may have changed. Shutdown
// closes both, so no waiter can miss it.
type Bounded[T any] struct {
	mu       sync.Mutex
	buf      []T
	head     int
	count    int
	capacity int
	closed   atomic.Bool

	notFull      chan struct{}
	notEmpty     chan struct{}
	fullWaiters  int
	emptyWaiters int
}

var _ Queue[string] = (*Bounded[string])(nil)

// NewBounded creates a queue holding at most capacity items.
func NewBounded[T any](capacity int) (*Bounded[T], error) {
	if capacity < 1 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidCapacity, capacity)
	}

	return &Bounded[T]{
		buf:      make([]T, capacity),
		capacity: capacity,
		notFull:  make(chan struct{}),
		notEmpty: make(chan struct{}),
	}, nil
}

// MustNewBounded is like NewBounded but panics on an invalid capacity.
func MustNewBounded[T any](capacity int) *Bounded[T] {
	q, err := NewBounded[T](capacity)
	if err != nil {
		panic(err)
	}
	return q
}

// Push blocks until the item is enqueued or the queue is shut down.
func (q *Bounded[T]) Push(item T) bool {
	return q.PushContext(context.Background(), item)
}

// PushTimeout blocks for at most d. A non-positive d makes a single attempt.
func (q *Bounded[T]) PushTimeout(item T, d time.Duration) bool {
	ctx, cancel := context.WithTimeout(context.Background(), d)
	defer cancel()
	return q.PushContext(ctx, item)
}

// PushContext blocks until there is room, the queue is shut down, or ctx is done.
// Shutdown takes precedence over free capacity.
func (q *Bounded[T]) PushContext(ctx context.Context, item T) bool {
	q.mu.Lock()
	for {
		if q.closed.Load() {
			q.mu.Unlock()
			return false
		}
		if q.count < q.capacity {
			q.enqueue(item)
			q.mu.Unlock()
			return true
		}
		if ctx.Err() != nil {
			q.mu.Unlock()
			return false
		}

		wait := q.notFull
		q.fullWaiters++
		q.mu.Unlock()

		select {
		case <-wait:
		case <-ctx.Done():
		}

		q.mu.Lock()
		q.fullWaiters--
	}
}

// TryPush enqueues the item only if space is immediately available.
func (q *Bounded[T]) TryPush(item T) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed.Load() || q.count >= q.capacity {
		return false
	}
	q.enqueue(item)
	return true
}

// Pop blocks until an item is available or the queue is shut down and empty.
func (q *Bounded[T]) Pop() (T, bool) {
	return q.PopContext(context.Background())
}

// PopTimeout blocks for at most d. A non-positive d makes a single attempt.
func (q *Bounded[T]) PopTimeout(d time.Duration) (T, bool) {
	ctx, cancel := context.WithTimeout(context.Background(), d)
	defer cancel()
	return q.PopContext(ctx)
}

// PopContext removes and returns the oldest item, waiting until one is
// available, the queue is shut down and empty, or ctx is done.
func (q *Bounded[T]) PopContext(ctx context.Context) (T, bool) {
	q.mu.Lock()
	for {
		if q.count > 0 {
			item := q.dequeue()
			q.mu.Unlock()
			return item, true
		}
		if q.closed.Load() || ctx.Err() != nil {
			q.mu.Unlock()
			var zero T
			return zero, false
		}

		wait := q.notEmpty
		q.emptyWaiters++
		q.mu.Unlock()

		select {
		case <-wait:
		case <-ctx.Done():
		}

		q.mu.Lock()
		q.emptyWaiters--
	}
}

// TryPop removes the oldest item without waiting. Buffered items are still
// returned after shutdown.
func (q *Bounded[T]) TryPop() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.count == 0 {
		var zero T
		return zero, false
	}
	return q.dequeue(), true
}

// Drain removes and returns every buffered item in FIFO order.
func (q *Bounded[T]) Drain() []T {
	q.mu.Lock()
	defer q.mu.Unlock()

	items := make([]T, 0, q.count)
	for q.count > 0 {
		items = append(items, q.dequeue())
	}
	return items
}

// Shutdown stops the queue from accepting items and wakes every blocked
// producer and consumer. It is safe to call more than once.
func (q *Bounded[T]) Shutdown() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if !q.closed.CompareAndSwap(false, true) {
		return
	}
	close(q.notFull)
	close(q.notEmpty)
}

// IsShutdown reports whether Shutdown has been called.
func (q *Bounded[T]) IsShutdown() bool {
	return q.closed.Load()
}

// Len returns the number of buffered items. The value is advisory under
// concurrent use.
func (q *Bounded[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.count
}

// IsEmpty returns true if the queue is empty.
func (q *Bounded[T]) IsEmpty() bool {
	return q.Len() == 0
}

// Cap returns the capacity fixed at construction.
func (q *Bounded[T]) Cap() int {
	return q.capacity
}

// enqueue appends to the tail. Caller holds mu and has checked capacity.
func (q *Bounded[T]) enqueue(item T) {
	q.buf[(q.head+q.count)%q.capacity] = item
	q.count++
	if q.emptyWaiters > 0 {
		close(q.notEmpty)
		q.notEmpty = make(chan struct{})
	}
}

// dequeue removes from the head. Caller holds mu and has checked count.
func (q *Bounded[T]) dequeue() T {
	var zero T
	item := q.buf[q.head]
	q.buf[q.head] = zero
	q.head = (q.head + 1) % q.capacity
	q.count--
	if q.fullWaiters > 0 && !q.closed.Load() {
		close(q.notFull)
		q.notFull = make(chan struct{})
	}
	return item
}
