// Package queue provides the bounded hand-off queue used by the frontier.
package queue

import (
	"context"
	"errors"
	"time"
)

// ErrInvalidCapacity is returned when a queue is constructed with a capacity below one.
var ErrInvalidCapacity = errors.New("queue capacity must be positive")

// Queue defines the interface for bounded, shut-downable FIFO queues.
//
// Full, empty, timeout and shutdown are reported through the boolean
// results, never as errors.
type Queue[T any] interface {
	// Push blocks until the item is enqueued or the queue is shut down
	Push(item T) bool

	// PushTimeout blocks for at most d
	PushTimeout(item T, d time.Duration) bool

	// PushContext blocks until ctx is done
	PushContext(ctx context.Context, item T) bool

	// TryPush enqueues only if space is immediately available
	TryPush(item T) bool

	// Pop blocks until an item is available or the queue is shut down and empty
	Pop() (T, bool)

	// PopTimeout blocks for at most d
	PopTimeout(d time.Duration) (T, bool)

	// PopContext blocks until ctx is done
	PopContext(ctx context.Context) (T, bool)

	// TryPop removes the oldest item without waiting
	TryPop() (T, bool)

	// Shutdown stops accepting items and wakes every waiter
	Shutdown()

	// IsShutdown reports whether Shutdown has been called
	IsShutdown() bool

	// Len returns the number of buffered items
	Len() int

	// IsEmpty returns true if no items are buffered
	IsEmpty() bool

	// Cap returns the fixed capacity
	Cap() int
}
