package notify

import (
	"context"
	"errors"
	"sync"
)

var (
	// ErrQueueFull is returned when a notification cannot be buffered without blocking
	ErrQueueFull = errors.New("notification queue full")
	// ErrQueueClosed is returned after Close
	ErrQueueClosed = errors.New("notification queue closed")
)

// Queue carries notifications from request handlers to delivery workers
type Queue interface {
	// Publish hands off n without waiting for delivery
	Publish(ctx context.Context, n Notification) error
	// Messages is read by workers. It is never closed.
	Messages() <-chan Notification
	Close() error
}

// MemoryQueue is an in-process buffered queue
type MemoryQueue struct {
	ch        chan Notification
	done      chan struct{}
	closeOnce sync.Once
}

// NewMemoryQueue creates a queue holding up to size pending notifications
func NewMemoryQueue(size int) *MemoryQueue {
	if size <= 0 {
		size = 1
	}
	return &MemoryQueue{
		ch:   make(chan Notification, size),
		done: make(chan struct{}),
	}
}

func (q *MemoryQueue) Publish(_ context.Context, n Notification) error {
	select {
	case <-q.done:
		return ErrQueueClosed
	default:
	}
	select {
	case q.ch <- n:
		return nil
	default:
		return ErrQueueFull
	}
}

func (q *MemoryQueue) Messages() <-chan Notification {
	return q.ch
}

// Len is the number of pending notifications
func (q *MemoryQueue) Len() int {
	return len(q.ch)
}

func (q *MemoryQueue) Close() error {
	q.closeOnce.Do(func() { close(q.done) })
	return nil
}
