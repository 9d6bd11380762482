package xhub

import (
	"context"
	"sync"
)

// unboundedChannel is a multi-producer, single-consumer FIFO that never blocks
// the producer. Send fails only after Close; Receive drains what was queued
// before reporting the close.
type unboundedChannel[T any] struct {
	mu     sync.Mutex
	items  []T
	head   int
	closed bool
	notify chan struct{}
}

func newUnboundedChannel[T any]() *unboundedChannel[T] {
	return &unboundedChannel[T]{notify: make(chan struct{}, 1)}
}

func (c *unboundedChannel[T]) Send(item T) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return errChannelClosed
	}
	c.items = append(c.items, item)
	c.mu.Unlock()

	select {
	case c.notify <- struct{}{}:
	default:
	}
	return nil
}

// Receive blocks until an item is available, the channel is closed and empty,
// or one of the done channels fires.
func (c *unboundedChannel[T]) Receive(ctx context.Context, done <-chan struct{}) (T, error) {
	for {
		if item, ok, err := c.pop(); ok || err != nil {
			return item, err
		}
		select {
		case <-c.notify:
		case <-ctx.Done():
			var zero T
			return zero, ctx.Err()
		case <-done:
			// Drain what is already queued before giving up.
			if item, ok, _ := c.pop(); ok {
				return item, nil
			}
			var zero T
			return zero, errDone
		}
	}
}

func (c *unboundedChannel[T]) TryReceive() (T, bool) {
	item, ok, _ := c.pop()
	return item, ok
}

func (c *unboundedChannel[T]) pop() (T, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero T
	if c.head == len(c.items) {
		if c.closed {
			return zero, false, errChannelClosed
		}
		return zero, false, nil
	}
	item := c.items[c.head]
	c.items[c.head] = zero
	c.head++
	if c.head == len(c.items) {
		c.items = c.items[:0]
		c.head = 0
	}
	return item, true, nil
}

// Close stops accepting items. It reports whether this call closed the channel.
func (c *unboundedChannel[T]) Close() bool {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return false
	}
	c.closed = true
	c.mu.Unlock()

	select {
	case c.notify <- struct{}{}:
	default:
	}
	return true
}

func (c *unboundedChannel[T]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items) - c.head
}
