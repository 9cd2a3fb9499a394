// Package channel provides the bounded, closable queue that connects the
// pipeline stages.
//
// A Channel blocks producers while it is full and consumers while it is
// empty. Close may be called any number of times from any goroutine; after
// Close, Put fails with ErrClosed while consumers keep draining whatever is
// still buffered.
package channel

import (
	"context"
	"errors"
	"iter"
	"sync"
)

var ErrClosed = errors.New("channel closed")

type Channel[T any] struct {
	items   chan T
	closing chan struct{}

	mu       sync.Mutex
	inflight sync.WaitGroup
	once     sync.Once
	closed   bool
}

// New creates a channel holding at most capacity items. A capacity below 1 is
// treated as 1.
func New[T any](capacity int) *Channel[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &Channel[T]{
		items:   make(chan T, capacity),
		closing: make(chan struct{}),
	}
}

// Put enqueues item, blocking while the channel is full.
func (c *Channel[T]) Put(ctx context.Context, item T) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	c.inflight.Add(1)
	c.mu.Unlock()
	defer c.inflight.Done()

	select {
	case c.items <- item:
		return nil
	case <-c.closing:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Get dequeues the next item. ok is false once the channel is closed and
// drained.
func (c *Channel[T]) Get(ctx context.Context) (item T, ok bool, err error) {
	select {
	case item, ok = <-c.items:
		return item, ok, nil
	case <-ctx.Done():
		return item, false, ctx.Err()
	}
}

// Close marks that no further items will be put. Blocked producers are
// released with ErrClosed.
func (c *Channel[T]) Close() {
	c.once.Do(func() {
		c.mu.Lock()
		c.closed = true
		c.mu.Unlock()
		close(c.closing)
		// producers racing Close must leave before the send side is closed
		c.inflight.Wait()
		close(c.items)
	})
}

func (c *Channel[T]) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Len reports the number of buffered items.
func (c *Channel[T]) Len() int { return len(c.items) }

func (c *Channel[T]) Cap() int { return cap(c.items) }

// All yields items until the channel is closed and empty.
func (c *Channel[T]) All() iter.Seq[T] {
	return func(yield func(T) bool) {
		for item := range c.items {
			if !yield(item) {
				return
			}
		}
	}
}

// Drain consumes every remaining item with fn, returning early when ctx is done.
func (c *Channel[T]) Drain(ctx context.Context, fn func(T)) error {
	for {
		item, ok, err := c.Get(ctx)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		fn(item)
	}
}
