package bus

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
)

// ErrClosed is returned by Recv once the topic is closed and the cursor has
// consumed everything still buffered.
var ErrClosed = errors.New("bus: topic closed")

// Producer is the publishing half of a topic.
type Producer[T any] interface {
	Publish(v T) int
}

// Subscriber is the receiving half of a topic.
type Subscriber[T any] interface {
	Subscribe() *Cursor[T]
}

// Topic is a bounded broadcast ring. Every published value lands in a fixed
// ring slot; each Cursor keeps its own read position. Publish never waits on
// readers: once a reader falls a full ring behind, its unread values are
// overwritten and the reader skips ahead to the oldest value still held.
type Topic[T any] struct {
	name string

	mu     sync.RWMutex
	buf    []T
	next   uint64 // sequence number of the next publish
	wake   chan struct{}
	closed bool

	subscribers atomic.Int64
	dropped     atomic.Uint64
	onDrop      func(topic string, n uint64)
}

// TopicStats is a point-in-time view of a topic.
type TopicStats struct {
	Capacity    int
	Published   uint64
	Subscribers int64
	Dropped     uint64 // values skipped by lagging cursors, summed
}

// NewTopic creates a topic holding at most capacity values.
func NewTopic[T any](name string, capacity int) *Topic[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &Topic[T]{
		name: name,
		buf:  make([]T, capacity),
		wake: make(chan struct{}),
	}
}

// Name returns the topic name.
func (t *Topic[T]) Name() string { return t.name }

// Publish appends v and wakes waiting cursors. It returns the number of live
// subscribers, which is zero when nobody is listening or the topic is closed.
func (t *Topic[T]) Publish(v T) int {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return 0
	}
	t.buf[t.next%uint64(len(t.buf))] = v
	t.next++
	close(t.wake)
	t.wake = make(chan struct{})
	t.mu.Unlock()

	return int(t.subscribers.Load())
}

// Subscribe returns a cursor positioned after the most recent value. Values
// published before the call are not delivered.
func (t *Topic[T]) Subscribe() *Cursor[T] {
	t.mu.RLock()
	pos := t.next
	t.mu.RUnlock()

	t.subscribers.Add(1)
	return &Cursor[T]{topic: t, pos: pos}
}

// Close stops further publishing. Cursors drain what is buffered, then get
// ErrClosed.
func (t *Topic[T]) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}
	t.closed = true
	close(t.wake)
}

// Stats returns current statistics.
func (t *Topic[T]) Stats() TopicStats {
	t.mu.RLock()
	published := t.next
	t.mu.RUnlock()

	return TopicStats{
		Capacity:    len(t.buf),
		Published:   published,
		Subscribers: t.subscribers.Load(),
		Dropped:     t.dropped.Load(),
	}
}

// Cursor is one subscriber's read position. A Cursor must not be shared
// between goroutines.
type Cursor[T any] struct {
	topic    *Topic[T]
	pos      uint64
	released bool
}

// Recv blocks until a value is available, ctx is done, or the topic is
// closed. skipped is the number of values this cursor lost to lag
// immediately before v.
func (c *Cursor[T]) Recv(ctx context.Context) (v T, skipped uint64, err error) {
	for {
		val, n, ok, wake, closed := c.poll()
		if ok {
			return val, n, nil
		}
		if closed {
			return v, 0, ErrClosed
		}
		select {
		case <-ctx.Done():
			return v, 0, ctx.Err()
		case <-wake:
		}
	}
}

// TryRecv returns the next value without blocking.
func (c *Cursor[T]) TryRecv() (v T, skipped uint64, ok bool) {
	v, skipped, ok, _, _ = c.poll()
	return v, skipped, ok
}

// Lag returns how many published values this cursor has not read yet,
// including any already overwritten.
func (c *Cursor[T]) Lag() uint64 {
	c.topic.mu.RLock()
	defer c.topic.mu.RUnlock()
	return c.topic.next - c.pos
}

// Close releases the subscriber handle. It is safe to call more than once.
func (c *Cursor[T]) Close() {
	if c.released {
		return
	}
	c.released = true
	c.topic.subscribers.Add(-1)
}

func (c *Cursor[T]) poll() (v T, skipped uint64, ok bool, wake <-chan struct{}, closed bool) {
	t := c.topic
	t.mu.RLock()
	head := t.next
	if c.pos >= head {
		wake, closed = t.wake, t.closed
		t.mu.RUnlock()
		return v, 0, false, wake, closed
	}

	capacity := uint64(len(t.buf))
	if head-c.pos > capacity {
		oldest := head - capacity
		skipped = oldest - c.pos
		c.pos = oldest
	}
	v = t.buf[c.pos%capacity]
	c.pos++
	t.mu.RUnlock()

	if skipped > 0 {
		t.dropped.Add(skipped)
		if t.onDrop != nil {
			t.onDrop(t.name, skipped)
		}
	}
	return v, skipped, true, nil, false
}
