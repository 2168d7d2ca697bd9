package channels

import (
	"errors"
	"sync"
	"sync/atomic"
)

// ErrDisconnected is returned when the opposite end of a channel has been closed.
var ErrDisconnected = errors.New("channel disconnected")

// Bounded is a fixed-capacity multi-producer, multi-consumer FIFO.
type Bounded[T any] struct {
	items    chan T
	recvGone chan struct{}
	recvOnce sync.Once

	mu         sync.Mutex
	senders    int
	receivers  int
	sendClosed bool
}

// NewBounded creates a bounded channel. Capacities below one are raised to one.
func NewBounded[T any](capacity int) *Bounded[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &Bounded[T]{
		items:    make(chan T, capacity),
		recvGone: make(chan struct{}),
	}
}

// Sender registers a new sending handle. If every previous sender has already
// been released the returned handle is disconnected.
func (c *Bounded[T]) Sender() *Sender[T] {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := &Sender[T]{ch: c}
	if c.sendClosed {
		s.closed.Store(true)
		return s
	}
	c.senders++
	return s
}

// Receiver registers a new receiving handle.
func (c *Bounded[T]) Receiver() *Receiver[T] {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.receivers++
	return &Receiver[T]{ch: c}
}

// Len returns the number of buffered items.
func (c *Bounded[T]) Len() int {
	return len(c.items)
}

// Cap returns the channel capacity.
func (c *Bounded[T]) Cap() int {
	return cap(c.items)
}

// CloseRecv closes the receiving end regardless of how many receivers are
// still registered. Items already buffered stay readable.
func (c *Bounded[T]) CloseRecv() {
	c.recvOnce.Do(func() {
		close(c.recvGone)
	})
}

// RecvClosed reports whether the receiving end has been closed.
func (c *Bounded[T]) RecvClosed() bool {
	select {
	case <-c.recvGone:
		return true
	default:
		return false
	}
}

func (c *Bounded[T]) releaseSender() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.senders--
	if c.senders == 0 && !c.sendClosed {
		c.sendClosed = true
		close(c.items)
	}
}

func (c *Bounded[T]) releaseReceiver() {
	c.mu.Lock()
	c.receivers--
	last := c.receivers == 0
	c.mu.Unlock()

	if last {
		c.CloseRecv()
	}
}

// Sender is one producer's handle on a Bounded channel. A Sender must not be
// used concurrently with its own Close.
type Sender[T any] struct {
	ch     *Bounded[T]
	closed atomic.Bool
	once   sync.Once
}

// Send enqueues v, suspending while the channel is full. It returns
// ErrDisconnected once the receiving end is closed; a closed receiving end is
// checked before the buffer so no new item is accepted after it.
func (s *Sender[T]) Send(v T) error {
	if s.closed.Load() {
		return ErrDisconnected
	}

	select {
	case <-s.ch.recvGone:
		return ErrDisconnected
	default:
	}

	select {
	case s.ch.items <- v:
		return nil
	case <-s.ch.recvGone:
		return ErrDisconnected
	}
}

// Close releases the handle. Closing the last sender closes the channel for receivers.
func (s *Sender[T]) Close() {
	s.once.Do(func() {
		if s.closed.Swap(true) {
			// registered after the channel was already closed
			return
		}
		s.ch.releaseSender()
	})
}

// Receiver is one consumer's handle on a Bounded channel.
type Receiver[T any] struct {
	ch   *Bounded[T]
	once sync.Once
}

// Recv dequeues the next item, suspending while the channel is empty. After
// every sender has been released and the buffer is drained it returns
// ErrDisconnected.
func (r *Receiver[T]) Recv() (T, error) {
	v, ok := <-r.ch.items
	if !ok {
		var zero T
		return zero, ErrDisconnected
	}
	return v, nil
}

// Close releases the handle. Closing the last receiver closes the receiving end.
func (r *Receiver[T]) Close() {
	r.once.Do(r.ch.releaseReceiver)
}
