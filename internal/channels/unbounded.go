package channels

import (
	"sync"
)

// Unbounded is a multi-producer FIFO without a capacity limit. Publishing
// never suspends.
type Unbounded[T any] struct {
	mu         sync.Mutex
	queue      []T
	senders    int
	receivers  int
	sendClosed bool
	recvGone   bool
	ready      chan struct{}
}

// NewUnbounded creates an empty unbounded channel.
func NewUnbounded[T any]() *Unbounded[T] {
	return &Unbounded[T]{
		ready: make(chan struct{}, 1),
	}
}

// Sender registers a new publishing handle.
func (c *Unbounded[T]) Sender() *UnboundedSender[T] {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := &UnboundedSender[T]{ch: c}
	if c.sendClosed {
		s.released = true
		return s
	}
	c.senders++
	return s
}

// Receiver registers a new receiving handle.
func (c *Unbounded[T]) Receiver() *UnboundedReceiver[T] {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.receivers++
	return &UnboundedReceiver[T]{ch: c}
}

// Len returns the number of queued items.
func (c *Unbounded[T]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.queue)
}

func (c *Unbounded[T]) signal() {
	select {
	case c.ready <- struct{}{}:
	default:
	}
}

// UnboundedSender is one publisher's handle on an Unbounded channel.
type UnboundedSender[T any] struct {
	ch       *Unbounded[T]
	mu       sync.Mutex
	released bool
}

// Publish appends v and returns true, or drops it and returns false when the
// receiving end is gone or the handle has been closed.
func (s *UnboundedSender[T]) Publish(v T) bool {
	s.mu.Lock()
	released := s.released
	s.mu.Unlock()
	if released {
		return false
	}

	c := s.ch
	c.mu.Lock()
	if c.recvGone {
		c.mu.Unlock()
		return false
	}
	c.queue = append(c.queue, v)
	c.mu.Unlock()

	c.signal()
	return true
}

// Close releases the handle. Closing the last sender lets receivers observe
// ErrDisconnected once the queue is drained.
func (s *UnboundedSender[T]) Close() {
	s.mu.Lock()
	if s.released {
		s.mu.Unlock()
		return
	}
	s.released = true
	s.mu.Unlock()

	c := s.ch
	c.mu.Lock()
	c.senders--
	if c.senders == 0 {
		c.sendClosed = true
	}
	c.mu.Unlock()

	c.signal()
}

// UnboundedReceiver is a consumer's handle on an Unbounded channel.
type UnboundedReceiver[T any] struct {
	ch   *Unbounded[T]
	once sync.Once
}

// Recv returns the oldest queued item, suspending while the queue is empty.
// It returns ErrDisconnected when the queue is empty and every sender has
// been released.
func (r *UnboundedReceiver[T]) Recv() (T, error) {
	c := r.ch
	for {
		c.mu.Lock()
		if len(c.queue) > 0 {
			v := c.queue[0]
			var zero T
			c.queue[0] = zero
			c.queue = c.queue[1:]
			if len(c.queue) > 0 {
				// keep the next Recv from sleeping on a consumed signal
				c.signal()
			}
			c.mu.Unlock()
			return v, nil
		}
		if c.sendClosed {
			c.mu.Unlock()
			c.signal()
			var zero T
			return zero, ErrDisconnected
		}
		c.mu.Unlock()

		<-c.ready
	}
}

// Close releases the handle. Once the last receiver is closed, queued items
// are discarded and further publishes are dropped.
func (r *UnboundedReceiver[T]) Close() {
	r.once.Do(func() {
		c := r.ch
		c.mu.Lock()
		defer c.mu.Unlock()

		c.receivers--
		if c.receivers == 0 {
			c.recvGone = true
			c.queue = nil
		}
	})
}
