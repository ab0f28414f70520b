package broadcast

import (
	"context"
	"errors"
	"sync"
)

var (
	// ErrQueueFull is returned when a subscriber is not draining its queue.
	ErrQueueFull = errors.New("subscriber queue full")
	// ErrSinkClosed is returned after Close.
	ErrSinkClosed = errors.New("subscriber closed")
)

// QueueSink buffers payloads on a channel for a single consumer, typically a socket write pump.
type QueueSink struct {
	mu     sync.Mutex
	ch     chan []byte
	closed bool
}

// NewQueueSink creates a sink holding up to size undelivered payloads.
func NewQueueSink(size int) *QueueSink {
	if size <= 0 {
		size = 1
	}
	return &QueueSink{ch: make(chan []byte, size)}
}

// Send enqueues payload without waiting for the consumer.
func (s *QueueSink) Send(ctx context.Context, payload []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSinkClosed
	}
	msg := make([]byte, len(payload))
	copy(msg, payload)
	select {
	case s.ch <- msg:
		return nil
	default:
		return ErrQueueFull
	}
}

// C is the consumer side of the queue. It is closed by Close.
func (s *QueueSink) C() <-chan []byte {
	return s.ch
}

// Close stops accepting payloads. Safe to call more than once.
func (s *QueueSink) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.ch)
	}
}
