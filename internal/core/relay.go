package core

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/gammazero/deque"
)

// OverflowPolicy decides what a bounded relay does when its queue is full.
type OverflowPolicy int

const (
	// OverflowDropOldest discards the oldest pending message to make room.
	OverflowDropOldest OverflowPolicy = iota
	// OverflowDisconnect closes the relay, which tears the connection down.
	OverflowDisconnect
)

// RelayOptions configures an outbound relay.
// A zero Limit means the queue is unbounded and Overflow is ignored.
type RelayOptions struct {
	Limit    int
	Overflow OverflowPolicy
}

// Writer delivers one text payload to a client transport.
type Writer interface {
	WriteText(ctx context.Context, text string) error
}

// WriterFunc adapts a function to Writer.
type WriterFunc func(ctx context.Context, text string) error

// WriteText calls f(ctx, text).
func (f WriterFunc) WriteText(ctx context.Context, text string) error {
	return f(ctx, text)
}

// Relay owns the outbound FIFO of one connection and forwards it to the transport.
// Producers call Enqueue; exactly one goroutine calls Run.
type Relay struct {
	opts RelayOptions

	mu       sync.Mutex
	queue    deque.Deque[string]
	closed   bool
	err      error
	wake     chan struct{}
	overflow chan struct{} // closed once the disconnect policy trips
}

// NewRelay creates an idle relay.
func NewRelay(opts RelayOptions) *Relay {
	if opts.Limit < 0 {
		opts.Limit = 0
	}
	return &Relay{
		opts:     opts,
		wake:     make(chan struct{}, 1),
		overflow: make(chan struct{}),
	}
}

// Enqueue appends text to the queue without blocking.
func (r *Relay) Enqueue(text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return r.err
	}
	if r.opts.Limit > 0 && r.queue.Len() >= r.opts.Limit {
		switch r.opts.Overflow {
		case OverflowDisconnect:
			r.closeLocked(ErrRelayOverflow)
			return ErrRelayOverflow
		default:
			r.queue.PopFront()
		}
	}
	r.queue.PushBack(text)
	r.signal()
	return nil
}

// Pending returns the number of queued, not yet written messages.
func (r *Relay) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.queue.Len()
}

// Close stops accepting messages. Messages already queued are still forwarded.
// Close is idempotent.
func (r *Relay) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closeLocked(ErrRelayClosed)
}

func (r *Relay) closeLocked(reason error) {
	if r.closed {
		return
	}
	r.closed = true
	r.err = reason
	if errors.Is(reason, ErrRelayOverflow) {
		r.queue.Clear()
		close(r.overflow)
	}
	r.signal()
}

func (r *Relay) signal() {
	select {
	case r.wake <- struct{}{}:
	default:
	}
}

// Overflowed is closed when the relay shuts itself down under OverflowDisconnect.
// The transport watches it because a blocked write never returns to Run.
func (r *Relay) Overflowed() <-chan struct{} {
	return r.overflow
}

// next blocks until a message is available, the relay is closed and drained, or ctx ends.
func (r *Relay) next(ctx context.Context) (string, error) {
	for {
		r.mu.Lock()
		if r.queue.Len() > 0 {
			text := r.queue.PopFront()
			r.mu.Unlock()
			return text, nil
		}
		if r.closed {
			err := r.err
			r.mu.Unlock()
			return "", err
		}
		r.mu.Unlock()

		select {
		case <-r.wake:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
}

// Run forwards queued messages to w until the relay is closed and drained,
// a write fails, or ctx is cancelled. A clean close returns nil.
// A write failure closes the relay so later enqueues fail fast.
func (r *Relay) Run(ctx context.Context, w Writer) error {
	for {
		text, err := r.next(ctx)
		if err != nil {
			if errors.Is(err, ErrRelayClosed) {
				return nil
			}
			return err
		}
		if err := w.WriteText(ctx, text); err != nil {
			r.Close()
			select {
			case <-r.overflow:
				return ErrRelayOverflow
			default:
			}
			return fmt.Errorf("write outbound: %w", err)
		}
	}
}
