package broker

import (
	"errors"
	"sync/atomic"
	"time"

	"github.com/Workiva/go-datastructures/queue"
)

var (
	// ErrOutboxClosed is returned when pushing to or draining a closed outbox.
	ErrOutboxClosed = errors.New("outbox closed")
	// ErrPollTimeout is returned by Poll when no frame arrived in time.
	ErrPollTimeout = errors.New("outbox poll timed out")
)

var lastOutboxID atomic.Uint64

// Outbox is the sending end of one connection's outbound queue and the unit
// of registration in the Registry. Outboxes are compared by ID, never by
// contents. The queue is unbounded and FIFO; any goroutine may Push, exactly
// one goroutine (the connection's writer) drains it.
type Outbox struct {
	id    uint64
	queue *queue.Queue
}

// NewOutbox creates an outbox with a process-unique ID.
func NewOutbox() *Outbox {
	return &Outbox{
		id:    lastOutboxID.Add(1),
		queue: queue.New(16),
	}
}

// ID returns the outbox's identity.
func (o *Outbox) ID() uint64 {
	return o.id
}

// Push appends a frame. It never blocks.
func (o *Outbox) Push(frame string) error {
	if err := o.queue.Put(frame); err != nil {
		return ErrOutboxClosed
	}
	return nil
}

// Next blocks until a frame is available or the outbox is closed.
func (o *Outbox) Next() (string, error) {
	items, err := o.queue.Get(1)
	if err != nil {
		return "", ErrOutboxClosed
	}
	return items[0].(string), nil
}

// Poll is Next with a timeout.
func (o *Outbox) Poll(timeout time.Duration) (string, error) {
	items, err := o.queue.Poll(1, timeout)
	switch {
	case errors.Is(err, queue.ErrTimeout):
		return "", ErrPollTimeout
	case err != nil:
		return "", ErrOutboxClosed
	}
	return items[0].(string), nil
}

// Close disposes the queue, waking a blocked Next. Pending frames are dropped.
// Close is idempotent.
func (o *Outbox) Close() {
	if !o.queue.Disposed() {
		o.queue.Dispose()
	}
}

// Closed reports whether Close has been called.
func (o *Outbox) Closed() bool {
	return o.queue.Disposed()
}

// Len returns the number of queued frames.
func (o *Outbox) Len() int {
	return int(o.queue.Len())
}
