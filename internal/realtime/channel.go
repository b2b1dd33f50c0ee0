// Package realtime keeps every device of a user in step with the user's
// current timer: a registry of open push channels and a broadcaster that
// feeds them.
package realtime

import (
	"sync"

	"github.com/google/uuid"

	"example.com/timesheet/internal/events"
)

// DefaultChannelBuffer bounds the per-channel outbound queue.
const DefaultChannelBuffer = 16

// Channel is one live push connection to a device. Send must never block:
// it enqueues the message or reports that it was dropped.
type Channel interface {
	ID() string
	Send(status events.Status) bool
	Close() error
}

// outbound is the bounded FIFO queue shared by the transport-specific channels.
type outbound struct {
	id        string
	queue     chan events.Status
	done      chan struct{}
	closeOnce sync.Once
}

func newOutbound(buffer int) *outbound {
	if buffer <= 0 {
		buffer = DefaultChannelBuffer
	}
	return &outbound{
		id:    uuid.NewString(),
		queue: make(chan events.Status, buffer),
		done:  make(chan struct{}),
	}
}

func (o *outbound) ID() string { return o.id }

// Send enqueues without blocking. The queue is never closed, so a send racing
// a close is dropped rather than panicking.
func (o *outbound) Send(status events.Status) bool {
	select {
	case <-o.done:
		return false
	default:
	}
	select {
	case o.queue <- status:
		return true
	default:
		return false
	}
}

// Done is closed once the channel is shut down.
func (o *outbound) Done() <-chan struct{} { return o.done }

func (o *outbound) shutdown() bool {
	closed := false
	o.closeOnce.Do(func() {
		close(o.done)
		closed = true
	})
	return closed
}
