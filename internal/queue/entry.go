package queue

import (
	"sync/atomic"
	"time"

	"github.com/ramses-rf/ramses-rf/internal/protocol"
)

// Result is what a pending send resolves to: either the correlating packet
// (reply, or echo when no reply is expected) or a terminal error.
type Result struct {
	Pkt *protocol.Packet
	Err error
}

// Entry is one pending send, ordered by (Priority, EnqueuedAt).
type Entry struct {
	Priority   protocol.Priority
	EnqueuedAt time.Time
	Cmd        *protocol.Command
	Qos        protocol.QosParams
	Result     chan Result

	cancelled atomic.Bool
}

// NewEntry constructs a queue entry with a single-slot result channel.
func NewEntry(priority protocol.Priority, enqueuedAt time.Time, cmd *protocol.Command, qos protocol.QosParams) *Entry {
	return &Entry{
		Priority:   priority,
		EnqueuedAt: enqueuedAt,
		Cmd:        cmd,
		Qos:        qos,
		Result:     make(chan Result, 1),
	}
}

// Cancel marks the entry done without ever having been dispatched, e.g. when
// its sender's outer timeout fires while it is still sitting in the queue.
// A dispatch round skips cancelled entries when it drains the queue.
func (e *Entry) Cancel() { e.cancelled.Store(true) }

// Cancelled reports whether Cancel has been called.
func (e *Entry) Cancelled() bool { return e.cancelled.Load() }
