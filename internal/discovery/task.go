package discovery

import (
	"strings"
	"time"

	"github.com/ramses-rf/ramses-rf/internal/protocol"
)

// task is one registered (cmd, interval, delay, timeout) tuple and its
// running state.
type task struct {
	cmd      *protocol.Command
	priority protocol.Priority
	qos      protocol.QosParams
	interval time.Duration
	timeout  time.Duration

	// informHeader is the header an unsolicited inbound message reporting
	// the same state would carry: cmd's rx_header with its verb segment
	// replaced by Inform.
	informHeader string

	lastMsg *protocol.Message
	lastRan time.Time
	nextDue time.Time
}

// TaskState is a diagnostic snapshot of one task, exposed read-only.
type TaskState struct {
	Code    string
	LastRan time.Time
	NextDue time.Time
}

func newTask(cmd *protocol.Command, priority protocol.Priority, interval, delay, timeout time.Duration, qos protocol.QosParams, now time.Time) *task {
	if timeout <= 0 {
		timeout = time.Duration(qos.MaxRetries+1) * qos.Timeout
	}
	return &task{
		cmd:          cmd,
		priority:     priority,
		qos:          qos,
		interval:     interval,
		timeout:      timeout,
		informHeader: expectedInformHeader(cmd.RxHeader()),
		nextDue:      now.Add(delay),
	}
}

// expectedInformHeader rewrites a rx_header's verb field to Inform's padded
// form, yielding the header an unsolicited report of the same state would
// carry on the wire (devices announce state via "I" as well as replying
// "RP" to an explicit request for it).
func expectedInformHeader(rxHeader string) string {
	parts := strings.Split(rxHeader, "|")
	if len(parts) < 2 {
		return rxHeader
	}
	parts[1] = protocol.VerbInform.Padded()
	return strings.Join(parts, "|")
}
