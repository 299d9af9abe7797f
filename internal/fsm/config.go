package fsm

import (
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"
)

const (
	// DefaultEchoTimeout is how long the FSM waits for the gateway's own
	// echo before retransmitting.
	DefaultEchoTimeout = 500 * time.Millisecond
	// DefaultReplyTimeout is how long the FSM waits for a downstream reply
	// once the echo has been observed.
	DefaultReplyTimeout = 200 * time.Millisecond
	// MaxRetryLimit caps qos.MaxRetries; transmit count is capped at
	// MaxRetryLimit+1.
	MaxRetryLimit = 3
	// SendTimeoutLimit caps qos.Timeout for the outer send() guard.
	SendTimeoutLimit = 15 * time.Second
	// DefaultBufferSize is the send queue's default capacity.
	DefaultBufferSize = 32
)

// Config configures a Context. LocalDeviceID is the real gateway device id
// substituted for the HGI_DEVICE_ID sentinel in header comparisons. If the
// caller does not know it up front, leave it empty: NormalizeHeader is then
// a no-op and headers correlate on the sentinel itself.
type Config struct {
	Logger        *slog.Logger
	Clock         clockwork.Clock
	EchoTimeout   time.Duration
	ReplyTimeout  time.Duration
	BufferSize    int
	LocalDeviceID string
}

// Validate fills in defaults for any unset field. It never rejects a Config:
// every field has a safe zero-value-derived default, and LocalDeviceID may
// legitimately be empty. LocalDeviceID is fixed for the Context's lifetime.
func (c *Config) Validate() error {
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.Clock == nil {
		c.Clock = clockwork.NewRealClock()
	}
	if c.EchoTimeout <= 0 {
		c.EchoTimeout = DefaultEchoTimeout
	}
	if c.ReplyTimeout <= 0 {
		c.ReplyTimeout = DefaultReplyTimeout
	}
	if c.BufferSize <= 0 {
		c.BufferSize = DefaultBufferSize
	}
	return nil
}
