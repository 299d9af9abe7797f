package discovery

import (
	"errors"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/ramses-rf/ramses-rf/internal/fsm"
	"github.com/ramses-rf/ramses-rf/internal/msgindex"
)

// Cadence bounds for the scheduler's between-iteration sleep.
const (
	MinCycle = 3 * time.Second
	MaxCycle = 10 * time.Second
)

// SendQoSMultiplier is the safety-cap multiplier applied to a task's timeout
// when the scheduler itself issues the discovery command and awaits a reply.
const SendQoSMultiplier = 5

// Config configures a Scheduler.
type Config struct {
	Logger *slog.Logger
	Clock  clockwork.Clock

	// FSM is the protocol context discovery commands are sent through.
	FSM *fsm.Context
	// Index is consulted for the most recent inbound message matching each
	// task's expected inform header.
	Index *msgindex.Index

	MinCycle time.Duration
	MaxCycle time.Duration
}

func (c *Config) Validate() error {
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.Clock == nil {
		c.Clock = clockwork.NewRealClock()
	}
	if c.FSM == nil {
		return errors.New("fsm is required")
	}
	if c.Index == nil {
		return errors.New("message index is required")
	}
	if c.MinCycle <= 0 {
		c.MinCycle = MinCycle
	}
	if c.MaxCycle <= 0 {
		c.MaxCycle = MaxCycle
	}
	return nil
}
