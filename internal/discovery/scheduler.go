// Package discovery implements the periodic task scheduler that keeps the
// protocol's view of remote device state fresh: for each registered command
// it checks whether a matching inbound message has been seen recently
// enough, and issues the command itself otherwise.
package discovery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ramses-rf/ramses-rf/internal/protocol"
)

// ErrDuplicateTask is returned by AddTask when a task with the same
// rx_header is already registered.
var ErrDuplicateTask = errors.New("duplicate discovery task")

// Scheduler runs the single cooperative discovery loop.
type Scheduler struct {
	cfg Config
	log *slog.Logger

	mu    sync.Mutex
	tasks []*task

	stop chan struct{}
	once sync.Once
}

// New constructs a Scheduler. cfg is validated (and defaulted) in place.
func New(cfg Config) (*Scheduler, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("failed to validate discovery config: %w", err)
	}
	return &Scheduler{
		cfg:  cfg,
		log:  cfg.Logger.With("component", "discovery"),
		stop: make(chan struct{}),
	}, nil
}

// AddTask registers cmd to be kept fresh every interval, first checked after
// delay. timeout, if zero, defaults to (qos.MaxRetries+1) * qos.Timeout.
// Rejects a cmd whose rx_header duplicates an already-registered task.
func (s *Scheduler) AddTask(cmd *protocol.Command, priority protocol.Priority, interval, delay, timeout time.Duration, qos protocol.QosParams) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, t := range s.tasks {
		if t.cmd.RxHeader() == cmd.RxHeader() {
			return ErrDuplicateTask
		}
	}
	s.tasks = append(s.tasks, newTask(cmd, priority, interval, delay, timeout, qos, s.cfg.Clock.Now()))
	return nil
}

// Stop cancels the loop. Safe to call more than once.
func (s *Scheduler) Stop() {
	s.once.Do(func() { close(s.stop) })
}

// Snapshot reports each task's command code, last run time, and next due time, for
// logging and diagnostics only — never consulted by the scheduling logic
// itself.
func (s *Scheduler) Snapshot() []TaskState {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]TaskState, 0, len(s.tasks))
	for _, t := range s.tasks {
		out = append(out, TaskState{Code: t.cmd.Code(), LastRan: t.lastRan, NextDue: t.nextDue})
	}
	return out
}

// Run drives the discovery loop until ctx is done or Stop is called.
func (s *Scheduler) Run(ctx context.Context) error {
	for {
		s.runIteration(ctx)

		sleep := s.nextSleep()
		select {
		case <-ctx.Done():
			return nil
		case <-s.stop:
			return nil
		case <-s.cfg.Clock.After(sleep):
		}
	}
}

// nextSleep computes clamp(min(next_due) - now, MinCycle, MaxCycle), or
// MaxCycle if there are no tasks yet.
func (s *Scheduler) nextSleep() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.tasks) == 0 {
		return s.cfg.MaxCycle
	}

	now := s.cfg.Clock.Now()
	min := s.tasks[0].nextDue
	for _, t := range s.tasks[1:] {
		if t.nextDue.Before(min) {
			min = t.nextDue
		}
	}

	d := min.Sub(now)
	if d < s.cfg.MinCycle {
		return s.cfg.MinCycle
	}
	if d > s.cfg.MaxCycle {
		return s.cfg.MaxCycle
	}
	return d
}

func (s *Scheduler) runIteration(ctx context.Context) {
	s.mu.Lock()
	tasks := make([]*task, len(s.tasks))
	copy(tasks, s.tasks)
	s.mu.Unlock()

	now := s.cfg.Clock.Now()
	for _, t := range tasks {
		s.runTask(ctx, t, now)
	}
}

func (s *Scheduler) runTask(ctx context.Context, t *task, now time.Time) {
	msg, err := s.cfg.Index.ByHeader(ctx, t.informHeader)
	if err != nil {
		s.log.Error("failed to look up discovery task state", "code", t.cmd.Code(), "error", err)
		return
	}

	switch {
	case msg != nil && msg.Packet().Timestamp().Add(t.interval).After(t.nextDue):
		t.lastMsg = msg
		MetricSkipsTotal.WithLabelValues(t.cmd.Code()).Inc()

	case !t.nextDue.After(now):
		s.send(ctx, t)

	default:
		// Not yet due and nothing fresh enough to adopt: nothing to do
		// this iteration.
	}

	if t.lastMsg != nil {
		t.lastRan = t.lastMsg.Packet().Timestamp()
		t.nextDue = t.lastRan.Add(t.interval)
	}
}

func (s *Scheduler) send(ctx context.Context, t *task) {
	sendCtx, cancel := context.WithTimeout(ctx, t.timeout*SendQoSMultiplier)
	defer cancel()

	MetricSendsTotal.WithLabelValues(t.cmd.Code()).Inc()
	pkt, err := s.cfg.FSM.Send(sendCtx, t.cmd, t.priority, t.qos)
	if err != nil {
		if errors.Is(sendCtx.Err(), context.DeadlineExceeded) {
			MetricTimeoutsTotal.WithLabelValues(t.cmd.Code()).Inc()
		}
		s.log.Debug("discovery send did not complete", "code", t.cmd.Code(), "error", err)
		return
	}

	msg := protocol.NewMessage(pkt, nil)
	t.lastMsg = msg
}
