// Package fsm implements the protocol engine's Context: the finite state
// machine that serializes outbound commands onto a single-in-flight wire,
// correlates echoes and replies, enforces retries and timeouts, and exposes
// a promise-style Send to higher layers.
//
// All mutation of the FSM's state happens on one goroutine (Run's loop);
// callers talk to it over channels, apart from Send pushing its entry onto
// the mutex-guarded send queue before signalling the loop. This recovers the
// ordering guarantees a single-threaded cooperative scheduler gives for free.
package fsm

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/ramses-rf/ramses-rf/internal/protocol"
	"github.com/ramses-rf/ramses-rf/internal/queue"
)

// Context is the protocol FSM. Construct with New, then run its loop with
// Run before calling Send/ConnectionMade/ConnectionLost/PacketReceived.
type Context struct {
	cfg Config
	q   *queue.Queue
	log *slog.Logger

	events chan any
	closed chan struct{}

	// Owned exclusively by the Run goroutine.
	state        stateData
	transport    Transport
	currentTimer clockworkTimer
	timerGen     uint64
}

// clockworkTimer is the subset of clockwork.Timer this package needs; kept
// as a narrow interface so tests can stub it if ever necessary.
type clockworkTimer interface {
	Stop() bool
}

// New constructs a Context. cfg is validated (and defaulted) in place.
func New(cfg Config) (*Context, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Context{
		cfg:    cfg,
		q:      queue.New(cfg.BufferSize),
		log:    cfg.Logger.With("component", "fsm"),
		events: make(chan any, 64),
		closed: make(chan struct{}),
		state:  stateData{kind: Inactive},
	}, nil
}

// Run drives the FSM's event loop until ctx is done. It must be running for
// Send, ConnectionMade, ConnectionLost, and PacketReceived to make progress.
func (c *Context) Run(ctx context.Context) error {
	defer close(c.closed)
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg := <-c.events:
			c.handle(msg)
		}
	}
}

// State reports the FSM's current tagged-variant state, chiefly for tests
// and diagnostics.
func (c *Context) State() Kind {
	done := make(chan Kind, 1)
	select {
	case c.events <- stateQueryMsg{reply: done}:
	case <-c.closed:
		return Inactive
	}
	select {
	case k := <-done:
		return k
	case <-c.closed:
		return Inactive
	}
}

// ConnectionMade transitions Inactive -> IsInIdle. Blocks until the loop has
// processed it.
func (c *Context) ConnectionMade(transport Transport) {
	ack := make(chan struct{})
	select {
	case c.events <- connMadeMsg{transport: transport, ack: ack}:
	case <-c.closed:
		return
	}
	<-ack
}

// ConnectionLost transitions to Inactive, failing any in-flight send with a
// TransportError. Blocks until the loop has processed it.
func (c *Context) ConnectionLost(err error) {
	ack := make(chan struct{})
	select {
	case c.events <- connLostMsg{err: err, ack: ack}:
	case <-c.closed:
		return
	}
	<-ack
}

// PacketReceived feeds an inbound packet to the FSM's current state. Blocks
// until the loop has processed it, preserving transport arrival order.
func (c *Context) PacketReceived(pkt *protocol.Packet) {
	ack := make(chan struct{})
	select {
	case c.events <- pktRcvdMsg{pkt: pkt, ack: ack}:
	case <-c.closed:
		return
	}
	<-ack
}

// Send enqueues cmd and blocks until it resolves with the correlating
// packet, or fails with a *protocol.ProtocolSendFailed wrapping the cause.
func (c *Context) Send(ctx context.Context, cmd *protocol.Command, priority protocol.Priority, qos protocol.QosParams) (*protocol.Packet, error) {
	outerTimeout := qos.Timeout
	if outerTimeout <= 0 || outerTimeout > SendTimeoutLimit {
		outerTimeout = SendTimeoutLimit
	}

	entry := queue.NewEntry(priority, c.cfg.Clock.Now(), cmd, qos)
	if err := c.q.Push(entry); err != nil {
		MetricFailuresTotal.WithLabelValues(MetricReasonBufferFull).Inc()
		return nil, protocol.NewProtocolSendFailed("buffer overflow", err)
	}
	MetricSendsTotal.Inc()

	select {
	case c.events <- kickMsg{}:
	case <-c.closed:
	}

	timer := c.cfg.Clock.NewTimer(outerTimeout)
	defer timer.Stop()

	select {
	case res := <-entry.Result:
		return res.Pkt, wrapSendErr(res.Err)

	case <-timer.Chan():
		entry.Cancel()
		c.forceIdleIfInFlight(entry)
		MetricFailuresTotal.WithLabelValues(MetricReasonOuterTimeout).Inc()
		return nil, protocol.NewProtocolSendFailed(
			"Expired global timer of "+outerTimeout.String(), nil)

	case <-ctx.Done():
		entry.Cancel()
		c.forceIdleIfInFlight(entry)
		return nil, protocol.NewProtocolSendFailed("send cancelled", ctx.Err())

	case <-c.closed:
		return nil, protocol.NewProtocolSendFailed("no transport", errors.New("fsm stopped"))
	}
}

// forceIdleIfInFlight asks the loop to return to IsInIdle if entry is the
// command currently on the wire, so a timed-out Send never leaves the FSM
// stuck waiting on a dead future. Synchronous, so Send only returns once the
// FSM is guaranteed to have moved on.
func (c *Context) forceIdleIfInFlight(entry *queue.Entry) {
	ack := make(chan struct{})
	select {
	case c.events <- forceIdleMsg{entry: entry, ack: ack}:
	case <-c.closed:
		return
	}
	<-ack
}

func wrapSendErr(err error) error {
	if err == nil {
		return nil
	}
	var sendFailed *protocol.ProtocolSendFailed
	if errors.As(err, &sendFailed) {
		return err
	}
	return protocol.NewProtocolSendFailed(err.Error(), err)
}

// --- internal event loop -----------------------------------------------

type stateQueryMsg struct{ reply chan Kind }
type connMadeMsg struct {
	transport Transport
	ack       chan struct{}
}
type connLostMsg struct {
	err error
	ack chan struct{}
}
type pktRcvdMsg struct {
	pkt *protocol.Packet
	ack chan struct{}
}
type kickMsg struct{}
type forceIdleMsg struct {
	entry *queue.Entry
	ack   chan struct{}
}
type timerFiredMsg struct {
	which timerKind
	gen   uint64
}

func (c *Context) stepCfg() stepConfig {
	return stepConfig{
		localDeviceID: c.cfg.LocalDeviceID,
		maxRetryLimit: MaxRetryLimit,
		echoTimeout:   c.cfg.EchoTimeout,
		replyTimeout:  c.cfg.ReplyTimeout,
	}
}

func (c *Context) handle(msg any) {
	switch m := msg.(type) {
	case stateQueryMsg:
		m.reply <- c.state.kind

	case connMadeMsg:
		c.transport = m.transport
		c.dispatchEvent(event{kind: evConnect})
		close(m.ack)

	case connLostMsg:
		c.dispatchEvent(event{kind: evDisconnect})
		c.transport = nil
		close(m.ack)

	case pktRcvdMsg:
		c.dispatchEvent(event{kind: evPktRcvd, pkt: m.pkt})
		close(m.ack)

	case kickMsg:
		if c.state.kind == IsInIdle {
			c.maybeDispatch()
		}

	case forceIdleMsg:
		if c.state.kind != Inactive && c.state.entry == m.entry {
			c.stopTimer()
			c.state = stateData{kind: IsInIdle}
			c.maybeDispatch()
		}
		close(m.ack)

	case timerFiredMsg:
		if m.gen != c.timerGen {
			return // stale: superseded by a cancel/restart since it fired
		}
		c.dispatchEvent(event{kind: evTimerFired, timer: m.which})
	}
}

func (c *Context) dispatchEvent(ev event) {
	next, effects := step(c.state, ev, c.stepCfg())
	c.state = next
	c.applyEffects(effects)
}

func (c *Context) maybeDispatch() {
	e := c.q.Pop()
	if e == nil {
		return
	}
	c.dispatchEvent(event{kind: evCmdSent, entry: e})
}

func (c *Context) applyEffects(effects []effect) {
	for _, e := range effects {
		switch eff := e.(type) {
		case cancelTimerEffect:
			c.stopTimer()
		case startTimerEffect:
			c.startTimer(eff.which, eff.d)
		case writeEffect:
			c.write(eff.cmd, eff.retry)
		case completeEffect:
			if eff.reason != "" {
				MetricFailuresTotal.WithLabelValues(eff.reason).Inc()
			}
			c.complete(eff.entry, eff.result)
		case dispatchEffect:
			if c.state.kind == IsInIdle {
				c.maybeDispatch()
			}
		case logEffect:
			c.log.Log(context.Background(), eff.level, eff.msg, eff.args...)
		}
	}
}

func (c *Context) stopTimer() {
	if c.currentTimer != nil {
		c.currentTimer.Stop()
		c.currentTimer = nil
	}
	c.timerGen++
}

func (c *Context) startTimer(which timerKind, d time.Duration) {
	gen := c.timerGen
	t := c.cfg.Clock.AfterFunc(d, func() {
		select {
		case c.events <- timerFiredMsg{which: which, gen: gen}:
		case <-c.closed:
		}
	})
	c.currentTimer = t
}

func (c *Context) write(cmd *protocol.Command, retry bool) {
	if retry {
		MetricRetriesTotal.Inc()
	}

	if c.transport == nil {
		c.failInFlight(protocol.NewTransportError("no transport", nil), MetricReasonNoTransport)
		return
	}
	if err := c.transport.Write(cmd); err != nil {
		c.log.Error("transport write failed", "code", cmd.Code(), "error", err)
		c.failInFlight(protocol.NewTransportError("write failed", err), MetricReasonTransportLost)
		return
	}
}

// failInFlight implements the "transport write errors inside the send
// wrapper transition the FSM directly to IsInIdle" rule: it overrides
// whatever state step() just transitioned to, since the write effect always
// follows immediately after a WantEcho/WantRply entry.
func (c *Context) failInFlight(err error, reason string) {
	c.stopTimer()
	entry := c.state.entry
	c.state = stateData{kind: IsInIdle}
	if entry != nil {
		MetricFailuresTotal.WithLabelValues(reason).Inc()
		c.complete(entry, queue.Result{Err: err})
	}
	c.maybeDispatch()
}

func (c *Context) complete(entry *queue.Entry, result queue.Result) {
	MetricDispatchSeconds.Observe(c.cfg.Clock.Now().Sub(entry.EnqueuedAt).Seconds())
	select {
	case entry.Result <- result:
	default:
	}
}
