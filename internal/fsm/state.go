package fsm

import (
	"log/slog"
	"time"

	"github.com/ramses-rf/ramses-rf/internal/protocol"
	"github.com/ramses-rf/ramses-rf/internal/queue"
)

// Kind is the FSM's tagged-variant state.
type Kind int

const (
	Inactive Kind = iota
	IsInIdle
	WantEcho
	WantRply
)

func (k Kind) String() string {
	switch k {
	case Inactive:
		return "Inactive"
	case IsInIdle:
		return "IsInIdle"
	case WantEcho:
		return "WantEcho"
	case WantRply:
		return "WantRply"
	default:
		return "Unknown"
	}
}

// timerKind distinguishes which one-shot timer an effect concerns.
type timerKind int

const (
	timerEcho timerKind = iota
	timerReply
)

// stateData is the FSM's full state: the tagged variant, plus the fields
// only WantEcho/WantRply carry. Zero value is a valid Inactive state.
type stateData struct {
	kind Kind

	entry    *queue.Entry
	txHeader string // normalized tx_header of the in-flight command
	rxHeader string // normalized rx_header; "" means no reply expected
	srcID    string // normalized src id of the in-flight command
	echoPkt  *protocol.Packet
	txCount  int
	txLimit  int
}

// eventKind tags the events step dispatches on.
type eventKind int

const (
	evConnect eventKind = iota
	evDisconnect
	evCmdSent
	evPktRcvd
	evTimerFired
)

// event is one input to step. Only the fields relevant to kind are set.
type event struct {
	kind eventKind

	entry *queue.Entry     // evCmdSent, retry == false: the entry being dispatched
	retry bool             // evCmdSent: true for a retransmit of the in-flight entry
	pkt   *protocol.Packet // evPktRcvd
	timer timerKind        // evTimerFired: which timer fired
}

// stepConfig carries the values step needs that do not belong on stateData:
// the local device id used to normalize the HGI sentinel out of headers,
// and the timeout/retry constants from Config.
type stepConfig struct {
	localDeviceID string
	maxRetryLimit int
	echoTimeout   time.Duration
	replyTimeout  time.Duration
}

// effect is a side effect step wants its caller to perform: starting or
// cancelling a timer, writing to the transport, completing a pending send,
// logging, or pulling the next queue entry. step itself never touches a
// clock, a transport, or a channel: it is a pure function of
// (stateData, event, stepConfig), total over every (state, event) pair.
type effect interface{ isEffect() }

type startTimerEffect struct {
	which timerKind
	d     time.Duration
}

type cancelTimerEffect struct{}

type writeEffect struct {
	cmd   *protocol.Command
	retry bool
}

type completeEffect struct {
	entry  *queue.Entry
	result queue.Result
	// reason, if non-empty, is a MetricFailuresTotal label the caller should
	// increment alongside completing entry.
	reason string
}

// dispatchEffect asks the caller to pull the next eligible entry off the
// send queue and, if any, feed it back in as an evCmdSent(retry=false).
type dispatchEffect struct{}

type logEffect struct {
	level slog.Level
	msg   string
	args  []any
}

func (startTimerEffect) isEffect()  {}
func (cancelTimerEffect) isEffect() {}
func (writeEffect) isEffect()       {}
func (completeEffect) isEffect()    {}
func (dispatchEffect) isEffect()    {}
func (logEffect) isEffect()         {}

// step advances s by ev and returns the next state plus the effects the
// caller must perform. It is the sole place the FSM's transition table is
// expressed.
func step(s stateData, ev event, cfg stepConfig) (stateData, []effect) {
	switch s.kind {
	case Inactive:
		return stepInactive(s, ev)
	case IsInIdle:
		return stepIsInIdle(s, ev, cfg)
	case WantEcho:
		return stepWantEcho(s, ev, cfg)
	case WantRply:
		return stepWantRply(s, ev, cfg)
	default:
		return s, nil
	}
}

func stepInactive(s stateData, ev event) (stateData, []effect) {
	switch ev.kind {
	case evConnect:
		return stateData{kind: IsInIdle}, []effect{dispatchEffect{}}
	case evCmdSent:
		return s, []effect{logEffect{level: slog.LevelWarn, msg: "cmd_sent while inactive"}}
	case evPktRcvd:
		return s, []effect{logEffect{level: slog.LevelDebug, msg: "packet ignored, no transport", args: []any{"header", ev.pkt.Header()}}}
	default:
		return s, nil
	}
}

func stepIsInIdle(s stateData, ev event, cfg stepConfig) (stateData, []effect) {
	switch ev.kind {
	case evDisconnect:
		return stateData{kind: Inactive}, nil
	case evCmdSent:
		return enterWantEcho(ev.entry, cfg)
	case evPktRcvd:
		return s, []effect{logEffect{level: slog.LevelDebug, msg: "packet ignored, fsm idle", args: []any{"header", ev.pkt.Header()}}}
	default:
		return s, nil
	}
}

func enterWantEcho(e *queue.Entry, cfg stepConfig) (stateData, []effect) {
	cmd := e.Cmd
	txLimit := e.Qos.MaxRetries
	if txLimit > cfg.maxRetryLimit {
		txLimit = cfg.maxRetryLimit
	}
	txLimit++

	next := stateData{
		kind:     WantEcho,
		entry:    e,
		txHeader: protocol.NormalizeHeader(cmd.TxHeader(), cfg.localDeviceID),
		rxHeader: protocol.NormalizeHeader(cmd.RxHeader(), cfg.localDeviceID),
		srcID:    protocol.NormalizeHeader(cmd.Src(), cfg.localDeviceID),
		txCount:  1,
		txLimit:  txLimit,
	}
	return next, []effect{
		writeEffect{cmd: cmd, retry: false},
		startTimerEffect{which: timerEcho, d: cfg.echoTimeout},
	}
}

func stepWantEcho(s stateData, ev event, cfg stepConfig) (stateData, []effect) {
	switch ev.kind {
	case evDisconnect:
		return stateData{kind: Inactive}, []effect{
			cancelTimerEffect{},
			completeEffect{entry: s.entry, result: queue.Result{Err: protocol.NewTransportError("connection lost", nil)}},
		}
	case evCmdSent:
		if !ev.retry {
			return s, []effect{logEffect{level: slog.LevelWarn, msg: "cmd_sent while awaiting echo"}}
		}
		s.txCount++
		return s, []effect{
			cancelTimerEffect{},
			writeEffect{cmd: s.entry.Cmd, retry: true},
			startTimerEffect{which: timerEcho, d: cfg.echoTimeout},
		}
	case evPktRcvd:
		return onPktRcvdWantEcho(s, ev.pkt, cfg)
	case evTimerFired:
		if ev.timer != timerEcho {
			return s, nil
		}
		return onRetryTimeout(s, cfg)
	default:
		return s, nil
	}
}

func onPktRcvdWantEcho(s stateData, pkt *protocol.Packet, cfg stepConfig) (stateData, []effect) {
	hdr := protocol.NormalizeHeader(pkt.Header(), cfg.localDeviceID)
	switch {
	case hdr == s.txHeader && pkt.Dst() == s.srcID:
		if s.rxHeader == "" || !s.entry.Qos.WaitForReply {
			return stateData{kind: IsInIdle}, []effect{
				cancelTimerEffect{},
				completeEffect{entry: s.entry, result: queue.Result{Pkt: pkt}},
				dispatchEffect{},
			}
		}
		next := s
		next.kind = WantRply
		next.echoPkt = pkt
		return next, []effect{
			cancelTimerEffect{},
			startTimerEffect{which: timerReply, d: cfg.replyTimeout},
		}
	case s.rxHeader != "" && hdr == s.rxHeader && pkt.Dst() == s.srcID:
		return s, []effect{logEffect{level: slog.LevelDebug, msg: "false reply while awaiting echo", args: []any{"header", hdr}}}
	default:
		return s, []effect{logEffect{level: slog.LevelDebug, msg: "packet ignored while awaiting echo", args: []any{"header", hdr}}}
	}
}

// onRetryTimeout implements the echo/reply-timer-fires column, shared by
// WantEcho and WantRply: retransmit while under the limit, else fail.
func onRetryTimeout(s stateData, cfg stepConfig) (stateData, []effect) {
	if s.txCount < s.txLimit {
		s.txCount++
		s.kind = WantEcho
		s.echoPkt = nil
		return s, []effect{
			cancelTimerEffect{},
			writeEffect{cmd: s.entry.Cmd, retry: true},
			startTimerEffect{which: timerEcho, d: cfg.echoTimeout},
		}
	}
	return stateData{kind: IsInIdle}, []effect{
		cancelTimerEffect{},
		completeEffect{
			entry:  s.entry,
			result: queue.Result{Err: protocol.NewProtocolSendFailed("Exceeded maximum retries", nil)},
			reason: MetricReasonMaxRetries,
		},
		dispatchEffect{},
	}
}

func stepWantRply(s stateData, ev event, cfg stepConfig) (stateData, []effect) {
	switch ev.kind {
	case evDisconnect:
		return stateData{kind: Inactive}, []effect{
			cancelTimerEffect{},
			completeEffect{entry: s.entry, result: queue.Result{Err: protocol.NewTransportError("connection lost", nil)}},
		}
	case evCmdSent:
		return s, []effect{logEffect{level: slog.LevelWarn, msg: "cmd_sent while awaiting reply"}}
	case evPktRcvd:
		return onPktRcvdWantRply(s, ev.pkt, cfg)
	case evTimerFired:
		if ev.timer != timerReply {
			return s, nil
		}
		return onRetryTimeout(s, cfg)
	default:
		return s, nil
	}
}

func onPktRcvdWantRply(s stateData, pkt *protocol.Packet, cfg stepConfig) (stateData, []effect) {
	hdr := protocol.NormalizeHeader(pkt.Header(), cfg.localDeviceID)
	switch {
	case hdr == s.rxHeader:
		return stateData{kind: IsInIdle}, []effect{
			cancelTimerEffect{},
			completeEffect{entry: s.entry, result: queue.Result{Pkt: pkt}},
			dispatchEffect{},
		}
	case hdr == s.txHeader:
		return s, []effect{logEffect{level: slog.LevelDebug, msg: "duplicate echo while awaiting reply", args: []any{"header", hdr}}}
	default:
		return s, []effect{logEffect{level: slog.LevelDebug, msg: "packet ignored while awaiting reply", args: []any{"header", hdr}}}
	}
}
