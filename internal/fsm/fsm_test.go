package fsm_test

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"

	"github.com/ramses-rf/ramses-rf/internal/fsm"
	"github.com/ramses-rf/ramses-rf/internal/protocol"
)

// stubTransport records writes and optionally reacts to them, e.g. by
// delivering an echo/reply back into the FSM on a separate goroutine (a
// real transport never calls back synchronously from inside Write).
type stubTransport struct {
	mu      sync.Mutex
	writes  []*protocol.Command
	onWrite func(cmd *protocol.Command)
	failN   int // fail the first N writes
}

func (s *stubTransport) Write(cmd *protocol.Command) error {
	s.mu.Lock()
	s.writes = append(s.writes, cmd)
	fail := len(s.writes) <= s.failN
	s.mu.Unlock()
	if fail {
		return protocol.NewTransportError("simulated write failure", nil)
	}
	if s.onWrite != nil {
		go s.onWrite(cmd)
	}
	return nil
}

func (s *stubTransport) Writes() []*protocol.Command {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*protocol.Command, len(s.writes))
	copy(out, s.writes)
	return out
}

func newTestContext(t *testing.T, clock clockwork.Clock, transport *stubTransport) *fsm.Context {
	t.Helper()
	c, err := fsm.New(fsm.Config{
		Logger:       slog.New(slog.DiscardHandler),
		Clock:        clock,
		EchoTimeout:  50 * time.Millisecond,
		ReplyTimeout: 50 * time.Millisecond,
		BufferSize:   4,
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() { _ = c.Run(ctx) }()

	c.ConnectionMade(transport)
	require.Equal(t, fsm.IsInIdle, c.State())
	return c
}

func cmdWithReply(src, dst string) *protocol.Command {
	tx := protocol.Header("2349", protocol.VerbRequest, dst, "02")
	rx := protocol.Header("2349", protocol.VerbReply, dst, "02")
	return protocol.NewCommand(time.Now(), tx, rx, src, dst, "2349", protocol.VerbRequest, nil)
}

func cmdEchoOnly(src, dst string) *protocol.Command {
	tx := protocol.Header("1FC9", protocol.VerbInform, src, "")
	return protocol.NewCommand(time.Now(), tx, "", src, dst, "1FC9", protocol.VerbInform, nil)
}

func TestFSM_EchoOnlySucceeds(t *testing.T) {
	t.Parallel()

	transport := &stubTransport{}
	c := newTestContext(t, clockwork.NewRealClock(), transport)
	cmd := cmdEchoOnly("18:000730", "01:078710")

	transport.onWrite = func(w *protocol.Command) {
		echo := protocol.NewPacket(time.Now(), w.TxHeader(), w.Code(), w.Verb(), w.Src(), w.Src(), "", nil)
		c.PacketReceived(echo)
	}

	pkt, err := c.Send(context.Background(), cmd, protocol.DEFAULT, protocol.QosParams{Timeout: time.Second})
	require.NoError(t, err)
	require.Equal(t, cmd.TxHeader(), pkt.Header())
	require.Equal(t, fsm.IsInIdle, c.State())
	require.Len(t, transport.Writes(), 1)
}

func TestFSM_EchoThenReply(t *testing.T) {
	t.Parallel()

	transport := &stubTransport{}
	c := newTestContext(t, clockwork.NewRealClock(), transport)
	cmd := cmdWithReply("18:000730", "01:078710")

	transport.onWrite = func(w *protocol.Command) {
		time.Sleep(5 * time.Millisecond)
		echo := protocol.NewPacket(time.Now(), w.TxHeader(), w.Code(), w.Verb(), w.Src(), w.Src(), "02", nil)
		c.PacketReceived(echo)

		time.Sleep(10 * time.Millisecond)
		reply := protocol.NewPacket(time.Now(), w.RxHeader(), w.Code(), protocol.VerbReply, w.Dst(), w.Src(), "02", nil)
		c.PacketReceived(reply)
	}

	pkt, err := c.Send(context.Background(), cmd, protocol.DEFAULT, protocol.QosParams{Timeout: time.Second, WaitForReply: true})
	require.NoError(t, err)
	require.Equal(t, cmd.RxHeader(), pkt.Header())
	require.Equal(t, fsm.IsInIdle, c.State())
}

func TestFSM_WaitForReplyFalseResolvesOnEcho(t *testing.T) {
	t.Parallel()

	transport := &stubTransport{}
	c := newTestContext(t, clockwork.NewRealClock(), transport)
	cmd := cmdWithReply("18:000730", "01:078710")

	transport.onWrite = func(w *protocol.Command) {
		echo := protocol.NewPacket(time.Now(), w.TxHeader(), w.Code(), w.Verb(), w.Src(), w.Src(), "02", nil)
		c.PacketReceived(echo)
	}

	pkt, err := c.Send(context.Background(), cmd, protocol.DEFAULT, protocol.QosParams{Timeout: time.Second, WaitForReply: false})
	require.NoError(t, err)
	require.Equal(t, cmd.TxHeader(), pkt.Header())
}

func TestFSM_EchoTimeoutWithRetryExhausted(t *testing.T) {
	t.Parallel()

	clock := clockwork.NewFakeClock()
	transport := &stubTransport{} // never echoes
	c := newTestContext(t, clock, transport)
	cmd := cmdEchoOnly("18:000730", "01:078710")

	done := make(chan struct{})
	var resErr error
	go func() {
		_, resErr = c.Send(context.Background(), cmd, protocol.DEFAULT, protocol.QosParams{
			Timeout:    fsm.SendTimeoutLimit,
			MaxRetries: 2,
		})
		close(done)
	}()

	// Transmit #1 fires immediately; two retries follow, one per echo
	// timeout, then the send fails. BlockUntil(2) waits for both the
	// outer send timer and the freshly (re)armed echo timer, so each
	// Advance lands on a timer the FSM has actually registered.
	for i := 0; i < 3; i++ {
		clock.BlockUntil(2)
		clock.Advance(50 * time.Millisecond)
	}

	<-done
	require.Error(t, resErr)
	require.Contains(t, resErr.Error(), "Exceeded maximum retries")
	require.Len(t, transport.Writes(), 3)
	require.Equal(t, fsm.IsInIdle, c.State())
}

func TestFSM_PriorityOrdering(t *testing.T) {
	t.Parallel()

	transport := &stubTransport{}
	c := newTestContext(t, clockwork.NewRealClock(), transport)

	var writeOrder []string
	var mu sync.Mutex
	release := make(chan struct{})
	first := true

	transport.onWrite = func(w *protocol.Command) {
		mu.Lock()
		writeOrder = append(writeOrder, w.Code())
		isFirst := first
		first = false
		mu.Unlock()

		if isFirst {
			<-release // hold the wire open so B and C queue up behind A
		}
		echo := protocol.NewPacket(time.Now(), w.TxHeader(), w.Code(), w.Verb(), w.Src(), w.Src(), "", nil)
		c.PacketReceived(echo)
	}

	send := func(code string, priority protocol.Priority) chan error {
		errCh := make(chan error, 1)
		cmd := protocol.NewCommand(time.Now(), protocol.Header(code, protocol.VerbInform, "18:000730", ""), "", "18:000730", "01:078710", code, protocol.VerbInform, nil)
		go func() {
			_, err := c.Send(context.Background(), cmd, priority, protocol.QosParams{Timeout: time.Second})
			errCh <- err
		}()
		return errCh
	}

	aErr := send("0001", protocol.DEFAULT)
	time.Sleep(20 * time.Millisecond) // let A dispatch and block on release
	bErr := send("0002", protocol.HIGH)
	cErr := send("0003", protocol.DEFAULT)
	time.Sleep(20 * time.Millisecond) // let B, C enqueue behind A

	close(release)
	require.NoError(t, <-aErr)
	require.NoError(t, <-bErr)
	require.NoError(t, <-cErr)

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []string{"0001", "0002", "0003"}, writeOrder)
}

func TestFSM_SentinelRewrite(t *testing.T) {
	t.Parallel()

	transport := &stubTransport{}
	c, err := fsm.New(fsm.Config{
		Logger:        slog.New(slog.DiscardHandler),
		Clock:         clockwork.NewRealClock(),
		EchoTimeout:   200 * time.Millisecond,
		ReplyTimeout:  200 * time.Millisecond,
		BufferSize:    4,
		LocalDeviceID: "18:111111",
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() { _ = c.Run(ctx) }()
	c.ConnectionMade(transport)

	cmd := cmdEchoOnly(protocol.HGIDeviceID, "01:078710")

	transport.onWrite = func(w *protocol.Command) {
		// Real wire traffic carries the local interface's resolved id, not
		// the HGI_DEVICE_ID sentinel the command was built with.
		echo := protocol.NewPacket(time.Now(), "1FC9| I|18:111111", w.Code(), w.Verb(), w.Dst(), "18:111111", "", nil)
		c.PacketReceived(echo)
	}

	pkt, err := c.Send(context.Background(), cmd, protocol.DEFAULT, protocol.QosParams{Timeout: time.Second})
	require.NoError(t, err)
	require.Equal(t, "18:111111", pkt.Dst())
}

func TestFSM_ConnectionLostFailsInFlight(t *testing.T) {
	t.Parallel()

	transport := &stubTransport{} // never echoes
	c := newTestContext(t, clockwork.NewRealClock(), transport)
	cmd := cmdEchoOnly("18:000730", "01:078710")

	transport.onWrite = func(w *protocol.Command) {
		time.Sleep(10 * time.Millisecond)
		c.ConnectionLost(nil)
	}

	_, err := c.Send(context.Background(), cmd, protocol.DEFAULT, protocol.QosParams{Timeout: time.Second})
	require.Error(t, err)
	require.Equal(t, fsm.Inactive, c.State())
}

func TestFSM_BufferOverflowReturnsProtocolSendFailed(t *testing.T) {
	t.Parallel()

	transport := &stubTransport{}
	c, err := fsm.New(fsm.Config{
		Logger:      slog.New(slog.DiscardHandler),
		Clock:       clockwork.NewRealClock(),
		EchoTimeout: time.Second,
		BufferSize:  1,
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() { _ = c.Run(ctx) }()
	c.ConnectionMade(transport)

	blockRelease := make(chan struct{})
	transport.onWrite = func(w *protocol.Command) { <-blockRelease }
	defer close(blockRelease)

	cmd1 := cmdEchoOnly("18:000730", "01:078710")
	cmd2 := cmdEchoOnly("18:000730", "01:078711")
	cmd3 := cmdEchoOnly("18:000730", "01:078712")

	go c.Send(context.Background(), cmd1, protocol.DEFAULT, protocol.QosParams{Timeout: time.Second})
	time.Sleep(20 * time.Millisecond) // cmd1 is now in flight, wire "busy"

	go c.Send(context.Background(), cmd2, protocol.DEFAULT, protocol.QosParams{Timeout: time.Second})
	time.Sleep(20 * time.Millisecond) // queue now holds cmd2 (capacity 1)

	_, err = c.Send(context.Background(), cmd3, protocol.DEFAULT, protocol.QosParams{Timeout: time.Second})
	require.Error(t, err)
	require.Contains(t, err.Error(), "buffer overflow")
}
