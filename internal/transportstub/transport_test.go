package transportstub_test

import (
	"context"
	"io"
	"log/slog"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ramses-rf/ramses-rf/internal/protocol"
	"github.com/ramses-rf/ramses-rf/internal/transportstub"
)

type recordingSink struct {
	received chan *protocol.Packet
	lost     chan error
}

func newRecordingSink() *recordingSink {
	return &recordingSink{received: make(chan *protocol.Packet, 4), lost: make(chan error, 1)}
}

func (s *recordingSink) PacketReceived(pkt *protocol.Packet) { s.received <- pkt }
func (s *recordingSink) ConnectionLost(err error)            { s.lost <- err }

func TestTransport_WriteEncodesAndSendsAFrame(t *testing.T) {
	t.Parallel()

	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	transport := transportstub.New(client, slog.Default())
	cmd := protocol.NewCommand(time.Now(), "2309|RQ|01:078710", "2309|RP|01:078710", "18:000730", "01:078710", "2309", protocol.VerbRequest, nil)

	errCh := make(chan error, 1)
	go func() { errCh <- transport.Write(cmd) }()

	buf := make([]byte, 256)
	n, err := server.Read(buf)
	require.NoError(t, err)
	require.NoError(t, <-errCh)
	require.Equal(t, "RQ 18:000730 01:078710 2309 - -\n", string(buf[:n]))
}

func TestTransport_RunDeliversDecodedPacketsToSink(t *testing.T) {
	t.Parallel()

	client, server := net.Pipe()
	defer server.Close()

	transport := transportstub.New(client, slog.Default())
	sink := newRecordingSink()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		transport.Run(ctx, sink)
		close(done)
	}()

	go func() { _, _ = io.WriteString(server, "RP 01:078710 18:000730 2309 - 0007d0\n") }()

	select {
	case pkt := <-sink.received:
		require.Equal(t, "2309", pkt.Code())
		require.Equal(t, protocol.VerbReply, pkt.Verb())
		require.Equal(t, []byte{0x00, 0x07, 0xD0}, pkt.Payload())
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for decoded packet")
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for Run to return after cancel")
	}
	require.NoError(t, <-sink.lost)
}

func TestTransport_RunReportsConnectionLostWhenPeerCloses(t *testing.T) {
	t.Parallel()

	client, server := net.Pipe()

	transport := transportstub.New(client, slog.Default())
	sink := newRecordingSink()

	done := make(chan struct{})
	go func() {
		transport.Run(context.Background(), sink)
		close(done)
	}()

	require.NoError(t, server.Close())

	select {
	case err := <-sink.lost:
		require.Error(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for ConnectionLost")
	}
	<-done
}
