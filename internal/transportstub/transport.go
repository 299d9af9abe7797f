package transportstub

import (
	"bufio"
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"

	"github.com/ramses-rf/ramses-rf/internal/protocol"
)

// Sink is the subset of fsm.Context a Transport drives from its read loop.
type Sink interface {
	PacketReceived(pkt *protocol.Packet)
	ConnectionLost(err error)
}

// Transport adapts a line-oriented io.ReadWriteCloser — a real serial
// device, or a TCP/Unix socket standing in for one in examples — to the
// engine's fsm.Transport interface (Write(cmd) error), and drives a Sink's
// PacketReceived/ConnectionLost from a background read loop.
type Transport struct {
	conn io.ReadWriteCloser
	log  *slog.Logger
	mu   sync.Mutex
}

// New wraps conn. Call Run to start the read loop.
func New(conn io.ReadWriteCloser, log *slog.Logger) *Transport {
	return &Transport{conn: conn, log: log}
}

// Write encodes cmd as a stub frame and writes it, newline-terminated.
func (t *Transport) Write(cmd *protocol.Command) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, err := io.WriteString(t.conn, EncodeCommand(cmd)+"\n")
	return err
}

// Run reads frames from the connection and feeds them to sink until ctx is
// done or the connection closes; either way it calls sink.ConnectionLost
// exactly once before returning.
func (t *Transport) Run(ctx context.Context, sink Sink) {
	scanner := bufio.NewScanner(t.conn)
	done := make(chan struct{})

	go func() {
		defer close(done)
		for scanner.Scan() {
			line := scanner.Text()
			pkt, err := DecodeLine(line)
			if err != nil {
				t.log.Warn("dropping malformed frame", "line", line, "error", err)
				continue
			}
			sink.PacketReceived(pkt)
		}
	}()

	select {
	case <-ctx.Done():
		_ = t.Close()
		<-done
		sink.ConnectionLost(nil)
	case <-done:
		err := scanner.Err()
		if err == nil {
			err = errors.New("connection closed")
		}
		sink.ConnectionLost(err)
	}
}

func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.conn.Close()
}
