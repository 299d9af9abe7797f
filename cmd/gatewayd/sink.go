package main

import (
	"context"
	"log/slog"

	"github.com/ramses-rf/ramses-rf/internal/fsm"
	"github.com/ramses-rf/ramses-rf/internal/msgindex"
	"github.com/ramses-rf/ramses-rf/internal/protocol"
)

// indexingSink fans each inbound packet out to the protocol engine and the
// message index, so discovery's "is there a fresh inbound report already"
// check (internal/discovery) has something to find outside of tests. It
// holds ctx rather than threading one through transportstub.Sink's fixed
// PacketReceived(pkt)/ConnectionLost(err) signature.
type indexingSink struct {
	ctx    context.Context
	engine *fsm.Context
	index  *msgindex.Index
	log    *slog.Logger
}

func newIndexingSink(ctx context.Context, engine *fsm.Context, index *msgindex.Index, log *slog.Logger) *indexingSink {
	return &indexingSink{ctx: ctx, engine: engine, index: index, log: log}
}

// PacketReceived feeds pkt to the FSM (for echo/reply correlation) and adds
// it to the message index (for discovery's freshness lookups and QryField),
// regardless of whether the FSM itself is expecting this particular packet.
func (s *indexingSink) PacketReceived(pkt *protocol.Packet) {
	s.engine.PacketReceived(pkt)

	msg := protocol.NewMessage(pkt, nil)
	if _, err := s.index.Add(s.ctx, msg); err != nil {
		s.log.Error("failed to index inbound message", "header", pkt.Header(), "error", err)
	}
}

func (s *indexingSink) ConnectionLost(err error) {
	s.engine.ConnectionLost(err)
}
