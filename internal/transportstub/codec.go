// Package transportstub is a minimal line-based codec and transport for
// exercising cmd/gatewayd end to end. The real byte-level RAMSES-II frame
// codec and serial transport are explicitly out of scope for this module
// (see internal/fsm's Transport doc); this stub exists only so
// the binary has something concrete to read from and write to.
package transportstub

import (
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/ramses-rf/ramses-rf/internal/protocol"
)

// EncodeCommand renders cmd as a single line of the stub wire format:
// "VERB SRC DST CODE CTX PAYLOAD_HEX". ctx, a sub-addressing qualifier (e.g.
// a zone index), is not a field of Command in its own right — it is folded
// into TxHeader as an optional fourth, pipe-delimited segment — so it is
// pulled back out of TxHeader here rather than read off Command directly.
func EncodeCommand(cmd *protocol.Command) string {
	ctx := ctxFromHeader(cmd.TxHeader())
	if ctx == "" {
		ctx = "-"
	}
	payloadHex := hex.EncodeToString(cmd.Payload())
	if payloadHex == "" {
		payloadHex = "-"
	}
	return fmt.Sprintf("%s %s %s %s %s %s",
		strings.TrimSpace(string(cmd.Verb())), cmd.Src(), cmd.Dst(), cmd.Code(), ctx, payloadHex)
}

// DecodeLine parses one line of the stub wire format into a Packet. hdr's
// party id is the sender for I and RP frames and the addressee for RQ and W
// frames, the same convention Commands use for their tx/rx headers.
func DecodeLine(line string) (*protocol.Packet, error) {
	fields := strings.Fields(line)
	if len(fields) != 6 {
		return nil, fmt.Errorf("malformed stub frame %q: expected 6 fields, got %d", line, len(fields))
	}
	verb, src, dst, code, ctx, payloadHex := fields[0], fields[1], fields[2], fields[3], fields[4], fields[5]
	if ctx == "-" {
		ctx = ""
	}

	var payload []byte
	if payloadHex != "-" {
		var err error
		payload, err = hex.DecodeString(payloadHex)
		if err != nil {
			return nil, fmt.Errorf("malformed stub frame %q: bad payload hex: %w", line, err)
		}
	}

	party := dst
	if v := protocol.Verb(verb); v == protocol.VerbInform || v == protocol.VerbReply {
		party = src
	}
	hdr := protocol.Header(code, protocol.Verb(verb), party, ctx)
	return protocol.NewPacket(time.Now(), hdr, code, protocol.Verb(verb), src, dst, ctx, payload), nil
}

// ctxFromHeader returns a canonical header's optional fourth, ctx segment,
// or "" if the header has none.
func ctxFromHeader(hdr string) string {
	parts := strings.Split(hdr, "|")
	if len(parts) < 4 {
		return ""
	}
	return parts[3]
}
