package protocol

import "strings"

// PayloadField is one key/value pair of a decoded message payload, in the
// order the codec produced it. Order matters: it determines plk.
type PayloadField struct {
	Key   string
	Value any
}

// Message is a decoded Packet with parsed payload and a pre-computed plk —
// a pipe-delimited, pipe-framed string of its non-null payload keys, used
// for substring queries over the message index.
type Message struct {
	pkt     *Packet
	payload map[string]any
	plk     string
}

// NewMessage builds a Message from a Packet and its ordered payload fields.
// Keys whose value is nil are excluded from plk (but retained in Payload()).
func NewMessage(pkt *Packet, fields []PayloadField) *Message {
	payload := make(map[string]any, len(fields))
	keys := make([]string, 0, len(fields))
	for _, f := range fields {
		payload[f.Key] = f.Value
		if f.Value != nil {
			keys = append(keys, f.Key)
		}
	}
	return &Message{
		pkt:     pkt,
		payload: payload,
		plk:     "|" + strings.Join(keys, "|") + "|",
	}
}

// NewMessageFromStored rebuilds a Message from a payload map and a plk that
// were already computed elsewhere (e.g. read back from a message index row).
// Unlike NewMessage, it trusts plk as given rather than recomputing it from
// map iteration order, which is not stable.
func NewMessageFromStored(pkt *Packet, payload map[string]any, plk string) *Message {
	cp := make(map[string]any, len(payload))
	for k, v := range payload {
		cp[k] = v
	}
	return &Message{pkt: pkt, payload: cp, plk: plk}
}

func (m *Message) Packet() *Packet    { return m.pkt }
func (m *Message) Header() string     { return m.pkt.Header() }
func (m *Message) PLK() string        { return m.plk }
func (m *Message) Payload() map[string]any {
	out := make(map[string]any, len(m.payload))
	for k, v := range m.payload {
		out[k] = v
	}
	return out
}

func (m *Message) String() string {
	return m.pkt.String()
}
