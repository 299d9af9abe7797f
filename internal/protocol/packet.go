package protocol

import "time"

// Packet is an on-wire frame, already decoded by the (out-of-scope) byte-level
// codec into its header fields and raw payload. Immutable after construction.
type Packet struct {
	hdr     string
	code    string
	verb    Verb
	src     string
	dst     string
	ctx     string
	dtm     time.Time
	payload []byte
}

// NewPacket constructs a Packet from fields the byte-level codec (out of
// scope for this core) has already extracted. hdr is the canonical header
// the codec computed for this packet; it is not re-derived here because the
// party id used in the header depends on addressing rules (array/binding
// devices, broadcast sentinels) that belong to the codec, not the FSM.
func NewPacket(dtm time.Time, hdr, code string, verb Verb, src, dst, ctx string, payload []byte) *Packet {
	return &Packet{
		hdr:     hdr,
		code:    code,
		verb:    verb,
		src:     src,
		dst:     dst,
		ctx:     ctx,
		dtm:     dtm,
		payload: payload,
	}
}

func (p *Packet) Header() string     { return p.hdr }
func (p *Packet) Code() string       { return p.code }
func (p *Packet) Verb() Verb         { return p.verb }
func (p *Packet) Src() string        { return p.src }
func (p *Packet) Dst() string        { return p.dst }
func (p *Packet) Ctx() string        { return p.ctx }
func (p *Packet) Timestamp() time.Time { return p.dtm }
func (p *Packet) Payload() []byte {
	out := make([]byte, len(p.payload))
	copy(out, p.payload)
	return out
}

func (p *Packet) String() string {
	return p.verb.Padded() + " --- " + p.src + " " + p.dst + " " + p.hdr
}
