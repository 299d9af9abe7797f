package protocol

import "time"

// Command is an outbound instruction. Immutable after construction.
//
// RxHeader is empty when no reply is expected: the FSM resolves the send
// once the echo arrives, skipping the WantRply stage entirely.
type Command struct {
	txHeader  string
	rxHeader  string
	src       string
	dst       string
	code      string
	verb      Verb
	payload   []byte
	createdAt time.Time
}

// NewCommand constructs a Command. txHeader is the header the gateway's own
// echo will carry; rxHeader is the header a downstream reply will carry, or
// "" if this command does not solicit one (e.g. a bare I broadcast).
func NewCommand(createdAt time.Time, txHeader, rxHeader, src, dst, code string, verb Verb, payload []byte) *Command {
	return &Command{
		txHeader:  txHeader,
		rxHeader:  rxHeader,
		src:       src,
		dst:       dst,
		code:      code,
		verb:      verb,
		payload:   payload,
		createdAt: createdAt,
	}
}

func (c *Command) TxHeader() string     { return c.txHeader }
func (c *Command) RxHeader() string     { return c.rxHeader }
func (c *Command) Src() string          { return c.src }
func (c *Command) Dst() string          { return c.dst }
func (c *Command) Code() string         { return c.code }
func (c *Command) Verb() Verb           { return c.verb }
func (c *Command) CreatedAt() time.Time { return c.createdAt }
func (c *Command) Payload() []byte {
	out := make([]byte, len(c.payload))
	copy(out, c.payload)
	return out
}

// ExpectsReply reports whether a downstream reply (not just the gateway's
// echo) is expected to complete this command's send.
func (c *Command) ExpectsReply() bool { return c.rxHeader != "" }

func (c *Command) String() string {
	return c.verb.Padded() + " " + c.src + " -> " + c.dst + " " + c.txHeader
}
