package fsm

import "github.com/ramses-rf/ramses-rf/internal/protocol"

// Transport is the external collaborator the FSM writes outbound commands
// to. The byte-level codec and serial port behind it are out of scope here.
type Transport interface {
	Write(cmd *protocol.Command) error
}
