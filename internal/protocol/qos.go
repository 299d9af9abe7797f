package protocol

import "time"

// QosParams is the per-command quality-of-service contract.
type QosParams struct {
	// Timeout bounds the overall send, from enqueue to resolution, capped
	// by the FSM at SEND_TIMEOUT_LIMIT.
	Timeout time.Duration

	// MaxRetries is the number of retransmits permitted beyond the first
	// send, capped by the FSM at MAX_RETRY_LIMIT.
	MaxRetries int

	// WaitForReply, when false, resolves the send as soon as the gateway's
	// echo is observed, even if the command names a non-empty RxHeader.
	WaitForReply bool
}
