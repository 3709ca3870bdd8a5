// Package message defines the typed message model and the wire codec used by
// every channel implementation.
//
// A concrete message kind is an application struct implementing Message. On
// the wire each message travels inside an Envelope: a JSON frame carrying the
// type tag, sender identity, and a BLAKE3 checksum of the payload bytes. The
// type tag is readable from a raw frame without decoding the payload, which
// is what dispatch and rendezvous matching key on.
package message

import (
	"encoding/json"
	"fmt"
	"time"
)

// Type identifies a message kind for dispatch and rendezvous matching.
type Type string

// Message is implemented by every concrete message kind.
type Message interface {
	Type() Type
}

// Envelope is the wire frame wrapping a single message payload.
type Envelope struct {
	ID       string          `json:"id"`
	Type     Type            `json:"type"`
	Sender   string          `json:"sender,omitempty"`
	SentAt   time.Time       `json:"sent_at"`
	Checksum string          `json:"checksum"`
	Payload  json.RawMessage `json:"payload"`
}

// DecodeError reports a raw frame that could not be mapped to a registered
// message kind: unknown type, malformed envelope, checksum mismatch, or a
// payload that fails to unmarshal.
type DecodeError struct {
	Type   Type
	Reason string
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("decode message type %q: %s: %v", e.Type, e.Reason, e.Err)
	}
	return fmt.Sprintf("decode message type %q: %s", e.Type, e.Reason)
}

func (e *DecodeError) Unwrap() error { return e.Err }
