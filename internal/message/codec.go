package message

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/zeebo/blake3"
)

// DecodeFunc reconstructs a typed Message from raw payload bytes.
type DecodeFunc func([]byte) (Message, error)

// JSON returns a DecodeFunc that unmarshals the payload into M.
func JSON[M Message]() DecodeFunc {
	return func(data []byte) (Message, error) {
		var m M
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, err
		}
		return m, nil
	}
}

// Codec maps message types to payload decoders. Register every kind a
// process sends or receives before the first Encode/Decode call; the
// mapping is not safe for mutation once channels are in use.
type Codec struct {
	decoders map[Type]DecodeFunc
}

// NewCodec creates an empty Codec.
func NewCodec() *Codec {
	return &Codec{decoders: make(map[Type]DecodeFunc)}
}

// Register associates a decoder with a message type. Registering the same
// type twice is a programmer error and is rejected.
func (c *Codec) Register(t Type, fn DecodeFunc) error {
	if t == "" {
		return fmt.Errorf("message type is empty")
	}
	if fn == nil {
		return fmt.Errorf("decoder for type %q is nil", t)
	}
	if _, ok := c.decoders[t]; ok {
		return fmt.Errorf("decoder for type %q already registered", t)
	}
	c.decoders[t] = fn
	return nil
}

// MustRegister is Register that panics on error, for init-time tables.
func (c *Codec) MustRegister(t Type, fn DecodeFunc) {
	if err := c.Register(t, fn); err != nil {
		panic(err)
	}
}

// Knows reports whether a decoder is registered for t.
func (c *Codec) Knows(t Type) bool {
	_, ok := c.decoders[t]
	return ok
}

// Encode wraps msg in an Envelope stamped with sender and returns the wire
// frame. The payload checksum lets the receiving process detect corruption
// across the channel boundary.
func (c *Codec) Encode(msg Message, sender string) ([]byte, error) {
	if msg == nil {
		return nil, fmt.Errorf("message is nil")
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("marshal payload for type %q: %w", msg.Type(), err)
	}

	sum := blake3.Sum256(payload)
	env := Envelope{
		ID:       uuid.NewString(),
		Type:     msg.Type(),
		Sender:   sender,
		SentAt:   time.Now().UTC(),
		Checksum: hex.EncodeToString(sum[:]),
		Payload:  payload,
	}

	frame, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("marshal envelope for type %q: %w", msg.Type(), err)
	}
	return frame, nil
}

// PeekType reads the type tag from a raw frame without decoding the payload.
func (c *Codec) PeekType(raw []byte) (Type, error) {
	env, err := parseEnvelope(raw)
	if err != nil {
		return "", err
	}
	return env.Type, nil
}

// Decode reconstructs the typed Message carried by a raw frame.
func (c *Codec) Decode(raw []byte) (Message, error) {
	msg, _, err := c.Unpack(raw)
	return msg, err
}

// Unpack reconstructs the typed Message and returns the envelope alongside
// it, for callers that care about sender or send time.
func (c *Codec) Unpack(raw []byte) (Message, *Envelope, error) {
	env, err := parseEnvelope(raw)
	if err != nil {
		return nil, nil, err
	}

	fn, ok := c.decoders[env.Type]
	if !ok {
		return nil, nil, &DecodeError{Type: env.Type, Reason: "unknown message type"}
	}

	sum := blake3.Sum256(env.Payload)
	if hex.EncodeToString(sum[:]) != env.Checksum {
		return nil, nil, &DecodeError{Type: env.Type, Reason: "payload checksum mismatch"}
	}

	msg, err := fn(env.Payload)
	if err != nil {
		return nil, nil, &DecodeError{Type: env.Type, Reason: "payload does not match schema", Err: err}
	}
	if msg.Type() != env.Type {
		return nil, nil, &DecodeError{Type: env.Type, Reason: fmt.Sprintf("decoder produced type %q", msg.Type())}
	}
	return msg, env, nil
}

func parseEnvelope(raw []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, &DecodeError{Reason: "malformed envelope", Err: err}
	}
	if env.Type == "" {
		return nil, &DecodeError{Reason: "envelope missing type tag"}
	}
	return &env, nil
}
