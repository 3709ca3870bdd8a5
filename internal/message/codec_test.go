package message

import (
	"encoding/json"
	"errors"
	"testing"
)

type ping struct {
	Seq int `json:"seq"`
}

func (ping) Type() Type { return "ping" }

type pong struct {
	Seq int `json:"seq"`
}

func (pong) Type() Type { return "pong" }

func newTestCodec(t *testing.T) *Codec {
	t.Helper()
	c := NewCodec()
	c.MustRegister("ping", JSON[ping]())
	c.MustRegister("pong", JSON[pong]())
	return c
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	t.Parallel()

	c := newTestCodec(t)

	raw, err := c.Encode(ping{Seq: 7}, "worker-a")
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	msg, env, err := c.Unpack(raw)
	if err != nil {
		t.Fatalf("Unpack: %v", err)
	}
	got, ok := msg.(ping)
	if !ok {
		t.Fatalf("expected ping, got %T", msg)
	}
	if got.Seq != 7 {
		t.Fatalf("expected seq 7, got %d", got.Seq)
	}
	if env.Sender != "worker-a" {
		t.Fatalf("expected sender worker-a, got %q", env.Sender)
	}
	if env.ID == "" || env.SentAt.IsZero() {
		t.Fatalf("envelope missing id or timestamp: %#v", env)
	}
}

func TestPeekTypeWithoutDecoding(t *testing.T) {
	t.Parallel()

	c := newTestCodec(t)

	raw, err := c.Encode(pong{Seq: 1}, "")
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	typ, err := c.PeekType(raw)
	if err != nil {
		t.Fatalf("PeekType: %v", err)
	}
	if typ != "pong" {
		t.Fatalf("expected type pong, got %q", typ)
	}
}

func TestDecodeUnknownType(t *testing.T) {
	t.Parallel()

	c := newTestCodec(t)
	raw, err := c.Encode(ping{Seq: 1}, "")
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	stranger := NewCodec()
	_, err = stranger.Decode(raw)
	var de *DecodeError
	if !errors.As(err, &de) {
		t.Fatalf("expected DecodeError, got %v", err)
	}
	if de.Type != "ping" {
		t.Fatalf("expected failing type ping, got %q", de.Type)
	}
}

func TestDecodeMalformedFrame(t *testing.T) {
	t.Parallel()

	c := newTestCodec(t)
	var de *DecodeError
	if _, err := c.Decode([]byte("not json")); !errors.As(err, &de) {
		t.Fatalf("expected DecodeError for garbage frame, got %v", err)
	}
	if _, err := c.Decode([]byte(`{"payload":{}}`)); !errors.As(err, &de) {
		t.Fatalf("expected DecodeError for missing type tag, got %v", err)
	}
}

func TestDecodeChecksumMismatch(t *testing.T) {
	t.Parallel()

	c := newTestCodec(t)
	raw, err := c.Encode(ping{Seq: 3}, "")
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	// Tamper with the payload without updating the checksum.
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		t.Fatalf("unmarshal envelope: %v", err)
	}
	env.Payload = []byte(`{"seq":99}`)
	tampered, err := json.Marshal(env)
	if err != nil {
		t.Fatalf("marshal tampered envelope: %v", err)
	}

	_, err = c.Decode(tampered)
	var de *DecodeError
	if !errors.As(err, &de) {
		t.Fatalf("expected DecodeError, got %v", err)
	}
}

func TestRegisterDuplicate(t *testing.T) {
	t.Parallel()

	c := newTestCodec(t)
	if err := c.Register("ping", JSON[ping]()); err == nil {
		t.Fatal("expected error registering duplicate type")
	}
}

func TestDecodeSchemaMismatch(t *testing.T) {
	t.Parallel()

	c := NewCodec()
	c.MustRegister("ping", func(data []byte) (Message, error) {
		var m ping
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, err
		}
		if m.Seq < 0 {
			return nil, errors.New("seq must be non-negative")
		}
		return m, nil
	})

	raw, err := c.Encode(ping{Seq: -1}, "")
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	var de *DecodeError
	if _, err := c.Decode(raw); !errors.As(err, &de) {
		t.Fatalf("expected DecodeError, got %v", err)
	}
}
