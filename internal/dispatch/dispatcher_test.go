package dispatch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"

	"github.com/mattjoyce/courier/internal/channel"
	"github.com/mattjoyce/courier/internal/log"
	"github.com/mattjoyce/courier/internal/message"
)

func TestMain(m *testing.M) {
	log.Setup("ERROR", "json") // Suppress logs in tests
	os.Exit(m.Run())
}

type ping struct {
	Seq int `json:"seq"`
}

func (ping) Type() message.Type { return "ping" }

type pong struct {
	Seq int `json:"seq"`
}

func (pong) Type() message.Type { return "pong" }

type note struct {
	Text string `json:"text"`
}

func (note) Type() message.Type { return "note" }

func testCodec(t *testing.T) *message.Codec {
	t.Helper()
	c := message.NewCodec()
	c.MustRegister("ping", message.JSON[ping]())
	c.MustRegister("pong", message.JSON[pong]())
	c.MustRegister("note", message.JSON[note]())
	return c
}

func send(t *testing.T, c *message.Codec, ch channel.Channel, msg message.Message) {
	t.Helper()
	frame, err := c.Encode(msg, "test")
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if err := ch.Send(context.Background(), frame); err != nil {
		t.Fatalf("Send: %v", err)
	}
}

func TestDrainRoutesBufferedMessagesInOrder(t *testing.T) {
	t.Parallel()

	c := testCodec(t)
	ch := channel.NewMemory(16)

	var got []message.Message
	reg := NewRegistry().
		On("ping", func(_ context.Context, m message.Message) error {
			got = append(got, m)
			return nil
		}).
		On("note", func(_ context.Context, m message.Message) error {
			got = append(got, m)
			return nil
		}).
		Freeze()
	d := New(c, reg)

	// pong has no handler and must be consumed silently.
	send(t, c, ch, ping{Seq: 1})
	send(t, c, ch, pong{Seq: 9})
	send(t, c, ch, note{Text: "hello"})
	send(t, c, ch, ping{Seq: 2})

	handled, err := d.Drain(context.Background(), ch)
	if err != nil {
		t.Fatalf("Drain: %v", err)
	}
	if handled != 3 {
		t.Fatalf("expected 3 handled messages, got %d", handled)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 handler invocations, got %d", len(got))
	}
	if p, ok := got[0].(ping); !ok || p.Seq != 1 {
		t.Fatalf("first message wrong: %#v", got[0])
	}
	if n, ok := got[1].(note); !ok || n.Text != "hello" {
		t.Fatalf("second message wrong: %#v", got[1])
	}
	if p, ok := got[2].(ping); !ok || p.Seq != 2 {
		t.Fatalf("third message wrong: %#v", got[2])
	}

	if _, err := ch.TryReceive(context.Background()); !errors.Is(err, channel.ErrEmpty) {
		t.Fatalf("expected empty channel after drain, got %v", err)
	}
}

func TestDrainEmptyChannelReturnsImmediately(t *testing.T) {
	t.Parallel()

	d := New(testCodec(t), NewRegistry().Freeze())
	handled, err := d.Drain(context.Background(), channel.NewMemory(1))
	if err != nil {
		t.Fatalf("Drain: %v", err)
	}
	if handled != 0 {
		t.Fatalf("expected 0 handled, got %d", handled)
	}
}

func TestDrainDropsMalformedFrames(t *testing.T) {
	t.Parallel()

	c := testCodec(t)
	ch := channel.NewMemory(16)

	var got []message.Message
	reg := NewRegistry().
		On("ping", func(_ context.Context, m message.Message) error {
			got = append(got, m)
			return nil
		}).
		Freeze()
	d := New(c, reg)

	if err := ch.Send(context.Background(), []byte("not an envelope")); err != nil {
		t.Fatalf("Send garbage: %v", err)
	}
	send(t, c, ch, ping{Seq: 5})

	handled, err := d.Drain(context.Background(), ch)
	if err != nil {
		t.Fatalf("a bad frame must never abort the sweep: %v", err)
	}
	if handled != 1 || len(got) != 1 {
		t.Fatalf("expected the good message to be handled, handled=%d got=%d", handled, len(got))
	}
}

func TestDrainHandlerOrderPreserved(t *testing.T) {
	t.Parallel()

	c := testCodec(t)
	ch := channel.NewMemory(4)

	var order []string
	reg := NewRegistry().
		On("ping", func(context.Context, message.Message) error {
			order = append(order, "h1")
			return nil
		}).
		On("ping", func(context.Context, message.Message) error {
			order = append(order, "h2")
			return nil
		}).
		Freeze()
	d := New(c, reg)

	send(t, c, ch, ping{Seq: 1})
	if _, err := d.Drain(context.Background(), ch); err != nil {
		t.Fatalf("Drain: %v", err)
	}
	if len(order) != 2 || order[0] != "h1" || order[1] != "h2" {
		t.Fatalf("expected [h1 h2], got %v", order)
	}
}

func TestDrainHandlerErrorAbortsSweep(t *testing.T) {
	t.Parallel()

	c := testCodec(t)
	ch := channel.NewMemory(4)

	boom := fmt.Errorf("boom")
	reg := NewRegistry().
		On("ping", func(context.Context, message.Message) error { return boom }).
		On("note", func(context.Context, message.Message) error { return nil }).
		Freeze()
	d := New(c, reg)

	send(t, c, ch, ping{Seq: 1})
	send(t, c, ch, note{Text: "survivor"})

	_, err := d.Drain(context.Background(), ch)
	var he *HandlerError
	if !errors.As(err, &he) {
		t.Fatalf("expected HandlerError, got %v", err)
	}
	if he.Type != "ping" || he.Index != 0 || !errors.Is(err, boom) {
		t.Fatalf("unexpected HandlerError: %#v", he)
	}

	// The message behind the failing one stays buffered for the next drain.
	frame, rerr := ch.TryReceive(context.Background())
	if rerr != nil {
		t.Fatalf("expected surviving frame, got %v", rerr)
	}
	msg, derr := c.Decode(frame)
	if derr != nil {
		t.Fatalf("Decode survivor: %v", derr)
	}
	if n, ok := msg.(note); !ok || n.Text != "survivor" {
		t.Fatalf("unexpected survivor: %#v", msg)
	}
}

func TestDrainSurfacesChannelClosed(t *testing.T) {
	t.Parallel()

	c := testCodec(t)
	ch := channel.NewMemory(4)

	var got int
	reg := NewRegistry().
		On("ping", func(context.Context, message.Message) error {
			got++
			return nil
		}).
		Freeze()
	d := New(c, reg)

	send(t, c, ch, ping{Seq: 1})
	if err := ch.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	handled, err := d.Drain(context.Background(), ch)
	if !errors.Is(err, channel.ErrClosed) {
		t.Fatalf("expected ErrClosed after draining a closed channel, got %v", err)
	}
	if handled != 1 || got != 1 {
		t.Fatalf("buffered message should still be handled, handled=%d got=%d", handled, got)
	}
}

func TestPingPongScenario(t *testing.T) {
	t.Parallel()

	c := testCodec(t)
	ch := channel.NewMemory(8)

	var received []ping
	reg := NewRegistry().
		On("ping", func(_ context.Context, m message.Message) error {
			received = append(received, m.(ping))
			return nil
		}).
		Freeze()
	d := New(c, reg)

	send(t, c, ch, ping{Seq: 1})
	if _, err := d.Drain(context.Background(), ch); err != nil {
		t.Fatalf("Drain: %v", err)
	}
	if len(received) != 1 || received[0].Seq != 1 {
		t.Fatalf("expected handler to see ping seq=1, got %#v", received)
	}

	send(t, c, ch, pong{Seq: 1})
	send(t, c, ch, ping{Seq: 2})

	msg, err := d.WaitFor(context.Background(), ch, "ping", channel.NoTimeout)
	if err != nil {
		t.Fatalf("WaitFor: %v", err)
	}
	if p, ok := msg.(ping); !ok || p.Seq != 2 {
		t.Fatalf("expected ping seq=2, got %#v", msg)
	}

	// The pong was discarded by the wait, not deferred.
	if _, err := ch.TryReceive(context.Background()); !errors.Is(err, channel.ErrEmpty) {
		t.Fatalf("expected empty channel, got %v", err)
	}
}

func TestHandlerMayWaitOnSameChannel(t *testing.T) {
	t.Parallel()

	c := testCodec(t)
	ch := channel.NewMemory(8)

	var reply note
	var d *Dispatcher
	reg := NewRegistry().
		On("ping", func(ctx context.Context, _ message.Message) error {
			// Block for the follow-up inside the handler, re-entering the
			// same channel.
			m, err := d.WaitFor(ctx, ch, "note", channel.NoTimeout)
			if err != nil {
				return err
			}
			reply = m.(note)
			return nil
		}).
		Freeze()
	d = New(c, reg)

	send(t, c, ch, ping{Seq: 1})
	send(t, c, ch, note{Text: "follow-up"})

	if _, err := d.Drain(context.Background(), ch); err != nil {
		t.Fatalf("Drain: %v", err)
	}
	if reply.Text != "follow-up" {
		t.Fatalf("expected handler to rendezvous with the note, got %#v", reply)
	}
}
