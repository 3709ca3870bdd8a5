package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/mattjoyce/courier/internal/channel"
	"github.com/mattjoyce/courier/internal/log"
	"github.com/mattjoyce/courier/internal/message"
)

// HandlerError wraps a failure raised by a registered handler during a
// drain sweep. The sweep stops at the failing message; frames buffered
// behind it remain on the channel.
type HandlerError struct {
	Type  message.Type
	Index int // position in the registration-ordered handler list
	Err   error
}

func (e *HandlerError) Error() string {
	return fmt.Sprintf("handler %d for message type %q: %v", e.Index, e.Type, e.Err)
}

func (e *HandlerError) Unwrap() error { return e.Err }

// Dispatcher routes frames from a channel through a frozen Registry.
type Dispatcher struct {
	codec  *message.Codec
	reg    *Registry
	logger *slog.Logger
}

// New creates a Dispatcher over a codec and a frozen registry.
func New(codec *message.Codec, reg *Registry) *Dispatcher {
	if !reg.Frozen() {
		panic("dispatch: registry must be frozen before dispatching")
	}
	return &Dispatcher{
		codec:  codec,
		reg:    reg,
		logger: log.WithComponent("dispatch"),
	}
}

// Drain performs one non-blocking sweep of ch: every frame buffered at call
// time is consumed and routed to its registered handlers in registration
// order. Returns the number of messages that reached at least one handler.
//
// Undecodable frames and frames of unregistered types are dropped and the
// sweep continues. A handler error aborts the sweep immediately with a
// *HandlerError. Channel closure surfaces as channel.ErrClosed once the
// buffered frames are exhausted. Drain never blocks: on an empty channel it
// returns (0, nil) straight away.
func (d *Dispatcher) Drain(ctx context.Context, ch channel.Channel) (int, error) {
	handled := 0
	for {
		frame, err := ch.TryReceive(ctx)
		if errors.Is(err, channel.ErrEmpty) {
			return handled, nil
		}
		if err != nil {
			return handled, err
		}

		msg, env, err := d.codec.Unpack(frame)
		if err != nil {
			d.logger.Debug("dropping undecodable message", "error", err)
			continue
		}

		handlers := d.reg.Handlers(msg.Type())
		if len(handlers) == 0 {
			d.logger.Debug("no handler registered, dropping message",
				"type", string(msg.Type()), "sender", env.Sender)
			continue
		}

		d.logger.Debug("handling message",
			"type", string(msg.Type()), "sender", env.Sender, "handlers", len(handlers))
		for i, fn := range handlers {
			if err := fn(ctx, msg); err != nil {
				return handled, &HandlerError{Type: msg.Type(), Index: i, Err: err}
			}
		}
		handled++
	}
}
