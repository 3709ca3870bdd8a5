package dispatch

import (
	"context"
	"fmt"
	"time"

	"github.com/mattjoyce/courier/internal/channel"
	"github.com/mattjoyce/courier/internal/message"
)

// WaitFor blocks until a message of type want arrives on ch and returns it
// decoded. Every other frame received while waiting is consumed and
// permanently discarded, including frames a later Drain would otherwise have
// handled. Matching is exact type equality; there is no wildcard.
//
// A zero timeout expires immediately after one poll; a negative timeout
// waits until ctx is cancelled or the channel closes. Deadline expiry
// returns channel.ErrTimeout, closure channel.ErrClosed.
func (d *Dispatcher) WaitFor(ctx context.Context, ch channel.Channel, want message.Type, timeout time.Duration) (message.Message, error) {
	return d.WaitForAny(ctx, ch, timeout, want)
}

// WaitForAny is WaitFor over a set of accepted types: the first message
// whose type is in the set is returned.
func (d *Dispatcher) WaitForAny(ctx context.Context, ch channel.Channel, timeout time.Duration, types ...message.Type) (message.Message, error) {
	if len(types) == 0 {
		return nil, fmt.Errorf("no message types to wait for")
	}
	wanted := make(map[message.Type]struct{}, len(types))
	for _, t := range types {
		wanted[t] = struct{}{}
	}

	var deadline time.Time
	if timeout >= 0 {
		deadline = time.Now().Add(timeout)
	}

	d.logger.Debug("waiting for message", "types", typeNames(types))
	for {
		remaining := channel.NoTimeout
		if !deadline.IsZero() {
			remaining = time.Until(deadline)
			if remaining < 0 {
				remaining = 0
			}
		}

		frame, err := ch.Receive(ctx, remaining)
		if err != nil {
			return nil, err
		}

		typ, err := d.codec.PeekType(frame)
		if err != nil {
			d.logger.Debug("discarding undecodable message", "error", err)
			continue
		}
		if _, ok := wanted[typ]; !ok {
			d.logger.Debug("discarding message", "type", string(typ))
			continue
		}

		msg, err := d.codec.Decode(frame)
		if err != nil {
			// Matching tag but broken payload: treated as non-matching.
			d.logger.Debug("discarding undecodable message", "type", string(typ), "error", err)
			continue
		}
		return msg, nil
	}
}

func typeNames(types []message.Type) []string {
	out := make([]string, len(types))
	for i, t := range types {
		out[i] = string(t)
	}
	return out
}
