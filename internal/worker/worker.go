// Package worker provides the control loop a bus participant runs: a
// ticker-paced drain of its channel, with a configurable policy for drain
// failures. A worker owns its registry and dispatcher by composition and
// calls into them explicitly; there is no dispatch behavior to inherit.
package worker

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/mattjoyce/courier/internal/channel"
	"github.com/mattjoyce/courier/internal/dispatch"
	"github.com/mattjoyce/courier/internal/events"
	"github.com/mattjoyce/courier/internal/log"
	"github.com/mattjoyce/courier/internal/message"
)

// ErrorPolicy decides what Run does when a drain sweep fails.
type ErrorPolicy int

const (
	// FailFast stops the loop and returns the drain error.
	FailFast ErrorPolicy = iota
	// LogAndContinue logs the error and keeps ticking. Messages buffered
	// behind the failure are picked up by the next sweep.
	LogAndContinue
)

const defaultTickInterval = 100 * time.Millisecond

// Worker drives a dispatcher against one channel.
type Worker struct {
	name   string
	ch     channel.Channel
	disp   *dispatch.Dispatcher
	tick   time.Duration
	policy ErrorPolicy
	hub    *events.Hub
	logger *slog.Logger
}

// Option configures a Worker.
type Option func(*Worker)

// WithTickInterval sets the drain pace.
func WithTickInterval(d time.Duration) Option {
	return func(w *Worker) {
		if d > 0 {
			w.tick = d
		}
	}
}

// WithErrorPolicy sets the drain failure policy.
func WithErrorPolicy(p ErrorPolicy) Option {
	return func(w *Worker) { w.policy = p }
}

// WithEvents publishes bus activity to hub.
func WithEvents(hub *events.Hub) Option {
	return func(w *Worker) { w.hub = hub }
}

// New creates a Worker. The dispatcher's registry must already be frozen.
func New(name string, ch channel.Channel, disp *dispatch.Dispatcher, opts ...Option) *Worker {
	w := &Worker{
		name:   name,
		ch:     ch,
		disp:   disp,
		tick:   defaultTickInterval,
		policy: FailFast,
		logger: log.WithWorker(name),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Name returns the worker name.
func (w *Worker) Name() string { return w.name }

// Run ticks and drains until ctx is cancelled, the channel closes, or (under
// FailFast) a drain fails. Channel closure is a clean shutdown and returns
// nil.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.Info("worker loop started", "tick", w.tick.String())
	defer w.logger.Info("worker loop stopped")
	w.publish(events.KindWorkerStarted, map[string]string{"worker": w.name})
	defer w.publish(events.KindWorkerStopped, map[string]string{"worker": w.name})

	ticker := time.NewTicker(w.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			handled, err := w.disp.Drain(ctx, w.ch)
			if handled > 0 {
				w.publish(events.KindDrain, map[string]any{"worker": w.name, "handled": handled})
			}
			if err == nil {
				continue
			}
			if errors.Is(err, channel.ErrClosed) {
				w.logger.Info("channel closed, shutting down")
				return nil
			}

			w.publish(events.KindDrainError, map[string]string{"worker": w.name, "error": err.Error()})
			if w.policy == FailFast {
				return err
			}
			w.logger.Error("drain failed", "error", err)
		}
	}
}

// Drain performs one sweep outside the ticker, for callers driving the loop
// themselves.
func (w *Worker) Drain(ctx context.Context) (int, error) {
	return w.disp.Drain(ctx, w.ch)
}

// WaitFor blocks for a message of the given type on the worker's channel.
// Intended for handler bodies performing a rendezvous for a reply.
func (w *Worker) WaitFor(ctx context.Context, t message.Type, timeout time.Duration) (message.Message, error) {
	return w.disp.WaitFor(ctx, w.ch, t, timeout)
}

func (w *Worker) publish(kind string, data any) {
	if w.hub != nil {
		w.hub.Publish(kind, data)
	}
}
