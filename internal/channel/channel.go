// Package channel provides the process-safe FIFO transport that workers
// exchange message frames over.
//
// Two implementations share one contract: Memory for workers co-located in a
// single process (and for tests), and SQLite for workers running as separate
// OS processes attached to the same database file. Frames are opaque bytes;
// encoding and type dispatch live in internal/message and internal/dispatch.
package channel

import (
	"context"
	"errors"
	"time"
)

// NoTimeout disables the Receive deadline.
const NoTimeout time.Duration = -1

// Common errors. Receivers must distinguish ErrEmpty (nothing buffered right
// now) from ErrClosed (no more messages will ever arrive) so control loops
// can terminate instead of spinning.
var (
	ErrEmpty   = errors.New("channel: empty")
	ErrTimeout = errors.New("channel: receive timed out")
	ErrClosed  = errors.New("channel: closed")
)

// Channel is a process-safe FIFO queue of message frames.
//
// Send after Close returns ErrClosed. Frames buffered at close time remain
// receivable; once drained, receives return ErrClosed.
type Channel interface {
	// Send enqueues one frame.
	Send(ctx context.Context, frame []byte) error

	// TryReceive dequeues the oldest frame without blocking. Returns
	// ErrEmpty when nothing is buffered.
	TryReceive(ctx context.Context) ([]byte, error)

	// Receive dequeues the oldest frame, blocking until one arrives, the
	// timeout elapses (ErrTimeout), ctx is cancelled, or the channel is
	// closed and drained (ErrClosed). A zero timeout expires immediately
	// after one poll; a negative timeout means no deadline.
	Receive(ctx context.Context, timeout time.Duration) ([]byte, error)

	// Depth reports the number of currently buffered frames.
	Depth(ctx context.Context) (int, error)

	// Close marks the channel closed for all attached processes.
	Close() error
}
