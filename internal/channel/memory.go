package channel

import (
	"context"
	"errors"
	"sync"
	"time"
)

// Memory is an in-process Channel backed by a buffered Go channel. Safe for
// concurrent senders and receivers within one process.
type Memory struct {
	frames chan []byte
	done   chan struct{}
	once   sync.Once
}

// NewMemory creates an in-memory channel buffering up to capacity frames.
func NewMemory(capacity int) *Memory {
	if capacity <= 0 {
		capacity = 128
	}
	return &Memory{
		frames: make(chan []byte, capacity),
		done:   make(chan struct{}),
	}
}

func (m *Memory) Send(ctx context.Context, frame []byte) error {
	select {
	case <-m.done:
		return ErrClosed
	default:
	}

	select {
	case m.frames <- frame:
		return nil
	case <-m.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Memory) TryReceive(ctx context.Context) ([]byte, error) {
	select {
	case frame := <-m.frames:
		return frame, nil
	default:
	}

	select {
	case <-m.done:
		// Closed, but a frame may have raced in between the two selects.
		select {
		case frame := <-m.frames:
			return frame, nil
		default:
			return nil, ErrClosed
		}
	default:
		return nil, ErrEmpty
	}
}

func (m *Memory) Receive(ctx context.Context, timeout time.Duration) ([]byte, error) {
	if timeout == 0 {
		frame, err := m.TryReceive(ctx)
		if errors.Is(err, ErrEmpty) {
			return nil, ErrTimeout
		}
		return frame, err
	}

	var deadline <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		deadline = timer.C
	}

	select {
	case frame := <-m.frames:
		return frame, nil
	case <-deadline:
		return nil, ErrTimeout
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-m.done:
		// Drain buffered frames before reporting closure.
		select {
		case frame := <-m.frames:
			return frame, nil
		default:
			return nil, ErrClosed
		}
	}
}

func (m *Memory) Depth(ctx context.Context) (int, error) {
	return len(m.frames), nil
}

func (m *Memory) Close() error {
	m.once.Do(func() { close(m.done) })
	return nil
}
