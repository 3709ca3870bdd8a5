// Package events is an in-process pub/sub for bus activity, consumed by the
// status API. The dispatch core never publishes here; workers and the host
// do.
package events

import (
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"
)

// Bus activity kinds.
const (
	KindWorkerStarted = "worker_started"
	KindWorkerStopped = "worker_stopped"
	KindDrain         = "drain"
	KindDrainError    = "drain_error"
	KindChannelClosed = "channel_closed"
)

type Event struct {
	ID   int64     `json:"id"`
	Kind string    `json:"kind"`
	At   time.Time `json:"at"`
	Data []byte    `json:"data"` // JSON payload
}

// Hub is an in-memory pub/sub with a small ring buffer for late clients.
type Hub struct {
	nextID atomic.Int64

	mu    sync.Mutex
	ring  []Event
	start int
	size  int

	subs      map[int]chan Event
	nextSubID int
}

func NewHub(capacity int) *Hub {
	if capacity <= 0 {
		capacity = 100
	}
	return &Hub{
		ring: make([]Event, capacity),
		subs: make(map[int]chan Event),
	}
}

func (h *Hub) Publish(kind string, data any) {
	id := h.nextID.Add(1)

	payload := []byte("{}")
	if data != nil {
		if b, err := json.Marshal(data); err == nil {
			payload = b
		}
	}

	ev := Event{
		ID:   id,
		Kind: kind,
		At:   time.Now().UTC(),
		Data: payload,
	}

	h.mu.Lock()
	h.pushLocked(ev)
	for _, ch := range h.subs {
		// Don't let slow clients block producers.
		select {
		case ch <- ev:
		default:
		}
	}
	h.mu.Unlock()
}

func (h *Hub) Subscribe() (<-chan Event, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	id := h.nextSubID
	h.nextSubID++
	ch := make(chan Event, 64)
	h.subs[id] = ch

	cancel := func() {
		h.mu.Lock()
		if c, ok := h.subs[id]; ok {
			delete(h.subs, id)
			close(c)
		}
		h.mu.Unlock()
	}

	return ch, cancel
}

// SnapshotSince returns buffered events with ID > lastID, oldest-first.
// If lastID is 0, the full ring buffer snapshot is returned.
func (h *Hub) SnapshotSince(lastID int64) []Event {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make([]Event, 0, h.size)
	for i := 0; i < h.size; i++ {
		ev := h.ring[(h.start+i)%len(h.ring)]
		if lastID == 0 || ev.ID > lastID {
			out = append(out, ev)
		}
	}
	return out
}

func (h *Hub) pushLocked(ev Event) {
	capacity := len(h.ring)
	if capacity == 0 {
		return
	}

	if h.size < capacity {
		idx := (h.start + h.size) % capacity
		h.ring[idx] = ev
		h.size++
		return
	}

	// Overwrite oldest.
	h.ring[h.start] = ev
	h.start = (h.start + 1) % capacity
}
