package events

import (
	"sync"
	"sync/atomic"
	"time"
)

// Hub is a per-tenant in-memory fanout of observer events.
//
// Contract:
//   - Publish never blocks.
//   - Subscribers use buffered channels; slow subscribers drop events.
//
// The scheduler publishes into the hub; transports (SSE) subscribe.
type Hub struct {
	mu   sync.RWMutex
	subs map[uint64]chan Event
	seq  atomic.Uint64
}

// NewHub returns an empty hub. It owns no background goroutines.
func NewHub() *Hub {
	return &Hub{subs: map[uint64]chan Event{}}
}

// Publish delivers e to every subscriber without blocking. Events for
// subscribers with full buffers are dropped. The read lock is held
// across the sends; unsubscribe closes its channel under the write
// lock, so a send never races a close.
func (h *Hub) Publish(e Event) {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, ch := range h.subs {
		select {
		case ch <- e:
		default:
		}
	}
}

// Subscribe registers a new observer. The returned function removes the
// subscription and closes the channel; it is safe to call more than once.
func (h *Hub) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 16
	}
	ch := make(chan Event, buffer)
	id := h.seq.Add(1)

	h.mu.Lock()
	h.subs[id] = ch
	h.mu.Unlock()

	var once sync.Once
	unsub := func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, id)
			close(ch)
			h.mu.Unlock()
		})
	}
	return ch, unsub
}
