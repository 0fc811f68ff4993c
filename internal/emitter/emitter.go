// Package emitter fans session events out to their subscribers.
package emitter

import (
	"sync"

	"github.com/jaekop/ContextLens/internal/event"
	"github.com/jaekop/ContextLens/internal/metrics"
)

// subBuffer is the per-subscriber channel capacity. It must cover the burst a
// finalize produces (debrief plus possible error events).
const subBuffer = 16

// Hub routes events to per-session subscribers.
type Hub struct {
	mu   sync.Mutex
	subs map[string]map[chan event.Event]struct{}
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{subs: map[string]map[chan event.Event]struct{}{}}
}

// Subscribe registers for one session's events. The returned cancel func
// detaches the subscriber and closes its channel; calling it more than once
// is safe.
func (h *Hub) Subscribe(sessionID string) (<-chan event.Event, func()) {
	ch := make(chan event.Event, subBuffer)
	h.mu.Lock()
	set, ok := h.subs[sessionID]
	if !ok {
		set = map[chan event.Event]struct{}{}
		h.subs[sessionID] = set
	}
	set[ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			if set, ok := h.subs[sessionID]; ok {
				delete(set, ch)
				if len(set) == 0 {
					delete(h.subs, sessionID)
				}
			}
			h.mu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}

// Publish delivers ev to every subscriber of its session. A subscriber whose
// buffer is full loses the event rather than stalling the publisher; drops
// are counted.
func (h *Hub) Publish(ev event.Event) {
	h.mu.Lock()
	for ch := range h.subs[ev.SessionID] {
		select {
		case ch <- ev:
		default:
			metrics.EmitterDropped.Inc()
		}
	}
	h.mu.Unlock()
}

// Subscribers reports how many subscribers a session currently has.
func (h *Hub) Subscribers(sessionID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[sessionID])
}
