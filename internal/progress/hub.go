package progress

import (
	"sync"

	"github.com/teamcutter/gportal/internal/domain"
)

// Hub fans events out to every subscribed stream.
type Hub struct {
	mu       sync.RWMutex
	subs     []*Stream
	capacity int
	closed   bool
}

func NewHub(capacity int) *Hub {
	return &Hub{capacity: capacity}
}

func (h *Hub) Subscribe() *Stream {
	s := NewStream(h.capacity)

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		s.Close()
		return s
	}
	h.subs = append(h.subs, s)
	return s
}

func (h *Hub) Unsubscribe(s *Stream) {
	h.mu.Lock()
	for i, sub := range h.subs {
		if sub == s {
			h.subs = append(h.subs[:i], h.subs[i+1:]...)
			break
		}
	}
	h.mu.Unlock()
	s.Close()
}

func (h *Hub) Publish(ev domain.ProgressEvent) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, s := range h.subs {
		s.Publish(ev)
	}
}

func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for _, s := range h.subs {
		s.Close()
	}
	h.subs = nil
}
