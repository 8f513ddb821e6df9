package http

import (
	"sync"

	"quizbot-service/internal/domain"
)

// Hub fans session-progress events out to any live-update subscribers for the
// same user. It implements app.EventPublisher; publishing never blocks, so a
// slow or dead subscriber cannot stall the quiz flow.
type Hub struct {
	mu          sync.RWMutex
	subscribers map[int64]map[chan domain.Event]struct{}
}

func NewHub() *Hub {
	return &Hub{subscribers: make(map[int64]map[chan domain.Event]struct{})}
}

// Publish delivers the event to the user's subscribers best-effort. When a
// subscriber's buffer is full the oldest event is dropped to make room; the
// channel mirrors progress, it is not a source of truth.
func (h *Hub) Publish(event domain.Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for ch := range h.subscribers[event.UserID] {
		select {
		case ch <- event:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- event:
			default:
			}
		}
	}
}

// Subscribe returns a channel of events for the user. The caller must invoke
// the returned cancel function to avoid leaks.
func (h *Hub) Subscribe(userID int64) (<-chan domain.Event, func()) {
	ch := make(chan domain.Event, 8)

	h.mu.Lock()
	if h.subscribers[userID] == nil {
		h.subscribers[userID] = make(map[chan domain.Event]struct{})
	}
	h.subscribers[userID][ch] = struct{}{}
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		if subs, ok := h.subscribers[userID]; ok {
			if _, ok := subs[ch]; ok {
				delete(subs, ch)
				close(ch)
			}
			if len(subs) == 0 {
				delete(h.subscribers, userID)
			}
		}
		h.mu.Unlock()
	}
	return ch, cancel
}
