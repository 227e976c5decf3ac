package sse

import (
	"sync"
)

// Update represents an SSE update event
type Update struct {
	Type string `json:"type"` // "message", "state"
	Data string `json:"data"`
}

// Hub fans chat session updates out to the streams watching that session.
type Hub struct {
	mu          sync.RWMutex
	subscribers map[string]map[chan Update]struct{}
}

// NewHub creates an empty hub
func NewHub() *Hub {
	return &Hub{
		subscribers: make(map[string]map[chan Update]struct{}),
	}
}

// Subscribe creates a new channel for receiving updates of one session
func (h *Hub) Subscribe(sessionID string) chan Update {
	h.mu.Lock()
	defer h.mu.Unlock()

	ch := make(chan Update, 10)
	subs, ok := h.subscribers[sessionID]
	if !ok {
		subs = make(map[chan Update]struct{})
		h.subscribers[sessionID] = subs
	}
	subs[ch] = struct{}{}
	return ch
}

// Unsubscribe removes a subscriber channel
func (h *Hub) Unsubscribe(sessionID string, ch chan Update) {
	h.mu.Lock()
	defer h.mu.Unlock()

	subs, ok := h.subscribers[sessionID]
	if !ok {
		return
	}
	if _, ok := subs[ch]; !ok {
		return
	}
	delete(subs, ch)
	close(ch)
	if len(subs) == 0 {
		delete(h.subscribers, sessionID)
	}
}

// Publish sends an update to every subscriber of the session. Slow subscribers miss updates
// rather than block the publisher.
func (h *Hub) Publish(sessionID string, update Update) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for ch := range h.subscribers[sessionID] {
		select {
		case ch <- update:
		default:
			// Channel full, skip
		}
	}
}

// SubscriberCount returns how many streams watch the session
func (h *Hub) SubscriberCount(sessionID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers[sessionID])
}
