package auth

import (
	"sync"
	"time"
)

// Session change events.
const (
	EventSignedIn       = "SIGNED_IN"
	EventTokenRefreshed = "TOKEN_REFRESHED"
	EventSignedOut      = "SIGNED_OUT"
)

// SessionEvent notifies a user's open dashboards that their session changed.
type SessionEvent struct {
	Type   string    `json:"type"`
	UserID string    `json:"user_id"`
	At     time.Time `json:"at"`
}

// Hub fans session events out to subscribers of the same user. Slow
// subscribers miss events rather than block publishers.
type Hub struct {
	mu   sync.Mutex
	subs map[string]map[chan SessionEvent]struct{}
}

func NewHub() *Hub {
	return &Hub{subs: make(map[string]map[chan SessionEvent]struct{})}
}

// Subscribe registers for the user's events. The returned cancel func must
// be called to release the subscription; it closes the channel.
func (h *Hub) Subscribe(userID string) (<-chan SessionEvent, func()) {
	ch := make(chan SessionEvent, 8)
	h.mu.Lock()
	if h.subs[userID] == nil {
		h.subs[userID] = make(map[chan SessionEvent]struct{})
	}
	h.subs[userID][ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs[userID], ch)
			if len(h.subs[userID]) == 0 {
				delete(h.subs, userID)
			}
			h.mu.Unlock()
			close(ch)
		})
	}
}

// Publish delivers ev to every subscriber of ev.UserID.
func (h *Hub) Publish(ev SessionEvent) {
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs[ev.UserID] {
		select {
		case ch <- ev:
		default:
		}
	}
}

// Subscribers returns how many subscriptions the user has open.
func (h *Hub) Subscribers(userID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[userID])
}
