package admin

import "sync"

// Event is one join/leave/move notification pushed to /api/events
// subscribers.
type Event struct {
	Type     string `json:"type"` // "join", "leave", or "move"
	Session  uint32 `json:"session"`
	Username string `json:"username,omitempty"`
	Channel  uint32 `json:"channel,omitempty"`
}

// Hub fans Event values out to every currently-subscribed websocket
// connection. A slow or gone subscriber never blocks a publisher: its
// channel is buffered and a full buffer just drops the event for that
// one subscriber.
type Hub struct {
	mu   sync.Mutex
	subs map[chan Event]struct{}
}

// NewHub returns an empty Hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[chan Event]struct{})}
}

// Subscribe registers a new listener and returns its event channel
// along with a cancel func the caller must invoke when done.
func (h *Hub) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, 32)
	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		if _, ok := h.subs[ch]; ok {
			delete(h.subs, ch)
			close(ch)
		}
		h.mu.Unlock()
	}
	return ch, cancel
}

// Publish fans an Event out to every current subscriber, dropping it for
// any subscriber whose buffer is full. Its signature matches
// session.EventSink structurally, so a *Hub can be passed as a Loop's
// Events field without session importing this package.
func (h *Hub) Publish(kind string, sessionID uint32, username string, channelID uint32) {
	ev := Event{Type: kind, Session: sessionID, Username: username, Channel: channelID}
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}
