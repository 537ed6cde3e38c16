package api

import (
	"log"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
)

// Event is the envelope pushed to websocket subscribers on state changes:
// service transitions, peer updates, forward changes.
type Event struct {
	Type    string      `json:"type"` // e.g. service_state, peer_update, forward_change
	Payload interface{} `json:"payload,omitempty"`
}

// EventHub fans node events out to connected operator UIs.
type EventHub struct {
	upgrader websocket.Upgrader
	mu       sync.Mutex
	subs     map[*websocket.Conn]struct{}
}

func NewEventHub() *EventHub {
	return &EventHub{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		subs: map[*websocket.Conn]struct{}{},
	}
}

// HandleWS upgrades a subscriber connection and keeps it until it closes.
func (h *EventHub) HandleWS(w http.ResponseWriter, r *http.Request) {
	c, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws upgrade failed: %v", err)
		return
	}
	h.mu.Lock()
	h.subs[c] = struct{}{}
	n := len(h.subs)
	h.mu.Unlock()
	log.Printf("event subscriber connected (%d total)", n)
	go h.readLoop(c)
}

// Broadcast sends one event to every subscriber, dropping dead connections.
func (h *EventHub) Broadcast(ev Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.subs {
		if err := c.WriteJSON(ev); err != nil {
			c.Close()
			delete(h.subs, c)
		}
	}
}

// readLoop drains the connection; subscribers never send anything meaningful
// but the read side is what detects a disconnect.
func (h *EventHub) readLoop(c *websocket.Conn) {
	defer func() {
		c.Close()
		h.mu.Lock()
		delete(h.subs, c)
		h.mu.Unlock()
		log.Printf("event subscriber disconnected")
	}()
	for {
		if _, _, err := c.NextReader(); err != nil {
			return
		}
	}
}
