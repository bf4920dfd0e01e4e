// Package realtime fans check-in events out to live observers over WebSocket.
// Delivery is at-most-once and best-effort: no queue, no persistence, no replay
// for late joiners.
package realtime

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/quangdn/vibecheck/core"
	"github.com/quangdn/vibecheck/core/attendance"
)

type (
	// Hub keeps one fan-out group per session. An empty group is simply inert;
	// groups need no explicit teardown.
	Hub struct {
		logger core.Logger

		mu    sync.RWMutex
		rooms map[int]map[uuid.UUID]*subscriber
	}

	// Message is the wire envelope pushed to observers.
	Message struct {
		Event string      `json:"event"`
		Data  interface{} `json:"data"`
	}
)

var _ attendance.Broadcaster = (*Hub)(nil)

func NewHub(logger core.Logger) *Hub {
	return &Hub{
		logger: logger,
		rooms:  make(map[int]map[uuid.UUID]*subscriber),
	}
}

// Subscribe adds conn to the session's fan-out group and takes over its
// lifecycle: a write failure or the peer closing removes it from the group.
func (h *Hub) Subscribe(sessionID int, conn *websocket.Conn) {
	sub := newSubscriber(conn)

	h.mu.Lock()
	room, ok := h.rooms[sessionID]
	if !ok {
		room = make(map[uuid.UUID]*subscriber)
		h.rooms[sessionID] = room
	}
	room[sub.id] = sub
	h.mu.Unlock()

	go sub.writeLoop()
	go h.readLoop(sessionID, sub)
}

// Publish delivers the event to every current subscriber of the session.
// It never blocks: a subscriber whose send buffer is full misses this event.
func (h *Hub) Publish(sessionID int, event string, data interface{}) {
	payload, err := json.Marshal(Message{Event: event, Data: data})
	if err != nil {
		if h.logger != nil {
			h.logger.Error(fmt.Sprintf("marshalling %q event for session %d: %v", event, sessionID, err), err)
		}
		return
	}

	h.mu.RLock()
	subs := make([]*subscriber, 0, len(h.rooms[sessionID]))
	for _, sub := range h.rooms[sessionID] {
		subs = append(subs, sub)
	}
	h.mu.RUnlock()

	for _, sub := range subs {
		sub.send(payload)
	}
}

// Subscribers reports the current size of a session's fan-out group.
func (h *Hub) Subscribers(sessionID int) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[sessionID])
}

// readLoop discards inbound frames; observers only listen. It exists to detect
// the peer going away, which is the implicit unsubscribe.
func (h *Hub) readLoop(sessionID int, sub *subscriber) {
	defer h.remove(sessionID, sub)
	sub.conn.SetReadLimit(512)
	for {
		if _, _, err := sub.conn.NextReader(); err != nil {
			return
		}
	}
}

func (h *Hub) remove(sessionID int, sub *subscriber) {
	h.mu.Lock()
	if room, ok := h.rooms[sessionID]; ok {
		delete(room, sub.id)
		if len(room) == 0 {
			delete(h.rooms, sessionID)
		}
	}
	h.mu.Unlock()
	sub.close()
}
