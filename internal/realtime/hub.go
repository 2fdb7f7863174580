// Package realtime fans events out to websocket connections grouped into
// per-account rooms, optionally relaying them to peer instances.
package realtime

import (
	"encoding/json"
	"log/slog"
	"sync"
)

// Frame is the wire shape of every message in both directions.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

func encodeFrame(event string, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Frame{Event: event, Data: data})
}

// Hub tracks which connections joined which account rooms. Delivery never
// blocks: a connection whose queue is full misses the event.
type Hub struct {
	mu     sync.RWMutex
	rooms  map[int]map[string]*Conn
	joined map[string]map[int]struct{}
	relay  *Relay
	logger *slog.Logger
}

// NewHub returns an empty hub.
func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		rooms:  make(map[int]map[string]*Conn),
		joined: make(map[string]map[int]struct{}),
		logger: logger,
	}
}

// Join adds c to the room of accountID. Joining twice is a no-op.
func (h *Hub) Join(c *Conn, accountID int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	room, ok := h.rooms[accountID]
	if !ok {
		room = make(map[string]*Conn)
		h.rooms[accountID] = room
	}
	room[c.id] = c
	rooms, ok := h.joined[c.id]
	if !ok {
		rooms = make(map[int]struct{})
		h.joined[c.id] = rooms
	}
	rooms[accountID] = struct{}{}
}

// Leave removes c from every room it joined.
func (h *Hub) Leave(c *Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for accountID := range h.joined[c.id] {
		room := h.rooms[accountID]
		delete(room, c.id)
		if len(room) == 0 {
			delete(h.rooms, accountID)
		}
	}
	delete(h.joined, c.id)
}

// InRoom reports whether c joined the room of accountID.
func (h *Hub) InRoom(c *Conn, accountID int) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.joined[c.id][accountID]
	return ok
}

// Members returns the number of local connections in the room of accountID.
func (h *Hub) Members(accountID int) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[accountID])
}

// Publish sends event to every connection in the room of accountID except
// the connection whose id is except, and forwards it to peer instances when
// a relay is attached.
func (h *Hub) Publish(accountID int, event string, payload any, except string) {
	frame, err := encodeFrame(event, payload)
	if err != nil {
		h.logger.Error("failed to encode realtime event", "event", event, "account_id", accountID, "error", err)
		return
	}
	h.deliver(accountID, frame, except)

	h.mu.RLock()
	relay := h.relay
	h.mu.RUnlock()
	if relay != nil {
		relay.forward(relayMessage{AccountID: accountID, Except: except, Frame: frame})
	}
}

// Broadcast sends event to the whole room of accountID.
func (h *Hub) Broadcast(accountID int, event string, payload any) {
	h.Publish(accountID, event, payload, "")
}

// deliver enqueues frame on local connections and returns how many accepted it.
func (h *Hub) deliver(accountID int, frame []byte, except string) int {
	h.mu.RLock()
	targets := make([]*Conn, 0, len(h.rooms[accountID]))
	for id, c := range h.rooms[accountID] {
		if id != except {
			targets = append(targets, c)
		}
	}
	h.mu.RUnlock()

	delivered := 0
	for _, c := range targets {
		if c.enqueue(frame) {
			delivered++
			continue
		}
		h.logger.Debug("dropped realtime event", "conn_id", c.id, "account_id", accountID)
	}
	return delivered
}

func (h *Hub) attach(r *Relay) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.relay = r
}
