package websocket

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
)

// Message represents a real-time change notification broadcast to the
// clients of one team.
type Message struct {
	Type   string         `json:"type"`
	Entity string         `json:"entity"`
	Action string         `json:"action"`
	ID     int64          `json:"id,omitempty"`
	Extra  map[string]any `json:"extra,omitempty"`
}

// NewMessage creates a Message with the Type field derived from entity and action.
func NewMessage(entity, action string, id int64, extra map[string]any) Message {
	return Message{
		Type:   fmt.Sprintf("%s_%s", entity, action),
		Entity: entity,
		Action: action,
		ID:     id,
		Extra:  extra,
	}
}

// Hub maintains the set of active WebSocket clients grouped by team and
// broadcasts messages within a team only. Connections from different teams
// never see each other's traffic.
type Hub struct {
	mu      sync.RWMutex
	clients map[int64]map[*Client]struct{}
	logger  *slog.Logger
}

// NewHub creates a new Hub.
func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		clients: make(map[int64]map[*Client]struct{}),
		logger:  logger,
	}
}

// Register adds a client to its team's room.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	room, ok := h.clients[c.teamID]
	if !ok {
		room = make(map[*Client]struct{})
		h.clients[c.teamID] = room
	}
	room[c] = struct{}{}
	h.mu.Unlock()
}

// Unregister removes a client from its room and closes its send channel.
// Empty rooms are removed.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	if room, ok := h.clients[c.teamID]; ok {
		if _, ok := room[c]; ok {
			delete(room, c)
			close(c.send)
		}
		if len(room) == 0 {
			delete(h.clients, c.teamID)
		}
	}
	h.mu.Unlock()
}

// BroadcastTeam sends a message to every client of the given team.
func (h *Hub) BroadcastTeam(teamID int64, msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("marshal broadcast", "error", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for c := range h.clients[teamID] {
		select {
		case c.send <- data:
		default:
			// Client buffer full — drop message to avoid blocking
		}
	}
}

// NotifyTeam is a convenience wrapper for id-less entity notifications.
func (h *Hub) NotifyTeam(teamID int64, entity, action string) {
	h.BroadcastTeam(teamID, NewMessage(entity, action, 0, nil))
}

// ClientCount returns the number of connected clients for a team.
func (h *Hub) ClientCount(teamID int64) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[teamID])
}
