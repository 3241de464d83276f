package ws

import (
	"encoding/json"
	"sync"

	"raid_backend/internal/logger"
)

// Event types pushed to room subscribers.
const (
	EventGuestJoined    = "guest_joined"
	EventBattleStarted  = "battle_started"
	EventBattleFinished = "battle_finished"
	EventRoomExpired    = "room_expired"
)

// Event is one room lifecycle notification.
type Event struct {
	Type    string      `json:"type"`
	RoomID  string      `json:"room_id"`
	Payload interface{} `json:"payload,omitempty"`
}

// Hub fans room events out to websocket subscribers. It carries no game
// state: rooms live in the database, the hub only mirrors their lifecycle
// to connected spectators and participants.
type Hub struct {
	mu    sync.RWMutex
	rooms map[string]map[*Client]struct{}
}

func NewHub() *Hub {
	return &Hub{rooms: make(map[string]map[*Client]struct{})}
}

// Subscribe attaches a client to a room's event stream.
func (h *Hub) Subscribe(roomID string, c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.rooms[roomID] == nil {
		h.rooms[roomID] = make(map[*Client]struct{})
	}
	h.rooms[roomID][c] = struct{}{}
}

// Unsubscribe detaches a client; the room's set is dropped when empty.
func (h *Hub) Unsubscribe(roomID string, c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if subs, ok := h.rooms[roomID]; ok {
		delete(subs, c)
		if len(subs) == 0 {
			delete(h.rooms, roomID)
		}
	}
}

// Publish sends an event to every subscriber of a room. A subscriber with
// a full send buffer is dropped rather than blocking the publisher.
func (h *Hub) Publish(roomID string, eventType string, payload interface{}) {
	data, err := json.Marshal(Event{Type: eventType, RoomID: roomID, Payload: payload})
	if err != nil {
		logger.Error("failed to marshal room event", "room_id", roomID, "type", eventType)
		return
	}

	h.mu.RLock()
	subs := make([]*Client, 0, len(h.rooms[roomID]))
	for c := range h.rooms[roomID] {
		subs = append(subs, c)
	}
	h.mu.RUnlock()

	for _, c := range subs {
		select {
		case c.Send <- data:
		default:
			logger.Warn("dropping slow room subscriber", "room_id", roomID)
			c.Close()
			h.Unsubscribe(roomID, c)
		}
	}
}

// Subscribers reports how many clients are watching a room.
func (h *Hub) Subscribers(roomID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[roomID])
}
