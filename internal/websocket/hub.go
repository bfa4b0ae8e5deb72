package websocket

import (
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/dukerupert/taskpay/internal/model"
)

const (
	TypeTaskSnapshot = "task_snapshot"
	TypeRate         = "rate"
	TypeError        = "error"
)

// Message is one frame sent to a client.
type Message struct {
	Type    string `json:"type"`
	ChildID string `json:"child_id,omitempty"`
	Data    any    `json:"data,omitempty"`
}

// SnapshotMessage carries a child's full task list. An empty list is sent
// as [] so clients can clear their view.
func SnapshotMessage(childID string, tasks []model.Task) Message {
	if tasks == nil {
		tasks = []model.Task{}
	}
	return Message{Type: TypeTaskSnapshot, ChildID: childID, Data: tasks}
}

func RateMessage(r model.Rate) Message {
	return Message{Type: TypeRate, Data: r}
}

// Hub maintains the set of active WebSocket clients and broadcasts messages.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]struct{}
	logger  *slog.Logger
}

// NewHub creates a new Hub.
func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		clients: make(map[*Client]struct{}),
		logger:  logger,
	}
}

// Register adds a client to the hub.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
}

// Unregister removes a client from the hub and closes its send channel.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
}

// Broadcast sends a message to every connected client. Clients with a full
// buffer miss it.
func (h *Hub) Broadcast(msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("marshal broadcast", "error", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for c := range h.clients {
		select {
		case c.send <- data:
		default:
		}
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// WatcherCount returns how many clients follow childID.
func (h *Hub) WatcherCount(childID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	n := 0
	for c := range h.clients {
		if c.childID == childID {
			n++
		}
	}
	return n
}
