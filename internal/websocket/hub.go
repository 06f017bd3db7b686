// Package websocket pushes engine status changes and job lifecycle events
// to connected browser sessions, so dashboards update without polling.
package websocket

import (
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/oakmont/sitekeeper/internal/engine"
)

// Message is a real-time event broadcast to all clients.
type Message struct {
	Type    string `json:"type"`
	JobID   int64  `json:"job_id,omitempty"`
	Payload any    `json:"payload,omitempty"`
}

// StatusMessage wraps an engine status snapshot for broadcast.
func StatusMessage(st engine.Status) Message {
	return Message{Type: "engine_status", JobID: st.JobID, Payload: st}
}

// JobMessage announces a job lifecycle event such as job_created or
// job_completed.
func JobMessage(event string, jobID int64) Message {
	return Message{Type: event, JobID: jobID}
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

// Broadcast sends a message to all connected clients.
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
			// Client buffer full — drop message to avoid blocking
		}
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
