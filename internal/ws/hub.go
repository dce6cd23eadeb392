package ws

import (
	"encoding/json"
	"log/slog"
	"sync"

	"OmniHub/entity"
)

// Event represents a WebSocket event sent to live subscribers.
type Event struct {
	Type string      `json:"type"` // "message.new", "message.status", "thread.updated", "task.updated"
	Data interface{} `json:"data"`
}

// Hub maintains the set of active WebSocket clients and broadcasts
// persisted conversation changes to them.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan *Event
	register   chan *Client
	unregister chan *Client
	mu         sync.RWMutex
	log        *slog.Logger
}

// NewHub creates a new Hub instance.
func NewHub(log *slog.Logger) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan *Event, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		log:        log,
	}
}

// Run starts the hub's event loop. Should be called in a goroutine.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			h.mu.Unlock()

		case event := <-h.broadcast:
			data, err := json.Marshal(event)
			if err != nil {
				continue
			}
			// Slow clients are evicted here, so this branch mutates the
			// map and needs the write lock.
			h.mu.Lock()
			for client := range h.clients {
				select {
				case client.send <- data:
				default:
					close(client.send)
					delete(h.clients, client)
				}
			}
			h.mu.Unlock()
		}
	}
}

// BroadcastMessage sends a message.new event to all connected clients.
func (h *Hub) BroadcastMessage(msg entity.Message) {
	h.broadcast <- &Event{
		Type: "message.new",
		Data: msg,
	}
}

// BroadcastStatus sends a message.status event to all connected clients.
func (h *Hub) BroadcastStatus(messageID, remoteID, status string) {
	h.broadcast <- &Event{
		Type: "message.status",
		Data: map[string]string{
			"message_id": messageID,
			"remote_id":  remoteID,
			"status":     status,
		},
	}
}

// BroadcastThread sends a thread.updated event to all connected clients.
func (h *Hub) BroadcastThread(thread entity.Thread) {
	h.broadcast <- &Event{
		Type: "thread.updated",
		Data: thread,
	}
}

// BroadcastTask sends a task.updated event to all connected clients.
func (h *Hub) BroadcastTask(task entity.Task) {
	h.broadcast <- &Event{
		Type: "task.updated",
		Data: task,
	}
}
