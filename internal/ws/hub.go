// Package ws streams live conversation activity to connected monitor
// clients: every logged message and every session status change.
package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"WhatsFlow/entity"
)

// Event represents a WebSocket event sent to monitor clients.
type Event struct {
	Type string      `json:"type"` // "message", "session"
	Data interface{} `json:"data"`
}

// Hub maintains the set of active WebSocket clients and broadcasts events.
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
			h.mu.RLock()
			for client := range h.clients {
				select {
				case client.send <- data:
				default:
					close(client.send)
					delete(h.clients, client)
				}
			}
			h.mu.RUnlock()
		}
	}
}

// Record broadcasts a logged message to monitor clients. Satisfies the
// pipeline's recorder contract so the hub can sit behind the same hook
// as the durable log.
func (h *Hub) Record(_ context.Context, msg *entity.Message) error {
	h.broadcast <- &Event{
		Type: "message",
		Data: msg,
	}
	return nil
}

// BroadcastSession sends a session status change to monitor clients.
func (h *Hub) BroadcastSession(phone, flowName, status string) {
	h.broadcast <- &Event{
		Type: "session",
		Data: map[string]string{
			"phone_number": phone,
			"flow":         flowName,
			"status":       status,
		},
	}
}
