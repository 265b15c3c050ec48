// Package notify pushes engine events to connected websocket clients. Delivery
// is fire-and-forget: a slow or dead client is dropped, and nothing here can
// fail the operation that produced the event.
package notify

import (
	"encoding/json"
	"log"
	"time"
)

// EventType identifies a hub payload.
type EventType string

const (
	EventMaterialRequestCreated  EventType = "MaterialRequestCreated"
	EventMaterialRequestApproved EventType = "MaterialRequestApproved"
	EventMaterialRequestRejected EventType = "MaterialRequestRejected"
	EventTaskCostsRecalculated   EventType = "TaskCostsRecalculated"
	EventStockBelowMinimum       EventType = "StockBelowMinimum"
)

// Event is the envelope broadcast to clients.
type Event struct {
	Type      EventType   `json:"type"`
	Payload   interface{} `json:"payload"`
	Timestamp string      `json:"timestamp"`
}

// Hub manages active clients and broadcasts.
type Hub struct {
	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	broadcast  chan []byte
}

// NewHub builds a new Hub.
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan []byte),
	}
}

// Run starts the hub loop.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.clients[client] = true
		case client := <-h.unregister:
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.Send)
			}
		case message := <-h.broadcast:
			for client := range h.clients {
				select {
				case client.Send <- message:
				default:
					delete(h.clients, client)
					close(client.Send)
				}
			}
		}
	}
}

// Register adds a client to the hub.
func (h *Hub) Register(c *Client) {
	h.register <- c
}

// Unregister removes a client from the hub.
func (h *Hub) Unregister(c *Client) {
	h.unregister <- c
}

// Broadcast sends a raw payload to all clients.
func (h *Hub) Broadcast(payload []byte) {
	h.broadcast <- payload
}

// Publish marshals and broadcasts a typed event.
func (h *Hub) Publish(eventType EventType, payload interface{}) {
	event := Event{
		Type:      eventType,
		Payload:   payload,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}

	data, err := json.Marshal(event)
	if err != nil {
		log.Printf("notify: failed to marshal %s event: %v", eventType, err)
		return
	}

	h.broadcast <- data
}
