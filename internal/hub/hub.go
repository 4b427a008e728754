// Package hub fans orchestrator events out to Server-Sent Events
// subscribers: global view changes, request lifecycle transitions and
// deployment batch progress. Clients that cannot keep up are dropped
// rather than allowed to stall the pipeline behind them.
package hub

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
)

// NamedEvent lets an event choose its SSE event name. Events without a
// name are sent as plain data frames.
type NamedEvent interface {
	EventName() string
}

// slowFrameLimit is how many consecutive frames a client may miss
// before it is disconnected.
const slowFrameLimit = 32

// Client represents a connected SSE client
type Client struct {
	id     string
	events chan []byte
	missed int
}

// Hub manages SSE client connections
type Hub struct {
	mu         sync.RWMutex
	clients    map[*Client]struct{}
	lastByName map[string][]byte
	seq        uint64
	register   chan *Client
	unregister chan *Client
	broadcast  chan interface{}
}

// New creates a new Hub
func New() *Hub {
	return &Hub{
		clients:    make(map[*Client]struct{}),
		lastByName: make(map[string][]byte),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan interface{}, 256),
	}
}

// frame renders one SSE frame. Named events carry an event field so
// browsers can addEventListener per orchestrator event type.
func (h *Hub) frame(event interface{}) (name string, msg []byte, err error) {
	data, err := json.Marshal(event)
	if err != nil {
		return "", nil, err
	}
	h.seq++
	if named, ok := event.(NamedEvent); ok {
		name = named.EventName()
		return name, []byte(fmt.Sprintf("id: %d\nevent: %s\ndata: %s\n\n", h.seq, name, data)), nil
	}
	return "", []byte(fmt.Sprintf("id: %d\ndata: %s\n\n", h.seq, data)), nil
}

// Run starts the hub's event loop
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = struct{}{}
			// Replay the latest frame of every event type so a fresh
			// dashboard sees current state without waiting for churn.
			for _, msg := range h.lastByName {
				select {
				case client.events <- msg:
				default:
				}
			}
			h.mu.Unlock()
			log.Printf("SSE client connected: %s (total: %d)", client.id, h.ClientCount())

		case client := <-h.unregister:
			h.drop(client)
			log.Printf("SSE client disconnected: %s (total: %d)", client.id, h.ClientCount())

		case event := <-h.broadcast:
			h.mu.Lock()
			name, msg, err := h.frame(event)
			if err != nil {
				h.mu.Unlock()
				log.Printf("Failed to marshal event: %v", err)
				continue
			}
			if name != "" {
				h.lastByName[name] = msg
			}
			var evict []*Client
			for client := range h.clients {
				select {
				case client.events <- msg:
					client.missed = 0
				default:
					client.missed++
					if client.missed >= slowFrameLimit {
						evict = append(evict, client)
					}
				}
			}
			h.mu.Unlock()
			for _, client := range evict {
				log.Printf("SSE client %s fell %d frames behind, dropping", client.id, client.missed)
				h.drop(client)
			}
		}
	}
}

func (h *Hub) drop(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		close(client.events)
	}
}

// Broadcast sends an event to all connected clients
func (h *Hub) Broadcast(event interface{}) {
	select {
	case h.broadcast <- event:
	default:
		log.Println("Broadcast channel full, dropping event")
	}
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// ServeHTTP handles SSE connections
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "SSE not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering

	client := &Client{
		id:     uuid.NewString(),
		events: make(chan []byte, 64),
	}

	h.register <- client
	defer func() {
		h.unregister <- client
	}()

	fmt.Fprintf(w, ": connected\n\n")
	flusher.Flush()

	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-client.events:
			if !ok {
				return
			}
			if _, err := w.Write(msg); err != nil {
				return
			}
			flusher.Flush()

		case <-ticker.C:
			if _, err := fmt.Fprintf(w, ": keepalive\n\n"); err != nil {
				return
			}
			flusher.Flush()

		case <-r.Context().Done():
			return
		}
	}
}
