package ws

import (
	"sync"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"streetlight_monitor/internal/logging"
)

// Client represents a connected WebSocket client. A client without
// subscriptions receives every area.
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte

	mu    sync.RWMutex
	areas map[string]bool
}

func newClient(hub *Hub, conn *websocket.Conn) *Client {
	return &Client{hub: hub, conn: conn, send: make(chan []byte, 256), areas: map[string]bool{}}
}

func (c *Client) Subscribe(area string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.areas[area] = true
}

func (c *Client) Unsubscribe(area string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.areas, area)
}

// Wants reports whether messages of area go to this client.
func (c *Client) Wants(area string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.areas) == 0 || c.areas[area]
}

// Hub manages WebSocket clients and broadcasts messages.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]bool
	log     zerolog.Logger
}

func NewHub() *Hub {
	return &Hub{
		clients: make(map[*Client]bool),
		log:     logging.Component("ws"),
	}
}

func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c] = true
}

func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
}

// Broadcast sends a message of area to every interested client.
func (h *Hub) Broadcast(area string, msg []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		if !c.Wants(area) {
			continue
		}
		select {
		case c.send <- msg:
		default:
			h.log.Warn().Str("area", area).Msg("client buffer full, dropping message")
		}
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (c *Client) writePump() {
	defer c.conn.Close()
	for msg := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			return
		}
	}
}
