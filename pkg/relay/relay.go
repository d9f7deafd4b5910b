// Package relay pushes connection lifecycle events to the web clients that
// are watching a session. Each WebSocket client subscribes to exactly one
// session id; lifecycle callbacks publish without ever blocking on a slow
// client.
package relay

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gofiber/websocket/v2"

	"wablast/pkg/log"
)

const (
	EventQR            = "qr"
	EventAuthenticated = "authenticated"
	EventReady         = "ready"
	EventDisconnected  = "disconnected"
	EventAuthFailure   = "auth_failure"
)

type Event struct {
	SessionID string      `json:"-"`
	Type      string      `json:"event"`
	Payload   interface{} `json:"payload,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// Publisher is the surface the connection handles depend on, so the core does
// not import the hub directly and tests can capture events.
type Publisher interface {
	Publish(event Event)
}

// Client is one WebSocket connection scoped to a session.
type Client struct {
	hub       *Hub
	conn      *websocket.Conn
	sessionID string
	send      chan Event
}

// Hub tracks the active clients and fans session events out to them.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]bool

	register   chan *Client
	unregister chan *Client
	broadcast  chan Event
}

func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan Event, 256),
	}
}

// Run owns all mutations of the client set. It must run in its own goroutine
// for the lifetime of the process.
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
			h.mu.Lock()
			for client := range h.clients {
				if client.sessionID != event.SessionID {
					continue
				}
				select {
				case client.send <- event:
				default:
					// Full buffer means the client stopped reading.
					close(client.send)
					delete(h.clients, client)
				}
			}
			h.mu.Unlock()
		}
	}
}

func (h *Hub) Register(client *Client) {
	h.register <- client
}

func (h *Hub) Unregister(client *Client) {
	h.unregister <- client
}

// Publish implements Publisher. Events without a timestamp get one here.
func (h *Hub) Publish(event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	h.broadcast <- event
}

// Watchers reports how many clients are subscribed to a session.
func (h *Hub) Watchers(sessionID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for client := range h.clients {
		if client.sessionID == sessionID {
			n++
		}
	}
	return n
}

func NewClient(hub *Hub, conn *websocket.Conn, sessionID string) *Client {
	return &Client{
		hub:       hub,
		conn:      conn,
		sessionID: sessionID,
		send:      make(chan Event, 64),
	}
}

// WritePump drains the send channel into the WebSocket connection. It returns
// when the hub closes the channel or a write fails.
func (c *Client) WritePump() {
	defer func() {
		_ = c.conn.Close()
	}()

	for event := range c.send {
		payload, err := json.Marshal(event)
		if err != nil {
			log.Session(c.sessionID).WithError(err).Error("Failed to marshal relay event")
			continue
		}

		_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			c.hub.Unregister(c)
			return
		}
	}
}

// ReadPump consumes (and discards) inbound frames so close frames and pongs
// are processed, then unregisters the client.
func (c *Client) ReadPump() {
	defer func() {
		c.hub.Unregister(c)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(512)
	_ = c.conn.SetReadDeadline(time.Now().Add(24 * time.Hour))

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}
