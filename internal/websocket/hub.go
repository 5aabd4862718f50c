package websocket

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Message types pushed to clients.
const (
	TypeServerStatus   = "server_status"
	TypeLifecycleEvent = "lifecycle_event"
	TypeOperation      = "operation_result"
	TypePong           = "pong"
	TypeError          = "error"
)

const (
	sendBufferSize = 256
	pongWait       = 60 * time.Second
	pingPeriod     = 54 * time.Second
	writeWait      = 10 * time.Second
	maxMessageSize = 4096
)

// Message represents a WebSocket message
type Message struct {
	Type      string      `json:"type"`
	Payload   interface{} `json:"payload,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// Client represents a WebSocket client connection
type Client struct {
	ID      string
	Subject string
	Conn    *websocket.Conn
	Room    string
	Send    chan *Message
	Hub     *Hub
	mu      sync.Mutex
	closed  bool
}

// NewClient creates a client subscribed to room.
func NewClient(hub *Hub, conn *websocket.Conn, room, subject string) *Client {
	return &Client{
		ID:      uuid.New().String(),
		Subject: subject,
		Conn:    conn,
		Room:    room,
		Send:    make(chan *Message, sendBufferSize),
		Hub:     hub,
	}
}

// Hub fans server status and lifecycle events out to subscribed clients.
// Rooms are keyed by server id.
type Hub struct {
	rooms map[string]map[*Client]bool

	Register   chan *Client
	Unregister chan *Client

	broadcast chan *BroadcastMessage

	clients map[string]*Client

	// OnConnect runs on the hub goroutine after a client joins.
	OnConnect func(*Client)
	// OnMessage handles client messages other than ping.
	OnMessage func(*Client, *Message)

	mu sync.RWMutex
}

// BroadcastMessage represents a message to broadcast to a room
type BroadcastMessage struct {
	Room    string
	Message *Message
}

// NewHub creates a new WebSocket hub
func NewHub() *Hub {
	return &Hub{
		rooms:      make(map[string]map[*Client]bool),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		broadcast:  make(chan *BroadcastMessage, 256),
		clients:    make(map[string]*Client),
	}
}

// Run starts the hub's main loop
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case client := <-h.Register:
			h.registerClient(client)

		case client := <-h.Unregister:
			h.unregisterClient(client)

		case message := <-h.broadcast:
			h.broadcastToRoom(message)

		case <-ctx.Done():
			log.Println("[WebSocket] Hub shutting down")
			h.shutdown()
			return
		}
	}
}

func (h *Hub) registerClient(client *Client) {
	h.mu.Lock()
	h.clients[client.ID] = client
	if h.rooms[client.Room] == nil {
		h.rooms[client.Room] = make(map[*Client]bool)
	}
	h.rooms[client.Room][client] = true
	size := len(h.rooms[client.Room])
	h.mu.Unlock()

	log.Printf("[WebSocket] Client %s (subject=%s) subscribed to %s. Subscribers: %d",
		client.ID, client.Subject, client.Room, size)

	if h.OnConnect != nil {
		h.OnConnect(client)
	}
}

func (h *Hub) unregisterClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	delete(h.clients, client.ID)

	if clients, ok := h.rooms[client.Room]; ok {
		if _, ok := clients[client]; ok {
			delete(clients, client)
			client.closeSend()

			if len(clients) == 0 {
				delete(h.rooms, client.Room)
			}
			log.Printf("[WebSocket] Client %s unsubscribed from %s. Subscribers: %d",
				client.ID, client.Room, len(clients))
		}
	}
}

func (h *Hub) broadcastToRoom(bm *BroadcastMessage) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for client := range h.rooms[bm.Room] {
		if err := client.enqueue(bm.Message); err != nil {
			log.Printf("[WebSocket] Client %s: %v, dropping %s", client.ID, err, bm.Message.Type)
		}
	}
}

// GetRoomSize returns the number of clients in a room
func (h *Hub) GetRoomSize(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return len(h.rooms[room])
}

// Publish queues a message for every client in room. It never blocks; when
// the hub is backlogged the message is dropped.
func (h *Hub) Publish(room, msgType string, payload interface{}) {
	msg := &Message{Type: msgType, Payload: payload, Timestamp: time.Now()}
	select {
	case h.broadcast <- &BroadcastMessage{Room: room, Message: msg}:
	default:
		log.Printf("[WebSocket] Broadcast queue full, dropping %s for %s", msgType, room)
	}
}

func (h *Hub) shutdown() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, client := range h.clients {
		client.closeSend()
		if client.Conn != nil {
			client.Conn.Close()
		}
	}

	h.rooms = make(map[string]map[*Client]bool)
	h.clients = make(map[string]*Client)
}

// ReadPump pumps messages from WebSocket connection to hub
func (c *Client) ReadPump() {
	defer func() {
		c.Hub.Unregister <- c
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(maxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("[WebSocket] Read error: %v", err)
			}
			break
		}

		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			c.SendMessage(TypeError, map[string]string{"error": "invalid message"})
			continue
		}
		msg.Timestamp = time.Now()

		switch {
		case msg.Type == "ping":
			c.SendMessage(TypePong, nil)
		case c.Hub.OnMessage != nil:
			c.Hub.OnMessage(c, &msg)
		default:
			c.SendMessage(TypeError, map[string]string{"error": fmt.Sprintf("unsupported message type %q", msg.Type)})
		}
	}
}

// WritePump pumps messages from hub to WebSocket connection
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Hub closed the channel
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.Conn.WriteJSON(message); err != nil {
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// SendMessage sends a message to this specific client
func (c *Client) SendMessage(msgType string, payload interface{}) error {
	return c.enqueue(&Message{
		Type:      msgType,
		Payload:   payload,
		Timestamp: time.Now(),
	})
}

func (c *Client) enqueue(msg *Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return fmt.Errorf("client send channel is closed")
	}

	select {
	case c.Send <- msg:
		return nil
	default:
		return fmt.Errorf("client send channel is full")
	}
}

func (c *Client) closeSend() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.Send)
	}
}
