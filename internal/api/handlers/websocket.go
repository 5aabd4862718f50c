package handlers

import (
	"context"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	ws "github.com/Yupick/mc-simple/internal/websocket"
)

// StreamHandler upgrades clients to the status/event stream.
type StreamHandler struct {
	supervisor     Supervisor
	hub            *ws.Hub
	allowedOrigins []string
}

// NewStreamHandler wires the hub so new clients receive the current status
// and can ask for it again with a "get_status" message.
func NewStreamHandler(sup Supervisor, hub *ws.Hub, allowedOrigins []string) *StreamHandler {
	h := &StreamHandler{supervisor: sup, hub: hub, allowedOrigins: allowedOrigins}
	hub.OnConnect = func(c *ws.Client) {
		go h.sendStatus(c)
	}
	hub.OnMessage = func(c *ws.Client, msg *ws.Message) {
		switch msg.Type {
		case "get_status":
			go h.sendStatus(c)
		default:
			c.SendMessage(ws.TypeError, gin.H{"error": "unsupported message type " + msg.Type})
		}
	}
	return h
}

func (h *StreamHandler) sendStatus(c *ws.Client) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	st, err := h.supervisor.GetStatus(ctx)
	if err != nil {
		c.SendMessage(ws.TypeError, gin.H{"error": err.Error()})
		return
	}
	c.SendMessage(ws.TypeServerStatus, st)
}

// Handle upgrades the request and subscribes the client to the server's room.
func (h *StreamHandler) Handle(c *gin.Context) {
	upgrader := buildUpgrader(h.allowedOrigins)
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("[API] Failed to upgrade WebSocket: %v (origin=%s)", err, c.Request.Header.Get("Origin"))
		return
	}

	client := ws.NewClient(h.hub, conn, h.supervisor.ServerID(), c.GetString("subject"))
	h.hub.Register <- client

	go client.WritePump()
	go client.ReadPump()
}

func buildUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			return isOriginAllowed(r.Header.Get("Origin"), allowedOrigins)
		},
	}
}

func isOriginAllowed(origin string, allowedOrigins []string) bool {
	if origin == "" {
		return true
	}

	for _, allowedOrigin := range allowedOrigins {
		normalized := strings.TrimSpace(allowedOrigin)
		if normalized == "" {
			continue
		}
		if normalized == "*" || normalized == origin {
			return true
		}
	}

	return false
}
