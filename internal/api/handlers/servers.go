package handlers

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Yupick/mc-simple/internal/rcon"
	"github.com/Yupick/mc-simple/internal/server"
	ws "github.com/Yupick/mc-simple/internal/websocket"
)

// Supervisor is the process supervisor as seen by the API.
type Supervisor interface {
	ServerID() string
	GetStatus(ctx context.Context) (server.Status, error)
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Restart(ctx context.Context) error
	SendCommand(ctx context.Context, text string) (string, error)
	TailLogs(n int) ([]string, error)
}

// PlayerLister returns the online players.
type PlayerLister interface {
	List(ctx context.Context) (rcon.PlayerList, string, error)
}

// EventLister returns recorded lifecycle events, newest first.
type EventLister interface {
	ListEvents(ctx context.Context, serverID string, limit int) ([]server.Event, error)
}

// CommandRequest is the body of POST /server/command.
type CommandRequest struct {
	Command string `json:"command" binding:"required"`
}

// ServerHandler serves the lifecycle, console and status endpoints.
type ServerHandler struct {
	supervisor Supervisor
	players    PlayerLister
	events     EventLister
	hub        *ws.Hub
	opTimeout  time.Duration
	baseCtx    context.Context
	pendingOps sync.WaitGroup
}

// NewServerHandler creates a handler. players, events and hub may be nil.
// opTimeout bounds each lifecycle operation.
func NewServerHandler(ctx context.Context, sup Supervisor, players PlayerLister, events EventLister, hub *ws.Hub, opTimeout time.Duration) *ServerHandler {
	if opTimeout <= 0 {
		opTimeout = 2 * time.Minute
	}
	return &ServerHandler{
		supervisor: sup,
		players:    players,
		events:     events,
		hub:        hub,
		opTimeout:  opTimeout,
		baseCtx:    ctx,
	}
}

// GetStatus probes the server.
func (h *ServerHandler) GetStatus(c *gin.Context) {
	st, err := h.supervisor.GetStatus(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

func (h *ServerHandler) StartServer(c *gin.Context) {
	h.lifecycle(c, server.ActionStart, h.supervisor.Start)
}

func (h *ServerHandler) StopServer(c *gin.Context) {
	h.lifecycle(c, server.ActionStop, h.supervisor.Stop)
}

func (h *ServerHandler) RestartServer(c *gin.Context) {
	h.lifecycle(c, server.ActionRestart, h.supervisor.Restart)
}

// lifecycle runs op synchronously, or in the background with ?async=true.
// Background operations outlive the request but not the server.
func (h *ServerHandler) lifecycle(c *gin.Context, action server.Action, op func(context.Context) error) {
	serverID := h.supervisor.ServerID()
	subject := c.GetString("subject")

	if c.Query("async") == "true" {
		h.pendingOps.Add(1)
		go func() {
			defer h.pendingOps.Done()
			ctx, cancel := context.WithTimeout(h.baseCtx, h.opTimeout)
			defer cancel()
			err := op(ctx)
			if err != nil {
				log.Printf("[API] %s of %s requested by %s failed: %v", action, serverID, subject, err)
			} else {
				log.Printf("[API] %s of %s requested by %s completed", action, serverID, subject)
			}
			if h.hub != nil {
				h.hub.Publish(serverID, ws.TypeOperation, gin.H{"action": action, "result": server.NewResult(action, err)})
			}
		}()

		c.JSON(http.StatusAccepted, gin.H{"message": "Server " + string(action) + " initiated", "server_id": serverID})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), h.opTimeout)
	defer cancel()

	log.Printf("[API] %s of %s requested by %s", action, serverID, subject)
	if err := op(ctx); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, server.NewResult(action, nil))
}

// ExecuteCommand sends a console command over RCON.
func (h *ServerHandler) ExecuteCommand(c *gin.Context) {
	var req CommandRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Command) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "command is required"})
		return
	}

	log.Printf("[API] Command from %s: %s", c.GetString("subject"), req.Command)
	out, err := h.supervisor.SendCommand(c.Request.Context(), req.Command)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, server.NewCommandResult(out, nil))
}

// GetLogs returns the tail of the server log, optionally narrowed with
// ?filter=problems|search|regex and ?q=.
func (h *ServerHandler) GetLogs(c *gin.Context) {
	lines := 0
	if raw := c.Query("lines"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "lines must be a number"})
			return
		}
		lines = n
	}

	filter, err := server.NewLogFilter(c.Query("filter"), c.Query("q"), c.Query("case") == "true")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	out, err := h.supervisor.TailLogs(lines)
	if err != nil {
		respondError(c, err)
		return
	}
	out = filter.Apply(out)
	c.JSON(http.StatusOK, gin.H{"lines": out, "count": len(out)})
}

// GetPlayers lists online players. When the reply cannot be parsed the raw
// text is returned instead.
func (h *ServerHandler) GetPlayers(c *gin.Context) {
	if h.players == nil {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "player listing not configured"})
		return
	}

	list, raw, err := h.players.List(c.Request.Context())
	if err != nil {
		if errors.Is(err, rcon.ErrUnrecognizedList) {
			c.JSON(http.StatusOK, gin.H{"parsed": false, "raw": raw})
			return
		}
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"parsed": true, "online": list.Online, "max": list.Max, "players": list.Players, "raw": raw})
}

// GetEvents returns recent lifecycle events.
func (h *ServerHandler) GetEvents(c *gin.Context) {
	if h.events == nil {
		c.JSON(http.StatusOK, gin.H{"events": []server.Event{}})
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	events, err := h.events.ListEvents(c.Request.Context(), h.supervisor.ServerID(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load events", "details": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": events})
}

// WaitForCompletion blocks until background lifecycle operations finish.
func (h *ServerHandler) WaitForCompletion() {
	h.pendingOps.Wait()
}
