package handlers

import (
	"context"
	"log"
	"net"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Yupick/mc-simple/internal/rcon"
	"github.com/Yupick/mc-simple/internal/server"
)

// PlayerActionRequest is the body of kick, ban, op and whitelist requests.
// Bans take either Player or IP.
type PlayerActionRequest struct {
	Player string `json:"player"`
	IP     string `json:"ip"`
	Reason string `json:"reason"`
}

// WhitelistModeRequest switches enforcement on or off.
type WhitelistModeRequest struct {
	Enabled *bool `json:"enabled" binding:"required"`
}

// SayRequest is a chat broadcast.
type SayRequest struct {
	Message string `json:"message" binding:"required"`
}

// ModerationHandler turns player management requests into validated console
// commands sent through the supervisor.
type ModerationHandler struct {
	supervisor Supervisor
}

func NewModerationHandler(sup Supervisor) *ModerationHandler {
	return &ModerationHandler{supervisor: sup}
}

func (h *ModerationHandler) run(c *gin.Context, build func() (string, error)) {
	exec := rcon.ExecutorFunc(func(ctx context.Context, command string) (string, error) {
		log.Printf("[API] Moderation command from %s: %s", c.GetString("subject"), command)
		return h.supervisor.SendCommand(ctx, command)
	})

	out, err := rcon.Run(c.Request.Context(), exec, build)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, server.NewCommandResult(out, nil))
}

func bindPlayerAction(c *gin.Context) (PlayerActionRequest, bool) {
	var req PlayerActionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "invalid request body"})
		return req, false
	}
	return req, true
}

// Kick removes an online player.
func (h *ModerationHandler) Kick(c *gin.Context) {
	req, ok := bindPlayerAction(c)
	if !ok {
		return
	}
	h.run(c, func() (string, error) { return rcon.Kick(req.Player, req.Reason) })
}

// Ban bans a player name, or an address when ip is set.
func (h *ModerationHandler) Ban(c *gin.Context) {
	req, ok := bindPlayerAction(c)
	if !ok {
		return
	}
	if req.IP != "" {
		h.run(c, func() (string, error) { return rcon.BanIP(req.IP, req.Reason) })
		return
	}
	h.run(c, func() (string, error) { return rcon.Ban(req.Player, req.Reason) })
}

// Pardon lifts a ban. The target is an address or a player name.
func (h *ModerationHandler) Pardon(c *gin.Context) {
	target := c.Param("target")
	if net.ParseIP(target) != nil {
		h.run(c, func() (string, error) { return rcon.PardonIP(target) })
		return
	}
	h.run(c, func() (string, error) { return rcon.Pardon(target) })
}

func (h *ModerationHandler) Op(c *gin.Context) {
	req, ok := bindPlayerAction(c)
	if !ok {
		return
	}
	h.run(c, func() (string, error) { return rcon.Op(req.Player) })
}

func (h *ModerationHandler) Deop(c *gin.Context) {
	player := c.Param("player")
	h.run(c, func() (string, error) { return rcon.Deop(player) })
}

func (h *ModerationHandler) WhitelistAdd(c *gin.Context) {
	req, ok := bindPlayerAction(c)
	if !ok {
		return
	}
	h.run(c, func() (string, error) { return rcon.WhitelistAdd(req.Player) })
}

func (h *ModerationHandler) WhitelistRemove(c *gin.Context) {
	player := c.Param("player")
	h.run(c, func() (string, error) { return rcon.WhitelistRemove(player) })
}

// SetWhitelistMode turns whitelist enforcement on or off.
func (h *ModerationHandler) SetWhitelistMode(c *gin.Context) {
	var req WhitelistModeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "enabled is required"})
		return
	}
	cmd := rcon.CommandWhitelistOff
	if *req.Enabled {
		cmd = rcon.CommandWhitelistOn
	}
	h.run(c, func() (string, error) { return cmd, nil })
}

func (h *ModerationHandler) WhitelistReload(c *gin.Context) {
	h.run(c, func() (string, error) { return rcon.CommandWhitelistReload, nil })
}

// SaveAll flushes the world to disk.
func (h *ModerationHandler) SaveAll(c *gin.Context) {
	h.run(c, func() (string, error) { return rcon.CommandSaveAll, nil })
}

// Say broadcasts a chat message.
func (h *ModerationHandler) Say(c *gin.Context) {
	var req SayRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "message is required"})
		return
	}
	h.run(c, func() (string, error) { return rcon.Say(req.Message) })
}
