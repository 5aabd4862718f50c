package handlers

import (
	"net/http"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"

	"github.com/Yupick/mc-simple/internal/config"
)

// SettingsHandler edits the security and logging sections of config.yaml.
// Changes are written to disk and take effect on the next restart.
type SettingsHandler struct {
	mu         sync.Mutex
	cfg        *config.Config
	configPath string
}

type SettingsPayload struct {
	Security config.SecurityConfig `json:"security"`
	Logging  config.LoggingConfig  `json:"logging"`
}

type SettingsResponse struct {
	Security        config.SecurityConfig `json:"security"`
	Logging         config.LoggingConfig  `json:"logging"`
	RequiresRestart bool                  `json:"requires_restart"`
}

func NewSettingsHandler(cfg *config.Config, configPath string) *SettingsHandler {
	return &SettingsHandler{
		cfg:        cfg,
		configPath: configPath,
	}
}

func (h *SettingsHandler) GetSettings(c *gin.Context) {
	h.mu.Lock()
	defer h.mu.Unlock()

	c.JSON(http.StatusOK, SettingsResponse{
		Security:        h.cfg.Security,
		Logging:         h.cfg.Logging,
		RequiresRestart: true,
	})
}

func (h *SettingsHandler) UpdateSettings(c *gin.Context) {
	var payload SettingsPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	payload.Security.CORS.AllowedOrigins = normalizeList(payload.Security.CORS.AllowedOrigins)
	payload.Security.CORS.AllowedMethods = normalizeList(payload.Security.CORS.AllowedMethods)
	if payload.Security.RateLimit.Enabled && payload.Security.RateLimit.RequestsPerMinute <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "requests_per_minute must be positive when rate limiting is enabled"})
		return
	}
	switch strings.ToLower(payload.Logging.Level) {
	case "debug", "info", "warn", "error":
	case "":
		payload.Logging.Level = "info"
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown log level " + payload.Logging.Level})
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	updated := *h.cfg
	updated.Security = payload.Security
	updated.Logging = payload.Logging

	if err := config.Save(&updated, h.configPath); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save settings", "details": err.Error()})
		return
	}

	h.cfg.Security = updated.Security
	h.cfg.Logging = updated.Logging

	c.JSON(http.StatusOK, SettingsResponse{
		Security:        h.cfg.Security,
		Logging:         h.cfg.Logging,
		RequiresRestart: true,
	})
}

func normalizeList(values []string) []string {
	clean := make([]string, 0, len(values))
	for _, value := range values {
		trimmed := strings.TrimSpace(value)
		if trimmed == "" {
			continue
		}
		clean = append(clean, trimmed)
	}
	return clean
}
