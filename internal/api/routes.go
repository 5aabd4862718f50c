package api

import (
	"context"
	"log"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Yupick/mc-simple/internal/api/handlers"
	"github.com/Yupick/mc-simple/internal/api/middleware"
	"github.com/Yupick/mc-simple/internal/auth"
	"github.com/Yupick/mc-simple/internal/config"
	"github.com/Yupick/mc-simple/internal/websocket"
)

// Services are the components the router exposes. Players, Events,
// Schedules and Runner may be nil; their routes are then not registered.
type Services struct {
	Supervisor handlers.Supervisor
	Players    handlers.PlayerLister
	Events     handlers.EventLister
	Hub        *websocket.Hub
	Schedules  handlers.ScheduleStore
	Runner     handlers.ScheduleRunner
	ConfigPath string
}

// SetupRouter configures and returns the HTTP router. The returned function
// waits for background lifecycle operations started with ?async=true.
func SetupRouter(ctx context.Context, cfg *config.Config, svc Services) (*gin.Engine, func()) {
	// Set Gin mode based on environment
	if cfg.Logging.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	// Global middleware
	router.Use(gin.Recovery())
	router.Use(middleware.Logger())
	router.Use(middleware.CORS(cfg.Security.CORS))
	router.Use(middleware.RateLimit(cfg.Security.RateLimit))
	router.Use(middleware.SecurityHeaders())

	jwtManager := auth.NewJWTManager(cfg.Auth.JWTSecret, config.Duration(cfg.Auth.TokenDuration, 0))

	// Lifecycle calls may wait for the start timeout plus a full stop escalation.
	mc := cfg.Minecraft
	opTimeout := config.Duration(mc.StartTimeout, 30*time.Second) +
		config.Duration(mc.StopTimeout, 30*time.Second) +
		config.Duration(mc.KillTimeout, 10*time.Second) +
		config.Duration(mc.RestartDelay, 0) +
		config.Duration(mc.Control.Timeout, time.Minute)

	serverHandler := handlers.NewServerHandler(ctx, svc.Supervisor, svc.Players, svc.Events, svc.Hub, opTimeout)
	moderationHandler := handlers.NewModerationHandler(svc.Supervisor)

	protected := router.Group("/api/v1")
	protected.Use(middleware.Auth(jwtManager))
	{
		srv := protected.Group("/server")
		{
			srv.GET("/status", middleware.RequirePermission(auth.PermStatusRead), serverHandler.GetStatus)
			srv.POST("/start", middleware.RequirePermission(auth.PermLifecycle), serverHandler.StartServer)
			srv.POST("/stop", middleware.RequirePermission(auth.PermLifecycle), serverHandler.StopServer)
			srv.POST("/restart", middleware.RequirePermission(auth.PermLifecycle), serverHandler.RestartServer)
			srv.POST("/command", middleware.RequirePermission(auth.PermConsoleExecute), serverHandler.ExecuteCommand)
			srv.GET("/logs", middleware.RequirePermission(auth.PermLogsRead), serverHandler.GetLogs)
			srv.GET("/players", middleware.RequirePermission(auth.PermPlayersRead), serverHandler.GetPlayers)
			srv.GET("/events", middleware.RequirePermission(auth.PermEventsRead), serverHandler.GetEvents)

			manage := middleware.RequirePermission(auth.PermPlayersManage)
			srv.POST("/say", manage, moderationHandler.Say)
			srv.POST("/save", manage, moderationHandler.SaveAll)
			srv.POST("/players/kick", manage, moderationHandler.Kick)
			srv.POST("/bans", manage, moderationHandler.Ban)
			srv.DELETE("/bans/:target", manage, moderationHandler.Pardon)
			srv.POST("/ops", manage, moderationHandler.Op)
			srv.DELETE("/ops/:player", manage, moderationHandler.Deop)
			srv.POST("/whitelist", manage, moderationHandler.WhitelistAdd)
			srv.DELETE("/whitelist/:player", manage, moderationHandler.WhitelistRemove)
			srv.PUT("/whitelist/mode", manage, moderationHandler.SetWhitelistMode)
			srv.POST("/whitelist/reload", manage, moderationHandler.WhitelistReload)
		}

		if svc.Schedules != nil && svc.Runner != nil {
			scheduleHandler := handlers.NewScheduleHandler(svc.Schedules, svc.Runner)
			schedules := protected.Group("/schedules")
			{
				schedules.GET("", middleware.RequirePermission(auth.PermSchedulesRead), scheduleHandler.ListSchedules)
				schedules.POST("", middleware.RequirePermission(auth.PermSchedulesManage), scheduleHandler.CreateSchedule)
				schedules.PUT("/:name", middleware.RequirePermission(auth.PermSchedulesManage), scheduleHandler.UpdateSchedule)
				schedules.DELETE("/:name", middleware.RequirePermission(auth.PermSchedulesManage), scheduleHandler.DeleteSchedule)
				schedules.POST("/:name/run", middleware.RequirePermission(auth.PermSchedulesManage), scheduleHandler.RunSchedule)
			}
		}

		if svc.ConfigPath != "" {
			settingsHandler := handlers.NewSettingsHandler(cfg, svc.ConfigPath)
			protected.GET("/settings", middleware.RequirePermission(auth.PermSettingsManage), settingsHandler.GetSettings)
			protected.PUT("/settings", middleware.RequirePermission(auth.PermSettingsManage), settingsHandler.UpdateSettings)
		}

		if svc.Hub != nil {
			streamHandler := handlers.NewStreamHandler(svc.Supervisor, svc.Hub, cfg.Security.CORS.AllowedOrigins)
			protected.GET("/ws", middleware.RequirePermission(auth.PermStatusRead), streamHandler.Handle)
		}
	}

	// Health check endpoint
	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok", "server_id": svc.Supervisor.ServerID()})
	})

	shutdown := func() {
		log.Println("[API] Waiting for background server operations to complete...")
		serverHandler.WaitForCompletion()
		log.Println("[API] Background operations completed")
	}

	return router, shutdown
}
