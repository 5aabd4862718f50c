package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Yupick/mc-simple/internal/api"
	"github.com/Yupick/mc-simple/internal/config"
	"github.com/Yupick/mc-simple/internal/scheduler"
	"github.com/Yupick/mc-simple/internal/server"
	"github.com/Yupick/mc-simple/internal/websocket"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the control API, status monitor and scheduler",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx)
		},
	}
}

func serve(ctx context.Context) error {
	hub := websocket.NewHub()

	// The supervisor publishes through the hub, so the room is only known
	// once the app is loaded.
	var room string
	a, err := loadApp(func(ev server.Event) {
		hub.Publish(room, websocket.TypeLifecycleEvent, ev)
	})
	if err != nil {
		return err
	}
	defer a.Close()
	room = a.supervisor.ServerID()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	log.Println("[Server] Initializing WebSocket hub...")
	go hub.Run(ctx)

	publish := func(st server.Status) {
		hub.Publish(room, websocket.TypeServerStatus, st)
	}
	go a.supervisor.Monitor(ctx, config.Duration(a.cfg.Minecraft.StatusInterval, server.DefaultStatusInterval), publish)

	if a.cfg.Minecraft.Control.Type == "systemd" {
		unit := a.cfg.Minecraft.Control.SystemdUnit
		go func() {
			err := server.WatchUnit(ctx, unit, func(state string) {
				log.Printf("[Supervisor] Unit %s is now %s", unit, state)
				a.supervisor.Report(ctx, publish)
			})
			if err != nil {
				log.Printf("[Supervisor] Not watching unit %s: %v", unit, err)
			}
		}()
	}

	schedules, err := config.NewScheduleManager(a.cfg.ConfigDir)
	if err != nil {
		return fmt.Errorf("failed to load schedules: %w", err)
	}
	runner := scheduler.NewRunner(a.supervisor, schedules, 0)
	if err := runner.Start(ctx); err != nil {
		log.Printf("[Scheduler] Some schedules were skipped: %v", err)
	}

	router, shutdownOps := api.SetupRouter(ctx, a.cfg, api.Services{
		Supervisor: a.supervisor,
		Players:    a.newPlayers(),
		Events:     a.recorder,
		Hub:        hub,
		Schedules:  schedules,
		Runner:     runner,
		ConfigPath: a.configPath,
	})

	srv := &http.Server{
		Addr:        fmt.Sprintf("%s:%d", a.cfg.Server.Host, a.cfg.Server.Port),
		Handler:     router,
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("[Server] Starting server on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}
	log.Println("[Server] Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("[Server] Server forced to shutdown: %v", err)
	}

	// Lifecycle operations started with ?async=true run on the serve context,
	// which is cancelled by now.
	shutdownOps()

	log.Println("[Server] Server exited")
	return nil
}
