package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/Yupick/mc-simple/internal/config"
	"github.com/Yupick/mc-simple/internal/server"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Probe the server process",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(nil)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
			defer cancel()

			st := a.supervisor.Report(ctx, nil)
			printStatusTable(a.supervisor.ServerID(), st)
			return nil
		},
	}
}

func newStartCmd() *cobra.Command {
	return newLifecycleCmd("start", "Start the server and wait until it is running", server.ActionStart)
}

func newStopCmd() *cobra.Command {
	return newLifecycleCmd("stop", "Stop the server, escalating to SIGKILL if needed", server.ActionStop)
}

func newRestartCmd() *cobra.Command {
	return newLifecycleCmd("restart", "Stop the server if running, then start it", server.ActionRestart)
}

func newLifecycleCmd(use, short string, action server.Action) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(nil)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), lifecycleTimeout(a.cfg.Minecraft))
			defer cancel()

			var opErr error
			switch action {
			case server.ActionStart:
				opErr = a.supervisor.Start(ctx)
			case server.ActionStop:
				opErr = a.supervisor.Stop(ctx)
			case server.ActionRestart:
				opErr = a.supervisor.Restart(ctx)
			}

			if opErr != nil {
				return fmt.Errorf("%s failed: %w", action, opErr)
			}
			fmt.Println(server.NewResult(action, nil).Message)
			return nil
		},
	}
}

// lifecycleTimeout bounds a CLI lifecycle call: control script, start
// confirmation and a fully escalated stop.
func lifecycleTimeout(mc config.MinecraftConfig) time.Duration {
	return config.Duration(mc.Control.Timeout, time.Minute) +
		config.Duration(mc.StartTimeout, 30*time.Second) +
		config.Duration(mc.StopTimeout, 30*time.Second) +
		config.Duration(mc.KillTimeout, 10*time.Second) +
		config.Duration(mc.RestartDelay, 0)
}
