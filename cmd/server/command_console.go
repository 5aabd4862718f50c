package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/Yupick/mc-simple/internal/rcon"
	"github.com/Yupick/mc-simple/internal/server"
)

func newCommandCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "command <text...>",
		Short: "Send a console command over RCON and print the response",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(nil)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()

			out, err := a.supervisor.SendCommand(ctx, strings.Join(args, " "))
			if err != nil {
				return err
			}
			if out != "" {
				fmt.Println(out)
			}
			return nil
		},
	}
}

func newLogsCmd() *cobra.Command {
	var (
		lines  int
		filter string
		query  string
	)
	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Print the last lines of the server log",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := server.NewLogFilter(filter, query, false)
			if err != nil {
				return err
			}

			a, err := loadApp(nil)
			if err != nil {
				return err
			}
			defer a.Close()

			out, err := a.supervisor.TailLogs(lines)
			if err != nil {
				return err
			}
			out = f.Apply(out)
			for _, line := range out {
				fmt.Println(line)
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&lines, "lines", "n", 100, "number of lines to read (max 5000)")
	cmd.Flags().StringVar(&filter, "filter", "", "keep only matching lines: problems, search or regex")
	cmd.Flags().StringVarP(&query, "query", "q", "", "pattern for --filter search or regex")
	return cmd
}

func newPlayersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "players",
		Short: "List online players",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(nil)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()

			list, raw, err := a.newPlayers().List(ctx)
			if errors.Is(err, rcon.ErrUnrecognizedList) {
				fmt.Println(raw)
				return nil
			}
			if err != nil {
				return err
			}
			printPlayers(list)
			return nil
		},
	}
}
