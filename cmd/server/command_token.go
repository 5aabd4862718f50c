package main

import (
	"fmt"
	"log"
	"time"

	"github.com/spf13/cobra"

	"github.com/Yupick/mc-simple/internal/auth"
	"github.com/Yupick/mc-simple/internal/config"
	"github.com/Yupick/mc-simple/internal/database"
)

func newTokenCmd() *cobra.Command {
	var role string
	cmd := &cobra.Command{
		Use:   "token <subject>",
		Short: "Issue an API token",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			manager := auth.NewJWTManager(cfg.Auth.JWTSecret, config.Duration(cfg.Auth.TokenDuration, 0))
			token, expires, err := manager.GenerateToken(args[0], role)
			if err != nil {
				return err
			}
			fmt.Println(token)
			fmt.Printf("expires %s\n", expires.Format(time.RFC3339))
			return nil
		},
	}
	cmd.Flags().StringVar(&role, "role", auth.RoleViewer, "token role (viewer or operator)")
	return cmd
}

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			log.Println("[Database] Running database migrations...")
			db, err := database.NewDB(cfg.Database.Path)
			if err != nil {
				return fmt.Errorf("failed to initialize database: %w", err)
			}
			defer db.Close()

			if err := db.MigrateContext(cmd.Context()); err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			applied, err := db.AppliedMigrations(cmd.Context())
			if err != nil {
				return err
			}
			log.Printf("[Database] Migrations completed successfully (%d applied)", len(applied))
			return nil
		},
	}
}

// loadConfig reads the configuration without opening the database or
// touching the server.
func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadFile(resolvedConfigPath())
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, nil
}

func resolvedConfigPath() string {
	if configPath != "" {
		return configPath
	}
	return config.GetConfigPath()
}
