package main

import "github.com/spf13/cobra"

var configPath string

func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "mc-simple",
		Short:         "Minecraft server supervisor and RCON console",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&configPath, "config", "", "config file (default is $CONFIG_PATH or ./configs/config.yaml)")

	root.AddCommand(newServeCmd())
	root.AddCommand(newStatusCmd())
	root.AddCommand(newStartCmd())
	root.AddCommand(newStopCmd())
	root.AddCommand(newRestartCmd())
	root.AddCommand(newCommandCmd())
	root.AddCommand(newLogsCmd())
	root.AddCommand(newPlayersCmd())
	root.AddCommand(newTokenCmd())
	root.AddCommand(newMigrateCmd())

	return root
}
