package main

import (
	"github.com/spf13/cobra"

	"github.com/trialbridge/go-auth/config"
	"github.com/trialbridge/go-auth/logging"
)

// Global flags available to all subcommands.
var configFile string

// NewRootCmd creates the root command for the auth service CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "authd",
		Short: "Authentication and credential recovery service",
		Long: `authd serves registration, login, session lookup and password
reset endpoints backed by SQLite or PostgreSQL.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path")
	config.RegisterFlags(cmd.PersistentFlags())

	cmd.AddCommand(NewServeCmd())
	cmd.AddCommand(NewMigrateCmd())
	cmd.AddCommand(NewVersionCmd())

	return cmd
}

// NewVersionCmd creates the version subcommand.
func NewVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cmd.Printf("authd %s (commit: %s, built: %s)\n", version, commit, date)
			return nil
		},
	}
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	return config.Load(configFile, cmd.Flags())
}

func newLogger(cfg *config.Config) *logging.ZerologLogger {
	return logging.New(logging.Options{
		Level:   cfg.Log.Level,
		Console: cfg.Log.Console,
	})
}
