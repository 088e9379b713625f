package main

import (
	"github.com/spf13/cobra"

	auth "github.com/trialbridge/go-auth"
)

// NewMigrateCmd creates the migrate subcommand.
func NewMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
		Long:  `Apply all pending migrations for the configured database driver.`,
		RunE:  runMigrate,
	}
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	logger := newLogger(cfg)

	cmd.Println("Connecting to database...")
	db, err := auth.OpenDB(cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := auth.PingDB(ctx, db, cfg.Database.PingRetries, cfg.Database.PingTimeout); err != nil {
		return err
	}

	cmd.Println("Running migrations...")
	if err := auth.Migrate(ctx, db, auth.WithMigrationLogger(logger)); err != nil {
		return err
	}

	cmd.Println("Migrations completed successfully")
	return nil
}
