package main

import (
	"errors"
	"log/slog"

	"github.com/spf13/cobra"
	repopg "github.com/tendant/simple-media/pkg/mediastore/repo/postgres"
)

func newMigrateCmd(root *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the Postgres schema",
	}

	withDatabase := func(fn func(dsn string, logger *slog.Logger) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			cfg, err := root.load()
			if err != nil {
				return err
			}
			if cfg.DatabaseType != "postgres" {
				return errors.New("migrations require a postgres DATABASE_URL")
			}
			return fn(cfg.DatabaseURL, cfg.Logger())
		}
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply all pending migrations",
			RunE:  withDatabase(repopg.Migrate),
		},
		&cobra.Command{
			Use:   "down",
			Short: "Roll back all migrations",
			RunE:  withDatabase(repopg.MigrateDown),
		},
	)
	return cmd
}
