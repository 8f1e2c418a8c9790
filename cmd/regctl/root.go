package main

import (
	"context"
	"database/sql"
	"errors"

	"github.com/spf13/cobra"

	"regflow/internal/platform/config"
	"regflow/internal/platform/postgres"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "regctl",
		Short:         "Administer a regflow deployment",
		Long:          `regctl applies database migrations, seeds the first administrator and mints bearer tokens for operators.`,
		Version:       version,
		SilenceUsage:  true,
	}
	root.AddCommand(newMigrateCmd(), newSeedCmd(), newTokenCmd())
	return root
}

var errNoDatabase = errors.New("DATABASE_URL is not set")

// openDB opens the configured database; regctl commands that touch storage
// refuse to run against in-memory stores.
func openDB(ctx context.Context) (*sql.DB, error) {
	db, err := postgres.Open(ctx, config.FromEnv().Database)
	if err != nil {
		return nil, err
	}
	if db == nil {
		return nil, errNoDatabase
	}
	return db, nil
}
