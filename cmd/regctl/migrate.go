package main

import (
	"database/sql"
	"fmt"

	"github.com/spf13/cobra"

	"regflow/internal/platform/migrations"
)

func newMigrateCmd() *cobra.Command {
	migrate := &cobra.Command{
		Use:   "migrate",
		Short: "Apply or roll back schema migrations",
	}

	migrate.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			db, err := openDB(cmd.Context())
			if err != nil {
				return err
			}
			defer db.Close()
			if err := migrations.Up(db); err != nil {
				return err
			}
			return printVersion(cmd, db)
		},
	})

	var steps int
	down := &cobra.Command{
		Use:   "down",
		Short: "Roll back migrations",
		Long: `Roll back the given number of migrations.

Examples:
  regctl migrate down            # one step
  regctl migrate down --steps 3`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if steps < 1 {
				return fmt.Errorf("--steps must be at least 1")
			}
			db, err := openDB(cmd.Context())
			if err != nil {
				return err
			}
			defer db.Close()
			if err := migrations.Down(db, steps); err != nil {
				return err
			}
			return printVersion(cmd, db)
		},
	}
	down.Flags().IntVar(&steps, "steps", 1, "number of migrations to roll back")
	migrate.AddCommand(down)

	migrate.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the current schema version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			db, err := openDB(cmd.Context())
			if err != nil {
				return err
			}
			defer db.Close()
			return printVersion(cmd, db)
		},
	})
	return migrate
}

func printVersion(cmd *cobra.Command, db *sql.DB) error {
	v, dirty, err := migrations.Version(db)
	if err != nil {
		return err
	}
	state := "clean"
	if dirty {
		state = "dirty"
	}
	fmt.Fprintf(cmd.OutOrStdout(), "schema version %d (%s)\n", v, state)
	return nil
}
