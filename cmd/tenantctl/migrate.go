package main

import (
	"context"
	"database/sql"

	"github.com/spf13/cobra"

	"github.com/Abraxas-365/tenantry/pkg/database"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Database schema migrations",
}

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply every pending migration",
	RunE:  withDB(database.Migrate),
}

var migrateDownCmd = &cobra.Command{
	Use:   "down",
	Short: "Revert the most recent migration",
	RunE:  withDB(database.Rollback),
}

var migrateStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the applied state of each migration",
	RunE:  withDB(database.Status),
}

func init() {
	migrateCmd.AddCommand(migrateUpCmd, migrateDownCmd, migrateStatusCmd)
}

func withDB(fn func(context.Context, *sql.DB) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		db, err := openDB(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer db.Close()
		return fn(cmd.Context(), db.DB)
	}
}
