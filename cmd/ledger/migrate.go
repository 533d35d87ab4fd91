package main

import (
	"smallbiznis-picks/internal/migrate"

	"github.com/spf13/cobra"
	"go.uber.org/fx"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the database schema",
	RunE:  runMigrate,
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}

func runMigrate(cmd *cobra.Command, args []string) error {
	app := fx.New(append(baseOptions(), migrate.Module)...)
	return app.Err()
}
