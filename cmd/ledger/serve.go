package main

import (
	"smallbiznis-picks/internal/httpapi"
	"smallbiznis-picks/internal/migrate"
	"smallbiznis-picks/pkg/featureflags"
	"smallbiznis-picks/pkg/gen"
	"smallbiznis-picks/pkg/health"
	"smallbiznis-picks/pkg/otelcol"
	"smallbiznis-picks/pkg/profiling"
	"smallbiznis-picks/pkg/redis"
	"smallbiznis-picks/pkg/server"
	"smallbiznis-picks/pkg/uow"
	"smallbiznis-picks/services/claim"
	"smallbiznis-picks/services/ledger"
	"smallbiznis-picks/services/quest"
	"smallbiznis-picks/services/referral"
	"smallbiznis-picks/services/submission"
	"smallbiznis-picks/services/task"

	"github.com/spf13/cobra"
	"go.uber.org/fx"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and the gRPC health endpoint",
	RunE:  runServe,
}

var skipMigrate bool

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().BoolVar(&skipMigrate, "skip-migrate", false, "Do not migrate the schema on startup")
}

func serveOptions() []fx.Option {
	opts := baseOptions()
	if !skipMigrate {
		opts = append(opts, migrate.Module)
	}

	return append(opts,
		redis.Module,
		gen.Module,
		otelcol.Module,
		profiling.Module,
		featureflags.Module,
		health.Module,
		uow.Module,
		ledger.Module,
		quest.Module,
		task.Module,
		referral.Module,
		submission.Module,
		claim.Module,
		server.ProvideGRPCServer,
		server.ProvideHTTPServer,
		httpapi.Module,
	)
}

func runServe(cmd *cobra.Command, args []string) error {
	opts := serveOptions()
	if err := fx.ValidateApp(opts...); err != nil {
		return err
	}

	fx.New(opts...).Run()
	return nil
}
