package main

import (
	"smallbiznis-picks/pkg/config"
	"smallbiznis-picks/pkg/db"
	"smallbiznis-picks/pkg/hashistack/secretmanager"
	"smallbiznis-picks/pkg/logger"

	"github.com/spf13/cobra"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
)

var rootCmd = &cobra.Command{
	Use:           "picks-ledger",
	Short:         "Reward points ledger and the flows that move points",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var verboseFx bool

func init() {
	rootCmd.PersistentFlags().BoolVar(&verboseFx, "verbose-fx", false, "Log fx dependency graph events")
}

// baseOptions are shared by every subcommand: configuration (optionally
// resolved through vault), logging and the database.
func baseOptions() []fx.Option {
	return []fx.Option{
		secretmanager.Module,
		config.Module,
		logger.Module,
		db.Module,
		fx.WithLogger(func(log *zap.Logger) fxevent.Logger {
			if verboseFx {
				return &fxevent.ZapLogger{Logger: log}
			}
			return fxevent.NopLogger
		}),
	}
}
