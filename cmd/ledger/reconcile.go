package main

import (
	"context"
	"encoding/json"
	"fmt"

	"smallbiznis-picks/pkg/gen"
	"smallbiznis-picks/pkg/uow"
	"smallbiznis-picks/services/ledger"

	"github.com/spf13/cobra"
	"go.uber.org/fx"
)

var reconcileCmd = &cobra.Command{
	Use:   "reconcile USER_ID...",
	Short: "Replay accounts from their entries and verify the hash chain",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runReconcile,
}

func init() {
	rootCmd.AddCommand(reconcileCmd)
}

func runReconcile(cmd *cobra.Command, args []string) error {
	var svc *ledger.Service
	app := fx.New(append(baseOptions(),
		gen.Module,
		uow.Module,
		fx.Provide(ledger.NewService),
		fx.Populate(&svc),
	)...)
	if err := app.Err(); err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	if err := app.Start(ctx); err != nil {
		return err
	}
	defer app.Stop(context.Background())

	broken := 0
	enc := json.NewEncoder(cmd.OutOrStdout())
	for _, userID := range args {
		report, err := svc.Reconcile(ctx, userID)
		if err != nil {
			return err
		}
		if !report.Valid {
			broken++
		}
		if err := enc.Encode(report); err != nil {
			return err
		}
	}

	if broken > 0 {
		return fmt.Errorf("%d of %d accounts failed reconciliation", broken, len(args))
	}
	return nil
}
