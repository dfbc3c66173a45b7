package main

import (
	"context"
	"errors"

	"github.com/smallbiznis/worldpulse/internal/ledger"
	"github.com/smallbiznis/worldpulse/internal/tally"
	tallystore "github.com/smallbiznis/worldpulse/internal/tally/store"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
)

func reconcileCommand() *cobra.Command {
	var questionID string
	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Rebuild a question's tally checkpoints from the vote ledger",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if questionID == "" {
				return errors.New("--question is required")
			}
			var reconciler *tally.Reconciler
			return runApp(cmd, []fx.Option{
				ledger.Module,
				tallystore.Module,
				tally.Module,
				fx.Populate(&reconciler),
			}, func(ctx context.Context) error {
				rebuilt, err := reconciler.Reconcile(ctx, questionID)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), rebuilt)
			})
		},
	}
	cmd.Flags().StringVar(&questionID, "question", "", "question id to rebuild")
	return cmd
}
