package main

import (
	"context"
	"fmt"

	"github.com/smallbiznis/worldpulse/internal/ban"
	bandomain "github.com/smallbiznis/worldpulse/internal/ban/domain"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
)

func banCommand() *cobra.Command {
	var reason string
	cmd := &cobra.Command{
		Use:   "ban <voterKey>",
		Short: "Block a voter key from voting and submitting",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var svc bandomain.Service
			return runApp(cmd, []fx.Option{ban.Module, fx.Populate(&svc)}, func(ctx context.Context) error {
				resp, err := svc.Ban(ctx, bandomain.BanRequest{VoterKey: args[0], Reason: reason})
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), resp)
			})
		},
	}
	cmd.Flags().StringVar(&reason, "reason", "", "why the voter is banned")
	return cmd
}

func unbanCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "unban <voterKey>",
		Short: "Lift a ban",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var svc bandomain.Service
			return runApp(cmd, []fx.Option{ban.Module, fx.Populate(&svc)}, func(ctx context.Context) error {
				if err := svc.Unban(ctx, args[0]); err != nil {
					return err
				}
				_, err := fmt.Fprintf(cmd.OutOrStdout(), "unbanned %s\n", args[0])
				return err
			})
		},
	}
}
