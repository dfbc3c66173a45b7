package main

import (
	"context"
	"fmt"

	"github.com/smallbiznis/worldpulse/internal/ledger"
	"github.com/smallbiznis/worldpulse/internal/migration"
	"github.com/smallbiznis/worldpulse/internal/question"
	questiondomain "github.com/smallbiznis/worldpulse/internal/question/domain"
	"github.com/smallbiznis/worldpulse/internal/seed"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func migrateCommand() *cobra.Command {
	var withSeed bool
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply schema migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				conn      *gorm.DB
				questions questiondomain.Service
				log       *zap.Logger
			)
			return runApp(cmd, []fx.Option{
				ledger.Module,
				question.Module,
				fx.Populate(&conn, &questions, &log),
			}, func(ctx context.Context) error {
				if err := migration.Migrate(conn); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "schema up to date")
				if !withSeed {
					return nil
				}
				inserted, err := seed.EnsureQuestions(ctx, questions, log)
				if err != nil {
					return err
				}
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "seeded %d questions\n", inserted)
				return err
			})
		},
	}
	cmd.Flags().BoolVar(&withSeed, "seed", false, "insert the starter questions into an empty database")
	return cmd
}
