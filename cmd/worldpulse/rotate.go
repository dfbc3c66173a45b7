package main

import (
	"context"
	"errors"
	"fmt"

	obsmetrics "github.com/smallbiznis/worldpulse/internal/observability/metrics"
	questionrepository "github.com/smallbiznis/worldpulse/internal/question/repository"
	queuerepository "github.com/smallbiznis/worldpulse/internal/queue/repository"
	"github.com/smallbiznis/worldpulse/internal/ratelimit"
	"github.com/smallbiznis/worldpulse/internal/rotation"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
)

func rotateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "rotate",
		Short: "Rotate the active question for the current day boundary",
		Long: "Archives the active question and activates the next one. Running it again " +
			"for the same day is a no-op.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var sched *rotation.Scheduler
			return runApp(cmd, []fx.Option{
				ratelimit.Module,
				fx.Provide(questionrepository.Provide),
				fx.Provide(queuerepository.Provide),
				rotation.Module,
				fx.Populate(&sched),
			}, func(ctx context.Context) error {
				res, err := sched.Rotate(ctx)
				if errors.Is(err, obsmetrics.ErrLockContended) {
					fmt.Fprintln(cmd.OutOrStdout(), "another rotation holds the lock")
					return nil
				}
				if err != nil {
					return err
				}
				return printRotation(cmd, res)
			})
		},
	}
}

func printRotation(cmd *cobra.Command, res rotation.Result) error {
	out := cmd.OutOrStdout()
	boundary := res.Boundary.Format("2006-01-02")
	if res.Skipped {
		_, err := fmt.Fprintf(out, "boundary %s already rotated\n", boundary)
		return err
	}
	_, err := fmt.Fprintf(out, "boundary %s: archived=%s activated=%s source=%s submission=%s\n",
		boundary, orNone(res.ArchivedID), orNone(res.ActivatedID), res.Source, orNone(res.SubmissionID))
	return err
}

func orNone(id string) string {
	if id == "" {
		return "-"
	}
	return id
}
