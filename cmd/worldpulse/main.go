package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/worldpulse/internal/cache"
	"github.com/smallbiznis/worldpulse/internal/clock"
	"github.com/smallbiznis/worldpulse/internal/config"
	"github.com/smallbiznis/worldpulse/internal/observability"
	obscontext "github.com/smallbiznis/worldpulse/internal/observability/context"
	"github.com/smallbiznis/worldpulse/pkg/db"
	"github.com/smallbiznis/worldpulse/pkg/redisdb"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
)

const programName = "worldpulse"

var globalFlags = struct {
	timeout time.Duration
	verbose bool
}{}

func main() {
	rootCmd := &cobra.Command{
		Use:          programName,
		Short:        "Operate the worldpulse vote engine",
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().
		DurationVar(&globalFlags.timeout, "timeout", 2*time.Minute, "deadline for the whole command")
	rootCmd.PersistentFlags().
		BoolVarP(&globalFlags.verbose, "verbose", "v", false, "print dependency wiring")

	rootCmd.AddCommand(rotateCommand())
	rootCmd.AddCommand(reconcileCommand())
	rootCmd.AddCommand(banCommand())
	rootCmd.AddCommand(unbanCommand())
	rootCmd.AddCommand(migrateCommand())

	if err := rootCmd.Execute(); err != nil {
		// cobra already printed the error
		os.Exit(1)
	}
}

func baseOptions() []fx.Option {
	opts := []fx.Option{
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		redisdb.Module,
		clock.Module,
		cache.Module,
	}
	if !globalFlags.verbose {
		opts = append(opts, fx.NopLogger)
	}
	return opts
}

// runApp starts a short-lived app with the base modules plus options, runs
// fn and stops the app again.
func runApp(cmd *cobra.Command, options []fx.Option, fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), globalFlags.timeout)
	defer cancel()
	ctx = obscontext.WithActor(ctx, "system", "cli:"+cmd.Name())

	app := fx.New(append(baseOptions(), options...)...)
	if err := app.Err(); err != nil {
		return err
	}
	if err := app.Start(ctx); err != nil {
		return err
	}
	defer func() {
		stopCtx, stop := context.WithTimeout(context.Background(), 15*time.Second)
		defer stop()
		_ = app.Stop(stopCtx)
	}()

	return fn(ctx)
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(3)
	if err != nil {
		panic(err)
	}
	return node
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	return nil
}
