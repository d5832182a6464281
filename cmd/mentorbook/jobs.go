package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/Freeeeeet/mentorbook/internal/app"
)

func sweepCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Run one sweeper pass: due captures, expired holds, paused subscriptions",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runJob(func(ctx context.Context, a *app.App) error {
				return a.Scheduler.RunSweep(ctx)
			})
		},
	}
}

func expandRulesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "expand-rules",
		Short: "Materialize slots for every active availability rule",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runJob(func(ctx context.Context, a *app.App) error {
				return a.Scheduler.RunExpansion(ctx)
			})
		},
	}
}

func runJob(job func(ctx context.Context, a *app.App) error) error {
	cfg, logger, ctx, stop, err := bootstrap()
	if err != nil {
		return err
	}
	defer stop()
	defer logger.Sync()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	return job(ctx, a)
}
