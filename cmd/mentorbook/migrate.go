package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Freeeeeet/mentorbook/internal/app"
	"github.com/Freeeeeet/mentorbook/internal/repository"
)

func migrateCmd() *cobra.Command {
	var down bool

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, ctx, stop, err := bootstrap()
			if err != nil {
				return err
			}
			defer stop()
			defer logger.Sync()

			pool, err := repository.NewPool(ctx, cfg.DBDSN, 2)
			if err != nil {
				return err
			}
			defer pool.Close()

			mg, err := app.NewMigrator(pool, cfg.MigrationsDir, logger)
			if err != nil {
				return err
			}
			defer mg.Close()

			if down {
				return mg.Down(ctx)
			}
			if err := mg.Up(ctx); err != nil {
				return err
			}
			version, err := mg.Version(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "schema version %d\n", version)
			return nil
		},
	}

	cmd.Flags().BoolVar(&down, "down", false, "roll back the latest migration instead")
	return cmd
}

func runMigrations(ctx context.Context, a *app.App, dir string, logger *zap.Logger) error {
	mg, err := app.NewMigrator(a.Pool(), dir, logger)
	if err != nil {
		return err
	}
	defer mg.Close()
	return mg.Up(ctx)
}
