package main

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Freeeeeet/mentorbook/internal/app"
)

func serveCmd() *cobra.Command {
	var (
		migrate     bool
		noScheduler bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, the background scheduler and the Telegram bot",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, ctx, stop, err := bootstrap()
			if err != nil {
				return err
			}
			defer stop()
			defer logger.Sync()

			shutdownTracing, err := app.InitTracing(ctx, cfg.OTLPEndpoint, cfg.Environment)
			if err != nil {
				return err
			}
			defer func() {
				sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = shutdownTracing(sctx)
			}()

			a, err := app.New(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer a.Close()

			if migrate {
				if err := runMigrations(ctx, a, cfg.MigrationsDir, logger); err != nil {
					return err
				}
			}

			var wg sync.WaitGroup
			if !noScheduler {
				a.Scheduler.Start(ctx)
			}
			if a.Bot != nil {
				if err := a.Bot.RegisterHandlers(ctx); err != nil {
					logger.Warn("Telegram commands not registered", zap.Error(err))
				}
				wg.Add(1)
				go func() {
					defer wg.Done()
					a.Bot.Start(ctx)
				}()
			}

			server := &http.Server{
				Addr:              cfg.HTTPAddr,
				Handler:           a.Handler(ctx),
				ReadHeaderTimeout: 10 * time.Second,
				ReadTimeout:       30 * time.Second,
				WriteTimeout:      30 * time.Second,
				IdleTimeout:       120 * time.Second,
			}

			errCh := make(chan error, 1)
			go func() {
				logger.Info("HTTP server listening", zap.String("addr", cfg.HTTPAddr))
				if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
				close(errCh)
			}()

			select {
			case <-ctx.Done():
				logger.Info("Shutting down")
			case err := <-errCh:
				if err != nil {
					stop()
					return err
				}
			}

			sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := server.Shutdown(sctx); err != nil {
				logger.Warn("HTTP shutdown", zap.Error(err))
			}
			a.Scheduler.Wait()
			wg.Wait()
			return nil
		},
	}

	cmd.Flags().BoolVar(&migrate, "migrate", true, "apply pending migrations before serving")
	cmd.Flags().BoolVar(&noScheduler, "no-scheduler", false, "do not run the sweeper and rule expansion")
	return cmd
}
