package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/Freeeeeet/mentorbook/internal/app"
	"github.com/Freeeeeet/mentorbook/internal/config"
)

// bootstrap loads configuration and returns a logger and a context cancelled on SIGINT/SIGTERM.
func bootstrap() (*config.Config, *zap.Logger, context.Context, context.CancelFunc, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("load config: %w", err)
	}
	logger := app.NewLogger(cfg.Environment)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	return cfg, logger, ctx, stop, nil
}
