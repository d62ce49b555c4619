package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/goliatone/go-record-services/config"
	"github.com/goliatone/go-record-services/httpapi"
	"github.com/goliatone/go-record-services/pkg/di"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "user-api:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel})).With("service", "user-api")
	slog.SetDefault(logger)

	container, err := di.NewContainer(cfg, logger)
	if err != nil {
		return err
	}
	defer container.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	handler, err := container.UserHandler(ctx)
	if err != nil {
		return err
	}

	logger.Info("starting", "environment", cfg.Environment, "driver", cfg.SQL.Driver, "reset", cfg.SQL.Reset)
	return httpapi.NewServer(cfg.HTTP.Addr, handler, cfg.HTTP.ShutdownTimeout, logger).Run(ctx)
}
