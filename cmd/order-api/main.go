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
	"github.com/shopspring/decimal"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "order-api:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel})).With("service", "order-api")
	slog.SetDefault(logger)

	// money is rendered as JSON numbers
	decimal.MarshalJSONWithoutQuotes = true

	container, err := di.NewContainer(cfg, logger)
	if err != nil {
		return err
	}
	defer container.Close()

	handler, err := container.OrderHandler()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("starting", "environment", cfg.Environment, "elasticsearch", cfg.Elasticsearch.Addresses, "user_api", cfg.UserAPI.BaseURL)
	return httpapi.NewServer(cfg.HTTP.Addr, handler, cfg.HTTP.ShutdownTimeout, logger).Run(ctx)
}
