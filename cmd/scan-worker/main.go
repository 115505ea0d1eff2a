package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	appscans "github.com/bryanwahyu/automaton-risk/internal/application/scans"
	"github.com/bryanwahyu/automaton-risk/internal/bootstrap"
	"github.com/bryanwahyu/automaton-risk/internal/config"
	"github.com/bryanwahyu/automaton-risk/internal/infra/mq"
	"github.com/bryanwahyu/automaton-risk/internal/middleware"
	"github.com/bryanwahyu/automaton-risk/internal/observability"
)

func main() {
	path := "config.yaml"
	if v := os.Getenv("CONFIG_PATH"); v != "" {
		path = v
	}
	cfg, err := config.Load(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load error: %v\n", err)
		os.Exit(1)
	}
	logger := observability.InitLogger(cfg.Logging.Format, cfg.Logging.Level)
	if err := run(cfg, logger); err != nil {
		logger.Error("worker stopped", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	if cfg.RabbitMQ.URL == "" {
		return errors.New("rabbitmq.url is required for the scan worker")
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := observability.InitTracing("riskscan-worker", observability.TracingConfig{
		Exporter:    cfg.Tracing.Exporter,
		Endpoint:    cfg.Tracing.Endpoint,
		Insecure:    cfg.Tracing.Insecure,
		SampleRatio: cfg.Tracing.SampleRatio,
	})
	if err != nil {
		return fmt.Errorf("tracing: %w", err)
	}
	defer shutdownTracing(context.Background())

	app, err := bootstrap.Build(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer app.Close(context.Background())

	// queued targets get the same check as POST /v1/scans
	validate := func(target string) error {
		return middleware.ValidateTarget(target, cfg.Server.AllowPrivateTargets)
	}
	consumer := &mq.Consumer{
		URL:      cfg.RabbitMQ.URL,
		Queue:    cfg.RabbitMQ.Queue,
		Workers:  cfg.RabbitMQ.Workers,
		Logger:   logger,
		Validate: validate,
		Handler: func(ctx context.Context, req appscans.Request) error {
			res, err := app.Scans.RunScan(ctx, req.Target)
			logger.Info("scan done", "scan_id", res.ScanID, "status", res.Status, "alerts", len(res.Alerts))
			return err
		},
	}
	return consumer.Run(ctx)
}
