package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	appscans "github.com/bryanwahyu/automaton-risk/internal/application/scans"
	"github.com/bryanwahyu/automaton-risk/internal/bootstrap"
	"github.com/bryanwahyu/automaton-risk/internal/config"
	"github.com/bryanwahyu/automaton-risk/internal/infra/httpserver"
	"github.com/bryanwahyu/automaton-risk/internal/infra/mq"
	"github.com/bryanwahyu/automaton-risk/internal/middleware"
	"github.com/bryanwahyu/automaton-risk/internal/observability"
)

func main() {
	// path config.yaml
	path := "config.yaml"
	if v := os.Getenv("CONFIG_PATH"); v != "" {
		path = v
	}

	// load config
	cfg, err := config.Load(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load error: %v\n", err)
		os.Exit(1)
	}
	logger := observability.InitLogger(cfg.Logging.Format, cfg.Logging.Level)
	if err := run(cfg, logger); err != nil {
		logger.Error("api stopped", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := observability.InitTracing("riskscan-api", observability.TracingConfig{
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

	// queue when configured, otherwise scans run inside this process
	var dispatcher appscans.Dispatcher
	inProcess := &appscans.InProcess{Service: app.Scans}
	if cfg.RabbitMQ.URL != "" {
		pub, err := mq.NewPublisher(cfg.RabbitMQ.URL, cfg.RabbitMQ.Queue)
		if err != nil {
			return err
		}
		defer pub.Close()
		dispatcher = pub
	} else {
		dispatcher = inProcess
	}

	limiter := middleware.NewPerMinuteLimiter(cfg.Server.RateLimit.RequestsPerMinute, cfg.Server.RateLimit.Burst)
	if limiter != nil {
		defer limiter.Close()
	}

	handler := httpserver.NewRouter(httpserver.Deps{
		Scans:      app.Scans,
		Dispatcher: dispatcher,
		Exporter:   app.Exporter,
		Trainer:    app.Trainer,
		Artifacts:  app.Store,
		Analyst:    app.Analyst,
		Health:     app.HealthCheckers(),
		Logger:     logger,
	}, httpserver.Options{
		APIKeys:             cfg.Server.APIKeys,
		AllowPrivateTargets: cfg.Server.AllowPrivateTargets,
		Limiter:             limiter,
	})

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 5 * time.Minute, // POST /v1/train runs synchronously
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	logger.Info("shutting down server...")

	ctx2, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx2); err != nil {
		logger.Warn("shutdown error", "error", err)
	}
	// in-process scans finish before the store closes; past the deadline
	// they are cancelled and recorded as failed
	if err := inProcess.Wait(ctx2); err != nil {
		logger.Warn("in-process scans cancelled at shutdown", "error", err)
	}
	return nil
}
