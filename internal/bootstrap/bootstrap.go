// Package bootstrap wires the configured backends into the application
// services shared by the API and the scan worker.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/bryanwahyu/automaton-risk/internal/application"
	appai "github.com/bryanwahyu/automaton-risk/internal/application/ai"
	appdataset "github.com/bryanwahyu/automaton-risk/internal/application/dataset"
	apprisk "github.com/bryanwahyu/automaton-risk/internal/application/risk"
	appscans "github.com/bryanwahyu/automaton-risk/internal/application/scans"
	"github.com/bryanwahyu/automaton-risk/internal/config"
	"github.com/bryanwahyu/automaton-risk/internal/domain/risk"
	"github.com/bryanwahyu/automaton-risk/internal/infra/ai/openai"
	"github.com/bryanwahyu/automaton-risk/internal/infra/db"
	"github.com/bryanwahyu/automaton-risk/internal/infra/db/sqlrepo"
	"github.com/bryanwahyu/automaton-risk/internal/infra/engine/zap"
	"github.com/bryanwahyu/automaton-risk/internal/infra/executor/docker"
	"github.com/bryanwahyu/automaton-risk/internal/infra/lock"
	"github.com/bryanwahyu/automaton-risk/internal/infra/storage"
	"github.com/bryanwahyu/automaton-risk/internal/middleware"
	"github.com/bryanwahyu/automaton-risk/internal/ml/gbdt"
)

// App holds every wired service. Close releases what Build opened.
type App struct {
	Config   *config.Config
	Logger   *slog.Logger
	DB       *sqlx.DB
	Repo     *sqlrepo.ScanRepository
	Engine   *zap.Client
	Scans    *appscans.Service
	Exporter *appdataset.Exporter
	Trainer  *apprisk.Trainer
	Store    risk.ArtifactStore
	Analyst  *appai.Service

	closers []func(context.Context) error
}

// Build opens the database, connects the engine and the artifact store and
// assembles the services.
func Build(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	app := &App{Config: cfg, Logger: logger}
	fail := func(err error) (*App, error) {
		app.Close(context.Background())
		return nil, err
	}

	conn, dialect, err := db.Open(ctx, cfg)
	if err != nil {
		return fail(err)
	}
	app.DB = conn
	app.onClose(func(context.Context) error { return conn.Close() })
	app.Repo = sqlrepo.NewScanRepository(conn, dialect)

	app.Engine = zap.NewClient(cfg.Engine.BaseURL, cfg.Engine.APIKey, cfg.Engine.RequestTimeout)
	if cfg.Engine.Launch.Enabled {
		if err := app.launchEngine(ctx); err != nil {
			return fail(err)
		}
	}

	app.Scans = &appscans.Service{
		Repo:               app.Repo,
		Engine:             app.Engine,
		Errors:             sqlrepo.NewScanErrorRepository(conn, dialect),
		Sleeper:            application.SystemClock{},
		Logger:             logger.With("component", "orchestrator"),
		SpiderInterval:     cfg.Engine.SpiderInterval,
		ActiveScanInterval: cfg.Engine.ActiveScanInterval,
	}
	app.Exporter = &appdataset.Exporter{Repo: app.Repo, Path: cfg.Dataset.SnapshotPath}

	if app.Store, err = app.artifactStore(ctx); err != nil {
		return fail(err)
	}
	locker, err := app.locker(ctx)
	if err != nil {
		return fail(err)
	}

	pipeline := appdataset.NewPipeline(cfg.Dataset.SnapshotPath, app.Repo)
	pipeline.Logger = logger.With("component", "dataset")
	t := cfg.Training
	app.Trainer = &apprisk.Trainer{
		Dataset: pipeline,
		Store:   app.Store,
		Locker:  locker,
		Options: apprisk.Options{
			MaxFeatures: t.MaxFeatures,
			TestSize:    t.TestSize,
			Seed:        t.Seed,
			LockTTL:     t.LockTTL,
			Model: gbdt.Params{
				Estimators:      t.Estimators,
				LearningRate:    t.LearningRate,
				MaxDepth:        t.MaxDepth,
				MinSamplesSplit: t.MinSamplesSplit,
				MinSamplesLeaf:  t.MinSamplesLeaf,
				Lambda:          gbdt.DefaultParams().Lambda,
				MaxBins:         gbdt.DefaultParams().MaxBins,
			},
		},
		Logger: logger.With("component", "trainer"),
	}

	app.Analyst = &appai.Service{
		Scans:  app.Repo,
		Repo:   sqlrepo.NewAnalystRepository(conn),
		Clock:  application.SystemClock{},
		Logger: logger.With("component", "analyst"),
	}
	if cfg.OpenAI.APIKey != "" {
		client := openai.NewClient(cfg.OpenAI.APIKey, cfg.OpenAI.Model)
		app.Analyst.Client = client
		app.Analyst.Model = client.ModelName()
	}
	return app, nil
}

// HealthCheckers returns the dependencies /health reports on.
func (a *App) HealthCheckers() map[string]middleware.HealthChecker {
	return map[string]middleware.HealthChecker{
		"database": &middleware.DatabaseHealthChecker{DB: a.DB},
		"engine":   middleware.CheckFunc(a.Engine.Check),
	}
}

func (a *App) launchEngine(ctx context.Context) error {
	l := a.Config.Engine.Launch
	d := &docker.Daemon{Image: l.Image, ContainerName: l.ContainerName, Port: l.Port, APIKey: a.Config.Engine.APIKey}
	id, err := d.Start(ctx)
	if err != nil {
		return err
	}
	a.Logger.Info("engine container started", "container", id, "image", l.Image)
	a.onClose(d.Stop)

	wctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()
	return docker.WaitReady(wctx, 2*time.Second, a.Engine.Check)
}

func (a *App) artifactStore(ctx context.Context) (risk.ArtifactStore, error) {
	switch strings.ToLower(a.Config.Training.Backend) {
	case "minio":
		m := a.Config.Minio
		s, err := storage.NewMinioStore(ctx, storage.MinioConfig{
			Endpoint:  m.Endpoint,
			Region:    m.Region,
			Bucket:    m.BucketName,
			AccessKey: m.AccessKey,
			SecretKey: m.SecretKey,
			UseSSL:    m.UseSSL,
			Prefix:    m.Prefix,
		})
		if err != nil {
			return nil, fmt.Errorf("minio: %w", err)
		}
		s.Logger = a.Logger
		return s, nil
	default:
		return storage.NewLocalStore(a.Config.Training.ArtifactDir)
	}
}

func (a *App) locker(ctx context.Context) (risk.Locker, error) {
	r := a.Config.Redis
	if r.Addr == "" {
		return lock.NewLocal(), nil
	}
	l := lock.NewRedis(r.Addr, r.Password, r.DB)
	l.Logger = a.Logger
	if err := l.Ping(ctx); err != nil {
		l.Close()
		return nil, fmt.Errorf("redis %s: %w", r.Addr, err)
	}
	a.onClose(func(context.Context) error { return l.Close() })
	return l, nil
}

func (a *App) onClose(fn func(context.Context) error) {
	a.closers = append(a.closers, fn)
}

// Close runs the closers in reverse order.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i](ctx))
	}
	a.closers = nil
	return errors.Join(errs...)
}
