package scans

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/bryanwahyu/automaton-risk/internal/application"
	"github.com/bryanwahyu/automaton-risk/internal/domain/scanerrors"
	domain "github.com/bryanwahyu/automaton-risk/internal/domain/scans"
	"github.com/bryanwahyu/automaton-risk/internal/observability"
)

const (
	DefaultSpiderInterval     = 2 * time.Second
	DefaultActiveScanInterval = 5 * time.Second
)

// Service implements use-cases untuk Scan.
// Satu Service boleh dipakai banyak scan sekaligus; tiap RunScan berjalan sekuensial.
type Service struct {
	Repo    domain.Repository
	Engine  domain.Engine
	Errors  scanerrors.Repository // optional
	Sleeper application.Sleeper
	Logger  *slog.Logger

	SpiderInterval     time.Duration
	ActiveScanInterval time.Duration
}

// RunResult is what one orchestration produced. Status tells a scan that
// completed with zero alerts apart from one that failed before collection.
type RunResult struct {
	ScanID         domain.ScanID        `json:"scan_id"`
	Status         domain.Status        `json:"status"`
	Alerts         []domain.EngineAlert `json:"alerts"`
	Persisted      int                  `json:"persisted"`
	InsertFailures int                  `json:"insert_failures"`
}

// RunScan drives one scan of target through open, spider, active scan and
// collection, recording the lifecycle in Repo.
//
// Engine failures are not returned: the run is marked failed and Alerts is
// empty. The error is non-nil only when the store fails (createScan,
// finishScan, or every alert insert).
func (s *Service) RunScan(ctx context.Context, target string) (RunResult, error) {
	ctx, span := observability.StartSpan(ctx, "scan.run", attribute.String("scan.target", target))
	defer span.End()
	log := s.logger().With("target", target)

	// Created
	id, err := s.Repo.CreateScan(ctx, target)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "create scan")
		log.Error("create scan failed", "error", err)
		return RunResult{Alerts: []domain.EngineAlert{}}, err
	}
	span.SetAttributes(attribute.String("scan.id", string(id)))
	log = log.With("scan_id", string(id))
	log.Info("scan started")

	observability.IncrementScans()
	observability.IncrementScansRunning()
	defer observability.DecrementScansRunning()

	res := RunResult{ScanID: id, Alerts: []domain.EngineAlert{}}

	alerts, err := s.drive(ctx, id, target, log)
	if err != nil {
		res.Status = domain.StatusFailed
		observability.IncrementScansFailed()
		span.RecordError(err)
		span.SetStatus(codes.Error, "engine")
		log.Error("scan failed", "error", err)
		s.recordError(ctx, id, err)
		if ferr := s.finish(ctx, id, domain.StatusFailed); ferr != nil {
			log.Error("finish scan failed", "error", ferr)
			return res, ferr
		}
		return res, nil
	}

	// Collecting: one insert per alert; a failed insert never stops the loop
	var lastErr error
	for _, ea := range alerts {
		a := &domain.Alert{
			ScanID:      id,
			Name:        ea.Name,
			Risk:        ea.Risk,
			Confidence:  ea.Confidence,
			Description: ea.Description,
			Solution:    ea.Solution,
		}
		if err := s.Repo.InsertAlert(ctx, a); err != nil {
			res.InsertFailures++
			lastErr = err
			log.Warn("insert alert failed", "alert", ea.Name, "error", err)
			s.saveError(ctx, id, scanerrors.PhaseCollect, fmt.Sprintf("insert alert %q: %v", ea.Name, err))
			continue
		}
		res.Persisted++
	}
	observability.AddAlertsPersisted(res.Persisted)
	observability.AddAlertInsertFailures(res.InsertFailures)

	res.Status = domain.StatusCompleted
	res.Alerts = alerts
	if err := s.finish(ctx, id, domain.StatusCompleted); err != nil {
		log.Error("finish scan failed", "error", err)
		return res, err
	}
	log.Info("scan completed", "alerts", len(alerts), "persisted", res.Persisted, "insert_failures", res.InsertFailures)

	if len(alerts) > 0 && res.Persisted == 0 {
		err := errors.Join(domain.ErrNoAlertsPersisted, lastErr)
		span.RecordError(err)
		return res, err
	}
	return res, nil
}

// drive runs the engine phases. A panic inside the engine adapter is turned
// into an EngineError of the phase it happened in.
func (s *Service) drive(ctx context.Context, id domain.ScanID, target string, log *slog.Logger) (alerts []domain.EngineAlert, err error) {
	phase := scanerrors.PhaseOpen
	defer func() {
		if r := recover(); r != nil {
			alerts = nil
			err = &domain.EngineError{Phase: phase, Err: fmt.Errorf("panic: %v", r)}
		}
	}()
	fail := func(err error) error { return &domain.EngineError{Phase: phase, Err: err} }

	if err := s.phase(ctx, phase, func(ctx context.Context) error { return s.Engine.Open(ctx, target) }); err != nil {
		return nil, fail(err)
	}

	// Spidering
	phase = scanerrors.PhaseSpider
	log.Info("phase", "phase", phase)
	err = s.phase(ctx, phase, func(ctx context.Context) error {
		job, err := s.Engine.StartSpider(ctx, target)
		if err != nil {
			return err
		}
		return s.waitForCompletion(ctx, job, s.spiderInterval(), s.Engine.SpiderStatus, log.With("phase", phase))
	})
	if err != nil {
		return nil, fail(err)
	}

	// ActiveScanning
	phase = scanerrors.PhaseAttack
	log.Info("phase", "phase", phase)
	err = s.phase(ctx, phase, func(ctx context.Context) error {
		job, err := s.Engine.StartActiveScan(ctx, target)
		if err != nil {
			return err
		}
		return s.waitForCompletion(ctx, job, s.activeScanInterval(), s.Engine.ActiveScanStatus, log.With("phase", phase))
	})
	if err != nil {
		return nil, fail(err)
	}

	// Collecting
	phase = scanerrors.PhaseCollect
	log.Info("phase", "phase", phase)
	err = s.phase(ctx, phase, func(ctx context.Context) error {
		var err error
		alerts, err = s.Engine.Alerts(ctx, target)
		return err
	})
	if err != nil {
		return nil, fail(err)
	}
	if alerts == nil {
		alerts = []domain.EngineAlert{}
	}
	return alerts, nil
}

// phase wraps fn in a span named after the phase.
func (s *Service) phase(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	ctx, span := observability.StartSpan(ctx, "scan."+name)
	defer span.End()
	if err := fn(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, name)
		return err
	}
	return nil
}

// finish runs even when ctx was cancelled, so a started scan never stays
// running because the caller went away.
func (s *Service) finish(ctx context.Context, id domain.ScanID, status domain.Status) error {
	return s.Repo.FinishScan(context.WithoutCancel(ctx), id, status)
}

func (s *Service) recordError(ctx context.Context, id domain.ScanID, err error) {
	phase := scanerrors.PhaseOpen
	var ee *domain.EngineError
	if errors.As(err, &ee) {
		phase = ee.Phase
	}
	s.saveError(ctx, id, phase, err.Error())
}

func (s *Service) saveError(ctx context.Context, id domain.ScanID, phase, msg string) {
	if s.Errors == nil {
		return
	}
	e := &scanerrors.ScanError{ScanID: string(id), Phase: phase, Message: msg}
	if err := s.Errors.Save(context.WithoutCancel(ctx), e); err != nil {
		s.logger().Warn("save scan error failed", "scan_id", string(id), "error", err)
	}
}

// Get ambil 1 scan beserta alert-nya
func (s *Service) Get(ctx context.Context, id domain.ScanID) (*ScanDetail, error) {
	run, err := s.Repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	alerts, err := s.Repo.ListAlerts(ctx, id)
	if err != nil {
		return nil, err
	}
	return &ScanDetail{ScanRun: *run, Alerts: alerts}, nil
}

// ScanDetail is one run with its persisted alerts.
type ScanDetail struct {
	domain.ScanRun
	Alerts []domain.Alert `json:"alerts"`
}

// ErrorsOf lists the recorded errors of a scan, newest first.
func (s *Service) ErrorsOf(ctx context.Context, id domain.ScanID, limit int) ([]*scanerrors.ScanError, error) {
	if _, err := s.Repo.Get(ctx, id); err != nil {
		return nil, err
	}
	if s.Errors == nil {
		return []*scanerrors.ScanError{}, nil
	}
	return s.Errors.ListByScan(ctx, string(id), limit)
}

func (s *Service) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}

func (s *Service) spiderInterval() time.Duration {
	if s.SpiderInterval > 0 {
		return s.SpiderInterval
	}
	return DefaultSpiderInterval
}

func (s *Service) activeScanInterval() time.Duration {
	if s.ActiveScanInterval > 0 {
		return s.ActiveScanInterval
	}
	return DefaultActiveScanInterval
}
