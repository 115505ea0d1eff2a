package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/bryanwahyu/automaton-risk/internal/application"
	"github.com/bryanwahyu/automaton-risk/internal/domain/ai"
	"github.com/bryanwahyu/automaton-risk/internal/domain/analyst"
	"github.com/bryanwahyu/automaton-risk/internal/domain/scans"
	"github.com/bryanwahyu/automaton-risk/internal/infra/ai/prompt"
)

// HeuristicModel names analyses produced without a language model.
const HeuristicModel = "heuristic"

// ScanReader is the part of the result store the analysis needs.
type ScanReader interface {
	Get(ctx context.Context, id scans.ScanID) (*scans.ScanRun, error)
	ListAlerts(ctx context.Context, id scans.ScanID) ([]scans.Alert, error)
}

// Service triages the persisted alerts of a scan and keeps every answer.
type Service struct {
	Scans  ScanReader
	Repo   analyst.Repository
	Client ai.Client // nil: heuristic triage
	Model  string
	Clock  application.Clock
	Logger *slog.Logger
}

// AnalyzeScan triages scan id. A missing scan is scans.ErrNotFound.
func (s *Service) AnalyzeScan(ctx context.Context, id scans.ScanID) (*analyst.Analysis, error) {
	run, err := s.Scans.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	alerts, err := s.Scans.ListAlerts(ctx, id)
	if err != nil {
		return nil, err
	}

	model := HeuristicModel
	var triage *prompt.Triage
	if s.Client == nil {
		triage = prompt.Heuristic(run, alerts)
	} else {
		model = s.Model
		input, err := prompt.UserPrompt(run, alerts)
		if err != nil {
			return nil, fmt.Errorf("build prompt: %w", err)
		}
		raw, err := s.Client.Analyze(ctx, input)
		if err != nil {
			return nil, err
		}
		if triage, err = prompt.ParseTriage(raw); err != nil {
			return nil, fmt.Errorf("model answer: %w", err)
		}
		triage.ScanID, triage.Target = string(run.ID), run.Target
	}

	result, err := json.Marshal(triage)
	if err != nil {
		return nil, err
	}
	a := &analyst.Analysis{
		ID:        analyst.AnalysisID(uuid.NewString()),
		ScanID:    string(run.ID),
		Model:     model,
		Result:    string(result),
		CreatedAt: s.now(),
	}
	if err := s.Repo.Save(ctx, a); err != nil {
		return nil, err
	}
	s.logger().Info("scan analyzed", "scan_id", run.ID, "model", model, "alerts", len(alerts), "findings", len(triage.Findings))
	return a, nil
}

// Paginate lists analyses newest first.
func (s *Service) Paginate(ctx context.Context, page, pageSize int) ([]*analyst.Analysis, error) {
	return s.Repo.Paginate(ctx, page, pageSize)
}

func (s *Service) now() time.Time {
	if s.Clock == nil {
		return time.Now().UTC()
	}
	return s.Clock.Now().UTC()
}

func (s *Service) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}
