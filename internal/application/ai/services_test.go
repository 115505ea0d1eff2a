package ai_test

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	appai "github.com/bryanwahyu/automaton-risk/internal/application/ai"
	domainai "github.com/bryanwahyu/automaton-risk/internal/domain/ai"
	"github.com/bryanwahyu/automaton-risk/internal/domain/analyst"
	"github.com/bryanwahyu/automaton-risk/internal/domain/scans"
	"github.com/bryanwahyu/automaton-risk/internal/infra/ai/prompt"
	"github.com/bryanwahyu/automaton-risk/internal/observability"
)

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

type scanStub struct {
	run    *scans.ScanRun
	alerts []scans.Alert
}

func (s scanStub) Get(_ context.Context, id scans.ScanID) (*scans.ScanRun, error) {
	if s.run == nil || s.run.ID != id {
		return nil, &scans.NotFoundError{ScanID: id}
	}
	return s.run, nil
}

func (s scanStub) ListAlerts(context.Context, scans.ScanID) ([]scans.Alert, error) {
	return s.alerts, nil
}

type memAnalyses struct{ saved []*analyst.Analysis }

func (m *memAnalyses) Save(_ context.Context, a *analyst.Analysis) error {
	m.saved = append(m.saved, a)
	return nil
}

func (m *memAnalyses) Paginate(context.Context, int, int) ([]*analyst.Analysis, error) {
	return m.saved, nil
}

func (m *memAnalyses) LatestByScan(context.Context, string) (*analyst.Analysis, error) {
	return nil, nil
}

type clientFunc func(ctx context.Context, input string) (string, error)

func (f clientFunc) Analyze(ctx context.Context, input string) (string, error) { return f(ctx, input) }

func newService(client domainai.Client) (*appai.Service, *memAnalyses) {
	repo := &memAnalyses{}
	return &appai.Service{
		Scans: scanStub{
			run:    &scans.ScanRun{ID: "s1", Target: "http://example.com", Status: scans.StatusCompleted},
			alerts: []scans.Alert{{Name: "XSS", Risk: "High"}, {Name: "Cookie", Risk: "Low"}},
		},
		Repo:   repo,
		Client: client,
		Model:  "gpt-4o-mini",
		Clock:  fixedClock{time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)},
		Logger: observability.DiscardLogger(),
	}, repo
}

func TestAnalyzeScanHeuristic(t *testing.T) {
	svc, repo := newService(nil)
	a, err := svc.AnalyzeScan(context.Background(), "s1")
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if a.Model != appai.HeuristicModel || len(repo.saved) != 1 || a.ID == "" {
		t.Fatalf("analysis = %+v", a)
	}
	var tr prompt.Triage
	if err := json.Unmarshal([]byte(a.Result), &tr); err != nil {
		t.Fatalf("result: %v", err)
	}
	if tr.Counts.High != 1 || tr.Counts.Low != 1 || tr.ScanID != "s1" {
		t.Fatalf("triage = %+v", tr)
	}
}

func TestAnalyzeScanWithModel(t *testing.T) {
	var sent string
	svc, _ := newService(clientFunc(func(_ context.Context, input string) (string, error) {
		sent = input
		return `{"counts":{"high":1},"findings":[{"title":"XSS","severity":"high","summary":"s"}],"advice":"fix"}`, nil
	}))
	a, err := svc.AnalyzeScan(context.Background(), "s1")
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if !strings.Contains(sent, `"alert_name":"Cookie"`) {
		t.Fatalf("prompt misses alerts: %s", sent)
	}
	if a.Model != "gpt-4o-mini" || !strings.Contains(a.Result, `"target":"http://example.com"`) {
		t.Fatalf("analysis = %+v", a)
	}
}

func TestAnalyzeScanErrors(t *testing.T) {
	svc, repo := newService(clientFunc(func(context.Context, string) (string, error) {
		return "", domainai.ErrQuotaExceeded
	}))
	if _, err := svc.AnalyzeScan(context.Background(), "s1"); !errors.Is(err, domainai.ErrQuotaExceeded) {
		t.Fatalf("want quota error, got %v", err)
	}
	if _, err := svc.AnalyzeScan(context.Background(), "nope"); !errors.Is(err, scans.ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
	if len(repo.saved) != 0 {
		t.Fatal("failed analyses must not be stored")
	}
}
