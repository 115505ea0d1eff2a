package httpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	appai "github.com/bryanwahyu/automaton-risk/internal/application/ai"
	appdataset "github.com/bryanwahyu/automaton-risk/internal/application/dataset"
	apprisk "github.com/bryanwahyu/automaton-risk/internal/application/risk"
	appscans "github.com/bryanwahyu/automaton-risk/internal/application/scans"
	"github.com/bryanwahyu/automaton-risk/internal/domain/dataset"
	"github.com/bryanwahyu/automaton-risk/internal/domain/risk"
	"github.com/bryanwahyu/automaton-risk/internal/domain/scans"
	"github.com/bryanwahyu/automaton-risk/internal/infra/db/sqlite"
	"github.com/bryanwahyu/automaton-risk/internal/infra/db/sqlrepo"
	"github.com/bryanwahyu/automaton-risk/internal/infra/lock"
	"github.com/bryanwahyu/automaton-risk/internal/infra/storage"
	"github.com/bryanwahyu/automaton-risk/internal/middleware"
	"github.com/bryanwahyu/automaton-risk/internal/observability"
)

type recordingDispatcher struct {
	mu   sync.Mutex
	reqs []appscans.Request
}

func (d *recordingDispatcher) Dispatch(_ context.Context, req appscans.Request) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.reqs = append(d.reqs, req)
	return nil
}

type fixture struct {
	handler    http.Handler
	repo       *sqlrepo.ScanRepository
	dispatcher *recordingDispatcher
	trainer    *apprisk.Trainer
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	dir := t.TempDir()
	db, err := sqlite.Open(ctx, filepath.Join(dir, "scanner.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := sqlrepo.Migrate(ctx, db, sqlite.Dialect); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	repo := sqlrepo.NewScanRepository(db, sqlite.Dialect)
	store, err := storage.NewLocalStore(filepath.Join(dir, "models"))
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	logger := observability.DiscardLogger()

	opt := apprisk.DefaultOptions()
	opt.Model.Estimators = 20
	trainer := &apprisk.Trainer{
		Dataset: appdataset.NewPipeline(filepath.Join(dir, "absent.json"), repo),
		Store:   store,
		Locker:  lock.NewLocal(),
		Options: opt,
		Logger:  logger,
	}
	f := &fixture{repo: repo, dispatcher: &recordingDispatcher{}, trainer: trainer}
	f.handler = NewRouter(Deps{
		Scans:      &appscans.Service{Repo: repo, Errors: sqlrepo.NewScanErrorRepository(db, sqlite.Dialect), Logger: logger},
		Dispatcher: f.dispatcher,
		Exporter:   &appdataset.Exporter{Repo: repo, Path: filepath.Join(dir, "scan_results.json")},
		Trainer:    trainer,
		Artifacts:  store,
		Analyst:    &appai.Service{Scans: repo, Repo: sqlrepo.NewAnalystRepository(db), Logger: logger},
		Health:     map[string]middleware.HealthChecker{"database": &middleware.DatabaseHealthChecker{DB: db}},
		Logger:     logger,
	}, Options{})
	return f
}

func (f *fixture) seed(t *testing.T) scans.ScanID {
	t.Helper()
	ctx := context.Background()
	var last scans.ScanID
	for i := 0; i < 4; i++ {
		id, err := f.repo.CreateScan(ctx, "http://shop.example.com")
		if err != nil {
			t.Fatalf("create: %v", err)
		}
		for _, a := range []struct{ name, risk string }{
			{"Cross Site Scripting (Reflected)", "High"},
			{"Cookie No HttpOnly Flag", "Low"},
			{"Content Security Policy (CSP) Header Not Set", "Medium"},
		} {
			if err := f.repo.InsertAlert(ctx, &scans.Alert{ScanID: id, Name: a.name, Risk: a.risk}); err != nil {
				t.Fatalf("insert: %v", err)
			}
		}
		if err := f.repo.FinishScan(ctx, id, scans.StatusCompleted); err != nil {
			t.Fatalf("finish: %v", err)
		}
		last = id
	}
	return last
}

func (f *fixture) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func TestStartScan(t *testing.T) {
	f := newFixture(t)

	if rec := f.do(t, http.MethodPost, "/v1/scans", map[string]string{"target": "http://127.0.0.1:8080"}); rec.Code != http.StatusBadRequest {
		t.Fatalf("private target: status %d", rec.Code)
	}
	if rec := f.do(t, http.MethodPost, "/v1/scans", map[string]string{"target": "ftp://example.com"}); rec.Code != http.StatusBadRequest {
		t.Fatalf("ftp target: status %d", rec.Code)
	}
	rec := f.do(t, http.MethodPost, "/v1/scans", map[string]string{"target": "http://example.com"})
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status %d: %s", rec.Code, rec.Body)
	}
	if len(f.dispatcher.reqs) != 1 || f.dispatcher.reqs[0].Target != "http://example.com" {
		t.Fatalf("dispatched = %+v", f.dispatcher.reqs)
	}
}

func TestGetScan(t *testing.T) {
	f := newFixture(t)
	id := f.seed(t)

	if rec := f.do(t, http.MethodGet, "/v1/scans/not-a-uuid", nil); rec.Code != http.StatusBadRequest {
		t.Fatalf("bad id: status %d", rec.Code)
	}
	if rec := f.do(t, http.MethodGet, "/v1/scans/"+uuid.NewString(), nil); rec.Code != http.StatusNotFound {
		t.Fatalf("unknown id: status %d", rec.Code)
	}
	rec := f.do(t, http.MethodGet, "/v1/scans/"+string(id), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rec.Code, rec.Body)
	}
	var detail appscans.ScanDetail
	if err := json.Unmarshal(rec.Body.Bytes(), &detail); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if detail.ID != id || len(detail.Alerts) != 3 || detail.Status != scans.StatusCompleted {
		t.Fatalf("detail = %+v", detail)
	}

	rec = f.do(t, http.MethodGet, "/v1/scans/"+string(id)+"/errors", nil)
	if rec.Code != http.StatusOK || rec.Body.String() != "[]\n" {
		t.Fatalf("errors: %d %s", rec.Code, rec.Body)
	}

	rec = f.do(t, http.MethodGet, "/v1/scans", nil)
	var list []map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &list); err != nil || len(list) != 4 {
		t.Fatalf("list: %v %s", err, rec.Body)
	}
}

func TestTrainAndPredict(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/v1/train", nil)
	if rec.Code != http.StatusOK || !bytes.Contains(rec.Body.Bytes(), []byte(`"no_data"`)) {
		t.Fatalf("empty store: %d %s", rec.Code, rec.Body)
	}
	predict := apprisk.Input{AlertName: "Cookie No HttpOnly Flag", Target: "http://shop.example.com", AlertsInScan: 3}
	if rec := f.do(t, http.MethodPost, "/v1/risk/predict", predict); rec.Code != http.StatusNotFound {
		t.Fatalf("predict without model: %d %s", rec.Code, rec.Body)
	}

	f.seed(t)
	rec = f.do(t, http.MethodPost, "/v1/train", nil)
	if rec.Code != http.StatusOK || !bytes.Contains(rec.Body.Bytes(), []byte(`"trained"`)) {
		t.Fatalf("train: %d %s", rec.Code, rec.Body)
	}

	rec = f.do(t, http.MethodPost, "/v1/risk/predict", predict)
	if rec.Code != http.StatusOK {
		t.Fatalf("predict: %d %s", rec.Code, rec.Body)
	}
	var p apprisk.Prediction
	if err := json.Unmarshal(rec.Body.Bytes(), &p); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if p.Risk != "Low" || len(p.Probabilities) != 3 {
		t.Fatalf("prediction = %+v", p)
	}

	if rec := f.do(t, http.MethodPost, "/v1/risk/predict", map[string]any{"alert_name": " "}); rec.Code != http.StatusBadRequest {
		t.Fatalf("blank name: %d", rec.Code)
	}
}

type fixedRows []dataset.FeatureRow

func (r fixedRows) LoadDataset(context.Context) ([]dataset.FeatureRow, error) { return r, nil }

func TestPredictReloadsBundleTrainedElsewhere(t *testing.T) {
	f := newFixture(t)
	f.seed(t)
	if rec := f.do(t, http.MethodPost, "/v1/train", nil); rec.Code != http.StatusOK {
		t.Fatalf("train: %d %s", rec.Code, rec.Body)
	}
	predict := apprisk.Input{AlertName: "Cookie No HttpOnly Flag", Target: "http://shop.example.com", AlertsInScan: 3}
	predictOnce := func() apprisk.Prediction {
		t.Helper()
		rec := f.do(t, http.MethodPost, "/v1/risk/predict", predict)
		if rec.Code != http.StatusOK {
			t.Fatalf("predict: %d %s", rec.Code, rec.Body)
		}
		var p apprisk.Prediction
		if err := json.Unmarshal(rec.Body.Bytes(), &p); err != nil {
			t.Fatalf("decode: %v", err)
		}
		return p
	}
	if p := predictOnce(); len(p.Probabilities) != 3 {
		t.Fatalf("first bundle has 3 labels, got %+v", p)
	}

	// a second process shares the store and trains a two-label bundle
	d := 30.0
	var rows fixedRows
	for i := 0; i < 5; i++ {
		rows = append(rows,
			dataset.FeatureRow{ScanID: "r1", Target: "http://shop.example.com", ScanDurationSeconds: &d, AlertsInScan: 2, AlertName: "Cookie No HttpOnly Flag", Risk: "High"},
			dataset.FeatureRow{ScanID: "r2", Target: "http://shop.example.com", ScanDurationSeconds: &d, AlertsInScan: 2, AlertName: "Cross Site Scripting (Reflected)", Risk: "Low"},
		)
	}
	other := *f.trainer
	other.Dataset = rows
	other.Locker = nil
	if _, err := other.TrainAndPersist(context.Background()); err != nil {
		t.Fatalf("train elsewhere: %v", err)
	}

	p := predictOnce()
	if len(p.Probabilities) != 2 || p.Risk != "High" {
		t.Fatalf("predictor must follow the new bundle, got %+v", p)
	}
}

func TestTrainConflict(t *testing.T) {
	f := newFixture(t)
	release, err := f.trainer.Locker.Acquire(context.Background(), apprisk.LockKey, time.Minute)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	defer release()
	if rec := f.do(t, http.MethodPost, "/v1/train", nil); rec.Code != http.StatusConflict {
		t.Fatalf("status %d: %s", rec.Code, rec.Body)
	}
}

func TestAnalysisAndExport(t *testing.T) {
	f := newFixture(t)
	id := f.seed(t)

	rec := f.do(t, http.MethodPost, "/v1/scans/"+string(id)+"/analysis", nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("analysis: %d %s", rec.Code, rec.Body)
	}
	rec = f.do(t, http.MethodGet, "/v1/analyses?page=1&page_size=5", nil)
	var list []map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &list); err != nil || len(list) != 1 || list[0]["model"] != appai.HeuristicModel {
		t.Fatalf("analyses: %v %s", err, rec.Body)
	}

	rec = f.do(t, http.MethodPost, "/v1/export", nil)
	if rec.Code != http.StatusOK || !bytes.Contains(rec.Body.Bytes(), []byte(`"scans":4`)) {
		t.Fatalf("export: %d %s", rec.Code, rec.Body)
	}
}

func TestHealthIsOpen(t *testing.T) {
	f := newFixture(t)
	if rec := f.do(t, http.MethodGet, "/health", nil); rec.Code != http.StatusOK {
		t.Fatalf("health: %d %s", rec.Code, rec.Body)
	}
	if rec := f.do(t, http.MethodGet, "/healthz", nil); rec.Code != http.StatusOK {
		t.Fatalf("healthz: %d", rec.Code)
	}
}

var _ risk.ArtifactStore = (*storage.LocalStore)(nil)
