package risk_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	apprisk "github.com/bryanwahyu/automaton-risk/internal/application/risk"
	"github.com/bryanwahyu/automaton-risk/internal/domain/dataset"
	"github.com/bryanwahyu/automaton-risk/internal/domain/risk"
	"github.com/bryanwahyu/automaton-risk/internal/observability"
)

type staticRows []dataset.FeatureRow

func (s staticRows) LoadDataset(context.Context) ([]dataset.FeatureRow, error) {
	return s, nil
}

type memStore struct {
	mu    sync.Mutex
	files map[string][]byte
	saves int
}

func (m *memStore) SaveAll(_ context.Context, artifacts []risk.Artifact) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.files == nil {
		m.files = map[string][]byte{}
	}
	for _, a := range artifacts {
		m.files[a.Name] = a.Data
	}
	m.saves++
	return nil
}

func (m *memStore) Load(_ context.Context, name string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.files[name]
	if !ok {
		return nil, risk.ErrArtifactNotFound
	}
	return b, nil
}

type busyLocker struct{}

func (busyLocker) Acquire(context.Context, string, time.Duration) (func(), error) {
	return nil, risk.ErrTrainingInProgress
}

func row(scan, target, name, label string, n int) dataset.FeatureRow {
	d := 12.5
	return dataset.FeatureRow{
		ScanID: scan, Target: target, ScanDurationSeconds: &d,
		AlertsInScan: n, AlertName: name, Risk: label,
	}
}

func sampleRows() staticRows {
	var rows staticRows
	for i := 0; i < 5; i++ {
		rows = append(rows,
			row("s1", "http://a.example.com", "Cross Site Scripting (Reflected)", "High", 3),
			row("s2", "http://b.example.com", "Cookie No HttpOnly Flag", "Low", 2),
			row("s3", "http://a.example.com", "Content Security Policy Header Not Set", "Medium", 4),
		)
	}
	return rows
}

func newTrainer(rows staticRows, store risk.ArtifactStore) *apprisk.Trainer {
	opt := apprisk.DefaultOptions()
	opt.Model.Estimators = 30
	return &apprisk.Trainer{
		Dataset: rows,
		Store:   store,
		Options: opt,
		Logger:  observability.DiscardLogger(),
	}
}

func TestTrainAndPersistNoData(t *testing.T) {
	store := &memStore{}
	_, err := newTrainer(staticRows{}, store).TrainAndPersist(context.Background())
	if !errors.Is(err, risk.ErrNoData) {
		t.Fatalf("want ErrNoData, got %v", err)
	}
	if store.saves != 0 || len(store.files) != 0 {
		t.Fatalf("no artifact may be written without data: %v", store.files)
	}
}

func TestTrainAndPersistWritesBundle(t *testing.T) {
	ctx := context.Background()
	store := &memStore{}
	res, err := newTrainer(sampleRows(), store).TrainAndPersist(ctx)
	if err != nil {
		t.Fatalf("train: %v", err)
	}
	if res.Rows != 15 || res.TestRows != 3 || res.TrainRows != 12 || !res.Stratified {
		t.Fatalf("unexpected split: %+v", res)
	}
	want := risk.LabelMap{"High": 0, "Low": 1, "Medium": 2}
	if len(res.LabelMap) != 3 || res.LabelMap["High"] != 0 || res.LabelMap["Medium"] != 2 {
		t.Fatalf("label map = %v, want %v", res.LabelMap, want)
	}
	if res.Report == nil || res.Report.Support != 3 || len(res.Report.Confusion) == 0 {
		t.Fatalf("missing evaluation: %+v", res.Report)
	}
	for _, name := range risk.ArtifactNames {
		if len(store.files[name]) == 0 {
			t.Fatalf("artifact %s not written", name)
		}
	}
	var persisted map[string]int
	if err := json.Unmarshal(store.files[risk.LabelMapName], &persisted); err != nil || persisted["Low"] != 1 {
		t.Fatalf("label map artifact = %s (%v)", store.files[risk.LabelMapName], err)
	}

	p, err := apprisk.LoadPredictor(ctx, store)
	if err != nil {
		t.Fatalf("load predictor: %v", err)
	}
	got := p.Predict(apprisk.Input{AlertName: "  Cookie No HttpOnly Flag ", Target: "http://b.example.com", AlertsInScan: 2})
	if got.Risk != "Low" {
		t.Fatalf("predicted %q (%v)", got.Risk, got.Probabilities)
	}
	sum := 0.0
	for _, v := range got.Probabilities {
		sum += v
	}
	if len(got.Probabilities) != 3 || sum < 0.999 || sum > 1.001 {
		t.Fatalf("probabilities = %v", got.Probabilities)
	}

	unseen := p.Predict(apprisk.Input{AlertName: "Cross Site Scripting", Target: "http://never.example.com"})
	if unseen.Risk == "" {
		t.Fatal("unknown target must still be scored")
	}
}

func TestTrainSingleLabel(t *testing.T) {
	rows := staticRows{
		row("s1", "http://a", "SQL Injection", "High", 2),
		row("s1", "http://a", "Remote OS Command Injection", "High", 2),
		row("s2", "http://b", "SQL Injection", "High", 1),
	}
	store := &memStore{}
	res, err := newTrainer(rows, store).TrainAndPersist(context.Background())
	if err != nil {
		t.Fatalf("single label must train: %v", err)
	}
	if res.Stratified || len(res.LabelMap) != 1 || res.LabelMap["High"] != 0 {
		t.Fatalf("unexpected result: %+v", res)
	}
	p, err := apprisk.LoadPredictor(context.Background(), store)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got := p.Predict(apprisk.Input{AlertName: "anything else"}); got.Risk != "High" || got.Probabilities["High"] != 1 {
		t.Fatalf("prediction = %+v", got)
	}
}

func TestTrainEmptyVocabularyIsTrainingError(t *testing.T) {
	rows := staticRows{row("s1", "http://a", "X", "High", 1), row("s1", "http://a", "!", "Low", 1)}
	store := &memStore{}
	_, err := newTrainer(rows, store).TrainAndPersist(context.Background())
	var te *risk.TrainingError
	if !errors.As(err, &te) {
		t.Fatalf("want TrainingError, got %v", err)
	}
	if store.saves != 0 {
		t.Fatal("a failed fit must not write artifacts")
	}
}

func TestTrainRespectsLock(t *testing.T) {
	store := &memStore{}
	tr := newTrainer(sampleRows(), store)
	tr.Locker = busyLocker{}
	if _, err := tr.TrainAndPersist(context.Background()); !errors.Is(err, risk.ErrTrainingInProgress) {
		t.Fatalf("want ErrTrainingInProgress, got %v", err)
	}
	if store.saves != 0 {
		t.Fatal("locked out run must not write")
	}
}

func TestLoadPredictorMissingArtifact(t *testing.T) {
	store := &memStore{files: map[string][]byte{risk.ModelName: []byte("{}")}}
	if _, err := apprisk.LoadPredictor(context.Background(), store); !errors.Is(err, risk.ErrArtifactNotFound) {
		t.Fatalf("want ErrArtifactNotFound, got %v", err)
	}
}

func TestTrainLogsReportAtInfo(t *testing.T) {
	var buf bytes.Buffer
	tr := newTrainer(sampleRows(), &memStore{})
	tr.Logger = slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo}))

	if _, err := tr.TrainAndPersist(context.Background()); err != nil {
		t.Fatalf("train: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, "classification report") || !strings.Contains(out, "confusion matrix") {
		t.Fatalf("report missing from info log:\n%s", out)
	}
}
