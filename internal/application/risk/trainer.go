// Package risk trains the alert risk classifier from scan history and serves
// predictions from the persisted bundle.
package risk

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/bryanwahyu/automaton-risk/internal/domain/dataset"
	domain "github.com/bryanwahyu/automaton-risk/internal/domain/risk"
	"github.com/bryanwahyu/automaton-risk/internal/ml/evaluate"
	"github.com/bryanwahyu/automaton-risk/internal/ml/features"
	"github.com/bryanwahyu/automaton-risk/internal/ml/gbdt"
	"github.com/bryanwahyu/automaton-risk/internal/observability"
)

// LockKey guards the artifact names of one deployment.
const LockKey = "risk-training"

// DatasetLoader yields the cleaned feature rows.
type DatasetLoader interface {
	LoadDataset(ctx context.Context) ([]dataset.FeatureRow, error)
}

type Options struct {
	MaxFeatures int
	TestSize    float64
	Seed        uint64
	Model       gbdt.Params
	LockTTL     time.Duration
}

// DefaultOptions: 2000 n-gram features, 80/20 split, seed 42.
func DefaultOptions() Options {
	return Options{
		MaxFeatures: 2000,
		TestSize:    0.2,
		Seed:        42,
		Model:       gbdt.DefaultParams(),
		LockTTL:     30 * time.Minute,
	}
}

type Trainer struct {
	Dataset DatasetLoader
	Store   domain.ArtifactStore
	Locker  domain.Locker // optional
	Options Options
	Logger  *slog.Logger
}

// TrainResult describes a persisted bundle. Report is nil when the split left
// no test rows.
type TrainResult struct {
	Rows       int              `json:"rows"`
	TrainRows  int              `json:"train_rows"`
	TestRows   int              `json:"test_rows"`
	Stratified bool             `json:"stratified"`
	Features   int              `json:"features"`
	LabelMap   domain.LabelMap  `json:"label_map"`
	Report     *evaluate.Report `json:"report,omitempty"`
	Artifacts  []string         `json:"artifacts"`
}

// TrainAndPersist fits the preprocessor and classifier on the current dataset
// and writes the three artifacts together.
//
// It returns ErrNoData, and writes nothing, when the dataset is empty. Any fit
// failure is a *TrainingError and also writes nothing.
func (t *Trainer) TrainAndPersist(ctx context.Context) (res *TrainResult, err error) {
	ctx, span := observability.StartSpan(ctx, "risk.train")
	defer span.End()
	log := t.logger()

	defer func() {
		switch {
		case err == nil:
			observability.IncrementTrainingRuns()
		case errors.Is(err, domain.ErrNoData), errors.Is(err, domain.ErrTrainingInProgress):
		default:
			observability.IncrementTrainingFailures()
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
	}()

	if t.Locker != nil {
		release, err := t.Locker.Acquire(ctx, LockKey, t.Options.LockTTL)
		if err != nil {
			return nil, err
		}
		defer release()
	}

	rows, err := t.Dataset.LoadDataset(ctx)
	if err != nil {
		return nil, fmt.Errorf("load dataset: %w", err)
	}
	if len(rows) == 0 {
		log.Info("no training data")
		return nil, domain.ErrNoData
	}

	labels := make([]string, len(rows))
	for i, r := range rows {
		labels[i] = r.Risk
	}
	labelMap := domain.BuildLabelMap(labels)
	names := labelMap.Labels()
	y := make([]int, len(rows))
	for i, l := range labels {
		y[i] = labelMap[l]
	}
	records := Records(rows)

	split := evaluate.TrainTestSplit(y, t.Options.TestSize, t.Options.Seed, len(labelMap) >= 2)
	if !split.Stratified {
		log.Warn("training split not stratified", "labels", len(labelMap), "rows", len(rows))
	}
	span.SetAttributes(
		attribute.Int("train.rows", len(rows)),
		attribute.Int("train.labels", len(labelMap)),
	)

	pre := features.NewPreprocessor(features.Options{MaxFeatures: t.Options.MaxFeatures})
	trainRecs, trainY := pick(records, y, split.Train)
	if err := pre.Fit(trainRecs); err != nil {
		return nil, &domain.TrainingError{Stage: "preprocess", Err: err}
	}
	model, err := gbdt.Fit(pre.Transform(trainRecs), trainY, len(labelMap), t.Options.Model)
	if err != nil {
		return nil, &domain.TrainingError{Stage: "fit", Err: err}
	}

	res = &TrainResult{
		Rows:       len(rows),
		TrainRows:  len(split.Train),
		TestRows:   len(split.Test),
		Stratified: split.Stratified,
		Features:   pre.Width(),
		LabelMap:   labelMap,
		Artifacts:  domain.ArtifactNames,
	}
	if len(split.Test) > 0 {
		testRecs, testY := pick(records, y, split.Test)
		report := evaluate.Evaluate(testY, model.Predict(pre.Transform(testRecs)), names)
		res.Report = &report
		log.Info("evaluation", "accuracy", report.Accuracy, "test_rows", len(testY))
		log.Info("classification report\n" + report.String())
	}

	bundle, err := encodeBundle(pre, model, labelMap)
	if err != nil {
		return nil, &domain.TrainingError{Stage: "encode", Err: err}
	}
	if err := t.Store.SaveAll(ctx, bundle); err != nil {
		return nil, fmt.Errorf("persist artifacts: %w", err)
	}
	log.Info("model trained",
		"rows", res.Rows, "train", res.TrainRows, "test", res.TestRows,
		"labels", len(labelMap), "features", res.Features)
	return res, nil
}

// Records maps feature rows to model inputs.
func Records(rows []dataset.FeatureRow) []features.Record {
	out := make([]features.Record, len(rows))
	for i, r := range rows {
		out[i] = features.Record{
			AlertName:           r.AlertName,
			Target:              r.Target,
			ScanDurationSeconds: r.ScanDurationSeconds,
			AlertsInScan:        float64(r.AlertsInScan),
		}
	}
	return out
}

func pick(records []features.Record, y []int, idx []int) ([]features.Record, []int) {
	recs := make([]features.Record, len(idx))
	ys := make([]int, len(idx))
	for i, j := range idx {
		recs[i] = records[j]
		ys[i] = y[j]
	}
	return recs, ys
}

func (t *Trainer) logger() *slog.Logger {
	if t.Logger != nil {
		return t.Logger
	}
	return slog.Default()
}
