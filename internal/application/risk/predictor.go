package risk

import (
	"context"
	"encoding/json"
	"fmt"

	"gonum.org/v1/gonum/floats"

	domain "github.com/bryanwahyu/automaton-risk/internal/domain/risk"
	"github.com/bryanwahyu/automaton-risk/internal/domain/scans"
	"github.com/bryanwahyu/automaton-risk/internal/ml/features"
	"github.com/bryanwahyu/automaton-risk/internal/ml/gbdt"
)

// Input is one alert to score.
type Input struct {
	AlertName           string   `json:"alert_name"`
	Target              string   `json:"target"`
	ScanDurationSeconds *float64 `json:"scan_duration_seconds"`
	AlertsInScan        int      `json:"alerts_in_scan"`
}

type Prediction struct {
	Risk          string             `json:"risk"`
	Probabilities map[string]float64 `json:"probabilities"`
}

// Predictor scores alerts with a persisted bundle.
type Predictor struct {
	pre    *features.Preprocessor
	model  *gbdt.Model
	labels []string
}

func encodeBundle(pre *features.Preprocessor, model *gbdt.Model, labels domain.LabelMap) ([]domain.Artifact, error) {
	p, err := pre.Marshal()
	if err != nil {
		return nil, fmt.Errorf("preprocessor: %w", err)
	}
	m, err := model.Marshal()
	if err != nil {
		return nil, fmt.Errorf("model: %w", err)
	}
	l, err := json.Marshal(labels)
	if err != nil {
		return nil, fmt.Errorf("label map: %w", err)
	}
	return []domain.Artifact{
		{Name: domain.PreprocessorName, Data: p},
		{Name: domain.ModelName, Data: m},
		{Name: domain.LabelMapName, Data: l},
	}, nil
}

// LoadPredictor reads all three artifacts from store. A missing artifact is
// an error wrapping ErrArtifactNotFound.
func LoadPredictor(ctx context.Context, store domain.ArtifactStore) (*Predictor, error) {
	raw := make(map[string][]byte, len(domain.ArtifactNames))
	for _, name := range domain.ArtifactNames {
		b, err := store.Load(ctx, name)
		if err != nil {
			return nil, fmt.Errorf("load %s: %w", name, err)
		}
		raw[name] = b
	}

	pre, err := features.UnmarshalPreprocessor(raw[domain.PreprocessorName])
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", domain.PreprocessorName, err)
	}
	model, err := gbdt.Unmarshal(raw[domain.ModelName])
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", domain.ModelName, err)
	}
	var labels domain.LabelMap
	if err := json.Unmarshal(raw[domain.LabelMapName], &labels); err != nil {
		return nil, fmt.Errorf("decode %s: %w", domain.LabelMapName, err)
	}

	if len(labels) != model.Classes {
		return nil, fmt.Errorf("bundle mismatch: %d labels, %d classes", len(labels), model.Classes)
	}
	if pre.Width() != model.Features {
		return nil, fmt.Errorf("bundle mismatch: %d features, model expects %d", pre.Width(), model.Features)
	}
	seen := make([]bool, len(labels))
	for l, i := range labels {
		if i < 0 || i >= len(labels) || seen[i] {
			return nil, fmt.Errorf("label map is not a bijection onto 0..%d: %q -> %d", len(labels)-1, l, i)
		}
		seen[i] = true
	}
	names := labels.Labels()
	return &Predictor{pre: pre, model: model, labels: names}, nil
}

// Labels returns the class labels in index order.
func (p *Predictor) Labels() []string {
	return append([]string(nil), p.labels...)
}

// Predict returns the most likely risk label of in and the probability of
// every label.
func (p *Predictor) Predict(in Input) Prediction {
	rec := features.Record{
		AlertName:           scans.NormalizeName(in.AlertName),
		Target:              in.Target,
		ScanDurationSeconds: in.ScanDurationSeconds,
		AlertsInScan:        float64(in.AlertsInScan),
	}
	x := p.pre.Transform([]features.Record{rec})
	proba := p.model.PredictProba(x.RawRowView(0))

	out := Prediction{
		Risk:          p.labels[floats.MaxIdx(proba)],
		Probabilities: make(map[string]float64, len(proba)),
	}
	for i, v := range proba {
		out.Probabilities[p.labels[i]] = v
	}
	return out
}
