package risk

import (
	"context"
	"sort"
	"time"
)

// Stable artifact names. All three are written together and loaded together.
const (
	PreprocessorName = "preprocessor.json"
	ModelName        = "risk_model.json"
	LabelMapName     = "label_map.json"
)

// ArtifactNames lists every artifact of a trained bundle.
var ArtifactNames = []string{PreprocessorName, ModelName, LabelMapName}

// LabelMap maps a normalized risk label to its dense class index.
type LabelMap map[string]int

// BuildLabelMap maps the sorted distinct labels to 0..k-1.
func BuildLabelMap(labels []string) LabelMap {
	seen := make(map[string]struct{}, len(labels))
	distinct := make([]string, 0, len(labels))
	for _, l := range labels {
		if _, ok := seen[l]; ok {
			continue
		}
		seen[l] = struct{}{}
		distinct = append(distinct, l)
	}
	sort.Strings(distinct)
	m := make(LabelMap, len(distinct))
	for i, l := range distinct {
		m[l] = i
	}
	return m
}

// Labels returns the inverse mapping: index -> label.
func (m LabelMap) Labels() []string {
	out := make([]string, len(m))
	for l, i := range m {
		out[i] = l
	}
	return out
}

// Artifact is one named blob of a trained bundle.
type Artifact struct {
	Name string
	Data []byte
}

// ArtifactStore persists trained bundles.
type ArtifactStore interface {
	// SaveAll writes every artifact or, on failure, none of them.
	SaveAll(ctx context.Context, artifacts []Artifact) error
	Load(ctx context.Context, name string) ([]byte, error)
}

// Versioned is implemented by stores that can name the bundle Load reads from.
// The version changes with every SaveAll, whichever process made it.
type Versioned interface {
	Version(ctx context.Context) (string, error)
}

// Locker serialises training runs that share artifact names.
type Locker interface {
	// Acquire returns ErrTrainingInProgress when the lock is held elsewhere.
	Acquire(ctx context.Context, key string, ttl time.Duration) (release func(), err error)
}
