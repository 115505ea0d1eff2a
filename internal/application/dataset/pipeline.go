// Package dataset turns scan history into feature rows for the risk model.
package dataset

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strings"

	domain "github.com/bryanwahyu/automaton-risk/internal/domain/dataset"
	"github.com/bryanwahyu/automaton-risk/internal/domain/scans"
)

// Source yields scan history grouped per scan.
type Source interface {
	Name() string
	Load(ctx context.Context) ([]domain.ScanSnapshot, error)
}

// ResultFetcher is the part of the Result Store the pipeline reads.
type ResultFetcher interface {
	FetchAll(ctx context.Context) ([]scans.ResultRow, error)
}

// SnapshotSource reads an exported snapshot document. A missing file is an
// empty source; a file that is not a snapshot is an error.
type SnapshotSource struct {
	Path string
}

func (s SnapshotSource) Name() string { return "snapshot:" + s.Path }

func (s SnapshotSource) Load(ctx context.Context) ([]domain.ScanSnapshot, error) {
	data, err := os.ReadFile(s.Path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read snapshot %s: %w", s.Path, err)
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil, nil
	}
	var out []domain.ScanSnapshot
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("decode snapshot %s: %w", s.Path, err)
	}
	return out, nil
}

// StoreSource reads the Result Store directly.
type StoreSource struct {
	Repo ResultFetcher
}

func (StoreSource) Name() string { return "store" }

func (s StoreSource) Load(ctx context.Context) ([]domain.ScanSnapshot, error) {
	rows, err := s.Repo.FetchAll(ctx)
	if err != nil {
		return nil, err
	}
	return GroupRows(rows), nil
}

// Pipeline tries Sources in order; the first one that yields at least one
// alert row is used.
type Pipeline struct {
	Sources []Source
	Logger  *slog.Logger
}

// NewPipeline prefers the snapshot at snapshotPath and falls back to repo.
func NewPipeline(snapshotPath string, repo ResultFetcher) *Pipeline {
	var sources []Source
	if snapshotPath != "" {
		sources = append(sources, SnapshotSource{Path: snapshotPath})
	}
	return &Pipeline{Sources: append(sources, StoreSource{Repo: repo})}
}

// LoadDataset returns the cleaned feature rows, or an empty (non-nil) slice
// when no source has any.
func (p *Pipeline) LoadDataset(ctx context.Context) ([]domain.FeatureRow, error) {
	log := p.Logger
	if log == nil {
		log = slog.Default()
	}
	for _, src := range p.Sources {
		snaps, err := src.Load(ctx)
		if err != nil {
			return nil, fmt.Errorf("load %s: %w", src.Name(), err)
		}
		flat := flatten(snaps)
		if len(flat) == 0 {
			log.Debug("dataset source empty", "source", src.Name())
			continue
		}
		rows := clean(flat)
		log.Info("dataset loaded", "source", src.Name(), "scans", len(snaps), "alerts", len(flat), "rows", len(rows))
		return rows, nil
	}
	return []domain.FeatureRow{}, nil
}

// Transform flattens snapshots into one row per alert, adds scan duration and
// alerts_in_scan, drops rows without a name or risk, and normalizes both.
// It is a pure function of its input.
func Transform(snaps []domain.ScanSnapshot) []domain.FeatureRow {
	return clean(flatten(snaps))
}

type flatRow struct {
	row  domain.FeatureRow
	name *string
	risk *string
}

func flatten(snaps []domain.ScanSnapshot) []flatRow {
	var out []flatRow
	counts := map[string]int{}
	for _, s := range snaps {
		duration := domain.DurationSeconds(s.StartedAt, s.FinishedAt)
		for _, a := range s.Alerts {
			out = append(out, flatRow{
				row: domain.FeatureRow{
					ScanID:              s.ScanID,
					Target:              s.Target,
					StartedAt:           deref(s.StartedAt),
					FinishedAt:          deref(s.FinishedAt),
					ScanDurationSeconds: duration,
					AlertCreatedAt:      deref(a.CreatedAt),
				},
				name: a.AlertName,
				risk: a.Risk,
			})
			counts[s.ScanID]++
		}
	}
	for i := range out {
		out[i].row.AlertsInScan = counts[out[i].row.ScanID]
	}
	return out
}

func clean(flat []flatRow) []domain.FeatureRow {
	out := make([]domain.FeatureRow, 0, len(flat))
	for _, f := range flat {
		if f.name == nil || f.risk == nil {
			continue
		}
		name := scans.NormalizeName(*f.name)
		risk := scans.NormalizeRisk(*f.risk)
		if name == "" || risk == "" {
			continue
		}
		r := f.row
		r.AlertName = name
		r.Risk = risk
		out = append(out, r)
	}
	return out
}

// GroupRows groups fetchAll rows per scan, keeping their order. Rows without
// an alert name (the empty side of the outer join) add no alert.
func GroupRows(rows []scans.ResultRow) []domain.ScanSnapshot {
	out := make([]domain.ScanSnapshot, 0)
	index := map[scans.ScanID]int{}
	for _, r := range rows {
		i, ok := index[r.ScanID]
		if !ok {
			started := r.StartedAt
			out = append(out, domain.ScanSnapshot{
				ScanID:     string(r.ScanID),
				Target:     r.Target,
				StartedAt:  &started,
				FinishedAt: r.FinishedAt,
				Status:     string(r.Status),
				Alerts:     []domain.AlertSnapshot{},
			})
			i = len(out) - 1
			index[r.ScanID] = i
		}
		if r.AlertName == nil || *r.AlertName == "" {
			continue
		}
		out[i].Alerts = append(out[i].Alerts, domain.AlertSnapshot{
			AlertName: r.AlertName,
			Risk:      r.Risk,
			CreatedAt: r.AlertCreatedAt,
		})
	}
	return out
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
