package dataset

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	domain "github.com/bryanwahyu/automaton-risk/internal/domain/dataset"
)

// Exporter writes the Result Store as a snapshot document.
type Exporter struct {
	Repo ResultFetcher
	Path string
}

// Snapshot groups the store's rows, most recent scan first.
func (e *Exporter) Snapshot(ctx context.Context) ([]domain.ScanSnapshot, error) {
	rows, err := e.Repo.FetchAll(ctx)
	if err != nil {
		return nil, err
	}
	return GroupRows(rows), nil
}

// Export writes the snapshot to Path and returns how many scans it holds.
// Nothing is written when the store has no scans.
func (e *Exporter) Export(ctx context.Context) (int, error) {
	snaps, err := e.Snapshot(ctx)
	if err != nil {
		return 0, err
	}
	if len(snaps) == 0 {
		return 0, nil
	}
	data, err := json.MarshalIndent(snaps, "", "    ")
	if err != nil {
		return 0, err
	}
	if err := writeFileAtomic(e.Path, data); err != nil {
		return 0, fmt.Errorf("export snapshot: %w", err)
	}
	return len(snaps), nil
}

// writeFileAtomic writes to a temp file in the same directory and renames it,
// so readers never see a half-written snapshot.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
