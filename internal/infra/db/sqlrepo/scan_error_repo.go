package sqlrepo

import (
	"context"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	domain "github.com/bryanwahyu/automaton-risk/internal/domain/scanerrors"
	"github.com/bryanwahyu/automaton-risk/internal/domain/scans"
)

type ScanErrorRepository struct {
	db      *sqlx.DB
	dialect Dialect
}

func NewScanErrorRepository(db *sqlx.DB, d Dialect) *ScanErrorRepository {
	return &ScanErrorRepository{db: db, dialect: d}
}

func (r *ScanErrorRepository) Save(ctx context.Context, e *domain.ScanError) error {
	const q = `
INSERT INTO scan_errors (scan_id, phase, message, created_at)
VALUES (?, ?, ?, ?)`
	phase := dashIfEmpty(e.Phase)
	msg := dashIfEmpty(e.Message)
	created := e.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	id, err := insertReturningID(ctx, r.db, r.dialect, q, e.ScanID, phase, msg, scans.FormatTime(created))
	if err != nil {
		return &scans.StorageError{Op: "save scan error", Err: err}
	}
	e.ID = id
	e.Phase = phase
	e.Message = msg
	e.CreatedAt = created.UTC()
	return nil
}

func (r *ScanErrorRepository) ListByScan(ctx context.Context, scanID string, limit int) ([]*domain.ScanError, error) {
	if limit <= 0 {
		limit = 20
	}
	const q = `
SELECT id, scan_id, phase, message, created_at
FROM scan_errors
WHERE scan_id = ?
ORDER BY created_at DESC, id DESC
LIMIT ?`
	var rows []struct {
		domain.ScanError
		Created string `db:"created_at"`
	}
	if err := r.db.SelectContext(ctx, &rows, r.db.Rebind(q), scanID, limit); err != nil {
		return nil, &scans.StorageError{Op: "list scan errors", Err: err}
	}
	out := make([]*domain.ScanError, 0, len(rows))
	for _, row := range rows {
		e := row.ScanError
		e.CreatedAt = parseStored(row.Created)
		out = append(out, &e)
	}
	return out, nil
}

func dashIfEmpty(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}
