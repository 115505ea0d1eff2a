package sqlrepo

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	domain "github.com/bryanwahyu/automaton-risk/internal/domain/analyst"
	"github.com/bryanwahyu/automaton-risk/internal/domain/scans"
)

type AnalystRepository struct {
	db *sqlx.DB
}

func NewAnalystRepository(db *sqlx.DB) *AnalystRepository {
	return &AnalystRepository{db: db}
}

type analysisRow struct {
	ID        string `db:"id"`
	ScanID    string `db:"scan_id"`
	Model     string `db:"model"`
	Result    string `db:"result_json"`
	CreatedAt string `db:"created_at"`
}

func (row analysisRow) toDomain() *domain.Analysis {
	return &domain.Analysis{
		ID:        domain.AnalysisID(row.ID),
		ScanID:    row.ScanID,
		Model:     row.Model,
		Result:    row.Result,
		CreatedAt: parseStored(row.CreatedAt),
	}
}

// Save inserts an analysis record
func (r *AnalystRepository) Save(ctx context.Context, a *domain.Analysis) error {
	const q = `
INSERT INTO scan_analyses (id, scan_id, model, result_json, created_at)
VALUES (?, ?, ?, ?, ?)`
	result := a.Result
	if strings.TrimSpace(result) == "" {
		// result_json column requires valid JSON; use empty object
		result = "{}"
	}
	createdAt := a.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	_, err := r.db.ExecContext(ctx, r.db.Rebind(q),
		string(a.ID), a.ScanID, dashIfEmpty(a.Model), result, scans.FormatTime(createdAt))
	if err != nil {
		return &scans.StorageError{Op: "save analysis", Err: err}
	}
	return nil
}

// Paginate returns a page of analysis records ordered by created_at desc
func (r *AnalystRepository) Paginate(ctx context.Context, page, pageSize int) ([]*domain.Analysis, error) {
	if page <= 0 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	offset := (page - 1) * pageSize

	const q = `
SELECT id, scan_id, model, result_json, created_at
FROM scan_analyses
ORDER BY created_at DESC, id DESC
LIMIT ? OFFSET ?`
	var rows []analysisRow
	if err := r.db.SelectContext(ctx, &rows, r.db.Rebind(q), pageSize, offset); err != nil {
		return nil, &scans.StorageError{Op: "paginate analyses", Err: err}
	}
	out := make([]*domain.Analysis, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toDomain())
	}
	return out, nil
}

// LatestByScan returns the newest analysis of a scan, nil when there is none.
func (r *AnalystRepository) LatestByScan(ctx context.Context, scanID string) (*domain.Analysis, error) {
	const q = `
SELECT id, scan_id, model, result_json, created_at
FROM scan_analyses
WHERE scan_id = ?
ORDER BY created_at DESC, id DESC
LIMIT 1`
	var row analysisRow
	if err := r.db.GetContext(ctx, &row, r.db.Rebind(q), scanID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, &scans.StorageError{Op: "latest analysis", Err: err}
	}
	return row.toDomain(), nil
}
