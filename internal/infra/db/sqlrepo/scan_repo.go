package sqlrepo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/bryanwahyu/automaton-risk/internal/application"
	domain "github.com/bryanwahyu/automaton-risk/internal/domain/scans"
)

// ScanRepository implements the Result Store over scan_runs / scan_alerts.
type ScanRepository struct {
	db      *sqlx.DB
	dialect Dialect
	clock   application.Clock
	newID   func() string
}

func NewScanRepository(db *sqlx.DB, d Dialect) *ScanRepository {
	return &ScanRepository{
		db:      db,
		dialect: d,
		clock:   application.SystemClock{},
		newID:   uuid.NewString,
	}
}

// WithClock replaces the clock used for started_at / finished_at / created_at.
func (r *ScanRepository) WithClock(c application.Clock) *ScanRepository {
	r.clock = c
	return r
}

// CreateScan insert ScanRun baru dengan status running
func (r *ScanRepository) CreateScan(ctx context.Context, target string) (domain.ScanID, error) {
	const q = `
INSERT INTO scan_runs (scan_id, target, status, started_at)
VALUES (?, ?, ?, ?)`
	id := domain.ScanID(r.newID())
	started := domain.FormatTime(r.clock.Now())
	if _, err := r.db.ExecContext(ctx, r.db.Rebind(q), string(id), target, string(domain.StatusRunning), started); err != nil {
		return "", &domain.StorageError{Op: "create scan", Err: err}
	}
	return id, nil
}

// FinishScan set status terminal + finished_at
func (r *ScanRepository) FinishScan(ctx context.Context, id domain.ScanID, status domain.Status) error {
	if !status.Terminal() {
		return fmt.Errorf("finish scan %s: status %q is not terminal", id, status)
	}
	const q = `
UPDATE scan_runs
SET status = ?, finished_at = ?
WHERE scan_id = ?`
	finished := domain.FormatTime(r.clock.Now())
	res, err := r.db.ExecContext(ctx, r.db.Rebind(q), string(status), finished, string(id))
	if err != nil {
		return &domain.StorageError{Op: "finish scan", Err: err}
	}
	n, err := res.RowsAffected()
	if err != nil {
		return &domain.StorageError{Op: "finish scan", Err: err}
	}
	if n == 0 {
		return &domain.NotFoundError{ScanID: id}
	}
	return nil
}

// InsertAlert append satu alert; tidak pernah update
func (r *ScanRepository) InsertAlert(ctx context.Context, a *domain.Alert) error {
	const q = `
INSERT INTO scan_alerts (scan_id, alert_name, risk, confidence, description, solution, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?)`
	created := r.clock.Now().UTC()
	name := domain.NormalizeName(a.Name)
	risk := domain.NormalizeRisk(a.Risk)
	id, err := insertReturningID(ctx, r.db, r.dialect, q,
		string(a.ScanID), name, risk,
		nullIfEmpty(a.Confidence), nullIfEmpty(a.Description), nullIfEmpty(a.Solution),
		domain.FormatTime(created),
	)
	if err != nil {
		return &domain.StorageError{Op: "insert alert", Err: err}
	}
	a.ID = id
	a.Name = name
	a.Risk = risk
	a.CreatedAt = created
	return nil
}

// FetchAll left join scan_runs ke scan_alerts, scan terbaru dulu
func (r *ScanRepository) FetchAll(ctx context.Context) ([]domain.ResultRow, error) {
	const q = `
SELECT r.scan_id, r.target, r.status, r.started_at, r.finished_at,
       a.alert_name, a.risk, a.created_at AS alert_created_at
FROM scan_runs r
LEFT JOIN scan_alerts a ON a.scan_id = r.scan_id
ORDER BY r.started_at DESC, r.scan_id DESC, a.id ASC`
	var out []domain.ResultRow
	if err := r.db.SelectContext(ctx, &out, q); err != nil {
		return nil, &domain.StorageError{Op: "fetch all", Err: err}
	}
	return out, nil
}

type scanRunRow struct {
	ScanID     string  `db:"scan_id"`
	Target     string  `db:"target"`
	Status     string  `db:"status"`
	StartedAt  string  `db:"started_at"`
	FinishedAt *string `db:"finished_at"`
}

// Get by scan id
func (r *ScanRepository) Get(ctx context.Context, id domain.ScanID) (*domain.ScanRun, error) {
	const q = `
SELECT scan_id, target, status, started_at, finished_at
FROM scan_runs
WHERE scan_id = ?`
	var row scanRunRow
	if err := r.db.GetContext(ctx, &row, r.db.Rebind(q), string(id)); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, &domain.NotFoundError{ScanID: id}
		}
		return nil, &domain.StorageError{Op: "get scan", Err: err}
	}
	run := &domain.ScanRun{
		ID:        domain.ScanID(row.ScanID),
		Target:    row.Target,
		Status:    domain.Status(row.Status),
		StartedAt: parseStored(row.StartedAt),
	}
	if row.FinishedAt != nil {
		f := parseStored(*row.FinishedAt)
		run.FinishedAt = &f
	}
	return run, nil
}

type alertRow struct {
	ID          int64   `db:"id"`
	ScanID      string  `db:"scan_id"`
	Name        string  `db:"alert_name"`
	Risk        string  `db:"risk"`
	Confidence  *string `db:"confidence"`
	Description *string `db:"description"`
	Solution    *string `db:"solution"`
	CreatedAt   string  `db:"created_at"`
}

// ListAlerts returns the alerts of one scan in insertion order.
func (r *ScanRepository) ListAlerts(ctx context.Context, id domain.ScanID) ([]domain.Alert, error) {
	if _, err := r.Get(ctx, id); err != nil {
		return nil, err
	}
	const q = `
SELECT id, scan_id, alert_name, risk, confidence, description, solution, created_at
FROM scan_alerts
WHERE scan_id = ?
ORDER BY id ASC`
	var rows []alertRow
	if err := r.db.SelectContext(ctx, &rows, r.db.Rebind(q), string(id)); err != nil {
		return nil, &domain.StorageError{Op: "list alerts", Err: err}
	}
	out := make([]domain.Alert, 0, len(rows))
	for _, a := range rows {
		out = append(out, domain.Alert{
			ID:          a.ID,
			ScanID:      domain.ScanID(a.ScanID),
			Name:        a.Name,
			Risk:        a.Risk,
			Confidence:  deref(a.Confidence),
			Description: deref(a.Description),
			Solution:    deref(a.Solution),
			CreatedAt:   parseStored(a.CreatedAt),
		})
	}
	return out, nil
}

// parseStored reads a timestamp written with domain.TimeLayout.
// Zero time when unparsable (shouldn't happen).
func parseStored(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
