package sqlite

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite" // CGO-free SQLite driver

	"github.com/bryanwahyu/automaton-risk/internal/infra/db/sqlrepo"
)

func init() {
	sqlx.BindDriver("sqlite", sqlx.QUESTION)
}

// Dialect of the SQLite backend.
var Dialect = sqlrepo.Dialect{
	Name: "sqlite",
	Schema: []string{`
CREATE TABLE IF NOT EXISTS scan_runs (
  scan_id     TEXT PRIMARY KEY,
  target      TEXT NOT NULL,
  status      TEXT NOT NULL,
  started_at  TEXT NOT NULL,  -- fixed-width RFC3339 UTC
  finished_at TEXT
)`, `
CREATE TABLE IF NOT EXISTS scan_alerts (
  id          INTEGER PRIMARY KEY AUTOINCREMENT,
  scan_id     TEXT NOT NULL,
  alert_name  TEXT NOT NULL,
  risk        TEXT NOT NULL,
  confidence  TEXT,
  description TEXT,
  solution    TEXT,
  created_at  TEXT NOT NULL,
  FOREIGN KEY(scan_id) REFERENCES scan_runs(scan_id)
)`,
		`CREATE INDEX IF NOT EXISTS idx_scan_runs_started ON scan_runs(started_at)`,
		`CREATE INDEX IF NOT EXISTS idx_scan_alerts_scan ON scan_alerts(scan_id)`, `
CREATE TABLE IF NOT EXISTS scan_errors (
  id         INTEGER PRIMARY KEY AUTOINCREMENT,
  scan_id    TEXT NOT NULL,
  phase      TEXT NOT NULL,
  message    TEXT NOT NULL,
  created_at TEXT NOT NULL
)`,
		`CREATE INDEX IF NOT EXISTS idx_scan_errors_scan ON scan_errors(scan_id)`, `
CREATE TABLE IF NOT EXISTS scan_analyses (
  id          TEXT PRIMARY KEY,
  scan_id     TEXT NOT NULL,
  model       TEXT NOT NULL,
  result_json TEXT NOT NULL,
  created_at  TEXT NOT NULL
)`,
	},
}

// Open opens (and creates if missing) a SQLite DB at path.
func Open(ctx context.Context, path string) (*sqlx.DB, error) {
	// Pragmas via DSN keep it portable with the modernc driver.
	dsn := "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)"
	db, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	db.SetConnMaxLifetime(30 * time.Minute)

	ctx2, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx2); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}
