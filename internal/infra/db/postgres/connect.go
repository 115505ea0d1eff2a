package postgres

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/bryanwahyu/automaton-risk/internal/infra/db/sqlrepo"
)

// Dialect of the Postgres backend.
var Dialect = sqlrepo.Dialect{
	Name:        "postgres",
	ReturningID: true,
	Schema: []string{`
CREATE TABLE IF NOT EXISTS scan_runs (
  scan_id     TEXT PRIMARY KEY,
  target      TEXT NOT NULL,
  status      TEXT NOT NULL,
  started_at  TEXT NOT NULL,
  finished_at TEXT
)`, `
CREATE TABLE IF NOT EXISTS scan_alerts (
  id          BIGSERIAL PRIMARY KEY,
  scan_id     TEXT NOT NULL REFERENCES scan_runs(scan_id),
  alert_name  TEXT NOT NULL,
  risk        TEXT NOT NULL,
  confidence  TEXT,
  description TEXT,
  solution    TEXT,
  created_at  TEXT NOT NULL
)`,
		`CREATE INDEX IF NOT EXISTS idx_scan_runs_started ON scan_runs(started_at)`,
		`CREATE INDEX IF NOT EXISTS idx_scan_alerts_scan ON scan_alerts(scan_id)`, `
CREATE TABLE IF NOT EXISTS scan_errors (
  id         BIGSERIAL PRIMARY KEY,
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

func Connect(ctx context.Context, dsn string) (*sqlx.DB, error) {
	db, err := sqlx.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	ctx2, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx2); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}
