package mysql

import (
	"context"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"

	"github.com/bryanwahyu/automaton-risk/internal/infra/db/sqlrepo"
)

// Dialect of the MySQL backend. MySQL has no CREATE INDEX IF NOT EXISTS, so
// indexes are declared inline.
var Dialect = sqlrepo.Dialect{
	Name: "mysql",
	Schema: []string{`
CREATE TABLE IF NOT EXISTS scan_runs (
  scan_id     VARCHAR(64)  NOT NULL PRIMARY KEY,
  target      VARCHAR(2048) NOT NULL,
  status      VARCHAR(16)  NOT NULL,
  started_at  CHAR(30)     NOT NULL,
  finished_at CHAR(30)     NULL,
  INDEX idx_scan_runs_started (started_at)
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`, `
CREATE TABLE IF NOT EXISTS scan_alerts (
  id          BIGINT AUTO_INCREMENT PRIMARY KEY,
  scan_id     VARCHAR(64) NOT NULL,
  alert_name  TEXT        NOT NULL,
  risk        VARCHAR(64) NOT NULL,
  confidence  VARCHAR(64) NULL,
  description TEXT        NULL,
  solution    TEXT        NULL,
  created_at  CHAR(30)    NOT NULL,
  INDEX idx_scan_alerts_scan (scan_id),
  CONSTRAINT fk_scan_alerts_run FOREIGN KEY (scan_id) REFERENCES scan_runs(scan_id)
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`, `
CREATE TABLE IF NOT EXISTS scan_errors (
  id         BIGINT AUTO_INCREMENT PRIMARY KEY,
  scan_id    VARCHAR(64) NOT NULL,
  phase      VARCHAR(32) NOT NULL,
  message    TEXT        NOT NULL,
  created_at CHAR(30)    NOT NULL,
  INDEX idx_scan_errors_scan (scan_id)
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`, `
CREATE TABLE IF NOT EXISTS scan_analyses (
  id          VARCHAR(64)  NOT NULL PRIMARY KEY,
  scan_id     VARCHAR(64)  NOT NULL,
  model       VARCHAR(128) NOT NULL,
  result_json LONGTEXT     NOT NULL,
  created_at  CHAR(30)     NOT NULL,
  INDEX idx_scan_analyses_scan (scan_id)
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	},
}

func Connect(ctx context.Context, dsn string) (*sqlx.DB, error) {
	db, err := sqlx.Open("mysql", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	// test ping
	ctx2, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx2); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}
