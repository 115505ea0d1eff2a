// Package db opens the configured SQL backend and prepares its schema.
package db

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/bryanwahyu/automaton-risk/internal/config"
	"github.com/bryanwahyu/automaton-risk/internal/infra/db/mysql"
	"github.com/bryanwahyu/automaton-risk/internal/infra/db/postgres"
	"github.com/bryanwahyu/automaton-risk/internal/infra/db/sqlite"
	"github.com/bryanwahyu/automaton-risk/internal/infra/db/sqlrepo"
)

// Open connects to the driver named in cfg.Database.Driver and runs Migrate.
func Open(ctx context.Context, cfg *config.Config) (*sqlx.DB, sqlrepo.Dialect, error) {
	var (
		conn    *sqlx.DB
		dialect sqlrepo.Dialect
		err     error
	)
	switch strings.ToLower(cfg.Database.Driver) {
	case "sqlite":
		conn, err = sqlite.Open(ctx, cfg.Database.DSN)
		dialect = sqlite.Dialect
	case "mysql":
		conn, err = mysql.Connect(ctx, cfg.MySQLDSN())
		dialect = mysql.Dialect
	case "postgres":
		conn, err = postgres.Connect(ctx, cfg.PostgresDSN())
		dialect = postgres.Dialect
	default:
		return nil, sqlrepo.Dialect{}, fmt.Errorf("unsupported database driver %q", cfg.Database.Driver)
	}
	if err != nil {
		return nil, sqlrepo.Dialect{}, fmt.Errorf("connect %s: %w", cfg.Database.Driver, err)
	}
	if err := sqlrepo.Migrate(ctx, conn, dialect); err != nil {
		conn.Close()
		return nil, sqlrepo.Dialect{}, err
	}
	return conn, dialect, nil
}
