// Package sqlrepo holds the repositories shared by every SQL driver. Queries
// are written with '?' placeholders and rebound by sqlx for the driver.
package sqlrepo

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// Dialect describes what differs between drivers.
type Dialect struct {
	Name string
	// Schema is applied in order by Migrate; every statement must be idempotent.
	Schema []string
	// ReturningID means inserts read the generated id via RETURNING instead of
	// LastInsertId (lib/pq does not implement LastInsertId).
	ReturningID bool
}

// Migrate creates the tables and indexes of the dialect if missing.
func Migrate(ctx context.Context, db *sqlx.DB, d Dialect) error {
	for i, stmt := range d.Schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate %s statement %d: %w", d.Name, i, err)
		}
	}
	return nil
}

// insertReturningID runs an INSERT and returns the generated integer id.
func insertReturningID(ctx context.Context, db *sqlx.DB, d Dialect, q string, args ...any) (int64, error) {
	if d.ReturningID {
		var id int64
		err := db.QueryRowxContext(ctx, db.Rebind(q+" RETURNING id"), args...).Scan(&id)
		return id, err
	}
	res, err := db.ExecContext(ctx, db.Rebind(q), args...)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}
