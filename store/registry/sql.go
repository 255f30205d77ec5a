package registry

import (
	"context"
	"database/sql"
	"fmt"
)

const sqlSchema = `CREATE TABLE IF NOT EXISTS import_roots (
	id   INTEGER PRIMARY KEY AUTOINCREMENT,
	path TEXT    NOT NULL UNIQUE
);`

// SQL implements Registry in a table of an existing SQLite database.
type SQL struct {
	db *sql.DB
}

var _ Registry = (*SQL)(nil)

// NewSQL creates the roots table in db if needed.
func NewSQL(db *sql.DB) (*SQL, error) {
	if _, err := db.Exec(sqlSchema); err != nil {
		return nil, fmt.Errorf("creating import_roots table: %w", err)
	}
	return &SQL{db: db}, nil
}

// Add records path as an active root.
func (r *SQL) Add(ctx context.Context, path string) error {
	clean, err := cleanPath(path)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `INSERT INTO import_roots (path) VALUES (?) ON CONFLICT(path) DO NOTHING`, clean)
	if err != nil {
		return fmt.Errorf("adding import root %q: %w", clean, err)
	}
	return nil
}

// Remove withdraws path and returns the remaining roots.
func (r *SQL) Remove(ctx context.Context, path string) ([]string, error) {
	clean, err := cleanPath(path)
	if err != nil {
		return nil, err
	}
	if _, err := r.db.ExecContext(ctx, `DELETE FROM import_roots WHERE path = ?`, clean); err != nil {
		return nil, fmt.Errorf("removing import root %q: %w", clean, err)
	}
	return r.List(ctx)
}

// List returns the active roots in insertion order.
func (r *SQL) List(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT path FROM import_roots ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("listing import roots: %w", err)
	}
	defer func() { _ = rows.Close() }()

	roots := []string{}
	for rows.Next() {
		var path string
		if err := rows.Scan(&path); err != nil {
			return nil, err
		}
		roots = append(roots, path)
	}
	return roots, rows.Err()
}
