package assetdb

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/prodbyeagle/soundlab"
)

const sqliteSchema = `CREATE TABLE IF NOT EXISTS assets (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	name        TEXT    NOT NULL UNIQUE,
	location    TEXT    NOT NULL,
	is_favorite INTEGER NOT NULL DEFAULT 0,
	tags        TEXT    NOT NULL DEFAULT '[]',
	size        INTEGER NOT NULL DEFAULT 0,
	mod_time    INTEGER NOT NULL DEFAULT 0,
	checksum    TEXT    NOT NULL DEFAULT '',
	imported_at INTEGER NOT NULL DEFAULT 0
);`

const assetColumns = `id, name, location, is_favorite, tags, size, mod_time, checksum, imported_at`

// SQLite implements Repository on a SQLite database.
type SQLite struct {
	db     *sql.DB
	logger *slog.Logger
	now    func() time.Time
}

var _ Repository = (*SQLite)(nil)

// SQLiteOption configures a SQLite instance.
type SQLiteOption func(*SQLite)

// WithSQLiteLogger sets the logger for the database.
func WithSQLiteLogger(logger *slog.Logger) SQLiteOption {
	return func(s *SQLite) {
		s.logger = logger
	}
}

// NewSQLite creates a new SQLite instance with options.
func NewSQLite(opts ...SQLiteOption) *SQLite {
	s := &SQLite{
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Open opens the database at the given path and creates the schema.
func (s *SQLite) Open(path string) error {
	if !sqliteAvailable {
		return errSQLiteUnavailable
	}

	db, err := sql.Open(sqliteDriverName, "file:"+path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	// A single connection serializes writers and avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(sqliteSchema); err != nil {
		_ = db.Close()
		return fmt.Errorf("creating schema: %w", err)
	}
	s.db = db

	s.logger.Debug("opened asset database", "path", path, "driver", DriverSQLite)
	return nil
}

// Close closes the database.
func (s *SQLite) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// DB returns the underlying database handle.
// Used by the registry package to keep import roots in the same file.
func (s *SQLite) DB() *sql.DB {
	return s.db
}

// Exists reports whether an asset with the given name is stored.
func (s *SQLite) Exists(ctx context.Context, name string) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM assets WHERE name = ?`, name).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("checking asset %q: %w", name, err)
	}
	return count > 0, nil
}

// Get returns the asset with the given ID.
func (s *SQLite) Get(ctx context.Context, id int64) (*soundlab.Asset, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+assetColumns+` FROM assets WHERE id = ?`, id)
	asset, err := scanAsset(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, soundlab.ErrAssetNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting asset %d: %w", id, err)
	}
	return asset, nil
}

// All returns every stored asset ordered by ID.
func (s *SQLite) All(ctx context.Context) ([]*soundlab.Asset, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+assetColumns+` FROM assets ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("listing assets: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var assets []*soundlab.Asset
	for rows.Next() {
		asset, err := scanAsset(rows)
		if err != nil {
			return nil, fmt.Errorf("reading asset row: %w", err)
		}
		assets = append(assets, asset)
	}
	return assets, rows.Err()
}

// Insert stores a new asset. The UNIQUE(name) constraint makes the
// duplicate check part of the statement.
func (s *SQLite) Insert(ctx context.Context, asset *soundlab.Asset) (int64, error) {
	if asset.Name == "" {
		return 0, fmt.Errorf("inserting asset: empty name")
	}

	tags, err := encodeTags(asset.Tags)
	if err != nil {
		return 0, err
	}
	importedAt := asset.ImportedAt
	if importedAt.IsZero() {
		importedAt = s.now()
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO assets (name, location, is_favorite, tags, size, mod_time, checksum, imported_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(name) DO NOTHING`,
		asset.Name, asset.Location, asset.IsFavorite, tags, asset.Size,
		unixNano(asset.ModTime), checksumText(asset.Checksum), unixNano(importedAt),
	)
	if err != nil {
		return 0, fmt.Errorf("inserting asset %q: %w", asset.Name, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("inserting asset %q: %w", asset.Name, err)
	}
	if affected == 0 {
		return 0, soundlab.ErrAssetExists
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("reading asset id: %w", err)
	}

	asset.ID = id
	if asset.Tags == nil {
		asset.Tags = []string{}
	}
	return id, nil
}

// Update replaces the mutable fields of a persisted asset.
func (s *SQLite) Update(ctx context.Context, asset *soundlab.Asset) error {
	tags, err := encodeTags(asset.Tags)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE assets SET location = ?, is_favorite = ?, tags = ?, size = ?, mod_time = ?, checksum = ?
		 WHERE id = ? AND name = ?`,
		asset.Location, asset.IsFavorite, tags, asset.Size, unixNano(asset.ModTime),
		checksumText(asset.Checksum), asset.ID, asset.Name,
	)
	if err != nil {
		return fmt.Errorf("updating asset %d: %w", asset.ID, err)
	}
	return requireAffected(res, asset.ID)
}

// Delete removes the asset with the given ID.
func (s *SQLite) Delete(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM assets WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting asset %d: %w", id, err)
	}
	return requireAffected(res, id)
}

func requireAffected(res sql.Result, id int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("asset %d: %w", id, soundlab.ErrAssetNotFound)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAsset(row rowScanner) (*soundlab.Asset, error) {
	var (
		asset               soundlab.Asset
		tags, checksum      string
		modTime, importedAt int64
	)
	if err := row.Scan(&asset.ID, &asset.Name, &asset.Location, &asset.IsFavorite, &tags,
		&asset.Size, &modTime, &checksum, &importedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(tags), &asset.Tags); err != nil {
		return nil, fmt.Errorf("decoding tags: %w", err)
	}
	if err := asset.Checksum.UnmarshalText([]byte(checksum)); err != nil {
		return nil, fmt.Errorf("decoding checksum: %w", err)
	}
	asset.ModTime = fromUnixNano(modTime)
	asset.ImportedAt = fromUnixNano(importedAt)
	return normalize(&asset), nil
}

func encodeTags(tags []string) (string, error) {
	if tags == nil {
		tags = []string{}
	}
	data, err := json.Marshal(tags)
	if err != nil {
		return "", fmt.Errorf("encoding tags: %w", err)
	}
	return string(data), nil
}

func checksumText(h soundlab.Hash) string {
	text, _ := h.MarshalText()
	return string(text)
}

func unixNano(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func fromUnixNano(ns int64) time.Time {
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns).UTC()
}
