// Package assetdb persists asset records. Each backend enforces at most one
// record per asset name as part of the insert itself.
package assetdb

import (
	"context"
	"fmt"

	"github.com/prodbyeagle/soundlab"
)

// Repository is the persistent store of asset records.
type Repository interface {
	// Exists reports whether an asset with the given name is stored.
	Exists(ctx context.Context, name string) (bool, error)

	// Get returns the asset with the given ID, or soundlab.ErrAssetNotFound.
	Get(ctx context.Context, id int64) (*soundlab.Asset, error)

	// All returns every stored asset ordered by ID.
	All(ctx context.Context) ([]*soundlab.Asset, error)

	// Insert stores a new asset and returns its assigned ID. The asset's ID
	// field is updated on success. If an asset with the same name is already
	// stored, Insert returns soundlab.ErrAssetExists and writes nothing.
	Insert(ctx context.Context, asset *soundlab.Asset) (int64, error)

	// Update replaces the mutable fields of a persisted asset.
	Update(ctx context.Context, asset *soundlab.Asset) error

	// Delete removes the asset with the given ID. Deleting an unknown ID
	// returns soundlab.ErrAssetNotFound.
	Delete(ctx context.Context, id int64) error

	// Close releases the underlying database.
	Close() error
}

// Driver names accepted by Open.
const (
	DriverBolt   = "bolt"
	DriverSQLite = "sqlite"
)

// Options configures the backend opened by Open.
type Options struct {
	Bolt   []BoltDBOption
	SQLite []SQLiteOption
}

// Open opens the asset database at path with the named driver.
func Open(driver, path string, opts Options) (Repository, error) {
	switch driver {
	case DriverBolt, "":
		db := NewBoltDB(opts.Bolt...)
		if err := db.Open(path); err != nil {
			return nil, err
		}
		return db, nil
	case DriverSQLite:
		db := NewSQLite(opts.SQLite...)
		if err := db.Open(path); err != nil {
			return nil, err
		}
		return db, nil
	default:
		return nil, fmt.Errorf("unknown asset database driver: %q", driver)
	}
}

// normalize fills defaults on an asset loaded from storage.
func normalize(a *soundlab.Asset) *soundlab.Asset {
	if a.Tags == nil {
		a.Tags = []string{}
	}
	return a
}
