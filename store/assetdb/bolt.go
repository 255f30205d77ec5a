package assetdb

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/prodbyeagle/soundlab"
	"go.etcd.io/bbolt"
)

// BoltDB implements Repository using bbolt.
type BoltDB struct {
	db     *bbolt.DB
	logger *slog.Logger
	now    func() time.Time
	noSync bool // disables fsync per transaction (for testing only)
}

var _ Repository = (*BoltDB)(nil)

// BoltDBOption configures a BoltDB instance.
type BoltDBOption func(*BoltDB)

// WithLogger sets the logger for the database.
func WithLogger(logger *slog.Logger) BoltDBOption {
	return func(b *BoltDB) {
		b.logger = logger
	}
}

// WithNow sets the time function for testing.
func WithNow(now func() time.Time) BoltDBOption {
	return func(b *BoltDB) {
		b.now = now
	}
}

// WithNoSync disables fsync per transaction.
// WARNING: This improves write performance but risks data loss on crash.
// Use only for testing or benchmarking, never in production.
func WithNoSync(noSync bool) BoltDBOption {
	return func(b *BoltDB) {
		b.noSync = noSync
	}
}

// NewBoltDB creates a new BoltDB instance with options.
func NewBoltDB(opts ...BoltDBOption) *BoltDB {
	b := &BoltDB{
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Open opens the database at the given path.
func (b *BoltDB) Open(path string) error {
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{
		Timeout: 1 * time.Second,
		NoSync:  b.noSync,
	})
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	b.db = db

	if err := b.createBuckets(); err != nil {
		_ = db.Close()
		return err
	}

	b.logger.Debug("opened asset database", "path", path, "noSync", b.noSync)
	return nil
}

func (b *BoltDB) createBuckets() error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		for _, name := range [][]byte{bucketAssets, bucketAssetsByName} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return fmt.Errorf("creating bucket %s: %w", name, err)
			}
		}
		return nil
	})
}

// Close closes the database and releases resources.
func (b *BoltDB) Close() error {
	if b.db == nil {
		return nil
	}
	b.logger.Debug("closing asset database")
	return b.db.Close()
}

// DB returns the underlying bbolt database.
// Used by the registry package to keep import roots in the same file.
func (b *BoltDB) DB() *bbolt.DB {
	return b.db
}

// Exists reports whether an asset with the given name is stored.
func (b *BoltDB) Exists(_ context.Context, name string) (bool, error) {
	var found bool
	err := b.db.View(func(tx *bbolt.Tx) error {
		found = tx.Bucket(bucketAssetsByName).Get([]byte(name)) != nil
		return nil
	})
	return found, err
}

// Get returns the asset with the given ID.
func (b *BoltDB) Get(_ context.Context, id int64) (*soundlab.Asset, error) {
	var asset *soundlab.Asset
	err := b.db.View(func(tx *bbolt.Tx) error {
		var err error
		asset, err = getAsset(tx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return asset, nil
}

func getAsset(tx *bbolt.Tx, id int64) (*soundlab.Asset, error) {
	data := tx.Bucket(bucketAssets).Get(encodeID(id))
	if data == nil {
		return nil, soundlab.ErrAssetNotFound
	}
	var asset soundlab.Asset
	if err := json.Unmarshal(data, &asset); err != nil {
		return nil, fmt.Errorf("unmarshaling asset %d: %w", id, err)
	}
	asset.ID = id
	return normalize(&asset), nil
}

// All returns every stored asset ordered by ID.
func (b *BoltDB) All(ctx context.Context) ([]*soundlab.Asset, error) {
	var assets []*soundlab.Asset
	err := b.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketAssets).ForEach(func(k, v []byte) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			var asset soundlab.Asset
			if err := json.Unmarshal(v, &asset); err != nil {
				b.logger.Warn("skipping unreadable asset", "id", decodeID(k), "error", err)
				return nil
			}
			asset.ID = decodeID(k)
			assets = append(assets, normalize(&asset))
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return assets, nil
}

// Insert stores a new asset. The name index is checked and written in the
// same transaction as the record.
func (b *BoltDB) Insert(_ context.Context, asset *soundlab.Asset) (int64, error) {
	if asset.Name == "" {
		return 0, fmt.Errorf("inserting asset: empty name")
	}

	var id int64
	err := b.db.Update(func(tx *bbolt.Tx) error {
		byName := tx.Bucket(bucketAssetsByName)
		if byName.Get([]byte(asset.Name)) != nil {
			return soundlab.ErrAssetExists
		}

		assets := tx.Bucket(bucketAssets)
		seq, err := assets.NextSequence()
		if err != nil {
			return fmt.Errorf("allocating asset id: %w", err)
		}
		id = int64(seq) //nolint:gosec // sequence never approaches MaxInt64

		record := asset.Clone()
		record.ID = id
		if record.Tags == nil {
			record.Tags = []string{}
		}
		if record.ImportedAt.IsZero() {
			record.ImportedAt = b.now()
		}
		data, err := json.Marshal(record)
		if err != nil {
			return fmt.Errorf("marshaling asset: %w", err)
		}

		key := encodeID(id)
		if err := assets.Put(key, data); err != nil {
			return err
		}
		return byName.Put([]byte(asset.Name), key)
	})
	if err != nil {
		return 0, err
	}

	asset.ID = id
	if asset.Tags == nil {
		asset.Tags = []string{}
	}
	return id, nil
}

// Update replaces the mutable fields of a persisted asset. Name is the
// dedup key and cannot be changed.
func (b *BoltDB) Update(_ context.Context, asset *soundlab.Asset) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		current, err := getAsset(tx, asset.ID)
		if err != nil {
			return err
		}
		if current.Name != asset.Name {
			return fmt.Errorf("updating asset %d: name is immutable", asset.ID)
		}

		current.Location = asset.Location
		current.IsFavorite = asset.IsFavorite
		current.Tags = append([]string{}, asset.Tags...)
		current.Size = asset.Size
		current.ModTime = asset.ModTime
		current.Checksum = asset.Checksum

		data, err := json.Marshal(current)
		if err != nil {
			return fmt.Errorf("marshaling asset: %w", err)
		}
		return tx.Bucket(bucketAssets).Put(encodeID(asset.ID), data)
	})
}

// Delete removes the asset and its name index entry.
func (b *BoltDB) Delete(_ context.Context, id int64) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		current, err := getAsset(tx, id)
		if err != nil {
			return err
		}
		if err := tx.Bucket(bucketAssets).Delete(encodeID(id)); err != nil {
			return err
		}
		return tx.Bucket(bucketAssetsByName).Delete([]byte(current.Name))
	})
}
