package registry

import (
	"context"
	"encoding/binary"
	"fmt"
	"sort"

	"go.etcd.io/bbolt"
)

var bucketImportRoots = []byte("import_roots") // path -> 8-byte insertion sequence

// Bolt implements Registry in a bucket of an existing bbolt database.
type Bolt struct {
	db *bbolt.DB
}

var _ Registry = (*Bolt)(nil)

// NewBolt creates the roots bucket in db if needed.
func NewBolt(db *bbolt.DB) (*Bolt, error) {
	err := db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketImportRoots)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("creating bucket %s: %w", bucketImportRoots, err)
	}
	return &Bolt{db: db}, nil
}

// Add records path as an active root.
func (r *Bolt) Add(_ context.Context, path string) error {
	clean, err := cleanPath(path)
	if err != nil {
		return err
	}
	return r.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketImportRoots)
		if b.Get([]byte(clean)) != nil {
			return nil
		}
		seq, err := b.NextSequence()
		if err != nil {
			return err
		}
		buf := make([]byte, 8)
		binary.BigEndian.PutUint64(buf, seq)
		return b.Put([]byte(clean), buf)
	})
}

// Remove withdraws path and returns the remaining roots.
func (r *Bolt) Remove(ctx context.Context, path string) ([]string, error) {
	clean, err := cleanPath(path)
	if err != nil {
		return nil, err
	}
	var remaining []string
	err = r.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketImportRoots)
		if err := b.Delete([]byte(clean)); err != nil {
			return err
		}
		remaining = listRoots(b)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return remaining, nil
}

// List returns the active roots in insertion order.
func (r *Bolt) List(_ context.Context) ([]string, error) {
	var roots []string
	err := r.db.View(func(tx *bbolt.Tx) error {
		roots = listRoots(tx.Bucket(bucketImportRoots))
		return nil
	})
	return roots, err
}

func listRoots(b *bbolt.Bucket) []string {
	type entry struct {
		path string
		seq  uint64
	}
	var entries []entry
	_ = b.ForEach(func(k, v []byte) error {
		var seq uint64
		if len(v) >= 8 {
			seq = binary.BigEndian.Uint64(v)
		}
		entries = append(entries, entry{path: string(k), seq: seq})
		return nil
	})
	sort.Slice(entries, func(i, j int) bool { return entries[i].seq < entries[j].seq })

	roots := make([]string, 0, len(entries))
	for _, e := range entries {
		roots = append(roots, e.path)
	}
	return roots
}
