// Package importer registers audio files as assets. It consults the lookup
// cache, then the store, then the filesystem, and only inserts what is new.
package importer

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"runtime"
	"time"

	"github.com/prodbyeagle/soundlab"
	"github.com/prodbyeagle/soundlab/assetcache"
	"github.com/prodbyeagle/soundlab/scan"
	"github.com/prodbyeagle/soundlab/telemetry"
	"golang.org/x/sync/singleflight"
)

// Repository is the subset of the asset store the importer needs.
type Repository interface {
	Exists(ctx context.Context, name string) (bool, error)
	Insert(ctx context.Context, asset *soundlab.Asset) (int64, error)
}

// Outcome describes what ImportOne did with a file.
type Outcome string

const (
	// OutcomeImported means a new record was stored and cached.
	OutcomeImported Outcome = "imported"
	// OutcomeCached means the name was already in the lookup cache.
	OutcomeCached Outcome = "cached"
	// OutcomeExists means the store already holds a record with this name.
	OutcomeExists Outcome = "exists"
	// OutcomeMissing means the file does not exist or is not a regular file.
	OutcomeMissing Outcome = "missing"
	// OutcomeFailed means the store rejected the insert.
	OutcomeFailed Outcome = "failed"
)

// Importer imports single files and directory trees.
type Importer struct {
	repo        Repository
	cache       *assetcache.Cache
	scanner     *scan.Scanner
	group       singleflight.Group
	concurrency int
	checksums   bool
	now         func() time.Time
	logger      *slog.Logger
}

// Option configures an Importer.
type Option func(*Importer)

// WithScanner sets the scanner used by ImportTree.
func WithScanner(s *scan.Scanner) Option {
	return func(i *Importer) {
		i.scanner = s
	}
}

// WithConcurrency bounds the number of files ImportTree imports at once.
func WithConcurrency(n int) Option {
	return func(i *Importer) {
		if n > 0 {
			i.concurrency = n
		}
	}
}

// WithChecksums enables or disables BLAKE3 content hashing of new assets.
func WithChecksums(enabled bool) Option {
	return func(i *Importer) {
		i.checksums = enabled
	}
}

// WithNow sets the time function for testing.
func WithNow(now func() time.Time) Option {
	return func(i *Importer) {
		i.now = now
	}
}

// WithLogger sets the logger for the importer.
func WithLogger(logger *slog.Logger) Option {
	return func(i *Importer) {
		i.logger = logger
	}
}

// New creates an Importer writing to repo and cache.
func New(repo Repository, cache *assetcache.Cache, opts ...Option) *Importer {
	i := &Importer{
		repo:        repo,
		cache:       cache,
		concurrency: 4 * runtime.NumCPU(),
		checksums:   true,
		now:         time.Now,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(i)
	}
	if i.scanner == nil {
		i.scanner = scan.New(scan.WithLogger(i.logger))
	}
	return i
}

// Scanner returns the scanner used for tree imports.
func (i *Importer) Scanner() *scan.Scanner {
	return i.scanner
}

type importResult struct {
	outcome Outcome
	bytes   int64
}

// ImportOne registers the file at location under name unless the name is
// already known. Duplicates and missing files are reported as outcomes, not
// errors. An error is returned only when the store fails.
//
// Concurrent calls for the same name are coalesced so that the existence
// check and the insert run once. A caller that did not perform the work
// sees OutcomeExists if the name ended up stored, and otherwise runs its
// own check against its own location.
func (i *Importer) ImportOne(ctx context.Context, name, location string) (Outcome, error) {
	start := time.Now()

	if _, ok := i.cache.GetContext(ctx, name); ok {
		i.logger.Debug("asset already cached", "name", name, "location", location)
		telemetry.RecordImport(ctx, string(OutcomeCached), time.Since(start), 0)
		return OutcomeCached, nil
	}

	var leader bool
	ch := i.group.DoChan(name, func() (any, error) {
		leader = true
		// Detached so that one caller giving up does not abandon an insert
		// other callers are waiting on.
		return i.importUncached(context.WithoutCancel(ctx), name, location)
	})

	var res singleflight.Result
	select {
	case res = <-ch:
	case <-ctx.Done():
		return OutcomeFailed, ctx.Err()
	}

	result, _ := res.Val.(*importResult)
	outcome := OutcomeFailed
	var bytes int64
	if result != nil {
		outcome, bytes = result.outcome, result.bytes
	}
	err := res.Err
	if !leader {
		switch outcome {
		case OutcomeImported, OutcomeCached, OutcomeExists:
			// The name is stored now, whichever file it came from.
			outcome, bytes = OutcomeExists, 0
		default:
			// The shared call looked at another caller's location. Check ours.
			result, err = i.importUncached(ctx, name, location)
			outcome, bytes = result.outcome, result.bytes
		}
	}

	telemetry.RecordImport(ctx, string(outcome), time.Since(start), bytes)
	return outcome, err
}

func (i *Importer) importUncached(ctx context.Context, name, location string) (*importResult, error) {
	exists, err := i.repo.Exists(ctx, name)
	if err != nil {
		i.logger.Error("checking asset", "name", name, "error", err)
		return &importResult{outcome: OutcomeFailed}, fmt.Errorf("checking asset %q: %w", name, err)
	}
	if exists {
		i.logger.Debug("asset already stored", "name", name, "location", location)
		return &importResult{outcome: OutcomeExists}, nil
	}

	info, err := os.Stat(location)
	if err != nil {
		i.logger.Warn("file not found, skipping", "name", name, "location", location, "error", err)
		return &importResult{outcome: OutcomeMissing}, nil
	}
	if !info.Mode().IsRegular() {
		i.logger.Warn("not a regular file, skipping", "name", name, "location", location)
		return &importResult{outcome: OutcomeMissing}, nil
	}

	asset := &soundlab.Asset{
		Name:       name,
		Location:   location,
		IsFavorite: false,
		Tags:       []string{},
		Size:       info.Size(),
		ModTime:    info.ModTime(),
		ImportedAt: i.now(),
	}
	if i.checksums {
		sum, _, err := soundlab.HashFile(location)
		if errors.Is(err, fs.ErrNotExist) {
			i.logger.Warn("file removed during import, skipping", "name", name, "location", location)
			return &importResult{outcome: OutcomeMissing}, nil
		}
		if err != nil {
			i.logger.Error("hashing asset", "name", name, "location", location, "error", err)
			return &importResult{outcome: OutcomeFailed}, fmt.Errorf("hashing %s: %w", location, err)
		}
		asset.Checksum = sum
	}

	if _, err := i.repo.Insert(ctx, asset); err != nil {
		if errors.Is(err, soundlab.ErrAssetExists) {
			i.logger.Debug("asset inserted concurrently, keeping first", "name", name, "location", location)
			return &importResult{outcome: OutcomeExists}, nil
		}
		i.logger.Error("inserting asset", "name", name, "location", location, "error", err)
		return &importResult{outcome: OutcomeFailed}, fmt.Errorf("inserting asset %q: %w", name, err)
	}

	i.cache.PutContext(ctx, name, location)
	i.logger.Debug("imported asset", "id", asset.ID, "name", name, "location", location)
	return &importResult{outcome: OutcomeImported, bytes: asset.Size}, nil
}
