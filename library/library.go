// Package library exposes the caller-facing operations of soundlab: importing
// files and directories, browsing and editing assets, and managing import
// roots.
package library

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"

	"github.com/prodbyeagle/soundlab"
	"github.com/prodbyeagle/soundlab/assetcache"
	"github.com/prodbyeagle/soundlab/importer"
	"github.com/prodbyeagle/soundlab/reconcile"
	"github.com/prodbyeagle/soundlab/store/assetdb"
	"github.com/prodbyeagle/soundlab/store/registry"
)

// Library wires the importer, reconciler, asset store, lookup cache and
// root registry together.
type Library struct {
	repo       assetdb.Repository
	cache      *assetcache.Cache
	roots      registry.Registry
	importer   *importer.Importer
	reconciler *reconcile.Reconciler
	logger     *slog.Logger
}

// Config holds the collaborators of a Library. All fields are required
// except Logger.
type Config struct {
	Repository assetdb.Repository
	Cache      *assetcache.Cache
	Roots      registry.Registry
	Importer   *importer.Importer
	Reconciler *reconcile.Reconciler
	Logger     *slog.Logger
}

// New creates a Library from cfg.
func New(cfg Config) (*Library, error) {
	switch {
	case cfg.Repository == nil:
		return nil, errors.New("library: repository is required")
	case cfg.Cache == nil:
		return nil, errors.New("library: cache is required")
	case cfg.Roots == nil:
		return nil, errors.New("library: root registry is required")
	case cfg.Importer == nil:
		return nil, errors.New("library: importer is required")
	case cfg.Reconciler == nil:
		return nil, errors.New("library: reconciler is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Library{
		repo:       cfg.Repository,
		cache:      cfg.Cache,
		roots:      cfg.Roots,
		importer:   cfg.Importer,
		reconciler: cfg.Reconciler,
		logger:     logger,
	}, nil
}

// ImportAsset imports one file under name and records its location as an
// import root. The location is made absolute first.
func (l *Library) ImportAsset(ctx context.Context, name, location string) (importer.Outcome, error) {
	abs, err := soundlab.CleanRoot(location)
	if err != nil {
		return importer.OutcomeFailed, fmt.Errorf("resolving %s: %w", location, err)
	}
	if name == "" {
		name = soundlab.CandidateFromPath(abs).Name
	}

	outcome, err := l.importer.ImportOne(ctx, name, abs)
	if err != nil {
		return outcome, err
	}
	if outcome == importer.OutcomeMissing {
		return outcome, nil
	}
	if err := l.roots.Add(ctx, abs); err != nil {
		return outcome, fmt.Errorf("registering import root: %w", err)
	}
	return outcome, nil
}

// ImportDirectory imports every audio file beneath dir and records dir as
// an import root. If the walk fails part way, dir is still recorded when
// at least one file was imported.
func (l *Library) ImportDirectory(ctx context.Context, dir string) (*importer.TreeResult, error) {
	abs, err := soundlab.CleanRoot(dir)
	if err != nil {
		return nil, fmt.Errorf("resolving %s: %w", dir, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("importing directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("importing %s: %w", abs, soundlab.ErrNotDirectory)
	}

	result, err := l.importer.ImportTree(ctx, abs)
	if err != nil {
		// Keep what was imported before the walk failed beneath a root so
		// that the next recache does not drop it.
		if result != nil && result.Imported > 0 {
			if addErr := l.roots.Add(ctx, abs); addErr != nil {
				l.logger.Error("registering import root", "root", abs, "error", addErr)
			}
		}
		return result, err
	}
	if err := l.roots.Add(ctx, abs); err != nil {
		return result, fmt.Errorf("registering import root: %w", err)
	}
	return result, nil
}

// ListAssets returns every asset sorted by name.
func (l *Library) ListAssets(ctx context.Context) ([]*soundlab.Asset, error) {
	assets, err := l.repo.All(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing assets: %w", err)
	}
	sort.Slice(assets, func(i, j int) bool { return assets[i].Name < assets[j].Name })
	return assets, nil
}

// ListNames returns the names of every asset, sorted.
func (l *Library) ListNames(ctx context.Context) ([]string, error) {
	assets, err := l.ListAssets(ctx)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(assets))
	for _, a := range assets {
		names = append(names, a.Name)
	}
	return names, nil
}

// GetAsset returns the asset with the given ID.
func (l *Library) GetAsset(ctx context.Context, id int64) (*soundlab.Asset, error) {
	return l.repo.Get(ctx, id)
}

// DeleteAsset removes the asset record and its cache entry.
func (l *Library) DeleteAsset(ctx context.Context, id int64) error {
	asset, err := l.repo.Get(ctx, id)
	if err != nil {
		return fmt.Errorf("deleting asset %d: %w", id, err)
	}
	if err := l.repo.Delete(ctx, id); err != nil {
		return fmt.Errorf("deleting asset %d: %w", id, err)
	}
	l.cache.RemoveContext(ctx, asset.Name)
	l.logger.Info("deleted asset", "id", id, "name", asset.Name)
	return nil
}

// ToggleFavorite flips the favorite flag of an asset and returns the
// updated record.
func (l *Library) ToggleFavorite(ctx context.Context, id int64) (*soundlab.Asset, error) {
	return l.update(ctx, id, func(a *soundlab.Asset) {
		a.IsFavorite = !a.IsFavorite
	})
}

// SetTags replaces the tags of an asset. Tags are trimmed and deduplicated.
func (l *Library) SetTags(ctx context.Context, id int64, tags []string) (*soundlab.Asset, error) {
	return l.update(ctx, id, func(a *soundlab.Asset) {
		a.Tags = soundlab.NormalizeTags(tags)
	})
}

func (l *Library) update(ctx context.Context, id int64, mutate func(*soundlab.Asset)) (*soundlab.Asset, error) {
	asset, err := l.repo.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("updating asset %d: %w", id, err)
	}
	mutate(asset)
	if err := l.repo.Update(ctx, asset); err != nil {
		return nil, fmt.Errorf("updating asset %d: %w", id, err)
	}
	return asset, nil
}

// ListRoots returns the active import roots.
func (l *Library) ListRoots(ctx context.Context) ([]string, error) {
	return l.roots.List(ctx)
}

// RemoveRoot withdraws an import root and reconciles the store against the
// roots that remain.
func (l *Library) RemoveRoot(ctx context.Context, path string) ([]string, *reconcile.Result, error) {
	remaining, err := l.roots.Remove(ctx, path)
	if err != nil {
		return nil, nil, fmt.Errorf("removing import root: %w", err)
	}
	result, err := l.reconciler.Reconcile(ctx, remaining)
	if err != nil {
		return remaining, nil, err
	}
	return remaining, result, nil
}

// Recache removes every asset that is no longer beneath an active root.
func (l *Library) Recache(ctx context.Context) (*reconcile.Result, error) {
	return l.reconciler.RunNow(ctx)
}
