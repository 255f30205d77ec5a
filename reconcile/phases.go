package reconcile

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"

	"github.com/prodbyeagle/soundlab"
)

// phaseSweep deletes records outside every root and, when configured,
// records whose file is gone. The cache entry is dropped only after the
// record delete succeeds.
func (r *Reconciler) phaseSweep(ctx context.Context, logger *slog.Logger, assets []*soundlab.Asset, result *Result) {
	logger.Debug("phase: sweep orphaned assets")

	for _, asset := range assets {
		select {
		case <-ctx.Done():
			result.Errors = append(result.Errors, fmt.Sprintf("sweep interrupted: %v", ctx.Err()))
			return
		default:
		}

		reason := r.orphanReason(asset, result.Roots)
		if reason == "" {
			result.Retained++
			continue
		}

		if err := r.repo.Delete(ctx, asset.ID); err != nil {
			if errors.Is(err, soundlab.ErrAssetNotFound) {
				// Already gone; the cache entry is stale either way.
				r.cache.RemoveContext(ctx, asset.Name)
				continue
			}
			result.Errors = append(result.Errors, fmt.Sprintf("delete asset %d (%s): %v", asset.ID, asset.Name, err))
			logger.Error("failed to delete orphaned asset",
				"id", asset.ID,
				"name", asset.Name,
				"location", asset.Location,
				"error", err,
			)
			continue
		}
		r.cache.RemoveContext(ctx, asset.Name)

		if reason == reasonMissing {
			result.Missing++
		} else {
			result.Deleted++
		}

		logger.Debug("deleted orphaned asset",
			"id", asset.ID,
			"name", asset.Name,
			"location", asset.Location,
			"reason", reason,
		)
	}
}

const (
	reasonOutsideRoots = "outside_roots"
	reasonMissing      = "missing"
)

func (r *Reconciler) orphanReason(asset *soundlab.Asset, roots []string) string {
	if !soundlab.WithinAnyRoot(asset.Location, roots) {
		return reasonOutsideRoots
	}
	if r.config.PruneMissing {
		if _, err := os.Stat(asset.Location); errors.Is(err, fs.ErrNotExist) {
			return reasonMissing
		}
	}
	return ""
}
