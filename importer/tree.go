package importer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/prodbyeagle/soundlab/telemetry"
	"golang.org/x/sync/errgroup"
)

// TreeResult summarizes an ImportTree run.
type TreeResult struct {
	Root       string        `json:"root"`
	Discovered int           `json:"discovered"`
	Imported   int           `json:"imported"`
	Cached     int           `json:"cached"`
	Existing   int           `json:"existing"`
	Missing    int           `json:"missing"`
	Failed     int           `json:"failed"`
	Errors     []error       `json:"-"`
	Duration   time.Duration `json:"duration"`

	mu sync.Mutex
}

func (r *TreeResult) record(outcome Outcome, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch outcome {
	case OutcomeImported:
		r.Imported++
	case OutcomeCached:
		r.Cached++
	case OutcomeExists:
		r.Existing++
	case OutcomeMissing:
		r.Missing++
	default:
		r.Failed++
	}
	if err != nil {
		r.Errors = append(r.Errors, err)
	}
}

// ImportTree imports every matching file beneath root. Files are imported
// concurrently, bounded by the configured concurrency, and ImportTree waits
// for all of them before returning. A failure importing one file is
// recorded in the result and does not stop the others.
//
// If a directory cannot be listed, no further files are submitted and the
// *scan.DirError is returned along with the partial result. Cancelling ctx
// also stops submission.
func (i *Importer) ImportTree(ctx context.Context, root string) (*TreeResult, error) {
	start := time.Now()
	result := &TreeResult{Root: root}

	var g errgroup.Group
	g.SetLimit(i.concurrency)

	var walkErr error
	for cand, err := range i.scanner.Scan(ctx, root) {
		if err != nil {
			walkErr = err
			break
		}
		if err := ctx.Err(); err != nil {
			walkErr = err
			break
		}
		result.Discovered++
		g.Go(func() error {
			outcome, err := i.ImportOne(ctx, cand.Name, cand.Location)
			if err != nil {
				err = fmt.Errorf("importing %s: %w", cand.Location, err)
			}
			result.record(outcome, err)
			return nil
		})
	}
	_ = g.Wait()

	result.Duration = time.Since(start)
	telemetry.RecordImportTree(ctx, result.Discovered, walkErr != nil, result.Duration)

	i.logger.Info("imported directory tree",
		"root", root,
		"duration", result.Duration,
		"discovered", result.Discovered,
		"imported", result.Imported,
		"cached", result.Cached,
		"existing", result.Existing,
		"missing", result.Missing,
		"failed", result.Failed,
	)

	if walkErr != nil {
		i.logger.Error("directory import aborted", "root", root, "error", walkErr)
		return result, walkErr
	}
	return result, nil
}
