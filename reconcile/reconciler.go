// Package reconcile removes asset records that no longer belong to any
// active import root, together with their lookup cache entries.
package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prodbyeagle/soundlab"
	"github.com/prodbyeagle/soundlab/assetcache"
	"go.opentelemetry.io/otel/metric"
)

// Repository is the subset of the asset store the reconciler needs.
type Repository interface {
	All(ctx context.Context) ([]*soundlab.Asset, error)
	Delete(ctx context.Context, id int64) error
}

// RootLister returns the active import roots.
type RootLister interface {
	List(ctx context.Context) ([]string, error)
}

// Config configures the reconciler.
type Config struct {
	Interval     time.Duration // How often background runs happen (default: 1h)
	StartupDelay time.Duration // Delay before the first background run (default: 1m)
	PruneMissing bool          // Also delete records whose file no longer exists
}

// DefaultConfig returns the default reconciler configuration.
func DefaultConfig() Config {
	return Config{
		Interval:     1 * time.Hour,
		StartupDelay: 1 * time.Minute,
	}
}

// Result contains the results of a reconciliation pass.
type Result struct {
	RunID     string        `json:"run_id"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
	Roots     []string      `json:"roots"`
	Scanned   int           `json:"scanned"`
	Retained  int           `json:"retained"`
	Deleted   int           `json:"deleted"`
	Missing   int           `json:"missing"`
	Errors    []string      `json:"errors,omitempty"`
}

// Reconciler deletes records outside the active root set.
type Reconciler struct {
	repo    Repository
	cache   *assetcache.Cache
	roots   RootLister
	config  Config
	metrics *Metrics
	logger  *slog.Logger

	runMu sync.Mutex // serializes passes

	stopCh  chan struct{}
	doneCh  chan struct{}
	mu      sync.Mutex
	running bool
	lastRun *Result
}

// Option configures a Reconciler.
type Option func(*Reconciler)

// WithLogger sets the logger for the reconciler.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Reconciler) {
		r.logger = logger
	}
}

// WithMetrics records reconciliation runs with instruments from meter.
func WithMetrics(meter metric.Meter) Option {
	return func(r *Reconciler) {
		metrics, err := NewMetrics(meter)
		if err != nil {
			r.logger.Error("failed to create reconcile metrics", "error", err)
			return
		}
		r.metrics = metrics
	}
}

// New creates a Reconciler.
func New(repo Repository, cache *assetcache.Cache, roots RootLister, config Config, opts ...Option) *Reconciler {
	r := &Reconciler{
		repo:   repo,
		cache:  cache,
		roots:  roots,
		config: config,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Start starts periodic reconciliation in the background.
func (r *Reconciler) Start(ctx context.Context) {
	r.mu.Lock()
	if r.running || r.config.Interval <= 0 {
		r.mu.Unlock()
		return
	}
	r.running = true
	r.stopCh = make(chan struct{})
	r.doneCh = make(chan struct{})
	stopCh, doneCh := r.stopCh, r.doneCh
	r.mu.Unlock()

	go r.run(ctx, stopCh, doneCh)
}

// Stop stops periodic reconciliation and waits for an in-progress run.
// It is safe to call concurrently and more than once.
func (r *Reconciler) Stop(ctx context.Context) error {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return nil
	}
	stopCh, doneCh := r.stopCh, r.doneCh
	r.stopCh = nil
	r.mu.Unlock()

	if stopCh != nil {
		close(stopCh)
	}

	select {
	case <-doneCh:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RunNow reads the active roots and reconciles against them.
func (r *Reconciler) RunNow(ctx context.Context) (*Result, error) {
	roots, err := r.roots.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing import roots: %w", err)
	}
	return r.Reconcile(ctx, roots)
}

// Reconcile deletes every record whose location is not beneath one of
// roots. Per-record failures are collected in the result and do not stop
// the pass. An error is returned only when the records cannot be listed.
func (r *Reconciler) Reconcile(ctx context.Context, roots []string) (*Result, error) {
	r.runMu.Lock()
	defer r.runMu.Unlock()

	result := &Result{
		RunID:     uuid.NewString(),
		StartedAt: time.Now(),
		Roots:     append([]string{}, roots...),
	}
	logger := r.logger.With("run_id", result.RunID)
	logger.Info("starting reconciliation", "roots", len(roots))

	assets, err := r.repo.All(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing assets: %w", err)
	}
	result.Scanned = len(assets)

	r.phaseSweep(ctx, logger, assets, result)

	result.Duration = time.Since(result.StartedAt)

	r.mu.Lock()
	r.lastRun = result
	r.mu.Unlock()

	r.recordMetrics(ctx, result)

	logger.Info("reconciliation completed",
		"duration", result.Duration,
		"scanned", result.Scanned,
		"retained", result.Retained,
		"deleted", result.Deleted,
		"missing", result.Missing,
		"errors", len(result.Errors),
	)

	return result, nil
}

// Status returns the last run result.
func (r *Reconciler) Status() *Result {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastRun
}

func (r *Reconciler) run(ctx context.Context, stopCh <-chan struct{}, doneCh chan<- struct{}) {
	defer close(doneCh)

	r.logger.Info("reconciler starting",
		"interval", r.config.Interval,
		"startup_delay", r.config.StartupDelay,
	)

	select {
	case <-time.After(r.config.StartupDelay):
	case <-stopCh:
		r.logger.Info("reconciler stopped during startup delay")
		r.setRunning(false)
		return
	case <-ctx.Done():
		r.logger.Info("reconciler context cancelled during startup delay")
		r.setRunning(false)
		return
	}

	r.runLogged(ctx)

	ticker := time.NewTicker(r.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.runLogged(ctx)
		case <-stopCh:
			r.logger.Info("reconciler stopped")
			r.setRunning(false)
			return
		case <-ctx.Done():
			r.logger.Info("reconciler context cancelled")
			r.setRunning(false)
			return
		}
	}
}

func (r *Reconciler) runLogged(ctx context.Context) {
	if _, err := r.RunNow(ctx); err != nil {
		r.logger.Error("reconciliation failed", "error", err)
	}
}

func (r *Reconciler) setRunning(running bool) {
	r.mu.Lock()
	r.running = running
	r.mu.Unlock()
}

func (r *Reconciler) recordMetrics(ctx context.Context, result *Result) {
	if r.metrics == nil {
		return
	}

	r.metrics.runsTotal.Add(ctx, 1)
	r.metrics.runDuration.Record(ctx, result.Duration.Seconds())
	r.metrics.scannedTotal.Add(ctx, int64(result.Scanned))
	r.metrics.deletedTotal.Add(ctx, int64(result.Deleted))
	r.metrics.missingDeletedTotal.Add(ctx, int64(result.Missing))
	r.metrics.errorsTotal.Add(ctx, int64(len(result.Errors)))
	r.metrics.lastRunTimestamp.Record(ctx, float64(result.StartedAt.Unix()))

	if len(result.Errors) == 0 {
		r.metrics.lastRunSuccess.Record(ctx, 1)
	} else {
		r.metrics.lastRunSuccess.Record(ctx, 0)
	}
}
