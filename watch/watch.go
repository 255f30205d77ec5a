// Package watch imports audio files as they appear beneath active import
// roots.
package watch

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/prodbyeagle/soundlab"
	"github.com/prodbyeagle/soundlab/importer"
	"github.com/prodbyeagle/soundlab/telemetry"
)

// RootLister returns the active import roots.
type RootLister interface {
	List(ctx context.Context) ([]string, error)
}

// Watcher follows filesystem events beneath the active roots and feeds new
// files to the importer.
type Watcher struct {
	importer *importer.Importer
	roots    RootLister
	debounce time.Duration
	logger   *slog.Logger

	readyOnce sync.Once
	ready     chan struct{}
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithDebounce sets how long a path must be quiet before it is imported.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) {
		w.debounce = d
	}
}

// WithLogger sets the logger for the watcher.
func WithLogger(logger *slog.Logger) Option {
	return func(w *Watcher) {
		w.logger = logger
	}
}

// New creates a Watcher.
func New(imp *importer.Importer, roots RootLister, opts ...Option) *Watcher {
	w := &Watcher{
		importer: imp,
		roots:    roots,
		debounce: 500 * time.Millisecond,
		logger:   slog.Default(),
		ready:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Ready is closed once every root is being watched.
func (w *Watcher) Ready() <-chan struct{} {
	return w.ready
}

// Run watches the roots until ctx is cancelled. Roots added to the
// registry after Run starts are not picked up.
func (w *Watcher) Run(ctx context.Context) error {
	ctx = telemetry.WithSource(ctx, telemetry.SourceWatch)

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer func() { _ = fw.Close() }()

	roots, err := w.roots.List(ctx)
	if err != nil {
		return fmt.Errorf("listing import roots: %w", err)
	}
	watched := 0
	for _, root := range roots {
		n, err := w.watchTree(ctx, fw, root)
		if err != nil {
			w.logger.Warn("cannot watch import root", "root", root, "error", err)
			continue
		}
		watched += n
	}
	w.logger.Info("watching import roots", "roots", len(roots), "directories", watched)
	w.readyOnce.Do(func() { close(w.ready) })

	fired := make(chan string)
	pending := map[string]*time.Timer{}
	defer func() {
		for _, t := range pending {
			t.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			op := opName(ev.Op)
			telemetry.RecordWatchEvent(ctx, op)

			switch {
			case ev.Has(fsnotify.Create) || ev.Has(fsnotify.Write):
				w.schedule(ctx, pending, fired, ev.Name)
			case ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename):
				// Records are keyed by name; recache decides whether they go.
				w.logger.Debug("path removed", "path", ev.Name, "op", op)
			}

		case path := <-fired:
			delete(pending, path)
			w.handle(ctx, fw, path)

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watcher error", "error", err)
		}
	}
}

// schedule (re)starts the quiet-period timer for path.
func (w *Watcher) schedule(ctx context.Context, pending map[string]*time.Timer, fired chan<- string, path string) {
	if t, ok := pending[path]; ok {
		t.Reset(w.debounce)
		return
	}
	pending[path] = time.AfterFunc(w.debounce, func() {
		select {
		case fired <- path:
		case <-ctx.Done():
		}
	})
}

func (w *Watcher) handle(ctx context.Context, fw *fsnotify.Watcher, path string) {
	info, err := os.Stat(path)
	if err != nil {
		w.logger.Debug("path vanished before import", "path", path, "error", err)
		return
	}

	if info.IsDir() {
		if _, err := w.watchTree(ctx, fw, path); err != nil {
			w.logger.Warn("cannot watch new directory", "path", path, "error", err)
		}
		if _, err := w.importer.ImportTree(ctx, path); err != nil {
			w.logger.Warn("importing new directory", "path", path, "error", err)
		}
		return
	}

	if !w.importer.Scanner().Matches(path) {
		return
	}
	c := soundlab.CandidateFromPath(path)
	outcome, err := w.importer.ImportOne(ctx, c.Name, c.Location)
	if err != nil {
		w.logger.Error("importing new file", "path", path, "error", err)
		return
	}
	w.logger.Info("imported new file", "name", c.Name, "location", c.Location, "outcome", outcome)
}

// watchTree adds root and every directory beneath it to fw. A root that is
// a single file is skipped.
func (w *Watcher) watchTree(ctx context.Context, fw *fsnotify.Watcher, root string) (int, error) {
	info, err := os.Stat(root)
	if err != nil {
		return 0, err
	}
	if !info.IsDir() {
		w.logger.Debug("not watching file root", "root", root)
		return 0, nil
	}

	n := 0
	for dir, err := range w.importer.Scanner().Dirs(ctx, root) {
		if err != nil {
			return n, err
		}
		if err := fw.Add(dir); err != nil {
			return n, fmt.Errorf("watching %s: %w", dir, err)
		}
		n++
	}
	return n, nil
}

func opName(op fsnotify.Op) string {
	switch {
	case op.Has(fsnotify.Create):
		return "create"
	case op.Has(fsnotify.Write):
		return "write"
	case op.Has(fsnotify.Remove):
		return "remove"
	case op.Has(fsnotify.Rename):
		return "rename"
	case op.Has(fsnotify.Chmod):
		return "chmod"
	default:
		return "unknown"
	}
}
