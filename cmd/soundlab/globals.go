package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/prodbyeagle/soundlab/assetcache"
	"github.com/prodbyeagle/soundlab/importer"
	"github.com/prodbyeagle/soundlab/library"
	"github.com/prodbyeagle/soundlab/reconcile"
	"github.com/prodbyeagle/soundlab/scan"
	"github.com/prodbyeagle/soundlab/store/assetdb"
	"github.com/prodbyeagle/soundlab/store/registry"
	"github.com/prodbyeagle/soundlab/telemetry"
)

// Globals are the flags shared by every command.
type Globals struct {
	DataDir        string `help:"Directory holding the asset database." type:"path" default:"${data_dir}"`
	Driver         string `help:"Asset database driver." enum:"bolt,sqlite" default:"bolt"`
	CacheSize      int    `help:"Maximum number of entries in the lookup cache." default:"1000"`
	Concurrency    int    `help:"Maximum concurrent file imports (0 means 4x CPUs)." default:"0"`
	Checksums      bool   `help:"Record a BLAKE3 checksum for each imported file." default:"true" negatable:""`
	FollowSymlinks bool   `help:"Descend into symlinked directories when scanning."`

	LogLevel  string `help:"Log level." enum:"debug,info,warn,error" default:"info"`
	LogFormat string `help:"Console log format." enum:"text,json" default:"text"`
	LogFile   string `help:"Also write JSON logs to this rotating file." type:"path"`

	MetricsAddress string `help:"Serve Prometheus metrics on this address (e.g. :9090)."`
	OTLPEndpoint   string `name:"otlp-endpoint" help:"Export metrics to this OTLP gRPC endpoint."`
}

// app holds the wired components for one command invocation.
type app struct {
	lib        *library.Library
	importer   *importer.Importer
	reconciler *reconcile.Reconciler
	roots      registry.Registry
	logger     *slog.Logger

	closers []func(context.Context) error
}

func (a *app) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// open builds the logger, metrics, stores and services from the flags.
func (g *Globals) open(ctx context.Context, reconcileCfg reconcile.Config) (*app, error) {
	logger, closeLog, err := newLogger(g.LogLevel, g.LogFormat, g.LogFile)
	if err != nil {
		return nil, err
	}
	slog.SetDefault(logger)

	a := &app{logger: logger}
	a.closers = append(a.closers, func(context.Context) error { return closeLog() })

	if err := g.openMetrics(ctx, a); err != nil {
		_ = a.Close()
		return nil, err
	}

	cache, err := assetcache.New(g.CacheSize, assetcache.WithLogger(logger))
	if err != nil {
		_ = a.Close()
		return nil, fmt.Errorf("configuring lookup cache: %w", err)
	}

	if err := os.MkdirAll(g.DataDir, 0o755); err != nil {
		_ = a.Close()
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	repo, roots, err := g.openStore(logger)
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	a.roots = roots
	a.closers = append(a.closers, func(context.Context) error { return repo.Close() })

	scanner := scan.New(scan.WithLogger(logger), scan.WithFollowSymlinks(g.FollowSymlinks))
	a.importer = importer.New(repo, cache,
		importer.WithScanner(scanner),
		importer.WithConcurrency(g.Concurrency),
		importer.WithChecksums(g.Checksums),
		importer.WithLogger(logger),
	)
	a.reconciler = reconcile.New(repo, cache, roots, reconcileCfg,
		reconcile.WithLogger(logger.With("component", "reconcile")),
		reconcile.WithMetrics(telemetry.MeterProvider().Meter("github.com/prodbyeagle/soundlab/reconcile")),
	)

	a.lib, err = library.New(library.Config{
		Repository: repo,
		Cache:      cache,
		Roots:      roots,
		Importer:   a.importer,
		Reconciler: a.reconciler,
		Logger:     logger,
	})
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	return a, nil
}

func (g *Globals) openStore(logger *slog.Logger) (assetdb.Repository, registry.Registry, error) {
	file := "soundlab.db"
	if g.Driver == assetdb.DriverSQLite {
		file = "soundlab.sqlite"
	}
	repo, err := assetdb.Open(g.Driver, filepath.Join(g.DataDir, file), assetdb.Options{
		Bolt:   []assetdb.BoltDBOption{assetdb.WithLogger(logger)},
		SQLite: []assetdb.SQLiteOption{assetdb.WithSQLiteLogger(logger)},
	})
	if err != nil {
		return nil, nil, fmt.Errorf("opening asset database: %w", err)
	}

	var roots registry.Registry
	switch db := repo.(type) {
	case *assetdb.BoltDB:
		roots, err = registry.NewBolt(db.DB())
	case *assetdb.SQLite:
		roots, err = registry.NewSQL(db.DB())
	default:
		err = fmt.Errorf("no root registry for %T", repo)
	}
	if err != nil {
		_ = repo.Close()
		return nil, nil, err
	}
	return repo, roots, nil
}

func (g *Globals) openMetrics(ctx context.Context, a *app) error {
	if g.MetricsAddress == "" && g.OTLPEndpoint == "" {
		return nil
	}

	shutdown, err := telemetry.InitMetrics(ctx, telemetry.MetricsConfig{
		ServiceName:      "soundlab",
		ServiceVersion:   version,
		OTLPEndpoint:     g.OTLPEndpoint,
		EnablePrometheus: g.MetricsAddress != "",
	})
	if err != nil {
		return fmt.Errorf("initializing metrics: %w", err)
	}
	a.closers = append(a.closers, shutdown)

	if g.MetricsAddress == "" {
		return nil
	}

	ln, err := net.Listen("tcp", g.MetricsAddress)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", g.MetricsAddress, err)
	}
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", telemetry.PrometheusHandler())
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("metrics server failed", "error", err)
		}
	}()
	a.logger.Info("serving metrics", "address", ln.Addr().String())
	a.closers = append(a.closers, srv.Shutdown)
	return nil
}
