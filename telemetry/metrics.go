package telemetry

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	promexporter "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.37.0"
)

const (
	meterName = "github.com/prodbyeagle/soundlab"
)

// MetricsConfig configures the metrics system.
type MetricsConfig struct {
	// ServiceName is the name of the service for resource attributes.
	ServiceName string

	// ServiceVersion is the version of the service.
	ServiceVersion string

	// OTLPEndpoint is the OTLP gRPC endpoint (e.g., "localhost:4317").
	// If empty, OTLP export is disabled.
	OTLPEndpoint string

	// EnablePrometheus enables the Prometheus /metrics endpoint.
	EnablePrometheus bool

	// FlushInterval is how often to export metrics (default: 10s).
	FlushInterval time.Duration
}

// Metrics holds the OpenTelemetry metric instruments.
type Metrics struct {
	importsTotal   metric.Int64Counter
	importDuration metric.Float64Histogram
	importBytes    metric.Int64Counter

	treeRunsTotal       metric.Int64Counter
	treeDiscoveredTotal metric.Int64Counter
	treeDuration        metric.Float64Histogram

	cacheLookupsTotal   metric.Int64Counter
	cacheEvictionsTotal metric.Int64Counter
	cacheEntries        metric.Int64Gauge

	scanErrorsTotal  metric.Int64Counter
	watchEventsTotal metric.Int64Counter

	meterProvider *sdkmetric.MeterProvider
	promHandler   http.Handler
}

var (
	globalMetrics *Metrics
	initOnce      sync.Once
	initErr       error
)

// InitMetrics initializes the OpenTelemetry metrics system.
// Returns a shutdown function that should be called on application exit.
// Uses sync.Once to ensure single initialisation.
func InitMetrics(ctx context.Context, cfg MetricsConfig) (shutdown func(context.Context) error, err error) {
	initOnce.Do(func() {
		initErr = doInitMetrics(ctx, cfg)
	})

	if initErr != nil {
		return nil, initErr
	}

	return shutdownMetrics, nil
}

// MeterProvider returns the provider created by InitMetrics, or the global
// otel provider when metrics have not been initialised.
func MeterProvider() metric.MeterProvider {
	if globalMetrics == nil || globalMetrics.meterProvider == nil {
		return otel.GetMeterProvider()
	}
	return globalMetrics.meterProvider
}

// SetMeterProvider records instruments on mp instead of the provider built
// by InitMetrics. Passing nil turns recording off again. The caller owns mp
// and shuts it down.
func SetMeterProvider(mp *sdkmetric.MeterProvider) error {
	if mp == nil {
		globalMetrics = nil
		return nil
	}
	m, err := newMetrics(mp.Meter(meterName))
	if err != nil {
		return err
	}
	m.meterProvider = mp
	globalMetrics = m
	return nil
}

func doInitMetrics(ctx context.Context, cfg MetricsConfig) error {
	if cfg.ServiceName == "" {
		cfg.ServiceName = "soundlab"
	}
	if cfg.FlushInterval == 0 {
		cfg.FlushInterval = 10 * time.Second
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(cfg.ServiceVersion),
		),
	)
	if err != nil {
		return err
	}

	var readers []sdkmetric.Reader
	var promHandler http.Handler

	if cfg.OTLPEndpoint != "" {
		otlpExporter, err := otlpmetricgrpc.New(ctx,
			otlpmetricgrpc.WithEndpoint(cfg.OTLPEndpoint),
			otlpmetricgrpc.WithInsecure(),
		)
		if err != nil {
			return err
		}
		readers = append(readers, sdkmetric.NewPeriodicReader(otlpExporter,
			sdkmetric.WithInterval(cfg.FlushInterval),
		))
	}

	if cfg.EnablePrometheus {
		promExp, err := promexporter.New()
		if err != nil {
			return err
		}
		readers = append(readers, promExp)
		promHandler = promhttp.Handler()
	}

	// Without an exporter the instruments still need a reader to aggregate into.
	if len(readers) == 0 {
		readers = append(readers, sdkmetric.NewPeriodicReader(noopExporter{},
			sdkmetric.WithInterval(cfg.FlushInterval),
		))
	}

	opts := []sdkmetric.Option{sdkmetric.WithResource(res)}
	for _, r := range readers {
		opts = append(opts, sdkmetric.WithReader(r))
	}

	mp := sdkmetric.NewMeterProvider(opts...)
	otel.SetMeterProvider(mp)

	m, err := newMetrics(mp.Meter(meterName))
	if err != nil {
		return err
	}
	m.meterProvider = mp
	m.promHandler = promHandler
	globalMetrics = m

	return nil
}

func newMetrics(meter metric.Meter) (*Metrics, error) {
	importsTotal, err := meter.Int64Counter(
		"soundlab_imports_total",
		metric.WithDescription("Total number of single-asset import attempts by outcome"),
		metric.WithUnit("{import}"),
	)
	if err != nil {
		return nil, err
	}

	importDuration, err := meter.Float64Histogram(
		"soundlab_import_duration_seconds",
		metric.WithDescription("Duration of single-asset imports in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5),
	)
	if err != nil {
		return nil, err
	}

	importBytes, err := meter.Int64Counter(
		"soundlab_import_bytes_total",
		metric.WithDescription("Total size of files registered as new assets"),
		metric.WithUnit("By"),
	)
	if err != nil {
		return nil, err
	}

	treeRunsTotal, err := meter.Int64Counter(
		"soundlab_import_tree_runs_total",
		metric.WithDescription("Total number of directory tree imports"),
		metric.WithUnit("{run}"),
	)
	if err != nil {
		return nil, err
	}

	treeDiscoveredTotal, err := meter.Int64Counter(
		"soundlab_import_tree_discovered_total",
		metric.WithDescription("Total number of candidate files discovered by tree imports"),
		metric.WithUnit("{file}"),
	)
	if err != nil {
		return nil, err
	}

	treeDuration, err := meter.Float64Histogram(
		"soundlab_import_tree_duration_seconds",
		metric.WithDescription("Duration of directory tree imports in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60, 120, 300),
	)
	if err != nil {
		return nil, err
	}

	cacheLookupsTotal, err := meter.Int64Counter(
		"soundlab_cache_lookups_total",
		metric.WithDescription("Total number of lookup cache reads by result"),
		metric.WithUnit("{lookup}"),
	)
	if err != nil {
		return nil, err
	}

	cacheEvictionsTotal, err := meter.Int64Counter(
		"soundlab_cache_evictions_total",
		metric.WithDescription("Total number of lookup cache entries evicted for capacity"),
		metric.WithUnit("{entry}"),
	)
	if err != nil {
		return nil, err
	}

	cacheEntries, err := meter.Int64Gauge(
		"soundlab_cache_entries",
		metric.WithDescription("Current number of lookup cache entries"),
		metric.WithUnit("{entry}"),
	)
	if err != nil {
		return nil, err
	}

	scanErrorsTotal, err := meter.Int64Counter(
		"soundlab_scan_errors_total",
		metric.WithDescription("Total number of scans aborted by an unreadable directory"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return nil, err
	}

	watchEventsTotal, err := meter.Int64Counter(
		"soundlab_watch_events_total",
		metric.WithDescription("Total number of filesystem events handled by the root watcher"),
		metric.WithUnit("{event}"),
	)
	if err != nil {
		return nil, err
	}

	return &Metrics{
		importsTotal:        importsTotal,
		importDuration:      importDuration,
		importBytes:         importBytes,
		treeRunsTotal:       treeRunsTotal,
		treeDiscoveredTotal: treeDiscoveredTotal,
		treeDuration:        treeDuration,
		cacheLookupsTotal:   cacheLookupsTotal,
		cacheEvictionsTotal: cacheEvictionsTotal,
		cacheEntries:        cacheEntries,
		scanErrorsTotal:     scanErrorsTotal,
		watchEventsTotal:    watchEventsTotal,
	}, nil
}

// shutdownMetrics shuts down the metrics provider and clears the global state.
func shutdownMetrics(ctx context.Context) error {
	if globalMetrics == nil {
		return nil
	}
	err := globalMetrics.meterProvider.Shutdown(ctx)
	globalMetrics = nil
	return err
}

// RecordImport records the outcome of one single-asset import.
// The source attribute is read from the context (see WithSource).
func RecordImport(ctx context.Context, outcome string, duration time.Duration, bytes int64) {
	if globalMetrics == nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String("outcome", outcome),
		attribute.String("source", SourceFromContext(ctx)),
	}
	globalMetrics.importsTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
	globalMetrics.importDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
	if bytes > 0 {
		globalMetrics.importBytes.Add(ctx, bytes, metric.WithAttributes(attrs...))
	}
}

// RecordImportTree records a completed directory tree import.
func RecordImportTree(ctx context.Context, discovered int, failed bool, duration time.Duration) {
	if globalMetrics == nil {
		return
	}

	outcome := "ok"
	if failed {
		outcome = "error"
	}
	attrs := metric.WithAttributes(
		attribute.String("outcome", outcome),
		attribute.String("source", SourceFromContext(ctx)),
	)
	globalMetrics.treeRunsTotal.Add(ctx, 1, attrs)
	globalMetrics.treeDiscoveredTotal.Add(ctx, int64(discovered), attrs)
	globalMetrics.treeDuration.Record(ctx, duration.Seconds(), attrs)
}

// RecordCacheLookup records a lookup cache read.
func RecordCacheLookup(ctx context.Context, hit bool) {
	if globalMetrics == nil {
		return
	}

	result := CacheMiss
	if hit {
		result = CacheHit
	}
	globalMetrics.cacheLookupsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("result", string(result)),
	))
}

// RecordCacheEviction records lookup cache entries evicted for capacity.
func RecordCacheEviction(ctx context.Context, count int) {
	if globalMetrics == nil || count <= 0 {
		return
	}
	globalMetrics.cacheEvictionsTotal.Add(ctx, int64(count))
}

// UpdateCacheEntries records the current number of lookup cache entries.
func UpdateCacheEntries(ctx context.Context, entries int) {
	if globalMetrics == nil {
		return
	}
	globalMetrics.cacheEntries.Record(ctx, int64(entries))
}

// RecordScanError records a scan aborted by an unreadable directory.
func RecordScanError(ctx context.Context) {
	if globalMetrics == nil {
		return
	}
	globalMetrics.scanErrorsTotal.Add(ctx, 1)
}

// RecordWatchEvent records a filesystem event handled by the root watcher.
func RecordWatchEvent(ctx context.Context, op string) {
	if globalMetrics == nil {
		return
	}
	globalMetrics.watchEventsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("op", op),
	))
}

// PrometheusHandler returns the Prometheus metrics HTTP handler.
// Returns a handler that returns 404 if Prometheus export is not enabled,
// allowing safe registration regardless of initialization order.
func PrometheusHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if globalMetrics == nil || globalMetrics.promHandler == nil {
			http.NotFound(w, r)
			return
		}
		globalMetrics.promHandler.ServeHTTP(w, r)
	})
}

// noopExporter is a metric exporter that discards all data.
type noopExporter struct{}

func (noopExporter) Temporality(_ sdkmetric.InstrumentKind) metricdata.Temporality {
	return metricdata.CumulativeTemporality
}

func (noopExporter) Aggregation(_ sdkmetric.InstrumentKind) sdkmetric.Aggregation {
	return sdkmetric.AggregationDefault{}
}

func (noopExporter) Export(_ context.Context, _ *metricdata.ResourceMetrics) error {
	return nil
}

func (noopExporter) ForceFlush(_ context.Context) error {
	return nil
}

func (noopExporter) Shutdown(_ context.Context) error {
	return nil
}
