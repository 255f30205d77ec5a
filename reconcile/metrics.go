package reconcile

import (
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds reconciliation OpenTelemetry metric instruments.
type Metrics struct {
	runsTotal           metric.Int64Counter
	runDuration         metric.Float64Histogram
	scannedTotal        metric.Int64Counter
	deletedTotal        metric.Int64Counter
	missingDeletedTotal metric.Int64Counter
	errorsTotal         metric.Int64Counter
	lastRunTimestamp    metric.Float64Gauge
	lastRunSuccess      metric.Float64Gauge
}

// NewMetrics creates a new Metrics instance with the given meter.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	runsTotal, err := meter.Int64Counter(
		"soundlab_reconcile_runs_total",
		metric.WithDescription("Total number of reconciliation runs"),
		metric.WithUnit("{run}"),
	)
	if err != nil {
		return nil, err
	}

	runDuration, err := meter.Float64Histogram(
		"soundlab_reconcile_run_duration_seconds",
		metric.WithDescription("Reconciliation run duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60),
	)
	if err != nil {
		return nil, err
	}

	scannedTotal, err := meter.Int64Counter(
		"soundlab_reconcile_scanned_total",
		metric.WithDescription("Total number of asset records examined"),
		metric.WithUnit("{asset}"),
	)
	if err != nil {
		return nil, err
	}

	deletedTotal, err := meter.Int64Counter(
		"soundlab_reconcile_deleted_total",
		metric.WithDescription("Total number of records deleted for lying outside every import root"),
		metric.WithUnit("{asset}"),
	)
	if err != nil {
		return nil, err
	}

	missingDeletedTotal, err := meter.Int64Counter(
		"soundlab_reconcile_missing_deleted_total",
		metric.WithDescription("Total number of records deleted because their file no longer exists"),
		metric.WithUnit("{asset}"),
	)
	if err != nil {
		return nil, err
	}

	errorsTotal, err := meter.Int64Counter(
		"soundlab_reconcile_errors_total",
		metric.WithDescription("Total number of reconciliation errors"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return nil, err
	}

	lastRunTimestamp, err := meter.Float64Gauge(
		"soundlab_reconcile_last_run_timestamp_seconds",
		metric.WithDescription("Unix timestamp of last reconciliation run"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	lastRunSuccess, err := meter.Float64Gauge(
		"soundlab_reconcile_last_run_success",
		metric.WithDescription("Whether last reconciliation run was successful (1=success, 0=failure)"),
		metric.WithUnit("{status}"),
	)
	if err != nil {
		return nil, err
	}

	return &Metrics{
		runsTotal:           runsTotal,
		runDuration:         runDuration,
		scannedTotal:        scannedTotal,
		deletedTotal:        deletedTotal,
		missingDeletedTotal: missingDeletedTotal,
		errorsTotal:         errorsTotal,
		lastRunTimestamp:    lastRunTimestamp,
		lastRunSuccess:      lastRunSuccess,
	}, nil
}
