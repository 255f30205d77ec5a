package telemetry

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

// setupTestMetrics installs a Metrics instance backed by a ManualReader for testing.
func setupTestMetrics(t *testing.T) *sdkmetric.ManualReader {
	t.Helper()

	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	require.NoError(t, SetMeterProvider(mp))

	t.Cleanup(func() {
		_ = SetMeterProvider(nil)
		_ = mp.Shutdown(context.Background())
	})

	return reader
}

// collectMetrics reads all metrics from the ManualReader.
func collectMetrics(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	return rm
}

// findCounter finds a counter metric by name and returns its data points.
func findCounter(rm metricdata.ResourceMetrics, name string) []metricdata.DataPoint[int64] {
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name == name {
				if sum, ok := m.Data.(metricdata.Sum[int64]); ok {
					return sum.DataPoints
				}
			}
		}
	}
	return nil
}

// findHistogram finds a histogram metric by name and returns its data points.
func findHistogram(rm metricdata.ResourceMetrics, name string) []metricdata.HistogramDataPoint[float64] {
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name == name {
				if hist, ok := m.Data.(metricdata.Histogram[float64]); ok {
					return hist.DataPoints
				}
			}
		}
	}
	return nil
}

func findGauge(rm metricdata.ResourceMetrics, name string) []metricdata.DataPoint[int64] {
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name == name {
				if g, ok := m.Data.(metricdata.Gauge[int64]); ok {
					return g.DataPoints
				}
			}
		}
	}
	return nil
}

func hasAttr(attrs attribute.Set, key, value string) bool {
	v, ok := attrs.Value(attribute.Key(key))
	return ok && v.AsString() == value
}

func TestSetMeterProviderNilDisablesRecording(t *testing.T) {
	reader := setupTestMetrics(t)
	require.NoError(t, SetMeterProvider(nil))

	RecordCacheLookup(context.Background(), true)

	rm := collectMetrics(t, reader)
	require.Empty(t, findCounter(rm, "soundlab_cache_lookups_total"))
}

func TestRecordImport(t *testing.T) {
	reader := setupTestMetrics(t)

	ctx := WithSource(context.Background(), SourceCLI)
	RecordImport(ctx, "imported", 2*time.Millisecond, 4096)
	RecordImport(ctx, "cached", time.Microsecond, 0)

	rm := collectMetrics(t, reader)

	dps := findCounter(rm, "soundlab_imports_total")
	require.Len(t, dps, 2)
	for _, dp := range dps {
		require.EqualValues(t, 1, dp.Value)
		require.True(t, hasAttr(dp.Attributes, "source", "cli"))
	}

	bytesDps := findCounter(rm, "soundlab_import_bytes_total")
	require.Len(t, bytesDps, 1)
	require.EqualValues(t, 4096, bytesDps[0].Value)
	require.True(t, hasAttr(bytesDps[0].Attributes, "outcome", "imported"))

	histDps := findHistogram(rm, "soundlab_import_duration_seconds")
	require.Len(t, histDps, 2)
}

func TestRecordImportTree(t *testing.T) {
	reader := setupTestMetrics(t)

	RecordImportTree(context.Background(), 12, false, time.Second)
	RecordImportTree(context.Background(), 3, true, time.Second)

	rm := collectMetrics(t, reader)

	dps := findCounter(rm, "soundlab_import_tree_discovered_total")
	require.Len(t, dps, 2)
	var total int64
	for _, dp := range dps {
		total += dp.Value
		require.True(t, hasAttr(dp.Attributes, "source", SourceUnknown))
	}
	require.EqualValues(t, 15, total)
}

func TestRecordCacheMetrics(t *testing.T) {
	reader := setupTestMetrics(t)
	ctx := context.Background()

	RecordCacheLookup(ctx, true)
	RecordCacheLookup(ctx, true)
	RecordCacheLookup(ctx, false)
	RecordCacheEviction(ctx, 2)
	RecordCacheEviction(ctx, 0)
	UpdateCacheEntries(ctx, 7)

	rm := collectMetrics(t, reader)

	dps := findCounter(rm, "soundlab_cache_lookups_total")
	require.Len(t, dps, 2)
	for _, dp := range dps {
		switch {
		case hasAttr(dp.Attributes, "result", "hit"):
			require.EqualValues(t, 2, dp.Value)
		case hasAttr(dp.Attributes, "result", "miss"):
			require.EqualValues(t, 1, dp.Value)
		default:
			t.Fatalf("unexpected attributes: %v", dp.Attributes)
		}
	}

	evictions := findCounter(rm, "soundlab_cache_evictions_total")
	require.Len(t, evictions, 1)
	require.EqualValues(t, 2, evictions[0].Value)

	entries := findGauge(rm, "soundlab_cache_entries")
	require.Len(t, entries, 1)
	require.EqualValues(t, 7, entries[0].Value)
}

func TestRecordWatchAndScanEvents(t *testing.T) {
	reader := setupTestMetrics(t)
	ctx := context.Background()

	RecordWatchEvent(ctx, "create")
	RecordScanError(ctx)

	rm := collectMetrics(t, reader)

	watch := findCounter(rm, "soundlab_watch_events_total")
	require.Len(t, watch, 1)
	require.True(t, hasAttr(watch[0].Attributes, "op", "create"))

	scanErrs := findCounter(rm, "soundlab_scan_errors_total")
	require.Len(t, scanErrs, 1)
	require.EqualValues(t, 1, scanErrs[0].Value)
}

func TestRecorders_NilGlobalMetrics(t *testing.T) {
	globalMetrics = nil
	ctx := context.Background()

	// Should not panic
	RecordImport(ctx, "imported", time.Millisecond, 1)
	RecordImportTree(ctx, 1, false, time.Millisecond)
	RecordCacheLookup(ctx, true)
	RecordCacheEviction(ctx, 1)
	UpdateCacheEntries(ctx, 1)
	RecordScanError(ctx)
	RecordWatchEvent(ctx, "write")
}

func TestPrometheusHandler_NotFoundWhenDisabled(t *testing.T) {
	globalMetrics = nil

	rec := httptest.NewRecorder()
	PrometheusHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)
}
