// Package telemetry provides OpenTelemetry metrics for imports, the lookup
// cache and the root watcher.
package telemetry

import "context"

type contextKey string

// sourceKey is the context key for the component that triggered an import.
const sourceKey contextKey = "source"

// CacheResult represents the outcome of a lookup cache read.
type CacheResult string

const (
	CacheHit  CacheResult = "hit"
	CacheMiss CacheResult = "miss"
)

// Import sources.
const (
	SourceCLI     = "cli"
	SourceWatch   = "watch"
	SourceUnknown = "unknown"
)

// WithSource returns a context tagged with the component that triggered an
// import, so that goroutines fanned out from it report the same source.
func WithSource(ctx context.Context, source string) context.Context {
	return context.WithValue(ctx, sourceKey, source)
}

// SourceFromContext returns the import source stored in ctx, or SourceUnknown.
func SourceFromContext(ctx context.Context) string {
	if s, ok := ctx.Value(sourceKey).(string); ok && s != "" {
		return s
	}
	return SourceUnknown
}
