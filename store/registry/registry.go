// Package registry persists the set of active import roots. An asset is kept
// by recache only while its location lies under one of these roots.
package registry

import (
	"context"
	"fmt"

	"github.com/prodbyeagle/soundlab"
)

// Registry stores active import roots in insertion order without duplicates.
type Registry interface {
	// Add records path as an active root. Adding a known root is a no-op.
	Add(ctx context.Context, path string) error

	// Remove withdraws path and returns the roots that remain.
	// Removing an unknown root is a no-op.
	Remove(ctx context.Context, path string) ([]string, error)

	// List returns the active roots in the order they were added.
	List(ctx context.Context) ([]string, error)
}

func cleanPath(path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("empty import root")
	}
	clean, err := soundlab.CleanRoot(path)
	if err != nil {
		return "", fmt.Errorf("resolving import root %q: %w", path, err)
	}
	return clean, nil
}
