package soundlab

import (
	"path/filepath"
	"strings"
)

// WithinRoot reports whether location is root itself or lies beneath it.
// Matching is done on whole path components, so "/music2/a.wav" is not
// within "/music".
func WithinRoot(location, root string) bool {
	if root == "" {
		return false
	}
	rel, err := filepath.Rel(filepath.Clean(root), filepath.Clean(location))
	if err != nil {
		return false
	}
	if rel == "." {
		return true
	}
	if filepath.IsAbs(rel) {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// WithinAnyRoot reports whether location lies beneath at least one of roots.
func WithinAnyRoot(location string, roots []string) bool {
	for _, root := range roots {
		if WithinRoot(location, root) {
			return true
		}
	}
	return false
}

// CleanRoot returns the absolute, lexically cleaned form of path.
func CleanRoot(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	return filepath.Clean(abs), nil
}
