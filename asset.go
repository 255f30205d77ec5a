// Package soundlab indexes local audio files into a persistent asset store
// and keeps a bounded in-memory name lookup in step with it.
package soundlab

import (
	"path/filepath"
	"strings"
	"time"
)

// Asset is a persisted record for one audio file.
type Asset struct {
	// ID is assigned by the store on insert. Zero means the asset has not been persisted.
	ID int64 `json:"id"`

	// Name is the file base name without its extension. It is unique across the store.
	Name string `json:"name"`

	// Location is the absolute path of the file.
	Location string `json:"location"`

	IsFavorite bool     `json:"is_favorite"`
	Tags       []string `json:"tags"`

	Size       int64     `json:"size,omitempty"`
	ModTime    time.Time `json:"mod_time,omitzero"`
	Checksum   Hash      `json:"checksum,omitzero"`
	ImportedAt time.Time `json:"imported_at,omitzero"`
}

// Persisted reports whether the asset has been assigned a store ID.
func (a *Asset) Persisted() bool {
	return a.ID != 0
}

// Clone returns a deep copy of the asset.
func (a *Asset) Clone() *Asset {
	c := *a
	c.Tags = append([]string{}, a.Tags...)
	return &c
}

// Candidate is a file discovered on disk that may become an Asset.
type Candidate struct {
	Name     string
	Location string
}

// CandidateFromPath derives a Candidate from a file path. The name is the
// base name with its final extension stripped.
func CandidateFromPath(path string) Candidate {
	base := filepath.Base(path)
	return Candidate{
		Name:     strings.TrimSuffix(base, filepath.Ext(base)),
		Location: path,
	}
}

// NormalizeTags trims each tag, drops empty ones and removes duplicates while
// preserving first-seen order. The result is never nil.
func NormalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	seen := make(map[string]struct{}, len(tags))
	for _, tag := range tags {
		tag = strings.TrimSpace(tag)
		if tag == "" {
			continue
		}
		if _, ok := seen[tag]; ok {
			continue
		}
		seen[tag] = struct{}{}
		out = append(out, tag)
	}
	return out
}
