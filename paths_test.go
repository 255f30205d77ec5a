package soundlab

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWithinRoot(t *testing.T) {
	p := filepath.FromSlash
	tests := []struct {
		name     string
		location string
		root     string
		want     bool
	}{
		{"direct child", p("/music/kick.wav"), p("/music"), true},
		{"nested", p("/music/drums/kick.wav"), p("/music"), true},
		{"trailing separator on root", p("/music/kick.wav"), p("/music/"), true},
		{"root itself", p("/music"), p("/music"), true},
		{"sibling with shared prefix", p("/music2/kick.wav"), p("/music"), false},
		{"unrelated", p("/video/clip.wav"), p("/music"), false},
		{"parent", p("/"), p("/music"), false},
		{"dotted dir name", p("/music/..hidden/kick.wav"), p("/music"), true},
		{"empty root", p("/music/kick.wav"), "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, WithinRoot(tt.location, tt.root))
		})
	}
}

func TestWithinAnyRoot(t *testing.T) {
	roots := []string{filepath.FromSlash("/music"), filepath.FromSlash("/samples")}
	assert.True(t, WithinAnyRoot(filepath.FromSlash("/samples/a.wav"), roots))
	assert.False(t, WithinAnyRoot(filepath.FromSlash("/video/a.wav"), roots))
	assert.False(t, WithinAnyRoot(filepath.FromSlash("/music/a.wav"), nil))
}
