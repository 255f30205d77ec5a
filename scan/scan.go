// Package scan discovers audio files beneath a directory.
package scan

import (
	"context"
	"fmt"
	"io/fs"
	"iter"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/prodbyeagle/soundlab"
	"github.com/prodbyeagle/soundlab/telemetry"
)

// DefaultExtensions are the audio file extensions accepted by default.
var DefaultExtensions = []string{".mp3", ".wav", ".flac", ".ogg", ".oga", ".m4a", ".aac", ".aif", ".aiff", ".opus"}

// DirError reports a directory that could not be listed. It ends the scan.
type DirError struct {
	Path string
	Err  error
}

func (e *DirError) Error() string {
	return fmt.Sprintf("reading directory %s: %v", e.Path, e.Err)
}

func (e *DirError) Unwrap() error {
	return e.Err
}

// Scanner walks directory trees and yields matching audio files.
type Scanner struct {
	extensions     map[string]struct{}
	followSymlinks bool
	logger         *slog.Logger
}

// Option configures a Scanner.
type Option func(*Scanner)

// WithExtensions replaces the accepted extension list. Matching is
// case-insensitive and the leading dot is optional.
func WithExtensions(exts ...string) Option {
	return func(s *Scanner) {
		s.extensions = make(map[string]struct{}, len(exts))
		for _, ext := range exts {
			ext = strings.ToLower(strings.TrimSpace(ext))
			if ext == "" {
				continue
			}
			if !strings.HasPrefix(ext, ".") {
				ext = "." + ext
			}
			s.extensions[ext] = struct{}{}
		}
	}
}

// WithFollowSymlinks makes the scanner descend into symlinked directories.
// Each resolved directory is visited at most once.
func WithFollowSymlinks(follow bool) Option {
	return func(s *Scanner) {
		s.followSymlinks = follow
	}
}

// WithLogger sets the logger for the scanner.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Scanner) {
		s.logger = logger
	}
}

// New creates a Scanner.
func New(opts ...Option) *Scanner {
	s := &Scanner{logger: slog.Default()}
	WithExtensions(DefaultExtensions...)(s)
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Matches reports whether path has an accepted extension.
func (s *Scanner) Matches(path string) bool {
	_, ok := s.extensions[strings.ToLower(filepath.Ext(path))]
	return ok
}

// Scan returns a lazy sequence of the matching files beneath root. Every
// range over the sequence performs a fresh walk. A directory that cannot be
// listed yields a *DirError and ends the sequence. Entries that cannot be
// inspected are skipped.
func (s *Scanner) Scan(ctx context.Context, root string) iter.Seq2[soundlab.Candidate, error] {
	return func(yield func(soundlab.Candidate, error) bool) {
		err := s.walk(ctx, root, nil, func(path string) bool {
			return yield(soundlab.CandidateFromPath(path), nil)
		})
		if err != nil {
			yield(soundlab.Candidate{}, err)
		}
	}
}

// Dirs returns a lazy sequence of root and every directory beneath it.
func (s *Scanner) Dirs(ctx context.Context, root string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		err := s.walk(ctx, root, func(dir string) bool {
			return yield(dir, nil)
		}, nil)
		if err != nil {
			yield("", err)
		}
	}
}

// Collect runs Scan to completion and returns every candidate found.
func (s *Scanner) Collect(ctx context.Context, root string) ([]soundlab.Candidate, error) {
	var out []soundlab.Candidate
	for c, err := range s.Scan(ctx, root) {
		if err != nil {
			return out, err
		}
		out = append(out, c)
	}
	return out, nil
}

// walk visits root depth-first using an explicit stack. It stops early and
// returns nil when a visitor returns false.
func (s *Scanner) walk(ctx context.Context, root string, onDir, onFile func(string) bool) error {
	stack := []string{root}
	visited := map[string]struct{}{}

	for len(stack) > 0 {
		if err := ctx.Err(); err != nil {
			return err
		}

		dir := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if s.followSymlinks {
			resolved, err := filepath.EvalSymlinks(dir)
			if err == nil {
				if _, seen := visited[resolved]; seen {
					continue
				}
				visited[resolved] = struct{}{}
			}
		}

		entries, err := os.ReadDir(dir)
		if err != nil {
			telemetry.RecordScanError(ctx)
			return &DirError{Path: dir, Err: err}
		}
		if onDir != nil && !onDir(dir) {
			return nil
		}

		// Push in reverse so that subdirectories are visited in name order.
		var subdirs []string
		for _, entry := range entries {
			path := filepath.Join(dir, entry.Name())
			mode, ok := s.entryType(path, entry)
			if !ok {
				continue
			}
			switch {
			case mode.IsDir():
				subdirs = append(subdirs, path)
			case mode.IsRegular() && s.Matches(path):
				if onFile != nil && !onFile(path) {
					return nil
				}
			}
		}
		for i := len(subdirs) - 1; i >= 0; i-- {
			stack = append(stack, subdirs[i])
		}
	}
	return nil
}

// entryType resolves the type of a directory entry. Symlinks to files are
// always followed. Symlinks to directories are followed only when enabled.
func (s *Scanner) entryType(path string, entry fs.DirEntry) (fs.FileMode, bool) {
	mode := entry.Type()
	if mode&fs.ModeSymlink == 0 {
		return mode, true
	}

	info, err := os.Stat(path)
	if err != nil {
		s.logger.Debug("skipping unresolvable entry", "path", path, "error", err)
		return 0, false
	}
	if info.IsDir() && !s.followSymlinks {
		s.logger.Debug("skipping symlinked directory", "path", path)
		return 0, false
	}
	return info.Mode(), true
}
