package scan

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"testing"

	"github.com/prodbyeagle/soundlab"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeTree creates files (relative slash paths) beneath a temp root.
func writeTree(t *testing.T, files ...string) string {
	t.Helper()
	root := t.TempDir()
	for _, f := range files {
		path := filepath.Join(root, filepath.FromSlash(f))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))
	}
	return root
}

func names(cands []soundlab.Candidate) []string {
	out := make([]string, 0, len(cands))
	for _, c := range cands {
		out = append(out, c.Name)
	}
	sort.Strings(out)
	return out
}

func TestScan_FiltersByExtensionCaseInsensitive(t *testing.T) {
	root := writeTree(t,
		"kick.wav",
		"snare.MP3",
		"drums/hat.Wav",
		"drums/deep/tom.flac",
		"notes.txt",
		"cover.jpg",
		"noext",
	)

	got, err := New().Collect(context.Background(), root)
	require.NoError(t, err)
	assert.Equal(t, []string{"hat", "kick", "snare", "tom"}, names(got))

	for _, c := range got {
		assert.FileExists(t, c.Location)
	}
}

func TestScan_WithExtensions(t *testing.T) {
	root := writeTree(t, "a.mp3", "b.wav", "c.flac")

	got, err := New(WithExtensions("MP3", ".wav")).Collect(context.Background(), root)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, names(got))
}

func TestScan_Restartable(t *testing.T) {
	root := writeTree(t, "a.wav", "sub/b.wav")
	seq := New().Scan(context.Background(), root)

	count := func() int {
		n := 0
		for _, err := range seq {
			require.NoError(t, err)
			n++
		}
		return n
	}
	assert.Equal(t, 2, count())
	assert.Equal(t, 2, count())
}

func TestScan_StopsWhenConsumerBreaks(t *testing.T) {
	root := writeTree(t, "a.wav", "b.wav", "c.wav", "sub/d.wav")

	n := 0
	for range New().Scan(context.Background(), root) {
		n++
		if n == 2 {
			break
		}
	}
	assert.Equal(t, 2, n)
}

func TestScan_MissingRootIsFatal(t *testing.T) {
	root := filepath.Join(t.TempDir(), "does-not-exist")

	got, err := New().Collect(context.Background(), root)
	assert.Empty(t, got)

	var dirErr *DirError
	require.ErrorAs(t, err, &dirErr)
	assert.Equal(t, root, dirErr.Path)
	assert.ErrorIs(t, err, fs.ErrNotExist)
}

func TestScan_UnreadableSubdirectoryIsFatal(t *testing.T) {
	if runtime.GOOS == "windows" || os.Geteuid() == 0 {
		t.Skip("directory permissions are not enforced for this user")
	}
	root := writeTree(t, "a.wav", "locked/b.wav")
	locked := filepath.Join(root, "locked")
	require.NoError(t, os.Chmod(locked, 0o000))
	t.Cleanup(func() { _ = os.Chmod(locked, 0o755) })

	_, err := New().Collect(context.Background(), root)
	var dirErr *DirError
	require.ErrorAs(t, err, &dirErr)
	assert.Equal(t, locked, dirErr.Path)
}

func TestScan_ContextCancelled(t *testing.T) {
	root := writeTree(t, "a.wav")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New().Collect(ctx, root)
	require.True(t, errors.Is(err, context.Canceled))
}

func TestScan_Symlinks(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlinks need elevated privileges on windows")
	}
	root := writeTree(t, "real/kick.wav")
	other := writeTree(t, "linked/snare.wav")
	require.NoError(t, os.Symlink(filepath.Join(other, "linked"), filepath.Join(root, "link")))
	require.NoError(t, os.Symlink(filepath.Join(root, "real", "kick.wav"), filepath.Join(root, "alias.wav")))
	// A loop back to the root.
	require.NoError(t, os.Symlink(root, filepath.Join(root, "real", "loop")))
	require.NoError(t, os.Symlink(filepath.Join(root, "gone.wav"), filepath.Join(root, "dangling.wav")))

	t.Run("directories not followed by default", func(t *testing.T) {
		got, err := New().Collect(context.Background(), root)
		require.NoError(t, err)
		assert.Equal(t, []string{"alias", "kick"}, names(got))
	})

	t.Run("followed once each when enabled", func(t *testing.T) {
		got, err := New(WithFollowSymlinks(true)).Collect(context.Background(), root)
		require.NoError(t, err)
		assert.Equal(t, []string{"alias", "kick", "snare"}, names(got))
	})
}

func TestDirs(t *testing.T) {
	root := writeTree(t, "a/x.wav", "a/b/y.wav", "c/z.txt")

	var dirs []string
	for dir, err := range New().Dirs(context.Background(), root) {
		require.NoError(t, err)
		rel, err := filepath.Rel(root, dir)
		require.NoError(t, err)
		dirs = append(dirs, filepath.ToSlash(rel))
	}
	assert.Equal(t, []string{".", "a", "a/b", "c"}, dirs)
}

func TestMatches(t *testing.T) {
	s := New()
	assert.True(t, s.Matches("/x/Kick.WAV"))
	assert.True(t, s.Matches("/x/pad.aiff"))
	assert.False(t, s.Matches("/x/readme.md"))
	assert.False(t, s.Matches("/x/wav"))
}
