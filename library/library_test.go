package library

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/prodbyeagle/soundlab"
	"github.com/prodbyeagle/soundlab/assetcache"
	"github.com/prodbyeagle/soundlab/importer"
	"github.com/prodbyeagle/soundlab/reconcile"
	"github.com/prodbyeagle/soundlab/scan"
	"github.com/prodbyeagle/soundlab/store/assetdb"
	"github.com/prodbyeagle/soundlab/store/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testLibrary struct {
	*Library
	db    *assetdb.BoltDB
	cache *assetcache.Cache
}

func newTestLibrary(t *testing.T) *testLibrary {
	t.Helper()
	db := assetdb.NewBoltDB(assetdb.WithNoSync(true))
	require.NoError(t, db.Open(filepath.Join(t.TempDir(), "soundlab.db")))
	t.Cleanup(func() { _ = db.Close() })

	roots, err := registry.NewBolt(db.DB())
	require.NoError(t, err)

	cache := assetcache.MustNew(100)
	lib, err := New(Config{
		Repository: db,
		Cache:      cache,
		Roots:      roots,
		Importer:   importer.New(db, cache),
		Reconciler: reconcile.New(db, cache, roots, reconcile.DefaultConfig()),
	})
	require.NoError(t, err)
	return &testLibrary{Library: lib, db: db, cache: cache}
}

func writeFile(t *testing.T, dir, rel string) string {
	t.Helper()
	path := filepath.Join(dir, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(rel), 0o644))
	return path
}

func TestNew_RequiresCollaborators(t *testing.T) {
	_, err := New(Config{})
	require.Error(t, err)
}

func TestImportAsset_RegistersRoot(t *testing.T) {
	lib := newTestLibrary(t)
	ctx := context.Background()
	path := writeFile(t, t.TempDir(), "kick.wav")

	outcome, err := lib.ImportAsset(ctx, "kick", path)
	require.NoError(t, err)
	assert.Equal(t, importer.OutcomeImported, outcome)

	roots, err := lib.ListRoots(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{path}, roots)

	names, err := lib.ListNames(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"kick"}, names)
}

func TestImportAsset_DerivesNameWhenEmpty(t *testing.T) {
	lib := newTestLibrary(t)
	path := writeFile(t, t.TempDir(), "Snare 01.wav")

	_, err := lib.ImportAsset(context.Background(), "", path)
	require.NoError(t, err)

	names, err := lib.ListNames(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"Snare 01"}, names)
}

func TestImportAsset_MissingFileDoesNotRegisterRoot(t *testing.T) {
	lib := newTestLibrary(t)
	ctx := context.Background()

	outcome, err := lib.ImportAsset(ctx, "ghost", filepath.Join(t.TempDir(), "ghost.wav"))
	require.NoError(t, err)
	assert.Equal(t, importer.OutcomeMissing, outcome)

	roots, err := lib.ListRoots(ctx)
	require.NoError(t, err)
	assert.Empty(t, roots)
}

func TestImportDirectory(t *testing.T) {
	lib := newTestLibrary(t)
	ctx := context.Background()
	dir := t.TempDir()
	writeFile(t, dir, "a.wav")
	writeFile(t, dir, "sub/b.mp3")
	writeFile(t, dir, "sub/notes.txt")

	result, err := lib.ImportDirectory(ctx, dir)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Imported)

	assets, err := lib.ListAssets(ctx)
	require.NoError(t, err)
	require.Len(t, assets, 2)
	assert.Equal(t, "a", assets[0].Name)
	assert.Equal(t, "b", assets[1].Name)

	roots, err := lib.ListRoots(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{dir}, roots)
}

func TestImportDirectory_PartialWalkKeepsRoot(t *testing.T) {
	if runtime.GOOS == "windows" || os.Geteuid() == 0 {
		t.Skip("directory permissions are not enforced for this user")
	}
	lib := newTestLibrary(t)
	ctx := context.Background()
	dir := t.TempDir()
	writeFile(t, dir, "kick.wav")
	locked := filepath.Join(dir, "locked")
	require.NoError(t, os.Mkdir(locked, 0o000))
	t.Cleanup(func() { _ = os.Chmod(locked, 0o755) })

	result, err := lib.ImportDirectory(ctx, dir)
	var dirErr *scan.DirError
	require.ErrorAs(t, err, &dirErr)
	assert.Equal(t, 1, result.Imported)

	roots, err := lib.ListRoots(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{dir}, roots)

	recached, err := lib.Recache(ctx)
	require.NoError(t, err)
	assert.Zero(t, recached.Deleted)
	names, err := lib.ListNames(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"kick"}, names)
}

func TestImportDirectory_RejectsFile(t *testing.T) {
	lib := newTestLibrary(t)
	path := writeFile(t, t.TempDir(), "a.wav")

	_, err := lib.ImportDirectory(context.Background(), path)
	require.ErrorIs(t, err, soundlab.ErrNotDirectory)
}

func TestDeleteAsset_EvictsCache(t *testing.T) {
	lib := newTestLibrary(t)
	ctx := context.Background()
	path := writeFile(t, t.TempDir(), "kick.wav")
	_, err := lib.ImportAsset(ctx, "kick", path)
	require.NoError(t, err)

	assets, err := lib.ListAssets(ctx)
	require.NoError(t, err)
	require.Len(t, assets, 1)

	require.NoError(t, lib.DeleteAsset(ctx, assets[0].ID))

	_, ok := lib.cache.Get("kick")
	assert.False(t, ok)
	_, err = lib.GetAsset(ctx, assets[0].ID)
	require.ErrorIs(t, err, soundlab.ErrAssetNotFound)

	// The name can be imported again.
	outcome, err := lib.ImportAsset(ctx, "kick", path)
	require.NoError(t, err)
	assert.Equal(t, importer.OutcomeImported, outcome)

	require.ErrorIs(t, lib.DeleteAsset(ctx, 999), soundlab.ErrAssetNotFound)
}

func TestToggleFavorite_Twice(t *testing.T) {
	lib := newTestLibrary(t)
	ctx := context.Background()
	_, err := lib.ImportAsset(ctx, "kick", writeFile(t, t.TempDir(), "kick.wav"))
	require.NoError(t, err)
	assets, err := lib.ListAssets(ctx)
	require.NoError(t, err)
	id := assets[0].ID

	updated, err := lib.ToggleFavorite(ctx, id)
	require.NoError(t, err)
	assert.True(t, updated.IsFavorite)
	stored, err := lib.GetAsset(ctx, id)
	require.NoError(t, err)
	assert.True(t, stored.IsFavorite)

	updated, err = lib.ToggleFavorite(ctx, id)
	require.NoError(t, err)
	assert.False(t, updated.IsFavorite)
	stored, err = lib.GetAsset(ctx, id)
	require.NoError(t, err)
	assert.False(t, stored.IsFavorite)
}

func TestSetTags(t *testing.T) {
	lib := newTestLibrary(t)
	ctx := context.Background()
	_, err := lib.ImportAsset(ctx, "kick", writeFile(t, t.TempDir(), "kick.wav"))
	require.NoError(t, err)
	assets, err := lib.ListAssets(ctx)
	require.NoError(t, err)

	updated, err := lib.SetTags(ctx, assets[0].ID, []string{"drums", " 808 ", "drums", ""})
	require.NoError(t, err)
	assert.Equal(t, []string{"drums", "808"}, updated.Tags)

	stored, err := lib.GetAsset(ctx, assets[0].ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"drums", "808"}, stored.Tags)

	_, err = lib.SetTags(ctx, 999, nil)
	require.ErrorIs(t, err, soundlab.ErrAssetNotFound)
}

func TestRemoveRoot_ReconcilesRemainingRoots(t *testing.T) {
	lib := newTestLibrary(t)
	ctx := context.Background()
	base := t.TempDir()
	music := filepath.Join(base, "music")
	video := filepath.Join(base, "video")
	writeFile(t, music, "a.mp3")
	writeFile(t, video, "b.mp3")

	_, err := lib.ImportDirectory(ctx, music)
	require.NoError(t, err)
	_, err = lib.ImportDirectory(ctx, video)
	require.NoError(t, err)

	remaining, result, err := lib.RemoveRoot(ctx, video)
	require.NoError(t, err)
	assert.Equal(t, []string{music}, remaining)
	require.NotNil(t, result)
	assert.Equal(t, 1, result.Deleted)

	names, err := lib.ListNames(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, names)

	_, ok := lib.cache.Get("b")
	assert.False(t, ok)
	_, ok = lib.cache.Get("a")
	assert.True(t, ok)
}

func TestRecache(t *testing.T) {
	lib := newTestLibrary(t)
	ctx := context.Background()
	dir := t.TempDir()
	writeFile(t, dir, "a.wav")
	_, err := lib.ImportDirectory(ctx, dir)
	require.NoError(t, err)

	// A record written outside the registered roots.
	_, err = lib.db.Insert(ctx, &soundlab.Asset{Name: "stray", Location: filepath.FromSlash("/elsewhere/stray.wav")})
	require.NoError(t, err)

	result, err := lib.Recache(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Scanned)
	assert.Equal(t, 1, result.Deleted)

	names, err := lib.ListNames(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, names)
}
