package assetdb

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prodbyeagle/soundlab"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// runRepositoryTests exercises the behaviour every backend must share.
func runRepositoryTests(t *testing.T, newRepo func(t *testing.T) Repository) {
	ctx := context.Background()

	t.Run("Insert assigns id and Exists reports it", func(t *testing.T) {
		repo := newRepo(t)

		asset := &soundlab.Asset{Name: "kick", Location: "/music/kick.wav"}
		id, err := repo.Insert(ctx, asset)
		require.NoError(t, err)
		assert.NotZero(t, id)
		assert.Equal(t, id, asset.ID)

		ok, err := repo.Exists(ctx, "kick")
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = repo.Exists(ctx, "snare")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("Get round-trips fields", func(t *testing.T) {
		repo := newRepo(t)

		modTime := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
		asset := &soundlab.Asset{
			Name:     "pad",
			Location: "/music/pad.flac",
			Tags:     []string{"ambient", "long"},
			Size:     1024,
			ModTime:  modTime,
			Checksum: soundlab.HashBytes([]byte("pad")),
		}
		id, err := repo.Insert(ctx, asset)
		require.NoError(t, err)

		got, err := repo.Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, id, got.ID)
		assert.Equal(t, "pad", got.Name)
		assert.Equal(t, "/music/pad.flac", got.Location)
		assert.False(t, got.IsFavorite)
		assert.Equal(t, []string{"ambient", "long"}, got.Tags)
		assert.Equal(t, int64(1024), got.Size)
		assert.True(t, modTime.Equal(got.ModTime))
		assert.Equal(t, asset.Checksum, got.Checksum)
		assert.False(t, got.ImportedAt.IsZero())
	})

	t.Run("Insert with nil tags stores empty tags", func(t *testing.T) {
		repo := newRepo(t)

		id, err := repo.Insert(ctx, &soundlab.Asset{Name: "hat", Location: "/music/hat.wav"})
		require.NoError(t, err)

		got, err := repo.Get(ctx, id)
		require.NoError(t, err)
		require.NotNil(t, got.Tags)
		assert.Empty(t, got.Tags)
	})

	t.Run("Insert duplicate name returns ErrAssetExists", func(t *testing.T) {
		repo := newRepo(t)

		_, err := repo.Insert(ctx, &soundlab.Asset{Name: "kick", Location: "/music/kick.wav"})
		require.NoError(t, err)

		dup := &soundlab.Asset{Name: "kick", Location: "/samples/kick.wav"}
		_, err = repo.Insert(ctx, dup)
		require.ErrorIs(t, err, soundlab.ErrAssetExists)
		assert.Zero(t, dup.ID)

		all, err := repo.All(ctx)
		require.NoError(t, err)
		require.Len(t, all, 1)
		assert.Equal(t, "/music/kick.wav", all[0].Location)
	})

	t.Run("concurrent inserts of one name store one record", func(t *testing.T) {
		repo := newRepo(t)

		var wg sync.WaitGroup
		var inserted atomic.Int32
		for i := range 16 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := repo.Insert(ctx, &soundlab.Asset{
					Name:     "kick",
					Location: fmt.Sprintf("/dir%d/kick.wav", i),
				})
				if err == nil {
					inserted.Add(1)
					return
				}
				assert.ErrorIs(t, err, soundlab.ErrAssetExists)
			}()
		}
		wg.Wait()

		assert.EqualValues(t, 1, inserted.Load())
		all, err := repo.All(ctx)
		require.NoError(t, err)
		assert.Len(t, all, 1)
	})

	t.Run("Get unknown id returns ErrAssetNotFound", func(t *testing.T) {
		repo := newRepo(t)

		_, err := repo.Get(ctx, 42)
		require.ErrorIs(t, err, soundlab.ErrAssetNotFound)
	})

	t.Run("All returns assets in id order", func(t *testing.T) {
		repo := newRepo(t)

		for _, name := range []string{"c", "a", "b"} {
			_, err := repo.Insert(ctx, &soundlab.Asset{Name: name, Location: "/music/" + name + ".wav"})
			require.NoError(t, err)
		}

		all, err := repo.All(ctx)
		require.NoError(t, err)
		require.Len(t, all, 3)
		assert.Equal(t, "c", all[0].Name)
		assert.Equal(t, "a", all[1].Name)
		assert.Equal(t, "b", all[2].Name)
		assert.Less(t, all[0].ID, all[1].ID)
	})

	t.Run("Update persists favorite and tags", func(t *testing.T) {
		repo := newRepo(t)

		asset := &soundlab.Asset{Name: "kick", Location: "/music/kick.wav"}
		_, err := repo.Insert(ctx, asset)
		require.NoError(t, err)

		asset.IsFavorite = true
		asset.Tags = []string{"drums"}
		require.NoError(t, repo.Update(ctx, asset))

		got, err := repo.Get(ctx, asset.ID)
		require.NoError(t, err)
		assert.True(t, got.IsFavorite)
		assert.Equal(t, []string{"drums"}, got.Tags)
	})

	t.Run("Update unknown id returns ErrAssetNotFound", func(t *testing.T) {
		repo := newRepo(t)

		err := repo.Update(ctx, &soundlab.Asset{ID: 7, Name: "ghost"})
		require.ErrorIs(t, err, soundlab.ErrAssetNotFound)
	})

	t.Run("Delete frees the name", func(t *testing.T) {
		repo := newRepo(t)

		asset := &soundlab.Asset{Name: "kick", Location: "/music/kick.wav"}
		_, err := repo.Insert(ctx, asset)
		require.NoError(t, err)

		require.NoError(t, repo.Delete(ctx, asset.ID))

		ok, err := repo.Exists(ctx, "kick")
		require.NoError(t, err)
		assert.False(t, ok)

		_, err = repo.Get(ctx, asset.ID)
		require.ErrorIs(t, err, soundlab.ErrAssetNotFound)

		_, err = repo.Insert(ctx, &soundlab.Asset{Name: "kick", Location: "/samples/kick.wav"})
		require.NoError(t, err)
	})

	t.Run("Delete unknown id returns ErrAssetNotFound", func(t *testing.T) {
		repo := newRepo(t)

		require.ErrorIs(t, repo.Delete(ctx, 99), soundlab.ErrAssetNotFound)
	})
}
