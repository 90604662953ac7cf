package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bnema/catalogd/internal/domain"
)

func TestStore_EntryLifecycle(t *testing.T) {
	s := New()
	ctx := context.Background()

	id, err := s.AddEntry(ctx, &domain.Entry{Name: "Game", Kind: domain.StorageFilepath, Source: "/data/game.nsp"})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	got, err := s.GetEntry(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Game", got.Name)
	assert.False(t, got.CreatedAt.IsZero())

	// Callers get a copy.
	got.Name = "changed"
	again, _ := s.GetEntry(ctx, id)
	assert.Equal(t, "Game", again.Name)

	_, err = s.AddEntry(ctx, &domain.Entry{ID: id})
	assert.ErrorIs(t, err, domain.ErrEntryExists)

	require.NoError(t, s.DeleteEntry(ctx, id))
	_, err = s.GetEntry(ctx, id)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.ErrorIs(t, s.DeleteEntry(ctx, id), domain.ErrNotFound)
}

func TestStore_ListEntriesOrdered(t *testing.T) {
	s := New()
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	_, err := s.AddEntry(ctx, &domain.Entry{ID: "b", CreatedAt: base.Add(time.Hour)})
	require.NoError(t, err)
	_, err = s.AddEntry(ctx, &domain.Entry{ID: "a", CreatedAt: base})
	require.NoError(t, err)

	list, err := s.ListEntries(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "a", list[0].ID)
	assert.Equal(t, "b", list[1].ID)
}

func TestStore_DigestCache(t *testing.T) {
	s := New()
	ctx := context.Background()

	_, ok, err := s.Lookup(ctx, "42")
	require.NoError(t, err)
	assert.False(t, ok)

	entry := domain.CacheEntry{Digests: domain.Digests{MD5: "m", SHA256: "s"}, SourcePath: "/data/game.nsp", Size: 3}
	require.NoError(t, s.Store(ctx, "42", entry))

	got, ok, err := s.Lookup(ctx, "42")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, entry, got)

	require.NoError(t, s.Invalidate(ctx, "42"))
	_, ok, _ = s.Lookup(ctx, "42")
	assert.False(t, ok)
}

func TestStore_DeleteEntryDropsDigests(t *testing.T) {
	s := New()
	ctx := context.Background()

	id, err := s.AddEntry(ctx, &domain.Entry{Name: "Game"})
	require.NoError(t, err)
	require.NoError(t, s.Store(ctx, id, domain.CacheEntry{Digests: domain.Digests{MD5: "m", SHA256: "s"}}))

	require.NoError(t, s.DeleteEntry(ctx, id))
	_, ok, _ := s.Lookup(ctx, id)
	assert.False(t, ok)
}

func TestStore_ConcurrentAccess(t *testing.T) {
	s := New()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_ = s.Store(ctx, "42", domain.CacheEntry{Digests: domain.Digests{MD5: "m", SHA256: "s"}})
		}()
		go func() {
			defer wg.Done()
			_, _, _ = s.Lookup(ctx, "42")
		}()
	}
	wg.Wait()

	_, ok, _ := s.Lookup(ctx, "42")
	assert.True(t, ok)
}
