package radar

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cinegenio/internal/docstore"
	"cinegenio/models"
)

// failingStore fails AtomicBatch while fail is set.
type failingStore struct {
	docstore.Store
	fail bool
}

func (s *failingStore) AtomicBatch(ctx context.Context, deletes []docstore.Key, writes []docstore.Write) error {
	if s.fail {
		return errors.New("disk full")
	}
	return s.Store.AtomicBatch(ctx, deletes, writes)
}

func TestReplaceAllSwapsWholeCollection(t *testing.T) {
	ctx := context.Background()
	repo := NewRepository(newTestStore(t))
	at := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	_, err := repo.ReplaceAll(ctx, []models.RadarItem{
		item(1, models.CategoryTrending, "2025-01-01"),
		item(2, models.CategoryTrending, "2025-01-02"),
	}, "gen-1", at)
	require.NoError(t, err)

	meta, err := repo.ReplaceAll(ctx, []models.RadarItem{
		item(3, models.CategoryUpcoming, "2025-02-01"),
		item(4, models.CategoryUpcoming, ""),
	}, "gen-2", at.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, meta.ItemCount)

	items, err := repo.Items(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int64{3}, sortedIDs(items))

	snapshot, err := repo.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, "gen-2", snapshot.Generation)
	assert.Equal(t, map[models.Category]int{models.CategoryUpcoming: 1}, snapshot.Categories)
}

func TestReplaceAllStripsEmptyFields(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	repo := NewRepository(store)

	_, err := repo.ReplaceAll(ctx, []models.RadarItem{item(10, models.CategoryTrending, "2025-01-01")}, "gen", time.Now())
	require.NoError(t, err)

	rec, err := store.Get(ctx, itemsCollection, "10")
	require.NoError(t, err)
	assert.NotContains(t, rec, "posterRef")
	assert.NotContains(t, rec, "providerId")
	assert.NotContains(t, rec, "nextEpisode")
	assert.Equal(t, "2025-01-01", rec["releaseDate"])
	assert.NoError(t, docstore.Validate(rec))
}

func TestReplaceAllFailureKeepsPreviousSnapshot(t *testing.T) {
	ctx := context.Background()
	store := &failingStore{Store: newTestStore(t)}
	repo := NewRepository(store)

	_, err := repo.ReplaceAll(ctx, []models.RadarItem{item(1, models.CategoryTrending, "2025-01-01")}, "gen-1", time.Now())
	require.NoError(t, err)

	store.fail = true
	_, err = repo.ReplaceAll(ctx, []models.RadarItem{item(2, models.CategoryTrending, "2025-01-01")}, "gen-2", time.Now())
	require.Error(t, err)
	assert.True(t, IsPersistenceError(err))

	items, err := repo.Items(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int64{1}, sortedIDs(items))
	snapshot, err := repo.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, "gen-1", snapshot.Generation)
}

func TestHasSnapshot(t *testing.T) {
	ctx := context.Background()
	repo := NewRepository(newTestStore(t))

	has, err := repo.HasSnapshot(ctx)
	require.NoError(t, err)
	assert.False(t, has)
	_, err = repo.Snapshot(ctx)
	assert.ErrorIs(t, err, ErrNoSnapshot)

	_, err = repo.ReplaceAll(ctx, nil, "empty", time.Now())
	require.NoError(t, err)
	has, err = repo.HasSnapshot(ctx)
	require.NoError(t, err)
	assert.True(t, has, "an empty radar is still a snapshot")
}

func TestReplaceAllRejectsDuplicateIDs(t *testing.T) {
	repo := NewRepository(newTestStore(t))
	_, err := repo.ReplaceAll(context.Background(), []models.RadarItem{
		item(1, models.CategoryTrending, "2025-01-01"),
		item(1, models.CategoryUpcoming, "2025-01-01"),
	}, "gen", time.Now())
	assert.True(t, IsPersistenceError(err))
}
