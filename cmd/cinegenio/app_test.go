package main

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cinegenio/config"
	"cinegenio/internal/docstore"
	"cinegenio/models"
)

func TestImportWatchedReplacesCollection(t *testing.T) {
	ctx := context.Background()
	store, err := docstore.NewFileStore(afero.NewMemMapFs(), "/data")
	require.NoError(t, err)
	require.NoError(t, store.Set(ctx, watchedCollection, "99", docstore.Record{"id": 99, "title": "Old"}))

	n, err := importWatched(ctx, store, strings.NewReader(`[
		{"id": 1, "mediaKind": "movie", "title": "Arrival", "rating": "loved"},
		{"id": 2, "mediaKind": "tv", "title": "Dark", "rating": "liked"},
		{"id": 2, "mediaKind": "tv", "title": "Dark again", "rating": "meh"},
		{"id": 0, "mediaKind": "movie", "title": "No id"},
		{"id": 3, "mediaKind": "book", "title": "Wrong kind"}
	]`))
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	docs, err := store.GetAll(ctx, watchedCollection)
	require.NoError(t, err)
	ids := make([]string, 0, len(docs))
	for _, doc := range docs {
		ids = append(ids, doc.ID)
	}
	assert.ElementsMatch(t, []string{"1", "2"}, ids)

	rec, err := store.Get(ctx, watchedCollection, "2")
	require.NoError(t, err)
	var item models.WatchedItem
	require.NoError(t, docstore.Decode(rec, &item))
	assert.Equal(t, models.MediaKindSeries, item.MediaKind)
	assert.Equal(t, "Dark", item.Title)
}

func TestImportWatchedRejectsBadJSON(t *testing.T) {
	store, err := docstore.NewFileStore(afero.NewMemMapFs(), "/data")
	require.NoError(t, err)
	_, err = importWatched(context.Background(), store, strings.NewReader(`{"id": 1}`))
	assert.Error(t, err)
}

func TestNewAppWithFileStore(t *testing.T) {
	cfg := config.Default()
	cfg.Storage.Driver = "file"
	cfg.Storage.Path = filepath.Join(t.TempDir(), "store")
	cfg.Storage.CacheDir = filepath.Join(t.TempDir(), "cache")

	a, err := newApp(&cfg)
	require.NoError(t, err)
	defer a.Close()

	resp, err := a.radar.Radar(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "unavailable", resp.State)

	cal, err := a.calendar.List(context.Background(), 0)
	require.NoError(t, err)
	assert.Zero(t, cal.Total)
}

func TestNewAppWithSQLite(t *testing.T) {
	cfg := config.Default()
	cfg.Storage.Path = filepath.Join(t.TempDir(), "cinegenio.db")
	cfg.Storage.CacheDir = t.TempDir()

	a, err := newApp(&cfg)
	require.NoError(t, err)
	defer a.Close()
	require.NotNil(t, a.db)

	has, err := a.radar.Radar(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "unavailable", has.State)
}

func TestOpenStoreUnknownDriver(t *testing.T) {
	_, _, err := openStore(config.StorageConfig{Driver: "postgres", Path: "x"})
	assert.Error(t, err)
}

func TestRootCmdHasSubcommands(t *testing.T) {
	cmd := rootCmd()
	names := map[string]bool{}
	for _, sub := range cmd.Commands() {
		names[sub.Name()] = true
	}
	for _, want := range []string{"serve", "refresh", "migrate", "import-watched", "version"} {
		assert.True(t, names[want], "missing subcommand %s", want)
	}
}
