package catalog

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cinegenio/internal/fetchqueue"
	"cinegenio/models"
)

func newTestClient(t *testing.T, handler http.HandlerFunc, mutate func(*Config)) (*Client, afero.Fs) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	q := fetchqueue.New(time.Millisecond)
	t.Cleanup(q.Close)

	cfg := Config{
		APIKey:           "test-key",
		Language:         "pt-BR",
		FallbackLanguage: "en-US",
		Region:           "BR",
		BaseURL:          srv.URL,
		ImageBaseURL:     "https://img.test/w500",
		Attempts:         3,
		RetryDelay:       time.Millisecond,
	}
	if mutate != nil {
		mutate(&cfg)
	}
	fs := afero.NewMemMapFs()
	return NewClient(cfg, q, srv.Client(), fs), fs
}

func TestNormalizeLanguage(t *testing.T) {
	cases := map[string]string{
		"":        "en-US",
		"pt-BR":   "pt-BR",
		"pt_br":   "pt-BR",
		"en":      "en-US",
		"EN-gb":   "en-GB",
		"!!nope!": "en-US",
	}
	for input, want := range cases {
		assert.Equal(t, want, normalizeLanguage(input), "input %q", input)
	}
}

func TestInferKind(t *testing.T) {
	title := "Dune"
	name := "Severance"

	kind, err := tmdbResult{Title: &title}.inferKind("")
	require.NoError(t, err)
	assert.Equal(t, models.MediaKindMovie, kind)

	kind, err = tmdbResult{Name: &name}.inferKind("")
	require.NoError(t, err)
	assert.Equal(t, models.MediaKindSeries, kind)

	kind, err = tmdbResult{MediaType: "tv", Title: &title}.inferKind("")
	require.NoError(t, err)
	assert.Equal(t, models.MediaKindSeries, kind, "media_type wins over field shape")

	_, err = tmdbResult{MediaType: "person", Name: &name}.inferKind("")
	assert.ErrorIs(t, err, errUnknownKind)

	kind, err = tmdbResult{}.inferKind(models.MediaKindMovie)
	require.NoError(t, err)
	assert.Equal(t, models.MediaKindMovie, kind)
}

func TestListByCategoryNormalizesItems(t *testing.T) {
	var gotQuery string
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/trending/all/week", r.URL.Path)
		gotQuery = r.URL.RawQuery
		_, _ = w.Write([]byte(`{"page":1,"total_pages":1,"results":[
			{"id":1,"media_type":"movie","title":"Dune: Part Two","release_date":"2024-02-27","poster_path":"/dune.jpg","overview":"Paul"},
			{"id":2,"media_type":"tv","name":"Severance","first_air_date":"2022-02-18"},
			{"id":3,"media_type":"person","name":"Someone"},
			{"id":4,"title":"Untitled","release_date":""}
		]}`))
	}, nil)

	items, err := client.ListByCategory(context.Background(), models.CategoryTrending, ListParams{})
	require.NoError(t, err)
	require.Len(t, items, 3)

	assert.Contains(t, gotQuery, "api_key=test-key")
	assert.Contains(t, gotQuery, "language=pt-BR")

	assert.Equal(t, models.RadarItem{
		ExternalID:  1,
		MediaKind:   models.MediaKindMovie,
		Title:       "Dune: Part Two (2024)",
		PosterRef:   "https://img.test/w500/dune.jpg",
		ReleaseDate: "2024-02-27",
		Category:    models.CategoryTrending,
		Overview:    "Paul",
	}, items[0])
	assert.Equal(t, models.MediaKindSeries, items[1].MediaKind)
	assert.Equal(t, "Severance (2022)", items[1].Title)
	assert.Equal(t, "2022-02-18", items[1].ReleaseDate)

	// Items without a date survive the adapter.
	assert.Equal(t, int64(4), items[2].ExternalID)
	assert.Equal(t, "", items[2].ReleaseDate)
	assert.Equal(t, "Untitled", items[2].Title)
}

func TestListByCategoryPaginatesUntilTotalPages(t *testing.T) {
	var calls int32
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		assert.Equal(t, "BR", r.URL.Query().Get("region"))
		page := r.URL.Query().Get("page")
		_, _ = w.Write([]byte(`{"page":` + page + `,"total_pages":2,"results":[{"id":` + page + `0,"title":"Movie ` + page + `","release_date":"2025-01-0` + page + `"}]}`))
	}, nil)

	items, err := client.ListByCategory(context.Background(), models.CategoryNowPlaying, ListParams{Pages: 4})
	require.NoError(t, err)
	assert.Len(t, items, 2)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
	for _, item := range items {
		assert.Equal(t, models.MediaKindMovie, item.MediaKind)
		assert.Equal(t, models.CategoryNowPlaying, item.Category)
	}
}

func TestListByCategoryTopProviderUsesDiscover(t *testing.T) {
	var mu sync.Mutex
	var paths []string
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		paths = append(paths, r.URL.Path)
		mu.Unlock()
		assert.Equal(t, "8", r.URL.Query().Get("with_watch_providers"))
		assert.Equal(t, "BR", r.URL.Query().Get("watch_region"))
		if strings.HasSuffix(r.URL.Path, "/tv") {
			_, _ = w.Write([]byte(`{"total_pages":1,"results":[{"id":20,"name":"Dark","first_air_date":"2017-12-01"}]}`))
			return
		}
		_, _ = w.Write([]byte(`{"total_pages":1,"results":[{"id":10,"title":"Roma","release_date":"2018-12-14"}]}`))
	}, nil)

	items, err := client.ListByCategory(context.Background(), models.TopProviderCategory(8), ListParams{})
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, []string{"/discover/movie", "/discover/tv"}, paths)
	assert.Equal(t, 8, items[0].ProviderID)
	assert.Equal(t, models.MediaKindSeries, items[1].MediaKind)
	assert.Equal(t, models.Category("top_provider_8"), items[1].Category)
}

func TestListByCategoryRejectsRelevant(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("unexpected request %s", r.URL.Path)
	}, nil)
	_, err := client.ListByCategory(context.Background(), models.CategoryRelevant, ListParams{})
	assert.Error(t, err)
}

func TestGetRetriesTransientFailures(t *testing.T) {
	var calls int32
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch atomic.AddInt32(&calls, 1) {
		case 1:
			w.WriteHeader(http.StatusBadGateway)
		case 2:
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(http.StatusTooManyRequests)
		default:
			_, _ = w.Write([]byte(`{"total_pages":1,"results":[{"id":1,"title":"Ok"}]}`))
		}
	}, nil)

	items, err := client.ListByCategory(context.Background(), models.CategoryTopRated, ListParams{})
	require.NoError(t, err)
	assert.Len(t, items, 1)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestGetGivesUpAfterAttempts(t *testing.T) {
	var calls int32
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}, nil)

	_, err := client.ListByCategory(context.Background(), models.CategoryUpcoming, ListParams{})
	require.Error(t, err)
	assert.True(t, IsTransient(err))
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestGetDoesNotRetryClientErrors(t *testing.T) {
	var calls int32
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusUnauthorized)
	}, nil)

	_, err := client.ListByCategory(context.Background(), models.CategoryOnTheAir, ListParams{})
	require.Error(t, err)
	assert.False(t, IsTransient(err))
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestMalformedBody(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"results": "nope"`))
	}, nil)

	_, err := client.ListByCategory(context.Background(), models.CategoryTrending, ListParams{})
	require.Error(t, err)
	assert.True(t, IsMalformed(err))
}

func TestMissingAPIKey(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("unexpected request")
	}, func(cfg *Config) { cfg.APIKey = "" })

	_, err := client.ListByCategory(context.Background(), models.CategoryTrending, ListParams{})
	assert.Error(t, err)
}

func TestDetailsFallsBackToSecondaryLanguage(t *testing.T) {
	var langs []string
	var mu sync.Mutex
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/tv/1399", r.URL.Path)
		lang := r.URL.Query().Get("language")
		mu.Lock()
		langs = append(langs, lang)
		mu.Unlock()
		if lang == "pt-BR" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = w.Write([]byte(`{
			"id":1399,"name":"Game of Thrones","first_air_date":"2011-04-17",
			"status":"Ended","episode_run_time":[60],"vote_average":8.4,
			"genres":[{"name":"Drama"},{"name":""}],
			"next_episode_to_air":{"air_date":"2026-01-01","season_number":9,"episode_number":1},
			"credits":{"cast":[{"name":"Emilia Clarke","character":"Daenerys"}]},
			"watch/providers":{"results":{"BR":{"link":"https://x","flatrate":[{"provider_id":384,"provider_name":"Max"}]}}}
		}`))
	}, nil)

	details, err := client.Details(context.Background(), 1399, models.MediaKindSeries)
	require.NoError(t, err)
	assert.Equal(t, []string{"pt-BR", "en-US"}, langs)
	assert.Equal(t, "en-US", details.Language)
	assert.Equal(t, "Game of Thrones (2011)", details.Item.Title)
	assert.Equal(t, models.MediaKindSeries, details.Item.MediaKind)
	assert.Equal(t, "Ended", details.Item.Status)
	require.NotNil(t, details.Item.NextEpisode)
	assert.Equal(t, 9, details.Item.NextEpisode.Season)
	assert.Equal(t, 60, details.Runtime)
	assert.Equal(t, []string{"Drama"}, details.Genres)
	require.Len(t, details.Cast, 1)
	require.NotNil(t, details.WatchProviders)
	require.Len(t, details.WatchProviders.Flatrate, 1)
}

func TestDetailsNotFoundInBothLanguages(t *testing.T) {
	var calls int32
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusNotFound)
	}, nil)

	_, err := client.Details(context.Background(), 42, models.MediaKindMovie)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestDetailsAreCached(t *testing.T) {
	var calls int32
	client, fs := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		_, _ = w.Write([]byte(`{"id":603,"title":"The Matrix","release_date":"1999-03-30","runtime":136}`))
	}, func(cfg *Config) {
		cfg.CacheDir = "/cache"
		cfg.CacheTTL = time.Hour
	})

	first, err := client.Details(context.Background(), 603, models.MediaKindMovie)
	require.NoError(t, err)
	second, err := client.Details(context.Background(), 603, models.MediaKindMovie)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))

	entries, err := afero.ReadDir(fs, "/cache/catalog")
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	require.NoError(t, client.ClearCache())
	_, err = client.Details(context.Background(), 603, models.MediaKindMovie)
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestSearchFiltersPeopleAndCaches(t *testing.T) {
	var calls int32
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		assert.Equal(t, "/search/multi", r.URL.Path)
		assert.Equal(t, "false", r.URL.Query().Get("include_adult"))
		_, _ = w.Write([]byte(`{"results":[
			{"id":1,"media_type":"movie","title":"Amélie","release_date":"2001-04-25"},
			{"id":2,"media_type":"person","name":"Audrey Tautou"}
		]}`))
	}, func(cfg *Config) {
		cfg.CacheDir = "/cache"
		cfg.CacheTTL = time.Hour
	})

	items, err := client.Search(context.Background(), "Amélie", "")
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "Amélie (2001)", items[0].Title)

	// Accent-folded query hits the same cache entry.
	items, err = client.Search(context.Background(), "amelie", "")
	require.NoError(t, err)
	assert.Len(t, items, 1)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))

	items, err = client.Search(context.Background(), "   ", "")
	require.NoError(t, err)
	assert.Empty(t, items)
}
