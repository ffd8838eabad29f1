package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"

	"github.com/goccy/go-json"
	"github.com/spf13/afero"

	"cinegenio/config"
	"cinegenio/internal/database"
	"cinegenio/internal/docstore"
	"cinegenio/internal/fetchqueue"
	"cinegenio/internal/metrics"
	"cinegenio/models"
	"cinegenio/services/calendar"
	"cinegenio/services/catalog"
	"cinegenio/services/radar"
	"cinegenio/services/recommend"
)

const watchedCollection = "watchedItems"

// app holds every long-lived component built from the configuration.
type app struct {
	cfg      *config.Config
	store    docstore.Store
	db       *database.DB
	queue    *fetchqueue.Queue
	catalog  *catalog.Client
	radar    *radar.Service
	calendar *calendar.Service
}

func openStore(cfg config.StorageConfig) (docstore.Store, *database.DB, error) {
	switch cfg.Driver {
	case "file":
		store, err := docstore.NewFileStore(afero.NewOsFs(), cfg.Path)
		if err != nil {
			return nil, nil, fmt.Errorf("open file store: %w", err)
		}
		return store, nil, nil
	case "sqlite":
		db, err := database.NewDB(database.Config{DatabasePath: cfg.Path})
		if err != nil {
			return nil, nil, err
		}
		return db.Repository, db, nil
	default:
		return nil, nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}

func newApp(cfg *config.Config) (*app, error) {
	store, db, err := openStore(cfg.Storage)
	if err != nil {
		return nil, err
	}

	queue := fetchqueue.New(cfg.TMDB.RequestDelay,
		fetchqueue.WithWaitObserver(metrics.ObserveQueueWait),
		fetchqueue.WithLogger(slog.Default().With("component", "fetchqueue")),
	)

	client := catalog.NewClient(catalog.Config{
		APIKey:           cfg.TMDB.APIKey,
		Language:         cfg.TMDB.Language,
		FallbackLanguage: cfg.TMDB.FallbackLanguage,
		Region:           cfg.TMDB.Region,
		BaseURL:          cfg.TMDB.BaseURL,
		ImageBaseURL:     cfg.TMDB.ImageBaseURL,
		CacheDir:         cfg.Storage.CacheDir,
		CacheTTL:         cfg.TMDB.CacheTTL,
	}, queue, nil, afero.NewOsFs())

	oracle := recommend.New(recommend.Config{
		APIKey:  cfg.Oracle.APIKey,
		Model:   cfg.Oracle.Model,
		BaseURL: cfg.Oracle.BaseURL,
		Timeout: cfg.Oracle.Timeout,
	})

	clock := radar.NewClock(store, cfg.Radar.FrequentIntervalDays, cfg.Radar.CuratedIntervalDays)
	curator := radar.NewCurator(oracle, cfg.Oracle.Timeout, cfg.Oracle.MaxSelections)
	radarSvc := radar.NewService(store, clock, client, curator, radar.Config{
		ProviderIDs:    cfg.TMDB.ProviderIDs,
		Pages:          cfg.TMDB.Pages,
		MaxConcurrency: cfg.Radar.MaxConcurrency,
	})

	calendarSvc := calendar.New(store)
	radarSvc.OnPersisted(calendarSvc.Sync)

	return &app{
		cfg:      cfg,
		store:    store,
		db:       db,
		queue:    queue,
		catalog:  client,
		radar:    radarSvc,
		calendar: calendarSvc,
	}, nil
}

func (a *app) Close() {
	a.radar.Stop()
	a.queue.Close()
	if err := a.store.Close(); err != nil {
		log.Printf("[app] failed to close store: %v", err)
	}
	if err := a.db.Close(); err != nil {
		log.Printf("[app] failed to close database: %v", err)
	}
}

// importWatched replaces the watched collection with the items in r, a JSON
// array of watched titles.
func importWatched(ctx context.Context, store docstore.Store, r io.Reader) (int, error) {
	var items []models.WatchedItem
	if err := json.NewDecoder(r).Decode(&items); err != nil {
		return 0, fmt.Errorf("decode watched items: %w", err)
	}

	existing, err := store.GetAll(ctx, watchedCollection)
	if err != nil {
		return 0, fmt.Errorf("load watched items: %w", err)
	}
	deletes := make([]docstore.Key, 0, len(existing))
	for _, doc := range existing {
		deletes = append(deletes, docstore.Key{Collection: watchedCollection, ID: doc.ID})
	}

	seen := make(map[int64]bool, len(items))
	writes := make([]docstore.Write, 0, len(items))
	for _, item := range items {
		kind, ok := models.ParseMediaKind(string(item.MediaKind))
		if item.ID <= 0 || !ok || seen[item.ID] {
			log.Printf("[import] skipping watched item %d %q", item.ID, item.Title)
			continue
		}
		seen[item.ID] = true
		item.MediaKind = kind
		rec, err := docstore.Encode(item)
		if err != nil {
			return 0, err
		}
		writes = append(writes, docstore.Write{Collection: watchedCollection, ID: docstore.IntID(item.ID), Record: rec})
	}

	if err := store.AtomicBatch(ctx, deletes, writes); err != nil {
		return 0, fmt.Errorf("replace watched items: %w", err)
	}
	return len(writes), nil
}

func openInput(path string) (io.ReadCloser, error) {
	if path == "-" {
		return io.NopCloser(os.Stdin), nil
	}
	return os.Open(path)
}
