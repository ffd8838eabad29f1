package radar

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mozillazg/go-unidecode"
	"github.com/sourcegraph/conc/pool"

	"cinegenio/internal/docstore"
	"cinegenio/internal/metrics"
	"cinegenio/models"
	"cinegenio/services/catalog"
)

const watchedCollection = "watchedItems"

// Refresh cycle states.
const (
	StateIdle              = "idle"
	StateCheckingStaleness = "checking_staleness"
	StateFetching          = "fetching"
	StateNormalizing       = "normalizing"
	StateMerging           = "merging"
	StatePersisting        = "persisting"
	StateUpdatingClocks    = "updating_clocks"
	StateStopped           = "stopped"
)

// CatalogSource lists catalog titles by category.
type CatalogSource interface {
	ListByCategory(ctx context.Context, category models.Category, params catalog.ListParams) ([]models.RadarItem, error)
}

// Config tunes which categories a refresh covers.
type Config struct {
	ProviderIDs    []int // one top_provider_<N> category per id
	Pages          int   // catalog pages per category
	MaxConcurrency int   // concurrent category fetches
}

// RefreshResult summarizes one refresh invocation.
type RefreshResult struct {
	Generation string                     `json:"generation,omitempty"`
	Skipped    bool                       `json:"skipped"`
	Due        []models.Category          `json:"due"`
	Refreshed  []models.Category          `json:"refreshed"`
	Failed     map[models.Category]string `json:"failed,omitempty"`
	ItemCount  int                        `json:"itemCount"`
	Duration   time.Duration              `json:"duration"`
}

// Degraded reports whether some due category was skipped.
func (r *RefreshResult) Degraded() bool {
	return len(r.Failed) > 0
}

// Service runs radar refresh cycles and serves the persisted snapshot.
type Service struct {
	store   docstore.Store
	repo    *Repository
	clock   *Clock
	catalog CatalogSource
	curator *Curator
	cfg     Config
	now     func() time.Time

	onPersisted func(ctx context.Context, items []models.RadarItem)

	// refreshMu serializes refresh cycles within this process.
	refreshMu sync.Mutex

	statusMu      sync.RWMutex
	running       bool
	state         string
	lastRefreshAt time.Time
	lastRefreshMs int64
	nextRefreshAt time.Time
	lastError     string
	lastFailed    bool
	lastResult    *RefreshResult

	refreshInterval time.Duration
	stopCh          chan struct{}
	refreshNow      chan struct{}
	done            chan struct{}
}

// NewService wires a radar service.
func NewService(store docstore.Store, clock *Clock, source CatalogSource, curator *Curator, cfg Config) *Service {
	if cfg.Pages <= 0 {
		cfg.Pages = 1
	}
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = 4
	}
	return &Service{
		store:   store,
		repo:    NewRepository(store),
		clock:   clock,
		catalog: source,
		curator: curator,
		cfg:     cfg,
		now:     time.Now,
		state:   StateIdle,
	}
}

// SetNow replaces the time source of the service and its clock.
func (s *Service) SetNow(now func() time.Time) {
	s.now = now
	s.clock.SetNow(now)
}

// OnPersisted registers fn to run with the new snapshot after every
// successful persist.
func (s *Service) OnPersisted(fn func(ctx context.Context, items []models.RadarItem)) {
	s.onPersisted = fn
}

// Categories returns every category a refresh covers, in merge order.
func (s *Service) Categories() []models.Category {
	categories := append([]models.Category(nil), mergeOrder...)
	seen := make(map[int]bool)
	for _, id := range s.cfg.ProviderIDs {
		if id <= 0 || seen[id] {
			continue
		}
		seen[id] = true
		categories = append(categories, models.TopProviderCategory(id))
	}
	categories = append(categories, models.CategoryRelevant)
	return InsertionOrder(categories)
}

func (s *Service) setState(state string) {
	s.statusMu.Lock()
	s.state = state
	s.statusMu.Unlock()
}

// Refresh runs one refresh cycle. Only due categories are fetched; a category
// that fails is left out of the merge and keeps its previous items and clock.
// A failed persist aborts the cycle with a PersistenceError and leaves the
// previous snapshot in place.
func (s *Service) Refresh(ctx context.Context) (*RefreshResult, error) {
	s.refreshMu.Lock()
	defer s.refreshMu.Unlock()

	start := time.Now()
	result, err := s.refresh(ctx)
	elapsed := time.Since(start)
	if result != nil {
		result.Duration = elapsed
	}
	s.setState(StateIdle)

	s.statusMu.Lock()
	s.lastRefreshAt = s.now()
	s.lastRefreshMs = elapsed.Milliseconds()
	s.lastResult = result
	switch {
	case err != nil:
		s.lastError = err.Error()
		s.lastFailed = true
	case result.Degraded():
		s.lastError = summarizeFailures(result.Failed)
		s.lastFailed = false
	default:
		s.lastError = ""
		s.lastFailed = false
	}
	s.statusMu.Unlock()

	switch {
	case err != nil:
		metrics.RecordRefresh("failed", elapsed)
	case result.Skipped:
		metrics.RecordRefresh("skipped", 0)
	case result.Degraded():
		metrics.RecordRefresh("degraded", elapsed)
	default:
		metrics.RecordRefresh("ok", elapsed)
	}
	return result, err
}

func (s *Service) refresh(ctx context.Context) (*RefreshResult, error) {
	s.setState(StateCheckingStaleness)
	due, err := s.clock.Due(ctx, s.Categories())
	if err != nil {
		return nil, fmt.Errorf("check staleness: %w", err)
	}
	result := &RefreshResult{Due: due, Failed: make(map[models.Category]string)}
	if len(due) == 0 {
		result.Skipped = true
		log.Printf("[radar] nothing due, skipping refresh")
		return result, nil
	}
	log.Printf("[radar] refreshing %d due categories: %v", len(due), due)

	s.setState(StateFetching)
	fresh, failures := s.fetch(ctx, due)
	for category, ferr := range failures {
		result.Failed[category] = ferr.Error()
		log.Printf("[radar] degraded: %v", &CategoryError{Category: category, Err: ferr})
	}

	// Candidate lists loaded for relevant are merged too, so the picks replace
	// their entries instead of colliding with a pass-through copy.
	s.setState(StateNormalizing)
	refreshed := make([]models.Category, 0, len(fresh))
	for _, category := range s.Categories() {
		items, ok := fresh[category]
		if !ok {
			continue
		}
		fresh[category] = normalizeCategory(category, items)
		refreshed = append(refreshed, category)
	}
	result.Refreshed = refreshed
	if len(refreshed) == 0 {
		return result, fmt.Errorf("all %d due categories failed", len(due))
	}

	s.setState(StateMerging)
	previous, err := s.repo.Items(ctx)
	if err != nil {
		return result, &PersistenceError{Op: "load", Err: err}
	}
	previous = dropRetired(previous, s.Categories())
	merged := Merge(previous, fresh, InsertionOrder(refreshed))

	s.setState(StatePersisting)
	generation := uuid.NewString()
	at := s.now()
	meta, err := s.repo.ReplaceAll(ctx, merged, generation, at)
	if err != nil {
		log.Printf("[radar] persist failed, keeping previous snapshot: %v", err)
		return result, err
	}
	result.Generation = generation
	result.ItemCount = meta.ItemCount
	metrics.ItemsPersisted.Set(float64(meta.ItemCount))
	if s.onPersisted != nil {
		s.onPersisted(ctx, merged)
	}

	s.setState(StateUpdatingClocks)
	for _, family := range completedFamilies(due, failures) {
		if err := s.clock.markFamily(ctx, family, at); err != nil {
			log.Printf("[radar] failed to update %s clock: %v", family, err)
		}
	}

	log.Printf("[radar] refresh %s persisted %d items (%d refreshed, %d failed)",
		generation, meta.ItemCount, len(refreshed), len(failures))
	return result, nil
}

// fetch loads every due category concurrently; the fetch queue behind the
// catalog imposes the actual request order. The relevant category runs after
// the lists so it can reuse fetched candidates.
func (s *Service) fetch(ctx context.Context, due []models.Category) (map[models.Category][]models.RadarItem, map[models.Category]error) {
	fresh := make(map[models.Category][]models.RadarItem, len(due))
	failures := make(map[models.Category]error)
	var mu sync.Mutex

	record := func(category models.Category, items []models.RadarItem, err error) {
		metrics.RecordCategoryFetch(string(category), err)
		mu.Lock()
		defer mu.Unlock()
		if err != nil {
			failures[category] = err
			return
		}
		fresh[category] = items
	}

	wantRelevant := false
	workers := pool.New().WithMaxGoroutines(s.cfg.MaxConcurrency)
	for _, category := range due {
		if category == models.CategoryRelevant {
			wantRelevant = true
			continue
		}
		workers.Go(func() {
			items, err := s.catalog.ListByCategory(ctx, category, catalog.ListParams{Pages: s.cfg.Pages})
			record(category, items, err)
		})
	}
	workers.Wait()

	if wantRelevant {
		items, sources, err := s.fetchRelevant(ctx, fresh)
		record(models.CategoryRelevant, items, err)
		if err == nil {
			for category, list := range sources {
				fresh[category] = list
			}
		}
	}
	return fresh, failures
}

// fetchRelevant gathers upcoming and on-the-air candidates, drops titles the
// user already watched, and lets the curator pick. Candidate lists it had to
// load itself are returned in sources so the caller can merge them along with
// the picks.
func (s *Service) fetchRelevant(ctx context.Context, fetched map[models.Category][]models.RadarItem) ([]models.RadarItem, map[models.Category][]models.RadarItem, error) {
	profile, err := s.loadTasteProfile(ctx)
	if err != nil {
		return nil, nil, err
	}

	sources := make(map[models.Category][]models.RadarItem)
	var candidates []models.RadarItem
	for _, source := range []models.Category{models.CategoryUpcoming, models.CategoryOnTheAir} {
		items, ok := fetched[source]
		if !ok {
			items, err = s.catalog.ListByCategory(ctx, source, catalog.ListParams{Pages: s.cfg.Pages})
			if err != nil {
				return nil, nil, fmt.Errorf("load %s candidates: %w", source, err)
			}
			sources[source] = items
		}
		candidates = append(candidates, items...)
	}
	candidates = FilterCandidates(candidates, profile)
	picks, err := s.curator.SelectRelevant(ctx, candidates, profile)
	if err != nil {
		return nil, nil, err
	}
	return picks, sources, nil
}

func (s *Service) loadTasteProfile(ctx context.Context) (models.TasteProfile, error) {
	docs, err := s.store.GetAll(ctx, watchedCollection)
	if err != nil {
		return models.TasteProfile{}, fmt.Errorf("load watched items: %w", err)
	}
	watched := make([]models.WatchedItem, 0, len(docs))
	for _, doc := range docs {
		var item models.WatchedItem
		if err := docstore.Decode(doc.Record, &item); err != nil {
			log.Printf("[radar] skipping unreadable watched item %s: %v", doc.ID, err)
			continue
		}
		watched = append(watched, item)
	}
	return models.NewTasteProfile(watched), nil
}

// FilterCandidates keeps dated, unique candidates the user has not watched.
// Watched titles match by id and kind, or by accent-folded title.
func FilterCandidates(candidates []models.RadarItem, profile models.TasteProfile) []models.RadarItem {
	type key struct {
		id   int64
		kind models.MediaKind
	}
	watchedIDs := make(map[key]bool)
	watchedTitles := make(map[string]bool)
	for _, w := range profile.All() {
		if w.ID > 0 {
			watchedIDs[key{w.ID, w.MediaKind}] = true
		}
		if t := foldTitle(w.Title); t != "" {
			watchedTitles[t] = true
		}
	}

	filtered := make([]models.RadarItem, 0, len(candidates))
	seen := make(map[key]bool, len(candidates))
	for _, item := range candidates {
		k := key{item.ExternalID, item.MediaKind}
		if item.ReleaseDate == "" || seen[k] || watchedIDs[k] || watchedTitles[foldTitle(item.Title)] {
			continue
		}
		seen[k] = true
		filtered = append(filtered, item)
	}
	return filtered
}

// foldTitle lowercases, strips accents and drops a trailing " (YYYY)".
func foldTitle(title string) string {
	title = strings.TrimSpace(title)
	if n := len(title); n > 7 && title[n-1] == ')' && title[n-7] == ' ' && title[n-6] == '(' {
		if models.ParseYear(title[n-5:n-1]+"-01-01") > 0 {
			title = title[:n-7]
		}
	}
	return strings.ToLower(strings.TrimSpace(unidecode.Unidecode(title)))
}

func normalizeCategory(category models.Category, items []models.RadarItem) []models.RadarItem {
	kept := make([]models.RadarItem, 0, len(items))
	dropped := 0
	for _, item := range items {
		if item.ReleaseDate == "" || item.ExternalID <= 0 {
			dropped++
			continue
		}
		item.Category = category
		kept = append(kept, item)
	}
	if dropped > 0 {
		log.Printf("[radar] %s: dropped %d items without release date", category, dropped)
	}
	return kept
}

// dropRetired removes items of categories no longer covered, such as a
// provider list whose id left the configuration.
func dropRetired(items []models.RadarItem, active []models.Category) []models.RadarItem {
	covered := make(map[models.Category]bool, len(active))
	for _, category := range active {
		covered[category] = true
	}
	kept := items[:0:0]
	retired := make(map[models.Category]int)
	for _, item := range items {
		if !covered[item.Category] {
			retired[item.Category]++
			continue
		}
		kept = append(kept, item)
	}
	for category, n := range retired {
		log.Printf("[radar] dropping %d items of retired category %s", n, category)
	}
	return kept
}

// completedFamilies returns the families whose due categories all succeeded.
func completedFamilies(due []models.Category, failures map[models.Category]error) []models.CategoryFamily {
	ok := make(map[models.CategoryFamily]bool)
	var order []models.CategoryFamily
	for _, category := range due {
		family := category.Family()
		if _, seen := ok[family]; !seen {
			ok[family] = true
			order = append(order, family)
		}
		if _, failed := failures[category]; failed {
			ok[family] = false
		}
	}
	families := make([]models.CategoryFamily, 0, len(order))
	for _, family := range order {
		if ok[family] {
			families = append(families, family)
		}
	}
	return families
}

func summarizeFailures(failed map[models.Category]string) string {
	parts := make([]string, 0, len(failed))
	for category, msg := range failed {
		parts = append(parts, fmt.Sprintf("%s: %s", category, msg))
	}
	sort.Strings(parts)
	return "degraded: " + strings.Join(parts, "; ")
}

// Radar returns the visible snapshot sorted by release date. Without any
// snapshot the state is "unavailable"; a snapshot kept after a failed refresh
// is "stale".
func (s *Service) Radar(ctx context.Context) (*models.RadarResponse, error) {
	s.statusMu.RLock()
	lastError := s.lastError
	lastFailed := s.lastFailed
	s.statusMu.RUnlock()

	meta, err := s.repo.Snapshot(ctx)
	if errors.Is(err, ErrNoSnapshot) {
		return &models.RadarResponse{
			State:      "unavailable",
			Items:      []models.RadarItem{},
			ByCategory: map[models.Category][]models.RadarItem{},
			LastError:  lastError,
		}, nil
	}
	if err != nil {
		return nil, err
	}

	items, err := s.repo.Items(ctx)
	if err != nil {
		return nil, err
	}
	SortByReleaseDate(items)

	state := "ok"
	if lastFailed {
		state = "stale"
	}
	return &models.RadarResponse{
		State:       state,
		Items:       items,
		ByCategory:  GroupByCategory(items),
		Total:       len(items),
		Generation:  meta.Generation,
		RefreshedAt: meta.WrittenAt.UTC().Format(time.RFC3339),
		LastError:   lastError,
	}, nil
}
