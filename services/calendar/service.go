package calendar

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"
	"time"

	"cinegenio/internal/docstore"
	"cinegenio/models"
)

const collection = "myCalendar"

// DefaultMaxDays bounds how far ahead List looks when no window is given.
const DefaultMaxDays = 365

var (
	// ErrInvalidItem is returned when a saved item has no id or release date.
	ErrInvalidItem = errors.New("calendar item needs an id and a release date")
	// ErrNotFound is returned when removing an item that was never saved.
	ErrNotFound = errors.New("calendar item not found")
)

// Service manages the user's personal calendar of saved radar items.
type Service struct {
	mu      sync.Mutex
	store   docstore.Store
	now     func() time.Time
	maxDays int
}

// New creates a new calendar service.
func New(store docstore.Store) *Service {
	return &Service{
		store:   store,
		now:     time.Now,
		maxDays: DefaultMaxDays,
	}
}

// SetNow replaces the time source.
func (s *Service) SetNow(now func() time.Time) {
	s.now = now
}

// Add saves item to the calendar. Saving an item twice keeps the original
// AddedAt and refreshes everything else.
func (s *Service) Add(ctx context.Context, item models.RadarItem) (*models.CalendarEntry, error) {
	if item.ExternalID <= 0 {
		return nil, ErrInvalidItem
	}
	if _, err := parseDate(item.ReleaseDate); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidItem, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	entry := models.CalendarEntry{RadarItem: item, AddedAt: s.now().UnixMilli()}
	existing, err := s.get(ctx, item.ExternalID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		entry.AddedAt = existing.AddedAt
	}
	if err := s.put(ctx, entry); err != nil {
		return nil, err
	}
	log.Printf("[calendar] saved %s %d %q (%s)", item.MediaKind, item.ExternalID, item.Title, item.ReleaseDate)
	return &entry, nil
}

// Remove deletes a saved item.
func (s *Service) Remove(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, err := s.get(ctx, id)
	if err != nil {
		return err
	}
	if existing == nil {
		return ErrNotFound
	}
	if err := s.store.Delete(ctx, collection, docstore.IntID(id)); err != nil {
		return fmt.Errorf("delete calendar item %d: %w", id, err)
	}
	return nil
}

// Contains reports whether id is on the calendar.
func (s *Service) Contains(ctx context.Context, id int64) (bool, error) {
	entry, err := s.get(ctx, id)
	return entry != nil, err
}

// List returns saved items releasing within the next days days (DefaultMaxDays
// when days <= 0), sorted by release date. Items released earlier today are
// still listed.
func (s *Service) List(ctx context.Context, days int) (*models.CalendarResponse, error) {
	if days <= 0 {
		days = s.maxDays
	}
	entries, err := s.all(ctx)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	cutoff := today.AddDate(0, 0, days)

	items := make([]models.CalendarEntry, 0, len(entries))
	for _, entry := range entries {
		releaseDate, err := parseDate(entry.ReleaseDate)
		if err != nil || releaseDate.Before(today) || releaseDate.After(cutoff) {
			continue
		}
		items = append(items, entry)
	}

	sort.Slice(items, func(i, j int) bool {
		if items[i].ReleaseDate != items[j].ReleaseDate {
			return items[i].ReleaseDate < items[j].ReleaseDate
		}
		return strings.ToLower(items[i].Title) < strings.ToLower(items[j].Title)
	})

	return &models.CalendarResponse{Items: items, Total: len(items), Days: days}, nil
}

// Sync updates saved entries that appear in a freshly persisted radar
// snapshot, so a moved release date follows the catalog. Category and
// AddedAt stay as saved.
func (s *Service) Sync(ctx context.Context, items []models.RadarItem) {
	if len(items) == 0 {
		return
	}
	byID := make(map[int64]models.RadarItem, len(items))
	for _, item := range items {
		byID[item.ExternalID] = item
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.all(ctx)
	if err != nil {
		log.Printf("[calendar] sync skipped: %v", err)
		return
	}
	updated := 0
	for _, entry := range entries {
		fresh, ok := byID[entry.ExternalID]
		if !ok || fresh.MediaKind != entry.MediaKind || fresh.ReleaseDate == "" {
			continue
		}
		if fresh.ReleaseDate == entry.ReleaseDate && fresh.PosterRef == entry.PosterRef &&
			fresh.Title == entry.Title && sameNextEpisode(fresh.NextEpisode, entry.NextEpisode) {
			continue
		}
		category := entry.Category
		entry.RadarItem = fresh
		entry.Category = category
		if err := s.put(ctx, entry); err != nil {
			log.Printf("[calendar] failed to sync item %d: %v", entry.ExternalID, err)
			continue
		}
		updated++
	}
	if updated > 0 {
		log.Printf("[calendar] synced %d saved items with the radar", updated)
	}
}

func (s *Service) get(ctx context.Context, id int64) (*models.CalendarEntry, error) {
	rec, err := s.store.Get(ctx, collection, docstore.IntID(id))
	if errors.Is(err, docstore.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load calendar item %d: %w", id, err)
	}
	var entry models.CalendarEntry
	if err := docstore.Decode(rec, &entry); err != nil {
		return nil, err
	}
	return &entry, nil
}

func (s *Service) all(ctx context.Context) ([]models.CalendarEntry, error) {
	docs, err := s.store.GetAll(ctx, collection)
	if err != nil {
		return nil, fmt.Errorf("load calendar: %w", err)
	}
	entries := make([]models.CalendarEntry, 0, len(docs))
	for _, doc := range docs {
		var entry models.CalendarEntry
		if err := docstore.Decode(doc.Record, &entry); err != nil {
			log.Printf("[calendar] skipping unreadable item %s: %v", doc.ID, err)
			continue
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func (s *Service) put(ctx context.Context, entry models.CalendarEntry) error {
	rec, err := docstore.Encode(entry)
	if err != nil {
		return err
	}
	if err := s.store.Set(ctx, collection, entry.Key(), rec); err != nil {
		return fmt.Errorf("save calendar item %d: %w", entry.ExternalID, err)
	}
	return nil
}

func sameNextEpisode(a, b *models.NextEpisode) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func parseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if len(s) >= 10 {
		if t, err := time.Parse("2006-01-02", s[:10]); err == nil {
			return t, nil
		}
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("unparseable date: %q", s)
}
