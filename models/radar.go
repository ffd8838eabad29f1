package models

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// MediaKind distinguishes movies from series in the catalog.
type MediaKind string

const (
	MediaKindMovie  MediaKind = "movie"
	MediaKindSeries MediaKind = "series"
)

// ParseMediaKind accepts the catalog's "tv"/"movie" spelling as well as our own.
func ParseMediaKind(value string) (MediaKind, bool) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "movie", "movies", "film":
		return MediaKindMovie, true
	case "tv", "series", "show", "shows":
		return MediaKindSeries, true
	default:
		return "", false
	}
}

// CatalogPath returns the path segment TMDB uses for this kind.
func (k MediaKind) CatalogPath() string {
	if k == MediaKindSeries {
		return "tv"
	}
	return "movie"
}

// Category identifies the refresh bucket that produced a radar item.
type Category string

const (
	CategoryNowPlaying Category = "now_playing"
	CategoryTrending   Category = "trending"
	CategoryTopRated   Category = "top_rated"
	CategoryUpcoming   Category = "upcoming"
	CategoryOnTheAir   Category = "on_the_air"
	CategoryRelevant   Category = "relevant"

	topProviderPrefix = "top_provider_"
)

// TopProviderCategory returns the category for the most popular titles on a
// watch provider (e.g. 8 = Netflix).
func TopProviderCategory(providerID int) Category {
	return Category(topProviderPrefix + strconv.Itoa(providerID))
}

// ProviderID returns the watch provider of a top_provider_<N> category.
func (c Category) ProviderID() (int, bool) {
	s := string(c)
	if !strings.HasPrefix(s, topProviderPrefix) {
		return 0, false
	}
	id, err := strconv.Atoi(strings.TrimPrefix(s, topProviderPrefix))
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// Family returns the staleness family the category belongs to.
func (c Category) Family() CategoryFamily {
	if c == CategoryRelevant {
		return FamilyCurated
	}
	return FamilyFrequent
}

// CategoryFamily groups categories that share one staleness clock.
type CategoryFamily string

const (
	FamilyFrequent CategoryFamily = "frequent" // top lists, now playing, trending
	FamilyCurated  CategoryFamily = "curated"  // oracle-selected "relevant to you"
)

// NextEpisode describes the next airing of a series.
type NextEpisode struct {
	AirDate string `json:"airDate"`
	Season  int    `json:"seasonNumber"`
	Episode int    `json:"episodeNumber"`
}

// RadarItem is a catalog entry surfaced on the release radar.
type RadarItem struct {
	ExternalID  int64        `json:"id"`
	MediaKind   MediaKind    `json:"mediaKind"`
	Title       string       `json:"title"`
	PosterRef   string       `json:"posterRef,omitempty"`
	ReleaseDate string       `json:"releaseDate"` // YYYY-MM-DD
	Category    Category     `json:"category"`
	ProviderID  int          `json:"providerId,omitempty"` // only for top_provider_<N>
	Overview    string       `json:"overview,omitempty"`
	Popularity  float64      `json:"popularity,omitempty"`
	Status      string       `json:"status,omitempty"` // e.g. "Returning Series"
	NextEpisode *NextEpisode `json:"nextEpisode,omitempty"`
}

// Key is the storage key of the item.
func (i RadarItem) Key() string {
	return strconv.FormatInt(i.ExternalID, 10)
}

// ReleaseYear parses the year out of ReleaseDate, 0 when unknown.
func (i RadarItem) ReleaseYear() int {
	return ParseYear(i.ReleaseDate)
}

// ParseYear returns the year of a YYYY-MM-DD date or 0.
func ParseYear(date string) int {
	if len(date) < 4 {
		return 0
	}
	year, err := strconv.Atoi(date[:4])
	if err != nil {
		return 0
	}
	return year
}

// TitleWithYear formats "Name (YYYY)" unless the name already carries the year.
func TitleWithYear(name, date string) string {
	name = strings.TrimSpace(name)
	year := ParseYear(date)
	if year == 0 || name == "" {
		return name
	}
	suffix := fmt.Sprintf("(%d)", year)
	if strings.HasSuffix(name, suffix) {
		return name
	}
	return name + " " + suffix
}

// StalenessRecord is the persisted refresh time of one category family.
type StalenessRecord struct {
	Family          CategoryFamily `json:"family"`
	LastRefreshedAt time.Time      `json:"lastRefreshedAt"`
	IntervalDays    int            `json:"intervalDays"`
}

// SnapshotMeta describes the persisted radar generation.
type SnapshotMeta struct {
	Generation string           `json:"generation"`
	WrittenAt  time.Time        `json:"writtenAt"`
	ItemCount  int              `json:"itemCount"`
	Categories map[Category]int `json:"categories,omitempty"`
}

// RadarResponse is the API response for the radar endpoint.
type RadarResponse struct {
	State       string                   `json:"state"` // "ok" | "stale" | "unavailable"
	Items       []RadarItem              `json:"items"`
	ByCategory  map[Category][]RadarItem `json:"byCategory"`
	Total       int                      `json:"total"`
	Generation  string                   `json:"generation,omitempty"`
	RefreshedAt string                   `json:"refreshedAt,omitempty"`
	LastError   string                   `json:"lastError,omitempty"`
}
