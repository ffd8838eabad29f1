package catalog

import (
	"errors"
	"strings"

	"cinegenio/models"
)

// tmdbResult is the shared shape of search, list and discover entries. Movies
// carry title/release_date, series carry name/first_air_date.
type tmdbResult struct {
	ID           int64   `json:"id"`
	MediaType    string  `json:"media_type"`
	Title        *string `json:"title"`
	Name         *string `json:"name"`
	Overview     string  `json:"overview"`
	Popularity   float64 `json:"popularity"`
	PosterPath   string  `json:"poster_path"`
	ReleaseDate  string  `json:"release_date"`
	FirstAirDate string  `json:"first_air_date"`
}

type tmdbPage struct {
	Page         int          `json:"page"`
	TotalPages   int          `json:"total_pages"`
	TotalResults int          `json:"total_results"`
	Results      []tmdbResult `json:"results"`
}

var errUnknownKind = errors.New("cannot infer media kind")

// inferKind resolves the media kind of a result. An explicit media_type wins;
// otherwise a title field means movie and a name field means series. fallback
// is used for endpoints that only ever return one kind.
func (r tmdbResult) inferKind(fallback models.MediaKind) (models.MediaKind, error) {
	if r.MediaType != "" {
		if kind, ok := models.ParseMediaKind(r.MediaType); ok {
			return kind, nil
		}
		// person, collection...
		return "", errUnknownKind
	}
	switch {
	case r.Title != nil:
		return models.MediaKindMovie, nil
	case r.Name != nil:
		return models.MediaKindSeries, nil
	case fallback != "":
		return fallback, nil
	default:
		return "", errUnknownKind
	}
}

// normalize converts a raw result into a RadarItem. Items without a release
// date are kept; filtering is the merge step's job.
func (c *Client) normalize(r tmdbResult, fallback models.MediaKind, category models.Category) (models.RadarItem, error) {
	if r.ID <= 0 {
		return models.RadarItem{}, errors.New("missing id")
	}
	kind, err := r.inferKind(fallback)
	if err != nil {
		return models.RadarItem{}, err
	}

	var name, date string
	if kind == models.MediaKindMovie {
		name = deref(r.Title)
		date = r.ReleaseDate
		if name == "" {
			name = deref(r.Name)
		}
	} else {
		name = deref(r.Name)
		date = r.FirstAirDate
		if name == "" {
			name = deref(r.Title)
		}
	}
	if date == "" {
		date = firstNonEmpty(r.ReleaseDate, r.FirstAirDate)
	}

	item := models.RadarItem{
		ExternalID:  r.ID,
		MediaKind:   kind,
		Title:       models.TitleWithYear(name, date),
		PosterRef:   c.posterURL(r.PosterPath),
		ReleaseDate: strings.TrimSpace(date),
		Category:    category,
		Overview:    strings.TrimSpace(r.Overview),
		Popularity:  r.Popularity,
	}
	if providerID, ok := category.ProviderID(); ok {
		item.ProviderID = providerID
	}
	return item, nil
}

// normalizeAll converts a page of results, skipping (and counting) entries
// whose shape cannot be interpreted.
func (c *Client) normalizeAll(results []tmdbResult, fallback models.MediaKind, category models.Category) ([]models.RadarItem, int) {
	items := make([]models.RadarItem, 0, len(results))
	skipped := 0
	for _, r := range results {
		item, err := c.normalize(r, fallback, category)
		if err != nil {
			skipped++
			continue
		}
		items = append(items, item)
	}
	return items, skipped
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return strings.TrimSpace(*s)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
