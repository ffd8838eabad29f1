package catalog

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/url"
	"strconv"
	"strings"

	"github.com/mozillazg/go-unidecode"

	"cinegenio/models"
)

const maxPages = 5

// ListParams tunes a category listing.
type ListParams struct {
	Pages    int    // pages to fetch, default 1, capped at 5
	Region   string // overrides the client region for now-playing/upcoming/discover
	Language string // overrides the primary locale
}

// Search runs a multi search and returns movie and series hits.
func (c *Client) Search(ctx context.Context, query, lang string) ([]models.RadarItem, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}
	if lang == "" {
		lang = c.language
	} else {
		lang = normalizeLanguage(lang)
	}

	key := cacheKey("tmdb", "search", lang, strings.ToLower(unidecode.Unidecode(query)))
	var cached []models.RadarItem
	if ok, _ := c.cache.get(key, &cached); ok {
		return cached, nil
	}

	q := url.Values{}
	q.Set("query", query)
	q.Set("include_adult", "false")
	q.Set("language", lang)
	q.Set("page", "1")

	var page tmdbPage
	if err := c.get(ctx, "/search/multi", q, &page); err != nil {
		return nil, err
	}

	results := make([]tmdbResult, 0, len(page.Results))
	for _, r := range page.Results {
		if r.MediaType == "movie" || r.MediaType == "tv" {
			results = append(results, r)
		}
	}
	items, skipped := c.normalizeAll(results, "", "")
	if skipped > 0 {
		log.Printf("[catalog] search %q: skipped %d malformed results", query, skipped)
	}
	if err := c.cache.set(key, items); err != nil {
		log.Printf("[catalog] failed to cache search %q: %v", query, err)
	}
	return items, nil
}

type tmdbDetails struct {
	tmdbResult
	Genres []struct {
		Name string `json:"name"`
	} `json:"genres"`
	Runtime        int     `json:"runtime"`
	EpisodeRunTime []int   `json:"episode_run_time"`
	VoteAverage    float64 `json:"vote_average"`
	Status         string  `json:"status"`
	NextEpisode    *struct {
		AirDate       string `json:"air_date"`
		EpisodeNumber int    `json:"episode_number"`
		SeasonNumber  int    `json:"season_number"`
	} `json:"next_episode_to_air"`
	Credits struct {
		Cast []struct {
			Name      string `json:"name"`
			Character string `json:"character"`
		} `json:"cast"`
	} `json:"credits"`
	WatchProviders struct {
		Results map[string]models.WatchProviders `json:"results"`
	} `json:"watch/providers"`
}

// Details fetches the detail record of a title. When the primary locale has
// no entry (404) the lookup is retried once in the fallback locale.
func (c *Client) Details(ctx context.Context, id int64, kind models.MediaKind) (*models.CatalogDetails, error) {
	if id <= 0 {
		return nil, fmt.Errorf("invalid catalog id %d", id)
	}
	if kind != models.MediaKindMovie && kind != models.MediaKindSeries {
		return nil, fmt.Errorf("invalid media kind %q", kind)
	}

	key := cacheKey("tmdb", "details", string(kind), strconv.FormatInt(id, 10), c.language, c.region)
	var cached models.CatalogDetails
	if ok, _ := c.cache.get(key, &cached); ok {
		return &cached, nil
	}

	path := fmt.Sprintf("/%s/%d", kind.CatalogPath(), id)
	lang := c.language
	raw, err := c.fetchDetails(ctx, path, lang)
	if errors.Is(err, ErrNotFound) && c.fallbackLanguage != "" && c.fallbackLanguage != lang {
		log.Printf("[catalog] %s not found in %s, retrying in %s", path, lang, c.fallbackLanguage)
		lang = c.fallbackLanguage
		raw, err = c.fetchDetails(ctx, path, lang)
	}
	if err != nil {
		return nil, err
	}

	details, err := c.buildDetails(raw, kind, lang)
	if err != nil {
		return nil, &MalformedResponseError{Endpoint: path, Err: err}
	}
	if err := c.cache.set(key, details); err != nil {
		log.Printf("[catalog] failed to cache %s: %v", path, err)
	}
	return details, nil
}

func (c *Client) fetchDetails(ctx context.Context, path, lang string) (*tmdbDetails, error) {
	q := url.Values{}
	q.Set("language", lang)
	q.Set("append_to_response", "watch/providers,credits")
	var raw tmdbDetails
	if err := c.get(ctx, path, q, &raw); err != nil {
		return nil, err
	}
	return &raw, nil
}

func (c *Client) buildDetails(raw *tmdbDetails, kind models.MediaKind, lang string) (*models.CatalogDetails, error) {
	raw.MediaType = ""
	item, err := c.normalize(raw.tmdbResult, kind, "")
	if err != nil {
		return nil, err
	}
	// Detail payloads always match the requested kind.
	item.MediaKind = kind
	item.Status = raw.Status
	if raw.NextEpisode != nil && raw.NextEpisode.AirDate != "" {
		item.NextEpisode = &models.NextEpisode{
			AirDate: raw.NextEpisode.AirDate,
			Season:  raw.NextEpisode.SeasonNumber,
			Episode: raw.NextEpisode.EpisodeNumber,
		}
	}

	details := &models.CatalogDetails{
		Item:        item,
		Language:    lang,
		Runtime:     raw.Runtime,
		VoteAverage: raw.VoteAverage,
	}
	if details.Runtime == 0 && len(raw.EpisodeRunTime) > 0 {
		details.Runtime = raw.EpisodeRunTime[0]
	}
	for _, g := range raw.Genres {
		if g.Name != "" {
			details.Genres = append(details.Genres, g.Name)
		}
	}
	for i, member := range raw.Credits.Cast {
		if i >= 10 {
			break
		}
		details.Cast = append(details.Cast, models.CastMember{Name: member.Name, Character: member.Character})
	}
	if providers, ok := raw.WatchProviders.Results[c.region]; ok {
		p := providers
		details.WatchProviders = &p
	}
	return details, nil
}

// ListByCategory fetches one catalog list and tags each item with category.
// Lists are never served from cache.
func (c *Client) ListByCategory(ctx context.Context, category models.Category, params ListParams) ([]models.RadarItem, error) {
	region := c.region
	if params.Region != "" {
		region = strings.ToUpper(params.Region)
	}
	lang := c.language
	if params.Language != "" {
		lang = normalizeLanguage(params.Language)
	}
	pages := params.Pages
	if pages <= 0 {
		pages = 1
	}
	if pages > maxPages {
		pages = maxPages
	}

	base := url.Values{}
	base.Set("language", lang)

	switch category {
	case models.CategoryNowPlaying:
		base.Set("region", region)
		return c.listPages(ctx, "/movie/now_playing", base, pages, models.MediaKindMovie, category)
	case models.CategoryUpcoming:
		base.Set("region", region)
		return c.listPages(ctx, "/movie/upcoming", base, pages, models.MediaKindMovie, category)
	case models.CategoryTopRated:
		return c.listPages(ctx, "/movie/top_rated", base, pages, models.MediaKindMovie, category)
	case models.CategoryOnTheAir:
		return c.listPages(ctx, "/tv/on_the_air", base, pages, models.MediaKindSeries, category)
	case models.CategoryTrending:
		return c.listPages(ctx, "/trending/all/week", base, pages, "", category)
	}

	if providerID, ok := category.ProviderID(); ok {
		base.Set("watch_region", region)
		base.Set("with_watch_providers", strconv.Itoa(providerID))
		base.Set("sort_by", "vote_average.desc")
		base.Set("vote_count.gte", "200")
		movies, err := c.listPages(ctx, "/discover/movie", base, pages, models.MediaKindMovie, category)
		if err != nil {
			return nil, err
		}
		series, err := c.listPages(ctx, "/discover/tv", base, pages, models.MediaKindSeries, category)
		if err != nil {
			return nil, err
		}
		return append(movies, series...), nil
	}

	return nil, fmt.Errorf("category %q is not a catalog list", category)
}

func (c *Client) listPages(ctx context.Context, path string, base url.Values, pages int, kind models.MediaKind, category models.Category) ([]models.RadarItem, error) {
	var items []models.RadarItem
	skipped := 0
	for page := 1; page <= pages; page++ {
		q := url.Values{}
		for k, v := range base {
			q[k] = append([]string(nil), v...)
		}
		q.Set("page", strconv.Itoa(page))

		var resp tmdbPage
		if err := c.get(ctx, path, q, &resp); err != nil {
			return nil, err
		}
		normalized, n := c.normalizeAll(resp.Results, kind, category)
		items = append(items, normalized...)
		skipped += n
		if resp.TotalPages > 0 && page >= resp.TotalPages {
			break
		}
	}
	if skipped > 0 {
		log.Printf("[catalog] %s: skipped %d malformed results", path, skipped)
	}
	return items, nil
}
