package catalog

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/goccy/go-json"
	"github.com/spf13/afero"

	"cinegenio/internal/fetchqueue"
)

const (
	defaultBaseURL      = "https://api.themoviedb.org/3"
	defaultImageBaseURL = "https://image.tmdb.org/t/p/w500"
	defaultRegion       = "BR"
)

// Config configures the TMDB client.
type Config struct {
	APIKey           string
	Language         string // primary locale, e.g. "pt-BR"
	FallbackLanguage string // used when the primary locale returns 404
	Region           string // watch-provider and release region
	BaseURL          string
	ImageBaseURL     string
	CacheDir         string
	CacheTTL         time.Duration // 0 disables the detail/search cache
	Attempts         uint
	RetryDelay       time.Duration
}

// Client is a TMDB v3 client. Every HTTP request goes through the shared
// fetch queue.
type Client struct {
	apiKey           string
	language         string
	fallbackLanguage string
	region           string
	baseURL          string
	imageBaseURL     string
	attempts         uint
	retryDelay       time.Duration

	httpc *http.Client
	queue *fetchqueue.Queue
	cache *fileCache
}

// NewClient builds a client. fs backs the response cache; nil uses the OS filesystem.
func NewClient(cfg Config, queue *fetchqueue.Queue, httpc *http.Client, fs afero.Fs) *Client {
	if httpc == nil {
		httpc = &http.Client{Timeout: 15 * time.Second}
	}
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	imageBase := strings.TrimRight(strings.TrimSpace(cfg.ImageBaseURL), "/")
	if imageBase == "" {
		imageBase = defaultImageBaseURL
	}
	region := strings.ToUpper(strings.TrimSpace(cfg.Region))
	if region == "" {
		region = defaultRegion
	}
	fallback := normalizeLanguage(cfg.FallbackLanguage)
	attempts := cfg.Attempts
	if attempts == 0 {
		attempts = 3
	}
	retryDelay := cfg.RetryDelay
	if retryDelay <= 0 {
		retryDelay = 300 * time.Millisecond
	}
	var cache *fileCache
	if cfg.CacheTTL > 0 {
		cache = newFileCache(fs, filepath.Join(cfg.CacheDir, "catalog"), cfg.CacheTTL)
	}
	return &Client{
		apiKey:           strings.TrimSpace(cfg.APIKey),
		language:         normalizeLanguage(cfg.Language),
		fallbackLanguage: fallback,
		region:           region,
		baseURL:          baseURL,
		imageBaseURL:     imageBase,
		attempts:         attempts,
		retryDelay:       retryDelay,
		httpc:            httpc,
		queue:            queue,
		cache:            cache,
	}
}

func (c *Client) isConfigured() bool {
	return c.apiKey != ""
}

// Language returns the primary locale.
func (c *Client) Language() string {
	return c.language
}

// Region returns the configured watch region.
func (c *Client) Region() string {
	return c.region
}

// ClearCache drops cached detail and search responses.
func (c *Client) ClearCache() error {
	return c.cache.clear()
}

// get performs a GET against path and decodes the JSON body into v. Each
// attempt is a separate queue task, so retries respect the spacing too.
func (c *Client) get(ctx context.Context, path string, q url.Values, v any) error {
	if !c.isConfigured() {
		return errors.New("tmdb api key not configured")
	}
	if q == nil {
		q = url.Values{}
	}
	q.Set("api_key", c.apiKey)
	endpoint := c.baseURL + path + "?" + q.Encode()

	var body []byte
	err := retry.Do(
		func() error {
			b, err := fetchqueue.Do(ctx, c.queue, func(ctx context.Context) ([]byte, error) {
				return c.do(ctx, path, endpoint)
			})
			if err != nil {
				return err
			}
			body = b
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(c.attempts),
		retry.Delay(c.retryDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool {
			return IsTransient(err)
		}),
		retry.OnRetry(func(n uint, err error) {
			log.Printf("[catalog] GET %s failed (attempt %d/%d): %v", path, n+1, c.attempts, err)
		}),
	)
	if err != nil {
		return err
	}

	if err := json.Unmarshal(body, v); err != nil {
		return &MalformedResponseError{Endpoint: path, Err: err}
	}
	return nil
}

func (c *Client) do(ctx context.Context, path, endpoint string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("create tmdb request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, &TransientFetchError{Endpoint: path, Err: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
	case resp.StatusCode == http.StatusTooManyRequests:
		limited := &RateLimitError{Endpoint: path}
		if ra := resp.Header.Get("Retry-After"); ra != "" {
			if secs, err := strconv.Atoi(ra); err == nil {
				limited.RetryAfter = time.Duration(secs) * time.Second
			}
		}
		return nil, limited
	case resp.StatusCode >= 500:
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &TransientFetchError{
			Endpoint: path,
			Err:      fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet))),
		}
	case resp.StatusCode >= 300:
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("tmdb get %s failed: %s: %s", path, resp.Status, strings.TrimSpace(string(snippet)))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransientFetchError{Endpoint: path, Err: err}
	}
	return body, nil
}

func (c *Client) posterURL(path string) string {
	path = strings.TrimSpace(path)
	if path == "" {
		return ""
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return c.imageBaseURL + path
}
