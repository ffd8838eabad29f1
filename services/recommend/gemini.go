package recommend

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/goccy/go-json"
	"github.com/sony/gobreaker/v2"

	"cinegenio/internal/metrics"
	"cinegenio/models"
)

const (
	geminiBaseURL      = "https://generativelanguage.googleapis.com/v1beta"
	defaultGeminiModel = "gemini-2.0-flash"
	breakerName        = "gemini-oracle"
)

// ErrCircuitOpen is returned while the breaker rejects oracle calls.
var ErrCircuitOpen = errors.New("oracle circuit open")

// retryableError marks a failed call worth another attempt (429, 5xx, transport).
type retryableError struct {
	err error
}

func (e *retryableError) Error() string { return e.err.Error() }
func (e *retryableError) Unwrap() error { return e.err }

// GeminiOracle asks a Gemini model for a JSON selection.
type GeminiOracle struct {
	apiKey   string
	model    string
	baseURL  string
	attempts uint
	httpc    *http.Client
	breaker  *gobreaker.CircuitBreaker[[]Selection]

	throttleMu  sync.Mutex
	lastRequest time.Time
	minInterval time.Duration
}

// NewGeminiOracle builds the Gemini oracle.
func NewGeminiOracle(cfg Config) *GeminiOracle {
	httpc := cfg.HTTPClient
	if httpc == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		httpc = &http.Client{Timeout: timeout}
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = defaultGeminiModel
	}
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = geminiBaseURL
	}
	attempts := cfg.Attempts
	if attempts == 0 {
		attempts = 3
	}

	o := &GeminiOracle{
		apiKey:      strings.TrimSpace(cfg.APIKey),
		model:       model,
		baseURL:     baseURL,
		attempts:    attempts,
		httpc:       httpc,
		minInterval: 100 * time.Millisecond,
	}
	o.breaker = gobreaker.NewCircuitBreaker[[]Selection](gobreaker.Settings{
		Name:        breakerName,
		MaxRequests: 1,
		Interval:    10 * time.Minute,
		Timeout:     5 * time.Minute,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Printf("[gemini] circuit %s: %s -> %s", name, from, to)
		},
	})
	return o
}

type geminiRequest struct {
	Contents         []geminiContent         `json:"contents"`
	GenerationConfig *geminiGenerationConfig `json:"generationConfig,omitempty"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiGenerationConfig struct {
	Temperature      float64 `json:"temperature"`
	MaxOutputTokens  int     `json:"maxOutputTokens"`
	ResponseMIMEType string  `json:"responseMimeType,omitempty"`
}

type geminiResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
	Error *struct {
		Message string `json:"message"`
		Code    int    `json:"code"`
	} `json:"error,omitempty"`
}

// Select sends prompt to Gemini and parses the JSON array it answers with.
func (o *GeminiOracle) Select(ctx context.Context, prompt string) ([]Selection, error) {
	selections, err := o.breaker.Execute(func() ([]Selection, error) {
		return o.selectWithRetry(ctx, prompt)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		metrics.OracleCalls.WithLabelValues("rejected").Inc()
		return nil, fmt.Errorf("%w: %v", ErrCircuitOpen, err)
	}
	if err != nil {
		metrics.OracleCalls.WithLabelValues("failure").Inc()
		return nil, err
	}
	metrics.OracleCalls.WithLabelValues("success").Inc()
	return selections, nil
}

func (o *GeminiOracle) selectWithRetry(ctx context.Context, prompt string) ([]Selection, error) {
	body, err := json.Marshal(geminiRequest{
		Contents: []geminiContent{{Parts: []geminiPart{{Text: prompt}}}},
		GenerationConfig: &geminiGenerationConfig{
			Temperature:      0.4,
			MaxOutputTokens:  2048,
			ResponseMIMEType: "application/json",
		},
	})
	if err != nil {
		return nil, fmt.Errorf("marshal gemini request: %w", err)
	}

	var text string
	err = retry.Do(
		func() error {
			t, err := o.generate(ctx, body)
			if err != nil {
				return err
			}
			text = t
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(o.attempts),
		retry.Delay(500*time.Millisecond),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool {
			var re *retryableError
			return errors.As(err, &re)
		}),
		retry.OnRetry(func(n uint, err error) {
			log.Printf("[gemini] request failed (attempt %d/%d): %v", n+1, o.attempts, err)
		}),
	)
	if err != nil {
		return nil, err
	}
	return ParseSelections(text)
}

func (o *GeminiOracle) generate(ctx context.Context, body []byte) (string, error) {
	o.throttleMu.Lock()
	since := time.Since(o.lastRequest)
	if since < o.minInterval {
		time.Sleep(o.minInterval - since)
	}
	o.lastRequest = time.Now()
	o.throttleMu.Unlock()

	endpoint := fmt.Sprintf("%s/models/%s:generateContent?key=%s", o.baseURL, o.model, o.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create gemini request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.httpc.Do(req)
	if err != nil {
		return "", &retryableError{err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return "", &retryableError{err: fmt.Errorf("gemini request failed: status %d", resp.StatusCode)}
	}
	if resp.StatusCode >= 400 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("gemini API error %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	var parsed geminiResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("decode gemini response: %w", err)
	}
	if parsed.Error != nil {
		return "", fmt.Errorf("gemini API error: %s", parsed.Error.Message)
	}
	if len(parsed.Candidates) == 0 || len(parsed.Candidates[0].Content.Parts) == 0 {
		return "", errors.New("gemini returned empty response")
	}
	return parsed.Candidates[0].Content.Parts[0].Text, nil
}

type rawSelection struct {
	ID        json.Number `json:"id"`
	MediaKind string      `json:"mediaKind"`
	MediaType string      `json:"mediaType"`
}

// ParseSelections decodes the model's answer: a JSON array of {id, mediaKind},
// optionally wrapped in a markdown fence or an object with a "selections" key.
// Entries with an unusable id or kind are skipped.
func ParseSelections(text string) ([]Selection, error) {
	cleaned := extractJSON(text)
	if cleaned == "" {
		return nil, errors.New("oracle returned no JSON")
	}

	var raw []rawSelection
	if err := json.Unmarshal([]byte(cleaned), &raw); err != nil {
		var wrapped struct {
			Selections []rawSelection `json:"selections"`
		}
		if err2 := json.Unmarshal([]byte(cleaned), &wrapped); err2 != nil {
			return nil, fmt.Errorf("parse oracle selection: %w (raw: %s)", err, cleaned[:min(200, len(cleaned))])
		}
		raw = wrapped.Selections
	}

	selections := make([]Selection, 0, len(raw))
	for _, r := range raw {
		id, err := r.ID.Int64()
		if err != nil || id <= 0 {
			continue
		}
		kindValue := r.MediaKind
		if kindValue == "" {
			kindValue = r.MediaType
		}
		kind, ok := models.ParseMediaKind(kindValue)
		if !ok {
			continue
		}
		selections = append(selections, Selection{ID: id, MediaKind: kind})
	}
	return selections, nil
}

// extractJSON strips markdown code fences and surrounding prose.
func extractJSON(text string) string {
	cleaned := strings.TrimSpace(text)
	if idx := strings.Index(cleaned, "```"); idx >= 0 {
		rest := cleaned[idx+3:]
		rest = strings.TrimPrefix(rest, "json")
		if end := strings.Index(rest, "```"); end >= 0 {
			rest = rest[:end]
		}
		cleaned = strings.TrimSpace(rest)
	}
	start := strings.IndexAny(cleaned, "[{")
	if start < 0 {
		return ""
	}
	closing := byte(']')
	if cleaned[start] == '{' {
		closing = '}'
	}
	end := strings.LastIndexByte(cleaned, closing)
	if end < start {
		return ""
	}
	return cleaned[start : end+1]
}
