// Package recommend wraps the generative model that curates the "relevant to
// you" radar list.
package recommend

//go:generate mockgen -destination=mocks/mock_oracle.go -package=mocks cinegenio/services/recommend Oracle

import (
	"context"
	"log"
	"net/http"
	"strings"
	"time"

	"cinegenio/models"
)

// Selection is one title picked by the oracle.
type Selection struct {
	ID        int64            `json:"id"`
	MediaKind models.MediaKind `json:"mediaKind"`
}

// Oracle picks a subset of the candidates described in prompt.
type Oracle interface {
	Select(ctx context.Context, prompt string) ([]Selection, error)
}

// Config selects and configures the oracle implementation.
type Config struct {
	APIKey     string
	Model      string
	BaseURL    string
	Timeout    time.Duration
	Attempts   uint
	HTTPClient *http.Client
}

// New returns a Gemini-backed oracle when an API key is configured and the
// fixed development oracle otherwise.
func New(cfg Config) Oracle {
	if strings.TrimSpace(cfg.APIKey) == "" {
		log.Printf("[recommend] no oracle api key configured, using fixed selections")
		return NewFixedOracle(nil, nil)
	}
	return NewGeminiOracle(cfg)
}

// FixedOracle returns a preset answer. It backs development mode and tests.
type FixedOracle struct {
	selections []Selection
	err        error
}

// NewFixedOracle returns an oracle answering every call with selections, or
// with err when it is non-nil.
func NewFixedOracle(selections []Selection, err error) *FixedOracle {
	return &FixedOracle{selections: selections, err: err}
}

func (o *FixedOracle) Select(ctx context.Context, prompt string) ([]Selection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if o.err != nil {
		return nil, o.err
	}
	return append([]Selection(nil), o.selections...), nil
}
