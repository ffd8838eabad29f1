package radar

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"cinegenio/models"
	"cinegenio/services/recommend"
)

const (
	DefaultOracleTimeout = 20 * time.Second
	DefaultMaxSelections = 20
)

// Curator asks the oracle which candidates match the user's taste.
type Curator struct {
	oracle        recommend.Oracle
	timeout       time.Duration
	maxSelections int
}

// NewCurator builds a curator. Non-positive limits fall back to the defaults.
func NewCurator(oracle recommend.Oracle, timeout time.Duration, maxSelections int) *Curator {
	if timeout <= 0 {
		timeout = DefaultOracleTimeout
	}
	if maxSelections <= 0 {
		maxSelections = DefaultMaxSelections
	}
	return &Curator{oracle: oracle, timeout: timeout, maxSelections: maxSelections}
}

// SelectRelevant returns the candidates the oracle picked, in oracle order,
// tagged as relevant. Ids the oracle invents are dropped. No candidates means
// no oracle call.
func (c *Curator) SelectRelevant(ctx context.Context, candidates []models.RadarItem, profile models.TasteProfile) ([]models.RadarItem, error) {
	if len(candidates) == 0 {
		return nil, nil
	}

	type key struct {
		id   int64
		kind models.MediaKind
	}
	known := make(map[key]models.RadarItem, len(candidates))
	for _, item := range candidates {
		known[key{item.ExternalID, item.MediaKind}] = item
	}

	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	selections, err := c.oracle.Select(callCtx, BuildPrompt(candidates, profile, c.maxSelections))
	if err != nil {
		if errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			return nil, &OracleError{Err: fmt.Errorf("timed out after %s: %w", c.timeout, err)}
		}
		return nil, &OracleError{Err: err}
	}

	picked := make([]models.RadarItem, 0, len(selections))
	seen := make(map[key]bool, len(selections))
	discarded := 0
	for _, sel := range selections {
		k := key{sel.ID, sel.MediaKind}
		item, ok := known[k]
		if !ok {
			discarded++
			continue
		}
		if seen[k] {
			continue
		}
		seen[k] = true
		item.Category = models.CategoryRelevant
		item.ProviderID = 0
		picked = append(picked, item)
		if len(picked) == c.maxSelections {
			break
		}
	}
	if discarded > 0 {
		log.Printf("[radar] oracle returned %d ids outside the candidate set", discarded)
	}
	return picked, nil
}

// BuildPrompt renders the candidate list and taste profile for the oracle.
func BuildPrompt(candidates []models.RadarItem, profile models.TasteProfile, maxSelections int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You curate upcoming releases for one viewer. From the candidates below, pick at most %d titles the viewer is most likely to enjoy, best match first.\n\n", maxSelections)
	b.WriteString("Viewer taste profile:\n")
	b.WriteString(profile.PromptText())
	b.WriteString("\n\nCandidates (id | kind | title | release date):\n")
	for _, item := range candidates {
		fmt.Fprintf(&b, "%d | %s | %s | %s\n", item.ExternalID, item.MediaKind, item.Title, item.ReleaseDate)
	}
	b.WriteString("\nOnly pick ids from the candidate list. Respond with ONLY a JSON array, no other text. Each object must have exactly these fields:\n")
	b.WriteString(`- "id": the candidate id (integer)` + "\n")
	b.WriteString(`- "mediaKind": either "movie" or "series"` + "\n\n")
	b.WriteString(`Example format:` + "\n")
	b.WriteString(`[{"id": 603, "mediaKind": "movie"}, {"id": 1399, "mediaKind": "series"}]`)
	return b.String()
}
