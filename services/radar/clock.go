package radar

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cinegenio/internal/docstore"
	"cinegenio/models"
)

const (
	metaCollection    = "radar_meta"
	stalenessIDPrefix = "staleness_"

	DefaultFrequentIntervalDays = 1
	DefaultCuratedIntervalDays  = 7
)

// Clock tracks when each category family was last refreshed. A family with no
// record is always due; families never affect each other.
type Clock struct {
	store     docstore.Store
	intervals map[models.CategoryFamily]int
	now       func() time.Time
}

// NewClock builds a clock. Non-positive intervals fall back to the defaults.
func NewClock(store docstore.Store, frequentDays, curatedDays int) *Clock {
	if frequentDays <= 0 {
		frequentDays = DefaultFrequentIntervalDays
	}
	if curatedDays <= 0 {
		curatedDays = DefaultCuratedIntervalDays
	}
	return &Clock{
		store: store,
		intervals: map[models.CategoryFamily]int{
			models.FamilyFrequent: frequentDays,
			models.FamilyCurated:  curatedDays,
		},
		now: time.Now,
	}
}

// SetNow replaces the time source.
func (c *Clock) SetNow(now func() time.Time) {
	c.now = now
}

// Interval returns the configured interval of a family.
func (c *Clock) Interval(family models.CategoryFamily) time.Duration {
	return time.Duration(c.intervals[family]) * 24 * time.Hour
}

// Record returns the stored record of a family, or nil on cold start.
func (c *Clock) Record(ctx context.Context, family models.CategoryFamily) (*models.StalenessRecord, error) {
	rec, err := c.store.Get(ctx, metaCollection, stalenessIDPrefix+string(family))
	if errors.Is(err, docstore.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load staleness %s: %w", family, err)
	}
	var record models.StalenessRecord
	if err := docstore.Decode(rec, &record); err != nil {
		return nil, fmt.Errorf("decode staleness %s: %w", family, err)
	}
	return &record, nil
}

// IsDue reports whether category's family interval has elapsed.
func (c *Clock) IsDue(ctx context.Context, category models.Category) (bool, error) {
	record, err := c.Record(ctx, category.Family())
	if err != nil {
		return false, err
	}
	return c.isDue(record, category.Family()), nil
}

func (c *Clock) isDue(record *models.StalenessRecord, family models.CategoryFamily) bool {
	if record == nil || record.LastRefreshedAt.IsZero() {
		return true
	}
	return !c.now().Before(record.LastRefreshedAt.Add(c.Interval(family)))
}

// Due filters categories down to the ones whose family is due, keeping order.
// Each family record is read once.
func (c *Clock) Due(ctx context.Context, categories []models.Category) ([]models.Category, error) {
	dueByFamily := make(map[models.CategoryFamily]bool)
	var due []models.Category
	for _, category := range categories {
		family := category.Family()
		isDue, checked := dueByFamily[family]
		if !checked {
			record, err := c.Record(ctx, family)
			if err != nil {
				return nil, err
			}
			isDue = c.isDue(record, family)
			dueByFamily[family] = isDue
		}
		if isDue {
			due = append(due, category)
		}
	}
	return due, nil
}

// MarkRefreshed stamps category's family as refreshed at at.
func (c *Clock) MarkRefreshed(ctx context.Context, category models.Category, at time.Time) error {
	return c.markFamily(ctx, category.Family(), at)
}

func (c *Clock) markFamily(ctx context.Context, family models.CategoryFamily, at time.Time) error {
	rec, err := docstore.Encode(models.StalenessRecord{
		Family:          family,
		LastRefreshedAt: at.UTC(),
		IntervalDays:    c.intervals[family],
	})
	if err != nil {
		return err
	}
	if err := c.store.Set(ctx, metaCollection, stalenessIDPrefix+string(family), rec); err != nil {
		return fmt.Errorf("save staleness %s: %w", family, err)
	}
	return nil
}
