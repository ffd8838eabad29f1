package radar

import (
	"sort"

	"cinegenio/models"
)

// mergeOrder is the insertion order of a full refresh: broad lists first so
// the prioritized lists inserted later win collisions.
var mergeOrder = []models.Category{
	models.CategoryTrending,
	models.CategoryTopRated,
	models.CategoryOnTheAir,
	models.CategoryUpcoming,
	models.CategoryNowPlaying,
}

// Merge combines the previous snapshot with freshly fetched categories.
//
// Items of every category in refreshed are removed from previous and replaced
// by fresh[category], inserted in the order of refreshed. When an external id
// is inserted twice the later insertion wins, category tag included. Items of
// categories not in refreshed pass through untouched, except that a fresh item
// of a category ranked after the pass-through item's category in
// InsertionOrder takes its id, as it would in a full refresh. Items without a
// release date are never inserted. The output order is unspecified.
func Merge(previous []models.RadarItem, fresh map[models.Category][]models.RadarItem, refreshed []models.Category) []models.RadarItem {
	replaced := make(map[models.Category]bool, len(refreshed))
	for _, category := range refreshed {
		replaced[category] = true
	}

	byID := make(map[int64]models.RadarItem, len(previous))
	order := make([]int64, 0, len(previous))
	put := func(item models.RadarItem) {
		if _, exists := byID[item.ExternalID]; !exists {
			order = append(order, item.ExternalID)
		}
		byID[item.ExternalID] = item
	}

	kept := make(map[int64]models.Category, len(previous))
	for _, item := range previous {
		if replaced[item.Category] || item.ReleaseDate == "" {
			continue
		}
		kept[item.ExternalID] = item.Category
		put(item)
	}

	inserted := make(map[models.Category]bool, len(refreshed))
	for _, category := range refreshed {
		if inserted[category] {
			continue
		}
		inserted[category] = true
		for _, item := range fresh[category] {
			if item.ReleaseDate == "" {
				continue
			}
			if held, ok := kept[item.ExternalID]; ok {
				if !categoryBefore(held, category) {
					continue
				}
				delete(kept, item.ExternalID)
			}
			item.Category = category
			if providerID, ok := category.ProviderID(); ok {
				item.ProviderID = providerID
			} else {
				item.ProviderID = 0
			}
			put(item)
		}
	}

	merged := make([]models.RadarItem, 0, len(order))
	for _, id := range order {
		merged = append(merged, byID[id])
	}
	return merged
}

// InsertionOrder sorts categories into the merge order: the fixed broad lists,
// then provider lists by provider id, then relevant. Unknown categories go
// before relevant in name order.
func InsertionOrder(categories []models.Category) []models.Category {
	ordered := append([]models.Category(nil), categories...)
	sort.SliceStable(ordered, func(i, j int) bool {
		return categoryBefore(ordered[i], ordered[j])
	})
	return ordered
}

func categoryRank(c models.Category) int {
	for i, known := range mergeOrder {
		if c == known {
			return i
		}
	}
	if _, ok := c.ProviderID(); ok {
		return len(mergeOrder)
	}
	if c == models.CategoryRelevant {
		return len(mergeOrder) + 2
	}
	return len(mergeOrder) + 1
}

// categoryBefore reports whether a is inserted before b in a full refresh.
func categoryBefore(a, b models.Category) bool {
	ra, rb := categoryRank(a), categoryRank(b)
	if ra != rb {
		return ra < rb
	}
	pa, aok := a.ProviderID()
	pb, bok := b.ProviderID()
	if aok && bok {
		return pa < pb
	}
	return a < b
}

// SortByReleaseDate orders items by release date ascending, ties by title.
func SortByReleaseDate(items []models.RadarItem) {
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].ReleaseDate != items[j].ReleaseDate {
			return items[i].ReleaseDate < items[j].ReleaseDate
		}
		if items[i].Title != items[j].Title {
			return items[i].Title < items[j].Title
		}
		return items[i].ExternalID < items[j].ExternalID
	})
}

// GroupByCategory buckets items by their category tag.
func GroupByCategory(items []models.RadarItem) map[models.Category][]models.RadarItem {
	grouped := make(map[models.Category][]models.RadarItem)
	for _, item := range items {
		grouped[item.Category] = append(grouped[item.Category], item)
	}
	return grouped
}
