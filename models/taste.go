package models

import (
	"sort"
	"strings"
)

// Rating is the user's verdict on a watched title.
type Rating string

const (
	RatingLoved    Rating = "loved"
	RatingLiked    Rating = "liked"
	RatingMeh      Rating = "meh"
	RatingDisliked Rating = "disliked"
)

// WatchedItem is a title from the user's collection.
type WatchedItem struct {
	ID        int64     `json:"id"`
	MediaKind MediaKind `json:"mediaKind"`
	Title     string    `json:"title"`
	Genre     string    `json:"genre,omitempty"`
	Rating    Rating    `json:"rating"`
	CreatedAt int64     `json:"createdAt,omitempty"`
}

// TasteProfile groups watched titles by rating.
type TasteProfile struct {
	Loved    []WatchedItem `json:"loved"`
	Liked    []WatchedItem `json:"liked"`
	Meh      []WatchedItem `json:"meh"`
	Disliked []WatchedItem `json:"disliked"`
}

// NewTasteProfile buckets watched items by their rating. Unknown ratings are ignored.
func NewTasteProfile(items []WatchedItem) TasteProfile {
	var p TasteProfile
	for _, item := range items {
		switch item.Rating {
		case RatingLoved:
			p.Loved = append(p.Loved, item)
		case RatingLiked:
			p.Liked = append(p.Liked, item)
		case RatingMeh:
			p.Meh = append(p.Meh, item)
		case RatingDisliked:
			p.Disliked = append(p.Disliked, item)
		}
	}
	return p
}

// Empty reports whether the profile has no watched titles at all.
func (p TasteProfile) Empty() bool {
	return len(p.Loved)+len(p.Liked)+len(p.Meh)+len(p.Disliked) == 0
}

// All returns every watched title regardless of rating.
func (p TasteProfile) All() []WatchedItem {
	all := make([]WatchedItem, 0, len(p.Loved)+len(p.Liked)+len(p.Meh)+len(p.Disliked))
	all = append(all, p.Loved...)
	all = append(all, p.Liked...)
	all = append(all, p.Meh...)
	all = append(all, p.Disliked...)
	return all
}

// PromptText serializes the profile as the text block handed to the oracle.
func (p TasteProfile) PromptText() string {
	titles := make([]string, 0)
	seen := make(map[string]bool)
	for _, item := range p.All() {
		if item.Title == "" || seen[item.Title] {
			continue
		}
		seen[item.Title] = true
		titles = append(titles, item.Title)
	}
	sort.Strings(titles)

	var b strings.Builder
	b.WriteString("Already watched (never select these): ")
	if len(titles) == 0 {
		b.WriteString("none")
	} else {
		b.WriteString(strings.Join(titles, ", "))
	}
	b.WriteString("\n\n")
	writeTasteSection(&b, "Loved (main inspiration)", p.Loved)
	writeTasteSection(&b, "Liked (good signals)", p.Liked)
	writeTasteSection(&b, "Meh (traps to avoid)", p.Meh)
	writeTasteSection(&b, "Disliked (exclude these elements)", p.Disliked)
	return strings.TrimSpace(b.String())
}

func writeTasteSection(b *strings.Builder, heading string, items []WatchedItem) {
	b.WriteString(heading)
	b.WriteString(":\n")
	if len(items) == 0 {
		b.WriteString("- none\n\n")
		return
	}
	for _, item := range items {
		b.WriteString("- ")
		b.WriteString(item.Title)
		b.WriteString(" (")
		b.WriteString(string(item.MediaKind))
		if item.Genre != "" {
			b.WriteString(", ")
			b.WriteString(item.Genre)
		}
		b.WriteString(")\n")
	}
	b.WriteString("\n")
}
