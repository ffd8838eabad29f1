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
	itemsCollection = "radar"
	snapshotID      = "snapshot"
)

// Repository persists radar generations on a document store.
type Repository struct {
	store docstore.Store
}

// NewRepository wraps store.
func NewRepository(store docstore.Store) *Repository {
	return &Repository{store: store}
}

// Items returns every persisted radar item in storage order.
func (r *Repository) Items(ctx context.Context) ([]models.RadarItem, error) {
	docs, err := r.store.GetAll(ctx, itemsCollection)
	if err != nil {
		return nil, fmt.Errorf("load radar items: %w", err)
	}
	items := make([]models.RadarItem, 0, len(docs))
	for _, doc := range docs {
		var item models.RadarItem
		if err := docstore.Decode(doc.Record, &item); err != nil {
			return nil, fmt.Errorf("decode radar item %s: %w", doc.ID, err)
		}
		items = append(items, item)
	}
	return items, nil
}

// Snapshot returns the metadata of the visible generation, or ErrNoSnapshot.
func (r *Repository) Snapshot(ctx context.Context) (*models.SnapshotMeta, error) {
	rec, err := r.store.Get(ctx, metaCollection, snapshotID)
	if errors.Is(err, docstore.ErrNotFound) {
		return nil, ErrNoSnapshot
	}
	if err != nil {
		return nil, fmt.Errorf("load snapshot meta: %w", err)
	}
	var meta models.SnapshotMeta
	if err := docstore.Decode(rec, &meta); err != nil {
		return nil, fmt.Errorf("decode snapshot meta: %w", err)
	}
	return &meta, nil
}

// HasSnapshot tells a cold start apart from an empty but persisted radar.
func (r *Repository) HasSnapshot(ctx context.Context) (bool, error) {
	_, err := r.Snapshot(ctx)
	if errors.Is(err, ErrNoSnapshot) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// ReplaceAll swaps the whole radar collection for items in a single atomic
// batch: every existing record is deleted, every item and the snapshot meta
// are written. Empty optional fields are stripped from the stored records.
func (r *Repository) ReplaceAll(ctx context.Context, items []models.RadarItem, generation string, at time.Time) (*models.SnapshotMeta, error) {
	existing, err := r.store.GetAll(ctx, itemsCollection)
	if err != nil {
		return nil, &PersistenceError{Op: "list", Err: err}
	}

	deletes := make([]docstore.Key, 0, len(existing))
	for _, doc := range existing {
		deletes = append(deletes, docstore.Key{Collection: itemsCollection, ID: doc.ID})
	}

	meta := models.SnapshotMeta{
		Generation: generation,
		WrittenAt:  at.UTC(),
		Categories: make(map[models.Category]int),
	}
	writes := make([]docstore.Write, 0, len(items)+1)
	seen := make(map[string]bool, len(items))
	for _, item := range items {
		if item.ReleaseDate == "" {
			continue
		}
		key := item.Key()
		if seen[key] {
			return nil, &PersistenceError{Op: "encode", Err: fmt.Errorf("duplicate radar id %s", key)}
		}
		seen[key] = true
		rec, err := docstore.Encode(item)
		if err != nil {
			return nil, &PersistenceError{Op: "encode", Err: err}
		}
		writes = append(writes, docstore.Write{Collection: itemsCollection, ID: key, Record: rec})
		meta.Categories[item.Category]++
	}
	meta.ItemCount = len(writes)

	metaRec, err := docstore.Encode(meta)
	if err != nil {
		return nil, &PersistenceError{Op: "encode", Err: err}
	}
	writes = append(writes, docstore.Write{Collection: metaCollection, ID: snapshotID, Record: metaRec})

	if err := r.store.AtomicBatch(ctx, deletes, writes); err != nil {
		return nil, &PersistenceError{Op: "replace", Err: err}
	}
	return &meta, nil
}
