// Package docstore defines the key-value document store the app persists into
// and a JSON file implementation of it.
package docstore

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/goccy/go-json"
)

var (
	// ErrNotFound is returned by Get when the document does not exist.
	ErrNotFound = errors.New("document not found")
	// ErrInvalidValue is returned when a record carries a nil field value.
	ErrInvalidValue = errors.New("document field has no value")
)

// Record is the body of a stored document.
type Record map[string]any

// Document is a record together with its id.
type Document struct {
	ID     string
	Record Record
}

// Key addresses one document.
type Key struct {
	Collection string
	ID         string
}

// Write is a document to store as part of an atomic batch.
type Write struct {
	Collection string
	ID         string
	Record     Record
}

// Store is a document store keyed by (collection, id).
type Store interface {
	GetAll(ctx context.Context, collection string) ([]Document, error)
	Get(ctx context.Context, collection, id string) (Record, error)
	Set(ctx context.Context, collection, id string, rec Record) error
	Delete(ctx context.Context, collection, id string) error
	// AtomicBatch applies every delete and then every write, all or nothing.
	AtomicBatch(ctx context.Context, deletes []Key, writes []Write) error
	Close() error
}

// IntID coerces an integer id to its storage key.
func IntID(id int64) string {
	return strconv.FormatInt(id, 10)
}

// Encode converts v into a record. Fields dropped by omitempty tags never
// reach the store and nil values are stripped.
func Encode(v any) (Record, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	var rec Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	return StripEmpty(rec), nil
}

// Decode fills v from rec.
func Decode(rec Record, v any) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("decode document: %w", err)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("decode document: %w", err)
	}
	return nil
}

// StripEmpty removes nil values, recursing into nested records.
func StripEmpty(rec Record) Record {
	for k, v := range rec {
		switch typed := v.(type) {
		case nil:
			delete(rec, k)
		case map[string]any:
			rec[k] = map[string]any(StripEmpty(Record(typed)))
		case Record:
			rec[k] = StripEmpty(typed)
		}
	}
	return rec
}

// Validate rejects records holding nil values anywhere.
func Validate(rec Record) error {
	for k, v := range rec {
		switch typed := v.(type) {
		case nil:
			return fmt.Errorf("%w: %q", ErrInvalidValue, k)
		case map[string]any:
			if err := Validate(Record(typed)); err != nil {
				return fmt.Errorf("%s.%w", k, err)
			}
		case Record:
			if err := Validate(typed); err != nil {
				return fmt.Errorf("%s.%w", k, err)
			}
		}
	}
	return nil
}

// ValidateBatch checks every key and record of a batch before it is applied.
func ValidateBatch(deletes []Key, writes []Write) error {
	for _, d := range deletes {
		if d.Collection == "" || d.ID == "" {
			return errors.New("batch delete needs collection and id")
		}
	}
	for _, w := range writes {
		if w.Collection == "" || w.ID == "" {
			return errors.New("batch write needs collection and id")
		}
		if err := Validate(w.Record); err != nil {
			return fmt.Errorf("batch write %s/%s: %w", w.Collection, w.ID, err)
		}
	}
	return nil
}
