package docstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/goccy/go-json"
	"github.com/spf13/afero"
)

const fileStoreName = "documents.json"

// FileStore keeps every collection in a single JSON file. Each mutation
// rewrites the file to a temp path and renames it over the old one, so a
// crash leaves either the previous or the next state on disk.
type FileStore struct {
	fs   afero.Fs
	path string

	mu   sync.RWMutex
	data map[string]map[string]Record
}

// NewFileStore opens (or creates) the store under dir on fs.
func NewFileStore(fs afero.Fs, dir string) (*FileStore, error) {
	if err := fs.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create store dir: %w", err)
	}
	s := &FileStore{
		fs:   fs,
		path: filepath.Join(dir, fileStoreName),
		data: make(map[string]map[string]Record),
	}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *FileStore) load() error {
	raw, err := afero.ReadFile(s.fs, s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read store: %w", err)
	}
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, &s.data); err != nil {
		return fmt.Errorf("parse store %s: %w", s.path, err)
	}
	return nil
}

// persist must be called with s.mu held for writing.
func (s *FileStore) persist(data map[string]map[string]Record) error {
	raw, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal store: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := afero.WriteFile(s.fs, tmp, raw, 0o644); err != nil {
		_ = s.fs.Remove(tmp)
		return fmt.Errorf("write store: %w", err)
	}
	if err := s.fs.Rename(tmp, s.path); err != nil {
		_ = s.fs.Remove(tmp)
		return fmt.Errorf("replace store: %w", err)
	}
	return nil
}

// GetAll returns the documents of a collection ordered by id.
func (s *FileStore) GetAll(ctx context.Context, collection string) ([]Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	coll := s.data[collection]
	docs := make([]Document, 0, len(coll))
	for id, rec := range coll {
		docs = append(docs, Document{ID: id, Record: copyRecord(rec)})
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].ID < docs[j].ID })
	return docs, nil
}

// Get returns one document or ErrNotFound.
func (s *FileStore) Get(ctx context.Context, collection, id string) (Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.data[collection][id]
	if !ok {
		return nil, ErrNotFound
	}
	return copyRecord(rec), nil
}

// Set stores one document.
func (s *FileStore) Set(ctx context.Context, collection, id string, rec Record) error {
	return s.AtomicBatch(ctx, nil, []Write{{Collection: collection, ID: id, Record: rec}})
}

// Delete removes one document. Deleting a missing document is not an error.
func (s *FileStore) Delete(ctx context.Context, collection, id string) error {
	return s.AtomicBatch(ctx, []Key{{Collection: collection, ID: id}}, nil)
}

// AtomicBatch applies deletes then writes on a copy and swaps it in only after
// the file has been replaced.
func (s *FileStore) AtomicBatch(ctx context.Context, deletes []Key, writes []Write) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := ValidateBatch(deletes, writes); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	next := make(map[string]map[string]Record, len(s.data))
	for name, coll := range s.data {
		cp := make(map[string]Record, len(coll))
		for id, rec := range coll {
			cp[id] = rec
		}
		next[name] = cp
	}
	for _, d := range deletes {
		delete(next[d.Collection], d.ID)
	}
	for _, w := range writes {
		coll, ok := next[w.Collection]
		if !ok {
			coll = make(map[string]Record)
			next[w.Collection] = coll
		}
		coll[w.ID] = copyRecord(w.Record)
	}

	if err := s.persist(next); err != nil {
		return err
	}
	s.data = next
	return nil
}

// Close is a no-op; every mutation is already on disk.
func (s *FileStore) Close() error {
	return nil
}

func copyRecord(rec Record) Record {
	if rec == nil {
		return nil
	}
	cp := make(Record, len(rec))
	for k, v := range rec {
		if nested, ok := v.(map[string]any); ok {
			v = map[string]any(copyRecord(Record(nested)))
		}
		cp[k] = v
	}
	return cp
}
