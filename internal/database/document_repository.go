package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/goccy/go-json"

	"cinegenio/internal/docstore"
)

// DocumentRepository implements docstore.Store on the documents table.
type DocumentRepository struct {
	db *sql.DB
}

var _ docstore.Store = (*DocumentRepository)(nil)

// NewDocumentRepository creates a repository over an open connection.
func NewDocumentRepository(db *sql.DB) *DocumentRepository {
	return &DocumentRepository{db: db}
}

// GetAll returns every document of a collection ordered by id.
func (r *DocumentRepository) GetAll(ctx context.Context, collection string) ([]docstore.Document, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, body FROM documents WHERE collection = ? ORDER BY id`, collection)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", collection, err)
	}
	defer rows.Close()

	var docs []docstore.Document
	for rows.Next() {
		var id, body string
		if err := rows.Scan(&id, &body); err != nil {
			return nil, fmt.Errorf("scan %s: %w", collection, err)
		}
		rec, err := decodeBody(body)
		if err != nil {
			return nil, fmt.Errorf("decode %s/%s: %w", collection, id, err)
		}
		docs = append(docs, docstore.Document{ID: id, Record: rec})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s: %w", collection, err)
	}
	return docs, nil
}

// Get returns a single document or docstore.ErrNotFound.
func (r *DocumentRepository) Get(ctx context.Context, collection, id string) (docstore.Record, error) {
	var body string
	err := r.db.QueryRowContext(ctx,
		`SELECT body FROM documents WHERE collection = ? AND id = ?`, collection, id).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, docstore.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get %s/%s: %w", collection, id, err)
	}
	return decodeBody(body)
}

// Set upserts one document.
func (r *DocumentRepository) Set(ctx context.Context, collection, id string, rec docstore.Record) error {
	return r.AtomicBatch(ctx, nil, []docstore.Write{{Collection: collection, ID: id, Record: rec}})
}

// Delete removes one document.
func (r *DocumentRepository) Delete(ctx context.Context, collection, id string) error {
	return r.AtomicBatch(ctx, []docstore.Key{{Collection: collection, ID: id}}, nil)
}

// AtomicBatch runs every delete and write inside one transaction.
func (r *DocumentRepository) AtomicBatch(ctx context.Context, deletes []docstore.Key, writes []docstore.Write) (err error) {
	if err := docstore.ValidateBatch(deletes, writes); err != nil {
		return err
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin batch: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if len(deletes) > 0 {
		stmt, err := tx.PrepareContext(ctx, `DELETE FROM documents WHERE collection = ? AND id = ?`)
		if err != nil {
			return fmt.Errorf("prepare delete: %w", err)
		}
		defer stmt.Close()
		for _, d := range deletes {
			if _, err := stmt.ExecContext(ctx, d.Collection, d.ID); err != nil {
				return fmt.Errorf("delete %s/%s: %w", d.Collection, d.ID, err)
			}
		}
	}

	if len(writes) > 0 {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO documents (collection, id, body, updated_at)
			VALUES (?, ?, ?, CURRENT_TIMESTAMP)
			ON CONFLICT(collection, id) DO UPDATE SET body = excluded.body, updated_at = excluded.updated_at`)
		if err != nil {
			return fmt.Errorf("prepare write: %w", err)
		}
		defer stmt.Close()
		for _, w := range writes {
			body, err := json.Marshal(w.Record)
			if err != nil {
				return fmt.Errorf("encode %s/%s: %w", w.Collection, w.ID, err)
			}
			if _, err := stmt.ExecContext(ctx, w.Collection, w.ID, string(body)); err != nil {
				return fmt.Errorf("write %s/%s: %w", w.Collection, w.ID, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit batch: %w", err)
	}
	return nil
}

// Close is a no-op; the owning DB closes the connection.
func (r *DocumentRepository) Close() error {
	return nil
}

func decodeBody(body string) (docstore.Record, error) {
	var rec docstore.Record
	if err := json.Unmarshal([]byte(body), &rec); err != nil {
		return nil, err
	}
	return rec, nil
}
