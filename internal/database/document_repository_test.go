package database

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"cinegenio/internal/docstore"
)

// setupTestDB creates a new test database in a temp directory.
func setupTestDB(t *testing.T) *DB {
	t.Helper()
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")
	db, err := NewDB(Config{DatabasePath: dbPath})
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestNewDB_Success(t *testing.T) {
	db := setupTestDB(t)
	if db == nil {
		t.Fatal("expected non-nil database")
	}
	if db.Repository == nil {
		t.Fatal("expected non-nil repository")
	}
}

func TestNewDB_CreatesDirectory(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "subdir", "nested", "test.db")

	db, err := NewDB(Config{DatabasePath: dbPath})
	if err != nil {
		t.Fatalf("failed to create database: %v", err)
	}
	defer db.Close()
}

func TestNewDB_RequiresPath(t *testing.T) {
	if _, err := NewDB(Config{}); err == nil {
		t.Fatal("expected error for empty path")
	}
}

func TestDocumentRepository_SetAndGet(t *testing.T) {
	repo := setupTestDB(t).Repository
	ctx := context.Background()

	if err := repo.Set(ctx, "radar", "550", docstore.Record{"title": "Fight Club (1999)", "id": 550}); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	rec, err := repo.Get(ctx, "radar", "550")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if rec["title"] != "Fight Club (1999)" {
		t.Errorf("unexpected title %v", rec["title"])
	}
	if rec["id"] != float64(550) {
		t.Errorf("unexpected id %v", rec["id"])
	}

	// Overwrite keeps one row.
	if err := repo.Set(ctx, "radar", "550", docstore.Record{"title": "changed"}); err != nil {
		t.Fatalf("Set overwrite failed: %v", err)
	}
	docs, err := repo.GetAll(ctx, "radar")
	if err != nil {
		t.Fatalf("GetAll failed: %v", err)
	}
	if len(docs) != 1 {
		t.Fatalf("expected 1 document, got %d", len(docs))
	}
}

func TestDocumentRepository_GetMissing(t *testing.T) {
	repo := setupTestDB(t).Repository
	_, err := repo.Get(context.Background(), "radar", "1")
	if !errors.Is(err, docstore.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestDocumentRepository_Delete(t *testing.T) {
	repo := setupTestDB(t).Repository
	ctx := context.Background()

	_ = repo.Set(ctx, "myCalendar", "7", docstore.Record{"title": "x"})
	if err := repo.Delete(ctx, "myCalendar", "7"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := repo.Get(ctx, "myCalendar", "7"); !errors.Is(err, docstore.ErrNotFound) {
		t.Fatalf("expected document to be gone, got %v", err)
	}
}

func TestDocumentRepository_CollectionsAreIsolated(t *testing.T) {
	repo := setupTestDB(t).Repository
	ctx := context.Background()

	_ = repo.Set(ctx, "radar", "1", docstore.Record{"v": "radar"})
	_ = repo.Set(ctx, "watchedItems", "1", docstore.Record{"v": "watched"})

	docs, err := repo.GetAll(ctx, "radar")
	if err != nil {
		t.Fatalf("GetAll failed: %v", err)
	}
	if len(docs) != 1 || docs[0].Record["v"] != "radar" {
		t.Fatalf("unexpected radar docs: %+v", docs)
	}
}

func TestDocumentRepository_AtomicBatch(t *testing.T) {
	repo := setupTestDB(t).Repository
	ctx := context.Background()

	_ = repo.Set(ctx, "radar", "1", docstore.Record{"v": "old"})
	_ = repo.Set(ctx, "radar", "2", docstore.Record{"v": "old"})

	err := repo.AtomicBatch(ctx,
		[]docstore.Key{{Collection: "radar", ID: "1"}, {Collection: "radar", ID: "2"}},
		[]docstore.Write{
			{Collection: "radar", ID: "2", Record: docstore.Record{"v": "new"}},
			{Collection: "radar", ID: "3", Record: docstore.Record{"v": "new"}},
		})
	if err != nil {
		t.Fatalf("AtomicBatch failed: %v", err)
	}

	docs, _ := repo.GetAll(ctx, "radar")
	if len(docs) != 2 {
		t.Fatalf("expected 2 documents, got %d", len(docs))
	}
	for _, d := range docs {
		if d.Record["v"] != "new" {
			t.Errorf("document %s kept old generation", d.ID)
		}
	}
}

func TestDocumentRepository_AtomicBatchRollsBackOnCancelledContext(t *testing.T) {
	repo := setupTestDB(t).Repository
	ctx := context.Background()
	_ = repo.Set(ctx, "radar", "1", docstore.Record{"v": "old"})

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	err := repo.AtomicBatch(cancelled,
		[]docstore.Key{{Collection: "radar", ID: "1"}},
		[]docstore.Write{{Collection: "radar", ID: "2", Record: docstore.Record{"v": "new"}}})
	if err == nil {
		t.Fatal("expected error for cancelled context")
	}

	docs, _ := repo.GetAll(ctx, "radar")
	if len(docs) != 1 || docs[0].ID != "1" {
		t.Fatalf("expected previous generation to remain, got %+v", docs)
	}
}

func TestDocumentRepository_RejectsNilValues(t *testing.T) {
	repo := setupTestDB(t).Repository
	err := repo.Set(context.Background(), "radar", "1", docstore.Record{"posterRef": nil})
	if !errors.Is(err, docstore.ErrInvalidValue) {
		t.Fatalf("expected ErrInvalidValue, got %v", err)
	}
}
