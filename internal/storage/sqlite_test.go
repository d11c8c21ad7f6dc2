package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/hyperjump/ragcore/internal/fileid"
	"github.com/hyperjump/ragcore/internal/models"
)

func newCatalog(t *testing.T) *SQLiteCatalog {
	t.Helper()
	store, err := NewSQLiteCatalog(filepath.Join(t.TempDir(), "nested", "catalog.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func testEntry(path string, texts ...string) *models.DocumentIndexEntry {
	docID := fileid.DocID(path)
	e := &models.DocumentIndexEntry{
		ID:           docID,
		Path:         path,
		LastModified: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
		Metadata:     models.EntryMetadata{Size: 123, ChunkSignature: "fixed:200:20:50:false"},
	}
	start := 0
	for i, text := range texts {
		e.Chunks = append(e.Chunks, models.Chunk{
			ID:         fileid.ChunkID(docID, i),
			DocumentID: docID,
			SourcePath: path,
			Text:       text,
			Offset:     models.ChunkOffset{Index: i, Start: start, End: start + len(text), Heading: "H"},
		})
		start += len(text)
		e.Metadata.ContentLength += len(text)
	}
	e.Metadata.ChunkCount = len(e.Chunks)
	return e
}

func TestSQLiteCatalog_SaveGet(t *testing.T) {
	store := newCatalog(t)
	ctx := context.Background()
	want := testEntry("/docs/a.md", "first chunk", "second chunk")
	if err := store.SaveEntry(ctx, want); err != nil {
		t.Fatal(err)
	}

	got, err := store.GetEntry(ctx, "/docs/a.md")
	if err != nil {
		t.Fatal(err)
	}
	if got.ID != want.ID || got.Metadata != want.Metadata || !got.LastModified.Equal(want.LastModified) {
		t.Errorf("entry mismatch:\n got %+v\nwant %+v", got.Summary(), want.Summary())
	}
	if len(got.Chunks) != 2 {
		t.Fatalf("expected 2 chunks, got %d", len(got.Chunks))
	}
	for i := range want.Chunks {
		if got.Chunks[i] != want.Chunks[i] {
			t.Errorf("chunk %d:\n got %+v\nwant %+v", i, got.Chunks[i], want.Chunks[i])
		}
	}
}

func TestSQLiteCatalog_SaveReplaces(t *testing.T) {
	store := newCatalog(t)
	ctx := context.Background()
	if err := store.SaveEntry(ctx, testEntry("/a", "one", "two", "three")); err != nil {
		t.Fatal(err)
	}
	if err := store.SaveEntry(ctx, testEntry("/a", "only")); err != nil {
		t.Fatal(err)
	}
	got, err := store.GetEntry(ctx, "/a")
	if err != nil {
		t.Fatal(err)
	}
	if len(got.Chunks) != 1 || got.Chunks[0].Text != "only" {
		t.Errorf("stale chunks survived: %+v", got.Chunks)
	}
	docs, chunks, err := store.Count(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if docs != 1 || chunks != 1 {
		t.Errorf("Count = %d, %d", docs, chunks)
	}
}

func TestSQLiteCatalog_DeleteAndList(t *testing.T) {
	store := newCatalog(t)
	ctx := context.Background()
	for _, p := range []string{"/b", "/a", "/c"} {
		if err := store.SaveEntry(ctx, testEntry(p, "text of "+p)); err != nil {
			t.Fatal(err)
		}
	}
	if err := store.DeleteEntry(ctx, "/b"); err != nil {
		t.Fatal(err)
	}
	if err := store.DeleteEntry(ctx, "/never"); err != nil {
		t.Fatalf("deleting an unknown path should be a no-op: %v", err)
	}
	if _, err := store.GetEntry(ctx, "/b"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	list, err := store.ListEntries(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 2 || list[0].Path != "/a" || list[1].Path != "/c" {
		t.Errorf("unexpected list %+v", list)
	}
	for _, e := range list {
		if e.Chunks != nil {
			t.Error("ListEntries must not load chunks")
		}
	}
	_, chunks, _ := store.Count(ctx)
	if chunks != 2 {
		t.Errorf("chunks of deleted entry remain: %d", chunks)
	}
	if store.SizeBytes() <= 0 {
		t.Error("expected a non-empty database file")
	}
}

func TestSQLiteCatalog_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.db")
	ctx := context.Background()
	store, err := NewSQLiteCatalog(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := store.SaveEntry(ctx, testEntry("/a", "persisted")); err != nil {
		t.Fatal(err)
	}
	_ = store.Close()

	reopened, err := NewSQLiteCatalog(path)
	if err != nil {
		t.Fatal(err)
	}
	defer reopened.Close()
	got, err := reopened.GetEntry(ctx, "/a")
	if err != nil {
		t.Fatal(err)
	}
	if got.Chunks[0].Text != "persisted" {
		t.Errorf("unexpected chunk %+v", got.Chunks[0])
	}
}
