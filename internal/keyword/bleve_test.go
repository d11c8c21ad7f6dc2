package keyword

import (
	"context"
	"testing"

	"github.com/hyperjump/ragcore/internal/models"
	"github.com/hyperjump/ragcore/internal/retriever"
)

var _ retriever.LexicalScorer = (*ChunkIndex)(nil)

func newIndex(t *testing.T) *ChunkIndex {
	t.Helper()
	idx, err := NewChunkIndex()
	if err != nil {
		t.Fatalf("NewChunkIndex: %v", err)
	}
	t.Cleanup(func() { _ = idx.Close() })
	return idx
}

func testCorpus() []models.Chunk {
	return []models.Chunk{
		{ID: "doc:a#0", SourcePath: "/a.md", Text: "This report mentions Omnisyan and other findings."},
		{ID: "doc:a#1", SourcePath: "/a.md", Text: "The Bayes app is also referenced. Bayes twice."},
		{ID: "doc:b#0", SourcePath: "/b.md", Text: "Nothing to see here."},
	}
}

func TestChunkIndex_LexicalScores(t *testing.T) {
	idx := newIndex(t)
	ctx := context.Background()
	corpus := testCorpus()
	if err := idx.Index(ctx, corpus); err != nil {
		t.Fatalf("Index: %v", err)
	}

	scores, err := idx.LexicalScores(ctx, "omnisyan", corpus)
	if err != nil {
		t.Fatalf("LexicalScores: %v", err)
	}
	if scores[0] != 1 {
		t.Errorf("best hit should normalise to 1, got %v", scores[0])
	}
	if scores[1] != 0 || scores[2] != 0 {
		t.Errorf("non-matching chunks should score 0: %v", scores)
	}

	// Standard analyzer (no stemming) so "bayes" matches "Bayes".
	scores, err = idx.LexicalScores(ctx, "bayes", corpus)
	if err != nil {
		t.Fatalf("LexicalScores bayes: %v", err)
	}
	if scores[1] != 1 {
		t.Errorf("expected bayes hit on chunk 1, got %v", scores)
	}
}

func TestChunkIndex_Delete(t *testing.T) {
	idx := newIndex(t)
	ctx := context.Background()
	corpus := testCorpus()
	if err := idx.Index(ctx, corpus); err != nil {
		t.Fatalf("Index: %v", err)
	}
	if err := idx.Delete(ctx, []string{"doc:a#0", "doc:a#1", "unknown"}); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	n, err := idx.DocCount()
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("DocCount = %d, want 1", n)
	}
	scores, err := idx.LexicalScores(ctx, "omnisyan", corpus)
	if err != nil {
		t.Fatal(err)
	}
	for i, s := range scores {
		if s != 0 {
			t.Errorf("deleted chunk %d still scores %v", i, s)
		}
	}
}

func TestChunkIndex_ReindexReplaces(t *testing.T) {
	idx := newIndex(t)
	ctx := context.Background()
	first := []models.Chunk{{ID: "doc:a#0", Text: "old words"}}
	second := []models.Chunk{{ID: "doc:a#0", Text: "fresh words"}}
	if err := idx.Index(ctx, first); err != nil {
		t.Fatal(err)
	}
	if err := idx.Index(ctx, second); err != nil {
		t.Fatal(err)
	}
	scores, err := idx.LexicalScores(ctx, "old", second)
	if err != nil {
		t.Fatal(err)
	}
	if scores[0] != 0 {
		t.Errorf("re-indexed chunk should not match old text, got %v", scores[0])
	}
}

func TestChunkIndex_IgnoresHitsFromNewerText(t *testing.T) {
	idx := newIndex(t)
	ctx := context.Background()
	older := []models.Chunk{{ID: "doc:a#0", Text: "quarterly budget review"}, {ID: "doc:b#0", Text: "budget notes"}}
	if err := idx.Index(ctx, older); err != nil {
		t.Fatal(err)
	}
	// The document is re-indexed while a reader still holds the older corpus.
	if err := idx.Index(ctx, []models.Chunk{{ID: "doc:a#0", Text: "incident timeline"}}); err != nil {
		t.Fatal(err)
	}
	scores, err := idx.LexicalScores(ctx, "incident", older)
	if err != nil {
		t.Fatal(err)
	}
	if scores[0] != 0 {
		t.Errorf("hit on newer text scored against older chunk: %v", scores)
	}
	scores, err = idx.LexicalScores(ctx, "budget", older)
	if err != nil {
		t.Fatal(err)
	}
	if scores[0] != 0 || scores[1] != 1 {
		t.Errorf("scores = %v, want only the unchanged chunk to match", scores)
	}
}

func TestChunkIndex_EmptyCorpus(t *testing.T) {
	idx := newIndex(t)
	scores, err := idx.LexicalScores(context.Background(), "anything", nil)
	if err != nil || len(scores) != 0 {
		t.Errorf("expected empty scores, got %v, %v", scores, err)
	}
}
