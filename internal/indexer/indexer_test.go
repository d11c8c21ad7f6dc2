package indexer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/hyperjump/ragcore/internal/chunker"
	"github.com/hyperjump/ragcore/internal/fileid"
	"github.com/hyperjump/ragcore/internal/models"
	"github.com/hyperjump/ragcore/internal/retriever"
	"github.com/hyperjump/ragcore/internal/storage"
)

var testChunkOptions = chunker.Options{MaxChars: 200, Overlap: 20, MinChars: 50, Strategy: chunker.StrategyFixed}

func newTestIndexer(t *testing.T, mutate func(*Config), opts ...Option) *Indexer {
	t.Helper()
	cfg := Config{Enabled: true, Chunk: testChunkOptions}
	if mutate != nil {
		mutate(&cfg)
	}
	idx, err := New(cfg, opts...)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = idx.Close() })
	return idx
}

func content(s string) *string { return &s }

// longDoc is 401 characters: three chunks at 200/20/50.
var longDoc = strings.Repeat("lorem ", 66) + "ipsum"

const shortDoc = "bayes theorem relates conditional probabilities ok"

func TestAddRemove_Scenario(t *testing.T) {
	idx := newTestIndexer(t, nil)
	ctx := context.Background()

	a, err := idx.AddDocument(ctx, models.DocumentInput{Path: "/docs/a.md", Content: content(longDoc)})
	if err != nil {
		t.Fatal(err)
	}
	if a.Metadata.ChunkCount != 3 || len(a.Chunks) != 3 {
		t.Fatalf("a.md: expected 3 chunks, got %d", a.Metadata.ChunkCount)
	}
	if _, err := idx.AddDocument(ctx, models.DocumentInput{Path: "/docs/b.md", Content: content(shortDoc)}); err != nil {
		t.Fatal(err)
	}

	stats := idx.Stats()
	if stats.Documents != 2 || stats.Chunks != 4 {
		t.Errorf("Stats = %+v, want 2 documents and 4 chunks", stats)
	}
	if stats.ContentLength != len(longDoc)+len(shortDoc) {
		t.Errorf("ContentLength = %d", stats.ContentLength)
	}
	if stats.LastUpdated.IsZero() {
		t.Error("LastUpdated not set")
	}

	if !idx.RemoveDocument(ctx, "/docs/a.md") {
		t.Fatal("expected a.md to be removed")
	}
	if got := len(idx.Corpus()); got != 1 {
		t.Errorf("corpus size after removal = %d, want 1", got)
	}
	for _, ch := range idx.Corpus() {
		if ch.SourcePath == "/docs/a.md" {
			t.Errorf("chunk %s of removed document still in corpus", ch.ID)
		}
	}
	if idx.RemoveDocument(ctx, "/docs/a.md") {
		t.Error("second removal should report false")
	}
	if idx.RemoveDocument(ctx, "/never/indexed.md") {
		t.Error("removing an unknown path should report false")
	}
}

func TestAddDocument_EmptyPath(t *testing.T) {
	idx := newTestIndexer(t, nil)
	for _, p := range []string{"", "   "} {
		if _, err := idx.AddDocument(context.Background(), models.DocumentInput{Path: p, Content: content("x")}); !errors.Is(err, ErrEmptyPath) {
			t.Errorf("path %q: expected ErrEmptyPath, got %v", p, err)
		}
	}
}

func TestAddDocument_ReindexReplacesAndMovesToEnd(t *testing.T) {
	idx := newTestIndexer(t, nil)
	ctx := context.Background()
	for _, p := range []string{"/a", "/b"} {
		if _, err := idx.AddDocument(ctx, models.DocumentInput{Path: p, Content: content(longDoc)}); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := idx.AddDocument(ctx, models.DocumentInput{Path: "/a", Content: content(shortDoc)}); err != nil {
		t.Fatal(err)
	}

	corpus := idx.Corpus()
	if len(corpus) != 4 {
		t.Fatalf("expected 3 + 1 chunks, got %d", len(corpus))
	}
	seen := make(map[string]bool)
	for _, ch := range corpus {
		if seen[ch.ID] {
			t.Errorf("duplicate chunk id %s", ch.ID)
		}
		seen[ch.ID] = true
	}
	if corpus[len(corpus)-1].SourcePath != "/a" || corpus[len(corpus)-1].Text != shortDoc {
		t.Errorf("re-indexed document should be last, got %+v", corpus[len(corpus)-1])
	}
	entries := idx.Entries()
	if len(entries) != 2 || entries[0].Path != "/b" || entries[1].Path != "/a" {
		t.Errorf("unexpected entry order %+v", entries)
	}
	if got := idx.Chunks("/a"); len(got) != 1 {
		t.Errorf("Chunks(/a) = %d chunks", len(got))
	}
	if e, ok := idx.Entry("/a"); !ok || e.Chunks != nil || e.ID != fileid.DocID("/a") {
		t.Errorf("Entry(/a) = %+v, %v", e, ok)
	}
}

func TestAddDocument_ReadsFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "notes.md")
	if err := os.WriteFile(path, []byte(shortDoc), 0600); err != nil {
		t.Fatal(err)
	}
	idx := newTestIndexer(t, nil)
	entry, err := idx.AddDocument(context.Background(), models.DocumentInput{Path: path})
	if err != nil {
		t.Fatal(err)
	}
	info, _ := os.Stat(path)
	if entry.Metadata.Size != info.Size() || !entry.LastModified.Equal(info.ModTime()) {
		t.Errorf("file metadata not recorded: %+v", entry.Summary())
	}
	if entry.Chunks[0].Text != shortDoc {
		t.Errorf("unexpected chunk text %q", entry.Chunks[0].Text)
	}

	if _, err := idx.AddDocument(context.Background(), models.DocumentInput{Path: filepath.Join(dir, "missing.md")}); err == nil {
		t.Error("expected error for a missing file")
	}
	if _, err := idx.AddDocument(context.Background(), models.DocumentInput{Path: dir}); err == nil {
		t.Error("expected error for a directory")
	}
}

func TestSearch(t *testing.T) {
	for _, scorer := range []string{ScorerOverlap, ScorerBM25} {
		t.Run(scorer, func(t *testing.T) {
			idx := newTestIndexer(t, func(c *Config) { c.Retrieval.Scorer = scorer })
			ctx := context.Background()
			if _, err := idx.AddDocument(ctx, models.DocumentInput{Path: "/a.md", Content: content(longDoc)}); err != nil {
				t.Fatal(err)
			}
			if _, err := idx.AddDocument(ctx, models.DocumentInput{Path: "/b.md", Content: content(shortDoc)}); err != nil {
				t.Fatal(err)
			}

			res, err := idx.Search(ctx, models.SearchQuery{Query: "Bayes theorem"}, SearchOptions{})
			if err != nil {
				t.Fatal(err)
			}
			if len(res.RetrievedChunks) != 1 {
				t.Fatalf("expected one hit, got %+v", res.RetrievedChunks)
			}
			hit := res.RetrievedChunks[0]
			if hit.Chunk.SourcePath != "/b.md" || hit.Rank != 1 || hit.Score <= 0 {
				t.Errorf("unexpected hit %+v", hit)
			}
			if res.TotalChunks != 4 || res.Mode != string(retriever.ModeLexical) {
				t.Errorf("TotalChunks = %d, Mode = %q", res.TotalChunks, res.Mode)
			}

			if _, err := idx.Search(ctx, models.SearchQuery{Query: "  "}, SearchOptions{}); !errors.Is(err, models.ErrEmptyQuery) {
				t.Errorf("expected ErrEmptyQuery, got %v", err)
			}

			idx.RemoveDocument(ctx, "/b.md")
			res, err = idx.Search(ctx, models.SearchQuery{Query: "Bayes theorem"}, SearchOptions{})
			if err != nil {
				t.Fatal(err)
			}
			if len(res.RetrievedChunks) != 0 {
				t.Errorf("removed document still retrieved: %+v", res.RetrievedChunks)
			}
		})
	}
}

func TestSearch_TopKAndSemantic(t *testing.T) {
	idx := newTestIndexer(t, func(c *Config) { c.Retrieval.TopK = 2 })
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		text := fmt.Sprintf("shared topic document number %d", i)
		if _, err := idx.AddDocument(ctx, models.DocumentInput{Path: fmt.Sprintf("/d%d.md", i), Content: content(text)}); err != nil {
			t.Fatal(err)
		}
	}

	res, err := idx.Search(ctx, models.SearchQuery{Query: "shared topic"}, SearchOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.RetrievedChunks) != 2 {
		t.Fatalf("expected default top_k 2, got %d", len(res.RetrievedChunks))
	}
	if res.RetrievedChunks[0].Chunk.SourcePath != "/d0.md" {
		t.Errorf("ties must keep corpus order, got %s first", res.RetrievedChunks[0].Chunk.SourcePath)
	}

	target := fileid.ChunkID(fileid.DocID("/d3.md"), 0)
	lookup := func(id string) ([]float32, bool) {
		if id == target {
			return []float32{1, 0}, true
		}
		return []float32{0, 1}, true
	}
	res, err = idx.Search(ctx, models.SearchQuery{Query: "shared topic", TopK: 1},
		SearchOptions{QueryVector: []float32{1, 0}, Lookup: lookup})
	if err != nil {
		t.Fatal(err)
	}
	if res.Mode != string(retriever.ModeHybrid) {
		t.Errorf("auto mode with a query vector should be hybrid, got %q", res.Mode)
	}
	if res.RetrievedChunks[0].Chunk.ID != target {
		t.Errorf("expected the vector match first, got %s", res.RetrievedChunks[0].Chunk.ID)
	}
}

func TestSearch_MinScore(t *testing.T) {
	idx := newTestIndexer(t, func(c *Config) { c.Retrieval.MinScore = 0.9 })
	ctx := context.Background()
	docs := map[string]string{
		"/full.md": "kestrel falcon sighting recorded near the northern ridge today",
		"/half.md": "kestrel nest observed beside the old quarry road this morning",
		"/none.md": "harbour tide tables updated for the coming winter season ok",
	}
	for path, text := range docs {
		if _, err := idx.AddDocument(ctx, models.DocumentInput{Path: path, Content: content(text)}); err != nil {
			t.Fatal(err)
		}
	}
	paths := func(q models.SearchQuery) []string {
		t.Helper()
		res, err := idx.Search(ctx, q, SearchOptions{})
		if err != nil {
			t.Fatal(err)
		}
		var out []string
		for _, rc := range res.RetrievedChunks {
			out = append(out, rc.Chunk.SourcePath)
		}
		return out
	}

	if got := paths(models.SearchQuery{Query: "kestrel falcon"}); !reflect.DeepEqual(got, []string{"/full.md"}) {
		t.Errorf("configured threshold: got %v", got)
	}
	zero := 0.0
	// An explicit 0 overrides the configured threshold; zero-score chunks stay out.
	if got := paths(models.SearchQuery{Query: "kestrel falcon", MinScore: &zero}); !reflect.DeepEqual(got, []string{"/full.md", "/half.md"}) {
		t.Errorf("explicit zero threshold: got %v", got)
	}
}

func TestSearch_Disabled(t *testing.T) {
	idx := newTestIndexer(t, func(c *Config) { c.Enabled = false })
	ctx := context.Background()
	if _, err := idx.AddDocument(ctx, models.DocumentInput{Path: "/b.md", Content: content(shortDoc)}); err != nil {
		t.Fatal(err)
	}
	res, err := idx.Search(ctx, models.SearchQuery{Query: "bayes"}, SearchOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if res.RetrievedChunks == nil || len(res.RetrievedChunks) != 0 || res.TotalChunks != 0 {
		t.Errorf("disabled search should be empty, got %+v", res)
	}
}

func TestNew_InvalidConfig(t *testing.T) {
	if _, err := New(Config{Chunk: chunker.Options{MaxChars: 10, Overlap: 10}}); !errors.Is(err, chunker.ErrInvalidOptions) {
		t.Errorf("expected ErrInvalidOptions, got %v", err)
	}
	if _, err := New(Config{Retrieval: RetrievalConfig{Scorer: "tfidf"}}); err == nil {
		t.Error("expected error for unknown scorer")
	}
}

func TestConcurrentMutationAndSearch(t *testing.T) {
	idx := newTestIndexer(t, nil)
	ctx := context.Background()
	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 20; i++ {
				path := fmt.Sprintf("/w%d/doc%d.md", w, i%3)
				if _, err := idx.AddDocument(ctx, models.DocumentInput{Path: path, Content: content(longDoc)}); err != nil {
					t.Error(err)
					return
				}
				if i%4 == 0 {
					idx.RemoveDocument(ctx, path)
				}
				if _, err := idx.Search(ctx, models.SearchQuery{Query: "lorem"}, SearchOptions{}); err != nil {
					t.Error(err)
					return
				}
			}
		}(w)
	}
	wg.Wait()

	seen := make(map[string]bool)
	total := 0
	for _, e := range idx.Entries() {
		total += e.Metadata.ChunkCount
	}
	for _, ch := range idx.Corpus() {
		if seen[ch.ID] {
			t.Fatalf("duplicate chunk id %s", ch.ID)
		}
		seen[ch.ID] = true
	}
	if total != len(seen) {
		t.Errorf("corpus has %d chunks, entries account for %d", len(seen), total)
	}
}

func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for name, body := range files {
		p := filepath.Join(root, name)
		if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, []byte(body), 0600); err != nil {
			t.Fatal(err)
		}
	}
}

func TestBuildIndex_Walk(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"a.md":          longDoc,
		"sub/c.txt":     shortDoc,
		"skip.go":       "package main",
		".hidden/x.md":  "hidden",
		"sub/.git/y.md": "hidden too",
	})
	single := filepath.Join(t.TempDir(), "single.go")
	writeTree(t, filepath.Dir(single), map[string]string{"single.go": "explicit file roots ignore the allow-list"})

	idx := newTestIndexer(t, func(c *Config) {
		c.Paths = []string{root, single, filepath.Join(root, "missing")}
		c.Extensions = []string{".md", "txt"}
	})
	report, err := idx.BuildIndex(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if report.Indexed != 3 || report.Failed != 1 || report.Restored != 0 {
		t.Errorf("unexpected report %+v", report)
	}
	var paths []string
	for _, e := range idx.Entries() {
		paths = append(paths, e.Path)
	}
	for _, want := range []string{filepath.Join(root, "a.md"), filepath.Join(root, "sub", "c.txt"), single} {
		if _, ok := idx.Entry(want); !ok {
			t.Errorf("%s not indexed; got %v", want, paths)
		}
	}
	if idx.Stats().Chunks != 5 {
		t.Errorf("expected 3 + 1 + 1 chunks, got %d", idx.Stats().Chunks)
	}
}

func TestBuildIndex_Cancelled(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{"a.md": longDoc})
	idx := newTestIndexer(t, func(c *Config) { c.Paths = []string{root} })
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := idx.BuildIndex(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestBuildIndex_IncrementalWithCatalog(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{"a.md": longDoc, "b.md": shortDoc, "gone.md": shortDoc})
	catalog, err := storage.NewSQLiteCatalog(filepath.Join(t.TempDir(), "catalog.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = catalog.Close() })
	ctx := context.Background()
	configure := func(c *Config) { c.Paths = []string{root} }

	first := newTestIndexer(t, configure, WithCatalog(catalog))
	report, err := first.BuildIndex(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if report.Indexed != 3 {
		t.Fatalf("first build: %+v", report)
	}

	// Change b.md and delete gone.md while "stopped".
	b := filepath.Join(root, "b.md")
	if err := os.WriteFile(b, []byte(shortDoc+" and more"), 0600); err != nil {
		t.Fatal(err)
	}
	later := time.Now().Add(time.Minute)
	if err := os.Chtimes(b, later, later); err != nil {
		t.Fatal(err)
	}
	if err := os.Remove(filepath.Join(root, "gone.md")); err != nil {
		t.Fatal(err)
	}

	second := newTestIndexer(t, configure, WithCatalog(catalog))
	report, err = second.BuildIndex(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if report.Restored != 1 || report.Indexed != 1 || report.Pruned != 1 {
		t.Errorf("second build: %+v", report)
	}
	if got := second.Chunks(filepath.Join(root, "a.md")); len(got) != 3 || got[0].Text != longDoc[:200] {
		t.Errorf("restored chunks differ: %d chunks", len(got))
	}
	docs, _, err := catalog.Count(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if docs != 2 {
		t.Errorf("catalog should hold 2 documents, got %d", docs)
	}

	// Different chunk options invalidate every catalog entry.
	third := newTestIndexer(t, func(c *Config) {
		configure(c)
		c.Chunk.MaxChars = 300
	}, WithCatalog(catalog))
	report, err = third.BuildIndex(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if report.Restored != 0 || report.Indexed != 2 {
		t.Errorf("third build: %+v", report)
	}
}

func TestWalkAndAccepts(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{"x/a.md": shortDoc, "x/b.md": shortDoc, "x/c.bin": "binary", "x/.cache/d.md": "hidden", "x/.notes.md": "hidden file"})
	idx := newTestIndexer(t, func(c *Config) { c.Extensions = []string{".md"} })
	var visited []string
	if err := idx.Walk(context.Background(), filepath.Join(root, "x"), func(p string) { visited = append(visited, p) }); err != nil {
		t.Fatal(err)
	}
	want := []string{filepath.Join(root, "x", "a.md"), filepath.Join(root, "x", "b.md")}
	if strings.Join(visited, ",") != strings.Join(want, ",") {
		t.Errorf("Walk visited %v, want %v", visited, want)
	}
	visited = nil
	file := filepath.Join(root, "x", "c.bin")
	if err := idx.Walk(context.Background(), file, func(p string) { visited = append(visited, p) }); err != nil {
		t.Fatal(err)
	}
	if len(visited) != 1 || visited[0] != file {
		t.Errorf("file root should be visited directly, got %v", visited)
	}
	if !idx.Accepts("/any/notes.MD") || idx.Accepts("/any/.notes.md") || idx.Accepts("/any/c.bin") {
		t.Error("Accepts does not follow the allow-list")
	}
	for _, p := range visited {
		if !idx.Accepts(p) {
			t.Errorf("Walk visited %s, which Accepts rejects", p)
		}
	}
	report, err := idx.BuildIndex(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := idx.Entry(filepath.Join(root, "x", ".notes.md")); ok {
		t.Errorf("hidden file was indexed: %+v", report)
	}
}

func TestExtensionAllowed(t *testing.T) {
	tests := []struct {
		ext     string
		allowed []string
		want    bool
	}{
		{".txt", []string{".txt", ".md"}, true},
		{".TXT", []string{".txt"}, true},
		{".md", []string{"txt", "md"}, true},
		{".go", []string{".txt"}, false},
		{"", []string{".txt"}, false},
	}
	for _, tt := range tests {
		if got := ExtensionAllowed(tt.ext, tt.allowed); got != tt.want {
			t.Errorf("ExtensionAllowed(%q, %v) = %v, want %v", tt.ext, tt.allowed, got, tt.want)
		}
	}
}
