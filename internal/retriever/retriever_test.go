package retriever

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/hyperjump/ragcore/internal/models"
)

func TestRetrieve_EmptyCorpus(t *testing.T) {
	got := Retrieve(nil, Scores{}, Options{TopK: 5})
	if got == nil || len(got) != 0 {
		t.Fatalf("expected empty non-nil slice, got %#v", got)
	}
}

func TestRetrieve_FilterSortTruncate(t *testing.T) {
	corpus := chunks("a", "b", "c", "d", "e")
	scores := Scores{Total: []float64{0.2, 0.9, 0.5, 0, 0.7}}
	got := Retrieve(corpus, scores, Options{TopK: 2, MinScore: 0.3})
	if len(got) != 2 {
		t.Fatalf("expected 2 results, got %d", len(got))
	}
	if got[0].Chunk.ID != corpus[1].ID || got[1].Chunk.ID != corpus[4].ID {
		t.Errorf("unexpected order: %s, %s", got[0].Chunk.ID, got[1].Chunk.ID)
	}
	for i, r := range got {
		if r.Rank != i+1 {
			t.Errorf("result %d has rank %d", i, r.Rank)
		}
		if r.Score < 0.3 {
			t.Errorf("result %d below min score: %v", i, r.Score)
		}
	}
}

func TestRetrieve_ZeroThresholdDropsIrrelevant(t *testing.T) {
	corpus := chunks("a", "b", "c")
	scores := Scores{Total: []float64{0.1, 0, 0.4}}
	for _, threshold := range []float64{0, -1} {
		got := Retrieve(corpus, scores, Options{MinScore: threshold})
		if len(got) != 2 || got[0].Chunk.ID != corpus[2].ID || got[1].Chunk.ID != corpus[0].ID {
			t.Errorf("MinScore %v: got %+v", threshold, got)
		}
	}
}

func TestRetrieve_TiesKeepCorpusOrder(t *testing.T) {
	corpus := chunks("a", "b", "c", "d")
	scores := Scores{Total: []float64{0.5, 0.8, 0.5, 0.5}}
	got := Retrieve(corpus, scores, Options{})
	var ids []string
	for _, r := range got {
		ids = append(ids, r.Chunk.ID)
	}
	want := []string{corpus[1].ID, corpus[0].ID, corpus[2].ID, corpus[3].ID}
	if !reflect.DeepEqual(ids, want) {
		t.Errorf("order = %v, want %v", ids, want)
	}
}

func TestRetrieve_ZeroScoresDropped(t *testing.T) {
	got := Retrieve(chunks("a", "b"), Scores{Total: []float64{0, 0}}, Options{})
	if len(got) != 0 {
		t.Errorf("zero scores should not be returned, got %d", len(got))
	}
}

func TestParseMode(t *testing.T) {
	for _, s := range []string{"", "auto", "lexical", "semantic", "hybrid"} {
		if _, err := ParseMode(s); err != nil {
			t.Errorf("ParseMode(%q): %v", s, err)
		}
	}
	if _, err := ParseMode("fuzzy"); err == nil {
		t.Error("expected error for unknown mode")
	}
}

func TestMode_Resolve(t *testing.T) {
	tests := []struct {
		mode Mode
		vec  bool
		want Mode
	}{
		{ModeAuto, true, ModeHybrid},
		{ModeAuto, false, ModeLexical},
		{ModeSemantic, false, ModeLexical},
		{ModeSemantic, true, ModeSemantic},
		{ModeHybrid, false, ModeLexical},
		{ModeLexical, true, ModeLexical},
	}
	for _, tt := range tests {
		if got := tt.mode.Resolve(tt.vec); got != tt.want {
			t.Errorf("%s.Resolve(%v) = %s, want %s", tt.mode, tt.vec, got, tt.want)
		}
	}
}

func TestRetriever_RankLexical(t *testing.T) {
	corpus := chunks(
		"embedding worker supervisor",
		"nothing relevant",
		"the supervisor restarts the worker",
	)
	r := New(Config{})
	got, mode, err := r.Rank(context.Background(), Query{Text: "worker supervisor", Options: Options{TopK: 10}}, corpus, nil)
	if err != nil {
		t.Fatal(err)
	}
	if mode != ModeLexical {
		t.Errorf("mode = %s, want lexical", mode)
	}
	if len(got) != 2 || got[0].Chunk.ID != corpus[0].ID || got[1].Chunk.ID != corpus[2].ID {
		t.Errorf("unexpected results %+v", got)
	}
}

func TestRetriever_RankHybrid(t *testing.T) {
	corpus := chunks("alpha text", "beta text", "gamma text")
	vectors := map[string][]float32{
		corpus[0].ID: {0, 1},
		corpus[1].ID: {1, 0},
	}
	lookup := func(id string) ([]float32, bool) {
		v, ok := vectors[id]
		return v, ok
	}
	r := New(Config{Mode: ModeHybrid, KeywordWeight: 0.5, SemanticWeight: 0.5})
	q := Query{Text: "text", Vector: []float32{1, 0}, Options: Options{TopK: 3}}
	got, mode, err := r.Rank(context.Background(), q, corpus, lookup)
	if err != nil {
		t.Fatal(err)
	}
	if mode != ModeHybrid {
		t.Errorf("mode = %s", mode)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 results, got %d", len(got))
	}
	if got[0].Chunk.ID != corpus[1].ID || got[1].Chunk.ID != corpus[2].ID || got[2].Chunk.ID != corpus[0].ID {
		t.Errorf("unexpected order: %s %s %s", got[0].Chunk.ID, got[1].Chunk.ID, got[2].Chunk.ID)
	}
	if got[1].Score != 1 || got[1].SemanticScore != 0 {
		t.Errorf("chunk without vector should keep its lexical score: %+v", got[1])
	}
}

func TestRetriever_Deterministic(t *testing.T) {
	corpus := chunks("go go", "go", "rust go", "go python", "java")
	r := New(Config{})
	q := Query{Text: "go", Options: Options{TopK: 3}}
	first, _, _ := r.Rank(context.Background(), q, corpus, nil)
	for i := 0; i < 10; i++ {
		again, _, _ := r.Rank(context.Background(), q, corpus, nil)
		if !reflect.DeepEqual(first, again) {
			t.Fatal("repeated ranking differs")
		}
	}
}

type failingScorer struct{}

func (failingScorer) LexicalScores(context.Context, string, []models.Chunk) ([]float64, error) {
	return nil, errors.New("boom")
}

func TestRetriever_LexicalError(t *testing.T) {
	r := New(Config{Lexical: failingScorer{}})
	if _, _, err := r.Rank(context.Background(), Query{Text: "x"}, chunks("x"), nil); err == nil {
		t.Error("expected scorer error")
	}
}

func BenchmarkRank(b *testing.B) {
	texts := make([]string, 2000)
	for i := range texts {
		texts[i] = "the embedding worker handles request number " + string(rune('a'+i%26)) + " with a timeout"
	}
	corpus := chunks(texts...)
	r := New(Config{})
	q := Query{Text: "worker timeout request", Options: Options{TopK: 10}}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _, _ = r.Rank(context.Background(), q, corpus, nil)
	}
}
