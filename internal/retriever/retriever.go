// Package retriever scores a chunk corpus against a query and selects the
// top-K chunks. Scoring is lexical (term coverage or BM25), vector (cosine) or
// a weighted fusion of both.
package retriever

import (
	"context"
	"fmt"
	"sort"

	"github.com/hyperjump/ragcore/internal/models"
)

// Mode selects which signals are used to score chunks.
type Mode string

const (
	// ModeAuto uses hybrid scoring when a query vector is available, lexical otherwise.
	ModeAuto     Mode = "auto"
	ModeLexical  Mode = "lexical"
	ModeSemantic Mode = "semantic"
	ModeHybrid   Mode = "hybrid"
)

// ParseMode validates a configured mode. The empty string means ModeAuto.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(s); m {
	case "":
		return ModeAuto, nil
	case ModeAuto, ModeLexical, ModeSemantic, ModeHybrid:
		return m, nil
	}
	return "", fmt.Errorf("unknown retrieval mode %q", s)
}

// Resolve returns the mode actually used for a query. Vector modes fall back
// to lexical without a query vector.
func (m Mode) Resolve(hasQueryVector bool) Mode {
	if !hasQueryVector {
		return ModeLexical
	}
	if m == ModeAuto || m == "" {
		return ModeHybrid
	}
	return m
}

// Options bound a retrieval. TopK <= 0 means no limit.
type Options struct {
	TopK     int
	MinScore float64
}

// Scores holds per-chunk scores aligned with the corpus they were computed for.
// Keyword and Semantic may be nil.
type Scores struct {
	Total    []float64
	Keyword  []float64
	Semantic []float64
}

// Retrieve drops chunks scoring zero or below MinScore, so a MinScore of 0
// or less still excludes chunks with no relevance. It sorts the rest by
// descending score with ties kept in corpus order, truncates to TopK and
// assigns 1-based ranks.
func Retrieve(corpus []models.Chunk, scores Scores, opts Options) []models.RankedChunk {
	if len(corpus) == 0 {
		return []models.RankedChunk{}
	}
	idx := make([]int, 0, len(corpus))
	for i := range corpus {
		if i >= len(scores.Total) {
			break
		}
		s := scores.Total[i]
		if s <= 0 || s < opts.MinScore {
			continue
		}
		idx = append(idx, i)
	}
	sort.SliceStable(idx, func(a, b int) bool {
		return scores.Total[idx[a]] > scores.Total[idx[b]]
	})
	if opts.TopK > 0 && len(idx) > opts.TopK {
		idx = idx[:opts.TopK]
	}
	out := make([]models.RankedChunk, len(idx))
	for rank, i := range idx {
		out[rank] = models.RankedChunk{
			Chunk:         corpus[i],
			Score:         scores.Total[i],
			KeywordScore:  at(scores.Keyword, i),
			SemanticScore: at(scores.Semantic, i),
			Rank:          rank + 1,
		}
	}
	return out
}

func at(s []float64, i int) float64 {
	if i < len(s) {
		return s[i]
	}
	return 0
}

// Config configures a Retriever.
type Config struct {
	Mode           Mode
	KeywordWeight  float64
	SemanticWeight float64
	// Lexical defaults to OverlapScorer.
	Lexical LexicalScorer
}

// Retriever combines lexical and vector scoring according to its mode.
type Retriever struct {
	cfg Config
}

// New creates a Retriever.
func New(cfg Config) *Retriever {
	if cfg.Lexical == nil {
		cfg.Lexical = OverlapScorer{}
	}
	if cfg.Mode == "" {
		cfg.Mode = ModeAuto
	}
	return &Retriever{cfg: cfg}
}

// Query is one retrieval request. Vector is the embedded query text and may
// be nil.
type Query struct {
	Text   string
	Vector []float32
	Options
}

// Rank scores corpus for q and returns the selected chunks together with the
// mode that was used.
func (r *Retriever) Rank(ctx context.Context, q Query, corpus []models.Chunk, lookup VectorLookup) ([]models.RankedChunk, Mode, error) {
	mode := r.cfg.Mode.Resolve(len(q.Vector) > 0 && lookup != nil)
	lexical, err := r.cfg.Lexical.LexicalScores(ctx, q.Text, corpus)
	if err != nil {
		return nil, mode, fmt.Errorf("lexical scoring: %w", err)
	}
	scores := Scores{Total: lexical, Keyword: lexical}
	switch mode {
	case ModeSemantic:
		semantic, has := VectorScores(q.Vector, corpus, lookup)
		scores.Semantic = semantic
		scores.Total = Fuse(lexical, semantic, has, 0, 1)
	case ModeHybrid:
		semantic, has := VectorScores(q.Vector, corpus, lookup)
		scores.Semantic = semantic
		scores.Total = Fuse(lexical, semantic, has, r.cfg.KeywordWeight, r.cfg.SemanticWeight)
	}
	return Retrieve(corpus, scores, q.Options), mode, nil
}
