package retriever

import (
	"context"
	"math"

	"github.com/hyperjump/ragcore/internal/models"
)

// LexicalScorer scores every chunk of a corpus against a query. The returned
// slice is aligned with corpus and holds values in [0,1].
type LexicalScorer interface {
	LexicalScores(ctx context.Context, query string, corpus []models.Chunk) ([]float64, error)
}

// VectorLookup returns the stored vector of a chunk, if any.
type VectorLookup func(chunkID string) ([]float32, bool)

// OverlapScorer is the default LexicalScorer: query-term coverage.
type OverlapScorer struct{}

// LexicalScores implements LexicalScorer.
func (OverlapScorer) LexicalScores(_ context.Context, query string, corpus []models.Chunk) ([]float64, error) {
	return LexicalScores(query, corpus), nil
}

// LexicalScores returns, for each chunk, the fraction of distinct query terms
// the chunk contains.
func LexicalScores(query string, corpus []models.Chunk) []float64 {
	scores := make([]float64, len(corpus))
	terms := QueryTerms(query)
	if len(terms) == 0 {
		return scores
	}
	for i, ch := range corpus {
		set := termSet(ch.Text)
		matched := 0
		for _, t := range terms {
			if _, ok := set[t]; ok {
				matched++
			}
		}
		scores[i] = float64(matched) / float64(len(terms))
	}
	return scores
}

// VectorScores returns the cosine similarity, clamped to [0,1], between
// queryVec and each chunk's stored vector. hasVector reports which chunks had
// a usable vector; the others score 0.
func VectorScores(queryVec []float32, corpus []models.Chunk, lookup VectorLookup) (scores []float64, hasVector []bool) {
	scores = make([]float64, len(corpus))
	hasVector = make([]bool, len(corpus))
	if len(queryVec) == 0 || lookup == nil {
		return scores, hasVector
	}
	for i, ch := range corpus {
		vec, ok := lookup(ch.ID)
		if !ok || len(vec) != len(queryVec) {
			continue
		}
		hasVector[i] = true
		scores[i] = clamp01(Cosine(queryVec, vec))
	}
	return scores, hasVector
}

// Fuse combines lexical and vector scores with the given weights, normalised
// to sum to 1. Chunks without a vector keep their lexical score.
func Fuse(lexical, semantic []float64, hasVector []bool, keywordWeight, semanticWeight float64) []float64 {
	kw, sw := normalizeWeights(keywordWeight, semanticWeight)
	out := make([]float64, len(lexical))
	for i := range lexical {
		if i < len(hasVector) && hasVector[i] {
			out[i] = kw*lexical[i] + sw*semantic[i]
			continue
		}
		out[i] = lexical[i]
	}
	return out
}

// Cosine returns the cosine similarity of a and b, or 0 if either is zero or
// their lengths differ.
func Cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

func normalizeWeights(kw, sw float64) (float64, float64) {
	if kw < 0 {
		kw = 0
	}
	if sw < 0 {
		sw = 0
	}
	sum := kw + sw
	if sum == 0 {
		return 0.5, 0.5
	}
	return kw / sum, sw / sum
}

func clamp01(v float64) float64 {
	switch {
	case math.IsNaN(v) || v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
