package embedding

import (
	"context"
	"hash/fnv"
	"strings"

	"github.com/hyperjump/ragcore/pkg/utils"
)

// MockEmbedder hashes lowercased words into a fixed number of buckets. It
// needs no model, is deterministic, and texts that share words always have
// a positive cosine similarity. Used by tests and by the worker when no model
// is configured.
type MockEmbedder struct {
	dimensions int
}

// NewMockEmbedder returns a hashing embedder of the given width (384 when
// dimensions <= 0).
func NewMockEmbedder(dimensions int) *MockEmbedder {
	if dimensions <= 0 {
		dimensions = 384
	}
	return &MockEmbedder{dimensions: dimensions}
}

// Embed returns the unit-length bag-of-words vector of text. Text without
// words maps to the first basis vector.
func (e *MockEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	vec := make([]float32, e.dimensions)
	words := SplitWords(strings.ToLower(text))
	if len(words) == 0 {
		vec[0] = 1
		return vec, nil
	}
	for _, w := range words {
		primary, secondary := e.buckets(w)
		vec[primary] += 1
		vec[secondary] += 0.5
	}
	utils.NormalizeL2(vec)
	return vec, nil
}

// buckets picks two slots for word from one 64-bit hash.
func (e *MockEmbedder) buckets(word string) (int, int) {
	h := fnv.New64a()
	_, _ = h.Write([]byte(word))
	sum := h.Sum64()
	n := uint64(e.dimensions)
	return int(sum % n), int((sum >> 32) % n)
}

// EmbedBatch embeds each text in order.
func (e *MockEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for _, text := range texts {
		vec, err := e.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		out = append(out, vec)
	}
	return out, nil
}

// Dimensions returns the vector width.
func (e *MockEmbedder) Dimensions() int { return e.dimensions }

// Close does nothing.
func (e *MockEmbedder) Close() error { return nil }
