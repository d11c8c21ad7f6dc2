// Package keyword provides a Bleve-backed lexical scorer over the chunk corpus.
package keyword

import (
	"context"
	"fmt"
	"hash/fnv"
	"strconv"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/hyperjump/ragcore/internal/models"
)

// chunkDoc is the indexed form of a chunk.
type chunkDoc struct {
	Text   string `json:"text"`
	Path   string `json:"path"`
	Digest string `json:"digest"`
}

// textDigest fingerprints a chunk text. Chunk IDs are positional, so a hit
// only counts when the indexed text matches the corpus chunk with that ID.
func textDigest(text string) string {
	h := fnv.New64a()
	_, _ = h.Write([]byte(text))
	return strconv.FormatUint(h.Sum64(), 16)
}

// ChunkIndex is an in-memory Bleve index of chunk texts keyed by chunk ID.
// It implements retriever.LexicalScorer. Bleve indexes are safe for
// concurrent use.
type ChunkIndex struct {
	index bleve.Index
}

// NewChunkIndex creates an empty in-memory index.
func NewChunkIndex() (*ChunkIndex, error) {
	im := bleve.NewIndexMapping()

	docMapping := bleve.NewDocumentMapping()
	textFieldMapping := bleve.NewTextFieldMapping()
	// Standard analyzer lower-cases and drops English stopwords without
	// stemming, so "bayes" only matches the word itself.
	textFieldMapping.Analyzer = standard.Name
	textFieldMapping.Store = false
	docMapping.AddFieldMappingsAt("text", textFieldMapping)
	pathFieldMapping := bleve.NewKeywordFieldMapping()
	pathFieldMapping.Store = false
	docMapping.AddFieldMappingsAt("path", pathFieldMapping)
	digestFieldMapping := bleve.NewKeywordFieldMapping()
	digestFieldMapping.Store = true
	docMapping.AddFieldMappingsAt("digest", digestFieldMapping)
	im.AddDocumentMapping("chunk", docMapping)
	im.DefaultType = "chunk"
	im.DefaultMapping = docMapping

	index, err := bleve.NewMemOnly(im)
	if err != nil {
		return nil, fmt.Errorf("failed to create Bleve index: %w", err)
	}
	return &ChunkIndex{index: index}, nil
}

// Index adds or replaces chunks in one batch.
func (c *ChunkIndex) Index(ctx context.Context, chunks []models.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	batch := c.index.NewBatch()
	for _, ch := range chunks {
		if err := batch.Index(ch.ID, chunkDoc{Text: ch.Text, Path: ch.SourcePath, Digest: textDigest(ch.Text)}); err != nil {
			return fmt.Errorf("index chunk %s: %w", ch.ID, err)
		}
	}
	if err := c.index.Batch(batch); err != nil {
		return fmt.Errorf("Bleve batch failed: %w", err)
	}
	return nil
}

// Delete removes chunks by ID. Unknown IDs are ignored.
func (c *ChunkIndex) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	batch := c.index.NewBatch()
	for _, id := range ids {
		batch.Delete(id)
	}
	if err := c.index.Batch(batch); err != nil {
		return fmt.Errorf("Bleve batch delete failed: %w", err)
	}
	return nil
}

// LexicalScores runs a match query over chunk texts and returns Bleve scores
// normalised by the best hit, aligned with corpus. Chunks missing from the
// index, or indexed with different text, score 0.
func (c *ChunkIndex) LexicalScores(ctx context.Context, query string, corpus []models.Chunk) ([]float64, error) {
	scores := make([]float64, len(corpus))
	if len(corpus) == 0 {
		return scores, nil
	}
	q := bleve.NewMatchQuery(query)
	q.SetField("text")
	req := bleve.NewSearchRequest(q)
	req.Size = len(corpus)
	req.Fields = []string{"digest"}
	res, err := c.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("Bleve search failed: %w", err)
	}
	hits := make(map[string]float64, len(res.Hits))
	digests := make(map[string]string, len(res.Hits))
	for _, hit := range res.Hits {
		hits[hit.ID] = hit.Score
		digests[hit.ID], _ = hit.Fields["digest"].(string)
	}
	maxScore := 0.0
	for i, ch := range corpus {
		s, ok := hits[ch.ID]
		if !ok || digests[ch.ID] != textDigest(ch.Text) {
			continue
		}
		scores[i] = s
		maxScore = max(maxScore, s)
	}
	if maxScore <= 0 {
		return scores, nil
	}
	for i := range scores {
		scores[i] /= maxScore
	}
	return scores, nil
}

// DocCount returns the number of indexed chunks.
func (c *ChunkIndex) DocCount() (uint64, error) {
	return c.index.DocCount()
}

// Close closes the index.
func (c *ChunkIndex) Close() error {
	return c.index.Close()
}
