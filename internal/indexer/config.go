package indexer

import (
	"github.com/hyperjump/ragcore/internal/chunker"
	"github.com/hyperjump/ragcore/internal/retriever"
)

// Lexical scorer names.
const (
	ScorerOverlap = "overlap"
	ScorerBM25    = "bm25"
)

// Defaults applied by New when a field is zero.
const (
	DefaultTopK    = 5
	DefaultMaxTopK = 100
)

// Config configures an Indexer.
type Config struct {
	// Enabled turns retrieval on. A disabled Indexer still accepts documents
	// but Search returns empty results.
	Enabled bool
	// Paths are the roots walked by BuildIndex: files or directories.
	Paths []string
	// Extensions is the allow-list applied inside directory roots. Empty
	// means every extension the extractor supports.
	Extensions []string
	Chunk      chunker.Options
	Retrieval  RetrievalConfig
}

// RetrievalConfig configures search.
type RetrievalConfig struct {
	TopK           int
	MaxTopK        int
	MinScore       float64
	Mode           retriever.Mode
	Scorer         string
	KeywordWeight  float64
	SemanticWeight float64
}

func (c *Config) applyDefaults() {
	if c.Retrieval.TopK <= 0 {
		c.Retrieval.TopK = DefaultTopK
	}
	if c.Retrieval.MaxTopK <= 0 {
		c.Retrieval.MaxTopK = DefaultMaxTopK
	}
	if c.Retrieval.Scorer == "" {
		c.Retrieval.Scorer = ScorerOverlap
	}
	if c.Retrieval.Mode == "" {
		c.Retrieval.Mode = retriever.ModeAuto
	}
	if c.Chunk == (chunker.Options{}) {
		c.Chunk = chunker.DefaultOptions()
	}
}
