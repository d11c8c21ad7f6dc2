package models

import "time"

// RankedChunk is a scored retrieval hit.
type RankedChunk struct {
	Chunk         Chunk   `json:"chunk"`
	Score         float64 `json:"score"`
	KeywordScore  float64 `json:"keyword_score"`
	SemanticScore float64 `json:"semantic_score"`
	Rank          int     `json:"rank"`
}

// SearchResult is the response for a search over the corpus.
type SearchResult struct {
	Query            string        `json:"query"`
	RetrievedChunks  []RankedChunk `json:"retrieved_chunks"`
	TotalChunks      int           `json:"total_chunks"`
	SearchDurationMs int64         `json:"search_duration_ms"`
	// Mode is the scoring mode that produced the result (lexical, semantic, hybrid).
	Mode string `json:"mode,omitempty"`
}

// RAGContext is what gets handed to the downstream generation step.
type RAGContext struct {
	Query            string        `json:"query"`
	Chunks           []RankedChunk `json:"chunks"`
	TotalChunks      int           `json:"total_chunks"`
	SearchDurationMs int64         `json:"search_duration_ms"`
	RetrievedAt      time.Time     `json:"retrieved_at"`
}

// NewRAGContext builds a context from a search result.
func NewRAGContext(res *SearchResult, now time.Time) *RAGContext {
	return &RAGContext{
		Query:            res.Query,
		Chunks:           res.RetrievedChunks,
		TotalChunks:      res.TotalChunks,
		SearchDurationMs: res.SearchDurationMs,
		RetrievedAt:      now,
	}
}
