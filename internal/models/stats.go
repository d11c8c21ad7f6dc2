package models

import "time"

// IndexStats are the Indexer counters.
type IndexStats struct {
	Documents     int       `json:"documents"`
	Chunks        int       `json:"chunks"`
	ContentLength int       `json:"content_length"`
	LastUpdated   time.Time `json:"last_updated,omitempty"`
}

// EmbeddingStats are the Embedding Manager counters.
type EmbeddingStats struct {
	Enabled          bool   `json:"enabled"`
	Model            string `json:"model,omitempty"`
	Embeddings       int    `json:"embeddings"`
	Dimensions       int    `json:"dimensions"`
	Documents        int    `json:"documents"`
	Failures         int64  `json:"failures"`
	WorkerState      string `json:"worker_state,omitempty"`
	PendingRequests  int    `json:"pending_requests"`
	QueryCacheHits   int64  `json:"query_cache_hits"`
	QueryCacheMisses int64  `json:"query_cache_misses"`
}

// Stats is the aggregate view exposed by the pipeline.
type Stats struct {
	RAGEnabled bool           `json:"rag_enabled"`
	Index      IndexStats     `json:"index"`
	Embedding  EmbeddingStats `json:"embedding"`
}
