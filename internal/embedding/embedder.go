// Package embedding turns chunk text into vectors, stores them keyed by chunk
// ID and removes them with their document.
package embedding

import "context"

// Embedder produces vector embeddings for text.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	// Dimensions returns the vector size, or 0 while it is not yet known.
	Dimensions() int
	Close() error
}

// workerStatus is implemented by embedders backed by an external process.
type workerStatus interface {
	WorkerState() string
	PendingRequests() int
}

// cacheStatus is implemented by embedders that cache query vectors.
type cacheStatus interface {
	CacheCounters() (hits, misses int64)
}
