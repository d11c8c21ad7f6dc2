package embedding

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/hyperjump/ragcore/internal/worker"
)

// WorkerClient is the part of worker.Supervisor the embedder needs.
type WorkerClient interface {
	Start(ctx context.Context) error
	Embed(ctx context.Context, texts []string, model string) ([][]float32, error)
	Shutdown(ctx context.Context) error
	State() worker.State
	Pending() int
}

// WorkerEmbedder embeds text through an external worker process. The worker
// is started on first use and restarted on the next call after a crash.
// Single-text embeddings (queries) are cached.
type WorkerEmbedder struct {
	client     WorkerClient
	model      string
	cache      *QueryCache
	dimensions atomic.Int64
}

// NewWorkerEmbedder wraps client. dimensions may be 0, in which case it is
// learned from the first response.
func NewWorkerEmbedder(client WorkerClient, model string, dimensions, cacheSize int) *WorkerEmbedder {
	e := &WorkerEmbedder{
		client: client,
		model:  model,
		cache:  NewQueryCache(cacheSize),
	}
	e.dimensions.Store(int64(dimensions))
	return e
}

func (e *WorkerEmbedder) ensureStarted(ctx context.Context) error {
	switch e.client.State() {
	case worker.StateReady, worker.StateBusy:
		return nil
	}
	return e.client.Start(ctx)
}

// Embed returns the embedding of a single text.
func (e *WorkerEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if v, ok := e.cache.Lookup(text); ok {
		return v, nil
	}
	vecs, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	e.cache.Remember(text, vecs[0])
	return vecs[0], nil
}

// EmbedBatch returns one vector per text, in order.
func (e *WorkerEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	if err := e.ensureStarted(ctx); err != nil {
		return nil, fmt.Errorf("start embedding worker: %w", err)
	}
	vecs, err := e.client.Embed(ctx, texts, e.model)
	if err != nil {
		return nil, err
	}
	if dim := int64(len(vecs[0])); dim > 0 {
		e.dimensions.CompareAndSwap(0, dim)
	}
	return vecs, nil
}

// Dimensions returns the configured or learned vector size.
func (e *WorkerEmbedder) Dimensions() int {
	return int(e.dimensions.Load())
}

// WorkerState reports the supervisor state.
func (e *WorkerEmbedder) WorkerState() string {
	return e.client.State().String()
}

// PendingRequests reports how many worker requests are in flight.
func (e *WorkerEmbedder) PendingRequests() int {
	return e.client.Pending()
}

// Close shuts the worker down.
func (e *WorkerEmbedder) Close() error {
	return e.client.Shutdown(context.Background())
}

// CacheCounters returns the query cache hit and miss totals.
func (e *WorkerEmbedder) CacheCounters() (hits, misses int64) {
	return e.cache.Counters()
}
