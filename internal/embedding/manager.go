package embedding

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hyperjump/ragcore/internal/fileid"
	"github.com/hyperjump/ragcore/internal/models"
	"github.com/hyperjump/ragcore/internal/vector"
	"github.com/hyperjump/ragcore/pkg/utils"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ErrDisabled is returned by the no-op manager for operations that need embeddings.
var ErrDisabled = errors.New("embeddings disabled")

// DefaultBatchSize is the number of chunk texts sent per embed request.
const DefaultBatchSize = 32

// Manager owns chunk embeddings: it generates them in batches, stores them by
// chunk ID and removes them with their document.
type Manager interface {
	Generate(ctx context.Context, chunks []models.Chunk) ([]models.Embedding, error)
	Store(e models.Embedding) error
	RemoveForDocument(path string) int
	Vector(chunkID string) ([]float32, bool)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
	Stats() models.EmbeddingStats
	Enabled() bool
	Close() error
}

// Config configures a Service.
type Config struct {
	Model     string
	BatchSize int
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the service logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Service) {
		s.trace = utils.NewTracer(l, "embedding_manager")
	}
}

// Service is the Manager backed by a real Embedder and an in-memory vector store.
type Service struct {
	embedder Embedder
	cfg      Config
	store    *vector.MemoryIndex
	trace    *utils.Tracer
	failures atomic.Int64

	mu sync.Mutex
	// byDoc maps document ID to the IDs of its stored chunk vectors.
	byDoc map[string]map[string]struct{}
}

// NewService creates a Service around embedder.
func NewService(embedder Embedder, cfg Config, opts ...Option) (*Service, error) {
	if embedder == nil {
		return nil, errors.New("embedder is required")
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	store, err := vector.NewMemoryIndex(embedder.Dimensions())
	if err != nil {
		return nil, err
	}
	s := &Service{
		embedder: embedder,
		cfg:      cfg,
		store:    store,
		trace:    utils.NewTracer(nil, "embedding_manager"),
		byDoc:    make(map[string]map[string]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Generate embeds chunk texts in batches of BatchSize. Vectors are matched to
// chunks by position, so a batch returning the wrong number of vectors fails.
// Nothing is stored; see Store.
func (s *Service) Generate(ctx context.Context, chunks []models.Chunk) ([]models.Embedding, error) {
	started := time.Now()
	out := make([]models.Embedding, 0, len(chunks))
	for lo := 0; lo < len(chunks); lo += s.cfg.BatchSize {
		hi := min(lo+s.cfg.BatchSize, len(chunks))
		batch := chunks[lo:hi]
		texts := make([]string, len(batch))
		for i, ch := range batch {
			texts[i] = ch.Text
		}
		vecs, err := s.embedder.EmbedBatch(ctx, texts)
		if err == nil && len(vecs) != len(batch) {
			err = fmt.Errorf("expected %d vectors, got %d", len(batch), len(vecs))
		}
		if err != nil {
			s.failures.Add(1)
			return nil, fmt.Errorf("embed chunks %d-%d: %w", lo, hi-1, err)
		}
		for i, ch := range batch {
			out = append(out, models.Embedding{
				ChunkID:    ch.ID,
				Vector:     vecs[i],
				Model:      s.cfg.Model,
				Dimensions: len(vecs[i]),
			})
		}
	}
	s.trace.Timed(zapcore.DebugLevel, "generate", started, zap.Int("chunks", len(chunks)))
	return out, nil
}

// Store saves one embedding, replacing any previous vector for the chunk.
func (s *Service) Store(e models.Embedding) error {
	docID := fileid.DocOf(e.ChunkID)
	if docID == "" {
		return fmt.Errorf("chunk id %q has no document", e.ChunkID)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.store.Add(context.Background(), []string{e.ChunkID}, [][]float32{e.Vector}); err != nil {
		return fmt.Errorf("store embedding %s: %w", e.ChunkID, err)
	}
	ids := s.byDoc[docID]
	if ids == nil {
		ids = make(map[string]struct{})
		s.byDoc[docID] = ids
	}
	ids[e.ChunkID] = struct{}{}
	return nil
}

// RemoveForDocument deletes every vector of the document at path and returns
// how many were removed.
func (s *Service) RemoveForDocument(path string) int {
	docID, _, err := fileid.DocIDForPath(path)
	if err != nil {
		s.trace.Warn("remove_for_document", err, zap.String("path", path))
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := s.byDoc[docID]
	if len(ids) == 0 {
		return 0
	}
	list := make([]string, 0, len(ids))
	for id := range ids {
		list = append(list, id)
	}
	delete(s.byDoc, docID)
	removed := s.store.Remove(context.Background(), list)
	s.trace.Debug("vectors_removed", zap.String("path", path), zap.Int("count", removed))
	return removed
}

// Vector returns the stored vector of a chunk.
func (s *Service) Vector(chunkID string) ([]float32, bool) {
	return s.store.Get(chunkID)
}

// EmbedQuery embeds a query text.
func (s *Service) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vec, err := s.embedder.Embed(ctx, text)
	if err != nil {
		s.failures.Add(1)
		return nil, err
	}
	return vec, nil
}

// Stats returns the embedding counters.
func (s *Service) Stats() models.EmbeddingStats {
	s.mu.Lock()
	docs := len(s.byDoc)
	s.mu.Unlock()
	st := models.EmbeddingStats{
		Enabled:    true,
		Model:      s.cfg.Model,
		Embeddings: s.store.Size(),
		Dimensions: s.store.Dimensions(),
		Documents:  docs,
		Failures:   s.failures.Load(),
	}
	if st.Dimensions == 0 {
		st.Dimensions = s.embedder.Dimensions()
	}
	if ws, ok := s.embedder.(workerStatus); ok {
		st.WorkerState = ws.WorkerState()
		st.PendingRequests = ws.PendingRequests()
	}
	if cs, ok := s.embedder.(cacheStatus); ok {
		st.QueryCacheHits, st.QueryCacheMisses = cs.CacheCounters()
	}
	return st
}

// Enabled reports true.
func (s *Service) Enabled() bool { return true }

// Close releases the embedder and drops all vectors.
func (s *Service) Close() error {
	s.mu.Lock()
	s.byDoc = make(map[string]map[string]struct{})
	s.store.Reset()
	s.mu.Unlock()
	return s.embedder.Close()
}
