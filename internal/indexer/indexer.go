// Package indexer owns the document index: entries per path, their chunks,
// and the flattened corpus that searches score.
package indexer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/hyperjump/ragcore/internal/chunker"
	"github.com/hyperjump/ragcore/internal/extract"
	"github.com/hyperjump/ragcore/internal/fileid"
	"github.com/hyperjump/ragcore/internal/keyword"
	"github.com/hyperjump/ragcore/internal/models"
	"github.com/hyperjump/ragcore/internal/retriever"
	"github.com/hyperjump/ragcore/internal/storage"
	"github.com/hyperjump/ragcore/pkg/utils"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ErrEmptyPath is returned when a document is added without a path.
var ErrEmptyPath = errors.New("document path cannot be empty")

// Indexer holds one entry per indexed path. Mutations are serialized; each
// publishes a new immutable corpus snapshot that searches read without
// blocking writers.
type Indexer struct {
	cfg       Config
	chunker   *chunker.Chunker
	retriever *retriever.Retriever
	extractor *extract.Extractor
	keyword   *keyword.ChunkIndex
	catalog   storage.Catalog
	trace     *utils.Tracer

	mu            sync.RWMutex
	entries       map[string]*models.DocumentIndexEntry
	order         []string
	corpus        []models.Chunk
	contentLength int
	lastUpdated   time.Time

	// catalogMu orders catalog writes the same way as index mutations.
	catalogMu sync.Mutex
}

// Option configures an Indexer.
type Option func(*Indexer)

// WithLogger sets the logger for index events.
func WithLogger(l *zap.Logger) Option {
	return func(idx *Indexer) { idx.trace = utils.NewTracer(l, "indexer") }
}

// WithCatalog mirrors every mutation to catalog and lets BuildIndex restore
// unchanged files from it.
func WithCatalog(c storage.Catalog) Option {
	return func(idx *Indexer) { idx.catalog = c }
}

// WithExtractor replaces the default extractor.
func WithExtractor(e *extract.Extractor) Option {
	return func(idx *Indexer) { idx.extractor = e }
}

// New creates an empty Indexer.
func New(cfg Config, opts ...Option) (*Indexer, error) {
	cfg.applyDefaults()
	ch, err := chunker.New(cfg.Chunk)
	if err != nil {
		return nil, err
	}
	idx := &Indexer{
		cfg:       cfg,
		chunker:   ch,
		extractor: extract.NewExtractor(),
		trace:     utils.NewTracer(nil, "indexer"),
		entries:   make(map[string]*models.DocumentIndexEntry),
		corpus:    []models.Chunk{},
	}
	for _, opt := range opts {
		opt(idx)
	}

	rcfg := retriever.Config{
		Mode:           cfg.Retrieval.Mode,
		KeywordWeight:  cfg.Retrieval.KeywordWeight,
		SemanticWeight: cfg.Retrieval.SemanticWeight,
	}
	switch cfg.Retrieval.Scorer {
	case ScorerOverlap:
	case ScorerBM25:
		kw, err := keyword.NewChunkIndex()
		if err != nil {
			return nil, err
		}
		idx.keyword = kw
		rcfg.Lexical = kw
	default:
		return nil, fmt.Errorf("unknown lexical scorer %q", cfg.Retrieval.Scorer)
	}
	idx.retriever = retriever.New(rcfg)
	return idx, nil
}

// Config returns the effective configuration.
func (idx *Indexer) Config() Config {
	return idx.cfg
}

// AddDocument indexes in, replacing any previous entry for the same path.
// When in.Content is nil the file is read through the extractor.
func (idx *Indexer) AddDocument(ctx context.Context, in models.DocumentInput) (*models.DocumentIndexEntry, error) {
	start := time.Now()
	if strings.TrimSpace(in.Path) == "" {
		return nil, ErrEmptyPath
	}
	docID, absPath, err := fileid.DocIDForPath(in.Path)
	if err != nil {
		return nil, fmt.Errorf("resolve path: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var (
		text    string
		size    int64
		modTime time.Time
	)
	if in.Content != nil {
		text = *in.Content
		size = int64(len(text))
		modTime = time.Now().UTC()
	} else {
		info, err := os.Stat(absPath)
		if err != nil {
			return nil, fmt.Errorf("stat file: %w", err)
		}
		if !info.Mode().IsRegular() {
			return nil, fmt.Errorf("not a regular file: %s", absPath)
		}
		if text, err = idx.extractor.Extract(absPath); err != nil {
			return nil, fmt.Errorf("extract content: %w", err)
		}
		size = info.Size()
		modTime = info.ModTime().UTC()
	}

	chunks := idx.chunker.Chunk(docID, absPath, text)
	entry := &models.DocumentIndexEntry{
		ID:           docID,
		Path:         absPath,
		Chunks:       chunks,
		LastModified: modTime,
		Metadata: models.EntryMetadata{
			ChunkCount:     len(chunks),
			ContentLength:  utf8.RuneCountInString(text),
			Size:           size,
			ChunkSignature: idx.cfg.Chunk.Signature(),
		},
	}
	if err := idx.install(ctx, entry); err != nil {
		return nil, err
	}
	idx.trace.Timed(zapcore.DebugLevel, "document_indexed", start,
		zap.String("path", absPath), zap.Int("chunks", len(chunks)))
	return entry, nil
}

// install swaps entry in and persists it to the catalog.
func (idx *Indexer) install(ctx context.Context, entry *models.DocumentIndexEntry) error {
	idx.mu.Lock()
	var oldIDs []string
	if old, ok := idx.entries[entry.Path]; ok {
		oldIDs = chunkIDs(old.Chunks)
		idx.contentLength -= old.Metadata.ContentLength
		idx.order = removePath(idx.order, entry.Path)
	}
	if idx.keyword != nil {
		if err := idx.keyword.Delete(ctx, oldIDs); err != nil {
			idx.mu.Unlock()
			return fmt.Errorf("update keyword index: %w", err)
		}
		if err := idx.keyword.Index(ctx, entry.Chunks); err != nil {
			// Keep the index and entries consistent: the old entry is gone
			// from the keyword index, so drop it here too.
			delete(idx.entries, entry.Path)
			idx.publishLocked()
			idx.mu.Unlock()
			return fmt.Errorf("update keyword index: %w", err)
		}
	}
	idx.entries[entry.Path] = entry
	idx.order = append(idx.order, entry.Path)
	idx.contentLength += entry.Metadata.ContentLength
	idx.publishLocked()
	idx.catalogMu.Lock()
	idx.mu.Unlock()
	defer idx.catalogMu.Unlock()

	if idx.catalog != nil {
		if err := idx.catalog.SaveEntry(ctx, entry); err != nil {
			idx.trace.Warn("catalog_save_failed", err, zap.String("path", entry.Path))
		}
	}
	return nil
}

// RemoveDocument drops the entry for path and its chunks. It reports whether
// anything was removed.
func (idx *Indexer) RemoveDocument(ctx context.Context, path string) bool {
	if strings.TrimSpace(path) == "" {
		return false
	}
	_, absPath, err := fileid.DocIDForPath(path)
	if err != nil {
		return false
	}

	idx.mu.Lock()
	old, ok := idx.entries[absPath]
	if !ok {
		idx.mu.Unlock()
		return false
	}
	delete(idx.entries, absPath)
	idx.order = removePath(idx.order, absPath)
	idx.contentLength -= old.Metadata.ContentLength
	if idx.keyword != nil {
		if err := idx.keyword.Delete(ctx, chunkIDs(old.Chunks)); err != nil {
			idx.trace.Warn("keyword_delete_failed", err, zap.String("path", absPath))
		}
	}
	idx.publishLocked()
	idx.catalogMu.Lock()
	idx.mu.Unlock()
	defer idx.catalogMu.Unlock()

	if idx.catalog != nil {
		if err := idx.catalog.DeleteEntry(ctx, absPath); err != nil {
			idx.trace.Warn("catalog_delete_failed", err, zap.String("path", absPath))
		}
	}
	idx.trace.Debug("document_removed", zap.String("path", absPath), zap.Int("chunks", len(old.Chunks)))
	return true
}

// publishLocked rebuilds the corpus snapshot in document order. Callers hold mu.
func (idx *Indexer) publishLocked() {
	n := 0
	for _, p := range idx.order {
		n += len(idx.entries[p].Chunks)
	}
	corpus := make([]models.Chunk, 0, n)
	for _, p := range idx.order {
		corpus = append(corpus, idx.entries[p].Chunks...)
	}
	idx.corpus = corpus
	idx.lastUpdated = time.Now().UTC()
}

func (idx *Indexer) snapshot() []models.Chunk {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.corpus
}

// SearchOptions carries the optional semantic inputs of a search.
type SearchOptions struct {
	QueryVector []float32
	Lookup      retriever.VectorLookup
}

// Search scores the current corpus for q.
func (idx *Indexer) Search(ctx context.Context, q models.SearchQuery, opts SearchOptions) (*models.SearchResult, error) {
	start := time.Now()
	if !idx.cfg.Enabled {
		return &models.SearchResult{Query: q.Query, RetrievedChunks: []models.RankedChunk{}}, nil
	}
	if err := q.Validate(idx.cfg.Retrieval.TopK, idx.cfg.Retrieval.MaxTopK); err != nil {
		return nil, err
	}

	corpus := idx.snapshot()
	ranked, mode, err := idx.retriever.Rank(ctx, retriever.Query{
		Text:    q.Query,
		Vector:  opts.QueryVector,
		Options: retriever.Options{TopK: q.TopK, MinScore: q.MinScoreOr(idx.cfg.Retrieval.MinScore)},
	}, corpus, opts.Lookup)
	if err != nil {
		return nil, err
	}
	elapsed := time.Since(start)
	idx.trace.Debug("search",
		zap.String("query", utils.Snippet(q.Query, 80)),
		zap.String("mode", string(mode)),
		zap.Int("results", len(ranked)),
		zap.Int("corpus", len(corpus)),
		utils.DurationMs(elapsed),
	)
	return &models.SearchResult{
		Query:            q.Query,
		RetrievedChunks:  ranked,
		TotalChunks:      len(corpus),
		SearchDurationMs: elapsed.Milliseconds(),
		Mode:             string(mode),
	}, nil
}

// Chunks returns the chunks currently indexed for path, or nil.
func (idx *Indexer) Chunks(path string) []models.Chunk {
	_, absPath, err := fileid.DocIDForPath(path)
	if err != nil {
		return nil
	}
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	e, ok := idx.entries[absPath]
	if !ok {
		return nil
	}
	return append([]models.Chunk(nil), e.Chunks...)
}

// Entry returns the entry for path without its chunks.
func (idx *Indexer) Entry(path string) (models.DocumentIndexEntry, bool) {
	_, absPath, err := fileid.DocIDForPath(path)
	if err != nil {
		return models.DocumentIndexEntry{}, false
	}
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	e, ok := idx.entries[absPath]
	if !ok {
		return models.DocumentIndexEntry{}, false
	}
	return e.Summary(), true
}

// Entries returns every entry without chunks, in corpus order.
func (idx *Indexer) Entries() []models.DocumentIndexEntry {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	out := make([]models.DocumentIndexEntry, 0, len(idx.order))
	for _, p := range idx.order {
		out = append(out, idx.entries[p].Summary())
	}
	return out
}

// Corpus returns the current corpus snapshot. Callers must not modify it.
func (idx *Indexer) Corpus() []models.Chunk {
	return idx.snapshot()
}

// Stats returns the index counters.
func (idx *Indexer) Stats() models.IndexStats {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return models.IndexStats{
		Documents:     len(idx.entries),
		Chunks:        len(idx.corpus),
		ContentLength: idx.contentLength,
		LastUpdated:   idx.lastUpdated,
	}
}

// Close releases the keyword index. The catalog is owned by the caller.
func (idx *Indexer) Close() error {
	if idx.keyword != nil {
		return idx.keyword.Close()
	}
	return nil
}

func chunkIDs(chunks []models.Chunk) []string {
	ids := make([]string, len(chunks))
	for i, ch := range chunks {
		ids[i] = ch.ID
	}
	return ids
}

func removePath(order []string, path string) []string {
	for i, p := range order {
		if p == path {
			return append(order[:i], order[i+1:]...)
		}
	}
	return order
}
