// Package rag wires the indexer, embedding manager, worker supervisor and
// context injector into one retrieval pipeline.
package rag

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/hyperjump/ragcore/internal/config"
	"github.com/hyperjump/ragcore/internal/embedding"
	"github.com/hyperjump/ragcore/internal/fileid"
	"github.com/hyperjump/ragcore/internal/indexer"
	"github.com/hyperjump/ragcore/internal/models"
	"github.com/hyperjump/ragcore/internal/retriever"
	"github.com/hyperjump/ragcore/internal/storage"
	"github.com/hyperjump/ragcore/internal/worker"
	"github.com/hyperjump/ragcore/pkg/utils"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"
)

// Pipeline is the retrieval core. Create it with New; it holds no globals.
type Pipeline struct {
	cfg        *config.Config
	logger     *zap.Logger
	trace      *utils.Tracer
	indexer    *indexer.Indexer
	embeddings embedding.Manager
	supervisor *worker.Supervisor
	catalog    *storage.SQLiteCatalog
	injector   ContextInjector
	locks      *keyedMutex
	now        func() time.Time

	embedder  embedding.Embedder
	closeOnce sync.Once
	closeErr  error
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithEmbedder uses e instead of a worker-backed embedder. It only applies
// when embeddings are enabled.
func WithEmbedder(e embedding.Embedder) Option {
	return func(p *Pipeline) { p.embedder = e }
}

// WithInjector sets the context injector used by Retrieve.
func WithInjector(i ContextInjector) Option {
	return func(p *Pipeline) { p.injector = i }
}

// WithClock overrides the time source for RetrievedAt.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) { p.now = now }
}

// New builds every component from cfg. A nil cfg uses the defaults.
func New(cfg *config.Config, logger *zap.Logger, opts ...Option) (*Pipeline, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	p := &Pipeline{
		cfg:    cfg,
		logger: logger,
		trace:  utils.NewTracer(logger, "pipeline"),
		locks:  newKeyedMutex(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.injector == nil {
		p.injector = logInjector{trace: p.trace}
	}

	idxOpts := []indexer.Option{indexer.WithLogger(logger)}
	if cfg.Storage.DatabasePath != "" {
		catalog, err := storage.NewSQLiteCatalog(cfg.Storage.DatabasePath)
		if err != nil {
			p.trace.Warn("catalog_unavailable", err, zap.String("path", cfg.Storage.DatabasePath))
		} else {
			p.catalog = catalog
			idxOpts = append(idxOpts, indexer.WithCatalog(catalog))
		}
	}

	idx, err := indexer.New(indexerConfig(cfg), idxOpts...)
	if err != nil {
		p.closeCatalog()
		return nil, err
	}
	p.indexer = idx

	if !cfg.Embedding.Enabled {
		p.embeddings = embedding.Noop{}
		return p, nil
	}
	if p.embedder == nil {
		w := cfg.Embedding.Worker
		p.supervisor = worker.NewSupervisor(worker.Config{
			Command:              w.Command,
			Args:                 w.Args,
			RequestTimeout:       w.RequestTimeout,
			StartupProbeInterval: w.StartupProbeInterval,
			StartupTimeout:       w.StartupTimeout,
			ShutdownGrace:        w.ShutdownGrace,
			MaxStartFailures:     w.MaxStartFailures,
		}, worker.WithLogger(logger))
		p.embedder = embedding.NewWorkerEmbedder(p.supervisor, cfg.Embedding.Model, cfg.Embedding.Dimensions, cfg.Embedding.CacheSize)
	}
	svc, err := embedding.NewService(p.embedder, embedding.Config{
		Model:     cfg.Embedding.Model,
		BatchSize: cfg.Embedding.BatchSize,
	}, embedding.WithLogger(logger))
	if err != nil {
		_ = idx.Close()
		p.closeCatalog()
		return nil, err
	}
	p.embeddings = svc
	return p, nil
}

func indexerConfig(cfg *config.Config) indexer.Config {
	r := cfg.RAG.Retrieval
	return indexer.Config{
		Enabled:    cfg.RAG.EnabledOrDefault(),
		Paths:      cfg.RAG.Paths,
		Extensions: cfg.RAG.Extensions,
		Chunk:      cfg.RAG.Chunk.ChunkOptions(),
		Retrieval: indexer.RetrievalConfig{
			TopK:           r.TopK,
			MaxTopK:        r.MaxTopK,
			MinScore:       r.MinScore,
			Mode:           retriever.Mode(r.Mode),
			Scorer:         r.Scorer,
			KeywordWeight:  r.KeywordWeight,
			SemanticWeight: r.SemanticWeight,
		},
	}
}

// Init starts the worker, builds the index from the configured roots and
// embeds every indexed document. Worker and embedding failures are logged;
// only a cancelled context fails Init.
func (p *Pipeline) Init(ctx context.Context) (indexer.BuildReport, error) {
	start := time.Now()
	if p.supervisor != nil {
		if err := p.supervisor.Start(ctx); err != nil {
			p.trace.Warn("worker_start_failed", err)
		}
	}
	report, err := p.indexer.BuildIndex(ctx)
	if err != nil {
		return report, err
	}

	if p.embeddings.Enabled() {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(max(p.cfg.Embedding.Concurrency, 1))
		for _, e := range p.indexer.Entries() {
			path := e.Path
			g.Go(func() error {
				unlock := p.locks.Lock(path)
				defer unlock()
				p.embedDocument(gctx, path)
				return gctx.Err()
			})
		}
		if err := g.Wait(); err != nil {
			return report, err
		}
	}
	stats := p.Stats()
	p.trace.Timed(zapcore.InfoLevel, "pipeline_initialized", start,
		zap.Int("documents", stats.Index.Documents),
		zap.Int("chunks", stats.Index.Chunks),
		zap.Int("embeddings", stats.Embedding.Embeddings),
	)
	return report, nil
}

// AddDocument indexes in and then replaces its embeddings. The old vectors
// are dropped before the new chunks become visible, since chunk IDs are
// positional and would otherwise pair new text with stale vectors.
// Embedding failures are logged, never returned.
func (p *Pipeline) AddDocument(ctx context.Context, in models.DocumentInput) (*models.DocumentIndexEntry, error) {
	key := lockKey(in.Path)
	unlock := p.locks.Lock(key)
	defer unlock()

	if p.embeddings.Enabled() {
		p.embeddings.RemoveForDocument(key)
	}
	entry, err := p.indexer.AddDocument(ctx, in)
	if err != nil {
		if p.embeddings.Enabled() {
			// Restore vectors for whatever version is still indexed.
			p.embedDocument(ctx, key)
		}
		return nil, err
	}
	if p.embeddings.Enabled() {
		if entry.Path != key {
			p.embeddings.RemoveForDocument(entry.Path)
		}
		p.embedDocument(ctx, entry.Path)
	}
	return entry, nil
}

// AddPath indexes a file, or every accepted file under a directory. It
// returns how many documents were indexed; per-file failures are logged.
func (p *Pipeline) AddPath(ctx context.Context, path string) (int, error) {
	n := 0
	err := p.indexer.Walk(ctx, path, func(file string) {
		if _, err := p.AddDocument(ctx, models.DocumentInput{Path: file}); err != nil {
			p.trace.Warn("add_failed", err, zap.String("path", file))
			return
		}
		n++
	})
	return n, err
}

// embedDocument generates and stores vectors for the chunks currently indexed
// at path. Callers hold the path lock.
func (p *Pipeline) embedDocument(ctx context.Context, path string) {
	chunks := p.indexer.Chunks(path)
	if len(chunks) == 0 {
		return
	}
	embs, err := p.embeddings.Generate(ctx, chunks)
	if err != nil {
		p.trace.Warn("embedding_failed", err, zap.String("path", path), zap.Int("chunks", len(chunks)))
		return
	}
	for _, e := range embs {
		if err := p.embeddings.Store(e); err != nil {
			p.trace.Warn("embedding_store_failed", err, zap.String("chunk_id", e.ChunkID))
			return
		}
	}
}

// RemoveDocument drops path from the index and its vectors from the store.
func (p *Pipeline) RemoveDocument(ctx context.Context, path string) bool {
	unlock := p.locks.Lock(lockKey(path))
	defer unlock()
	removed := p.indexer.RemoveDocument(ctx, path)
	p.embeddings.RemoveForDocument(path)
	return removed
}

// RemovePath removes the document at path, or every document under path
// when it names a directory, and returns how many were removed. The path
// does not need to exist on disk.
func (p *Pipeline) RemovePath(ctx context.Context, path string) int {
	root := lockKey(path)
	prefix := strings.TrimSuffix(root, string(filepath.Separator)) + string(filepath.Separator)
	n := 0
	for _, e := range p.indexer.Entries() {
		if e.Path != root && !strings.HasPrefix(e.Path, prefix) {
			continue
		}
		if p.RemoveDocument(ctx, e.Path) {
			n++
		}
	}
	return n
}

// Search retrieves the chunks most relevant to q. The query is embedded when
// embeddings are enabled; if that fails the search falls back to lexical
// scoring.
func (p *Pipeline) Search(ctx context.Context, q models.SearchQuery) (*models.SearchResult, error) {
	var opts indexer.SearchOptions
	if p.wantsQueryVector(q) {
		vec, err := p.embeddings.EmbedQuery(ctx, q.Query)
		if err != nil {
			p.trace.Warn("query_embedding_failed", err)
		} else {
			opts = indexer.SearchOptions{QueryVector: vec, Lookup: p.embeddings.Vector}
		}
	}
	return p.indexer.Search(ctx, q, opts)
}

func (p *Pipeline) wantsQueryVector(q models.SearchQuery) bool {
	return p.embeddings.Enabled() &&
		p.cfg.RAG.EnabledOrDefault() &&
		retriever.Mode(p.cfg.RAG.Retrieval.Mode) != retriever.ModeLexical &&
		strings.TrimSpace(q.Query) != ""
}

// Retrieve searches and hands the result to the context injector. Injector
// failures are returned together with the context.
func (p *Pipeline) Retrieve(ctx context.Context, q models.SearchQuery) (*models.RAGContext, error) {
	res, err := p.Search(ctx, q)
	if err != nil {
		return nil, err
	}
	rc := models.NewRAGContext(res, p.now().UTC())
	if err := p.injector.Inject(ctx, rc); err != nil {
		return rc, fmt.Errorf("inject context: %w", err)
	}
	return rc, nil
}

// Documents returns every indexed entry without chunks.
func (p *Pipeline) Documents() []models.DocumentIndexEntry {
	return p.indexer.Entries()
}

// Accepts reports whether path would be indexed by a directory walk.
func (p *Pipeline) Accepts(path string) bool {
	return p.indexer.Accepts(path)
}

// Roots returns the configured corpus roots.
func (p *Pipeline) Roots() []string {
	return p.indexer.Config().Paths
}

// Stats aggregates index and embedding counters.
func (p *Pipeline) Stats() models.Stats {
	return models.Stats{
		RAGEnabled: p.cfg.RAG.EnabledOrDefault(),
		Index:      p.indexer.Stats(),
		Embedding:  p.embeddings.Stats(),
	}
}

// CatalogSize returns the on-disk size of the document catalog. ok is false
// when the pipeline runs without one.
func (p *Pipeline) CatalogSize() (size int64, ok bool) {
	if p.catalog == nil {
		return 0, false
	}
	return p.catalog.SizeBytes(), true
}

// Close shuts the worker down and releases the indexes and the catalog.
// It is safe to call more than once.
func (p *Pipeline) Close() error {
	p.closeOnce.Do(func() {
		var errs []error
		if err := p.embeddings.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close embeddings: %w", err))
		}
		if err := p.indexer.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close indexer: %w", err))
		}
		if err := p.closeCatalog(); err != nil {
			errs = append(errs, fmt.Errorf("close catalog: %w", err))
		}
		p.closeErr = errors.Join(errs...)
		p.trace.Info("pipeline_closed")
	})
	return p.closeErr
}

func (p *Pipeline) closeCatalog() error {
	if p.catalog == nil {
		return nil
	}
	return p.catalog.Close()
}

// lockKey maps a path to the absolute form the indexer keys entries by.
func lockKey(path string) string {
	if _, abs, err := fileid.DocIDForPath(path); err == nil {
		return abs
	}
	return path
}
