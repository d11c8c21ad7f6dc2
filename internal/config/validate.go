package config

import (
	"errors"
	"fmt"

	"github.com/hyperjump/ragcore/internal/chunker"
	"github.com/hyperjump/ragcore/internal/retriever"
)

// ChunkOptions converts the chunk section to chunker options.
func (c ChunkConfig) ChunkOptions() chunker.Options {
	return chunker.Options{
		MaxChars:         c.MaxChars,
		Overlap:          c.OverlapOrDefault(),
		MinChars:         c.MinCharsOrDefault(),
		Strategy:         chunker.Strategy(c.Strategy),
		RespectStructure: c.RespectStructure,
	}
}

// Validate reports every invalid setting in cfg.
func (cfg *Config) Validate() error {
	var errs []error
	if err := cfg.RAG.Chunk.ChunkOptions().Validate(); err != nil {
		errs = append(errs, fmt.Errorf("rag.chunk: %w", err))
	}
	r := cfg.RAG.Retrieval
	if _, err := retriever.ParseMode(r.Mode); err != nil {
		errs = append(errs, fmt.Errorf("rag.retrieval.mode: %w", err))
	}
	switch r.Scorer {
	case "overlap", "bm25":
	default:
		errs = append(errs, fmt.Errorf("rag.retrieval.scorer: unknown scorer %q", r.Scorer))
	}
	if r.TopK < 0 || r.MaxTopK < 0 {
		errs = append(errs, errors.New("rag.retrieval: top_k and max_top_k must not be negative"))
	}
	if r.MinScore < 0 || r.MinScore > 1 {
		errs = append(errs, fmt.Errorf("rag.retrieval.min_score: %v is outside [0, 1]", r.MinScore))
	}
	if r.KeywordWeight < 0 || r.SemanticWeight < 0 {
		errs = append(errs, errors.New("rag.retrieval: weights must not be negative"))
	}
	if cfg.Embedding.Enabled {
		if cfg.Embedding.Worker.Command == "" {
			errs = append(errs, errors.New("embedding.worker.command is required when embeddings are enabled"))
		}
		if cfg.Embedding.Dimensions < 0 {
			errs = append(errs, errors.New("embedding.dimensions must not be negative"))
		}
	}
	if cfg.Server.Port < 0 || cfg.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port: %d is out of range", cfg.Server.Port))
	}
	return errors.Join(errs...)
}
