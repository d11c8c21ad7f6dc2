package rag

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/hyperjump/ragcore/internal/models"
	"github.com/hyperjump/ragcore/pkg/utils"
	"go.uber.org/zap"
)

// ContextInjector hands retrieved context to the downstream generation step.
type ContextInjector interface {
	Inject(ctx context.Context, rc *models.RAGContext) error
}

// InjectorFunc adapts a function to ContextInjector.
type InjectorFunc func(ctx context.Context, rc *models.RAGContext) error

// Inject calls f.
func (f InjectorFunc) Inject(ctx context.Context, rc *models.RAGContext) error {
	return f(ctx, rc)
}

// JSONInjector writes each context as one JSON line.
type JSONInjector struct {
	mu sync.Mutex
	w  io.Writer
}

// NewJSONInjector returns an injector writing to w.
func NewJSONInjector(w io.Writer) *JSONInjector {
	return &JSONInjector{w: w}
}

// Inject encodes rc to the writer.
func (j *JSONInjector) Inject(_ context.Context, rc *models.RAGContext) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return json.NewEncoder(j.w).Encode(rc)
}

// logInjector records each context as a trace event. It is the default.
type logInjector struct {
	trace *utils.Tracer
}

func (l logInjector) Inject(_ context.Context, rc *models.RAGContext) error {
	l.trace.Debug("context_injected",
		zap.String("query", utils.Snippet(rc.Query, 80)),
		zap.Int("chunks", len(rc.Chunks)),
		zap.Int("total_chunks", rc.TotalChunks),
	)
	return nil
}

// FormatContext renders rc as a prompt block: one numbered source per chunk
// with its path, position and score, followed by the chunk text.
func FormatContext(rc *models.RAGContext) string {
	if rc == nil || len(rc.Chunks) == 0 {
		return ""
	}
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Relevant context for: %s\n\n", rc.Query))
	for _, rk := range rc.Chunks {
		ch := rk.Chunk
		sb.WriteString(fmt.Sprintf("[%d] %s (chunk %d, chars %d-%d, score %.3f)\n",
			rk.Rank, ch.SourcePath, ch.Offset.Index, ch.Offset.Start, ch.Offset.End, rk.Score))
		if ch.Offset.Heading != "" {
			sb.WriteString(fmt.Sprintf("Section: %s\n", ch.Offset.Heading))
		}
		sb.WriteString(strings.TrimSpace(ch.Text))
		sb.WriteString("\n\n")
	}
	return strings.TrimRight(sb.String(), "\n") + "\n"
}
