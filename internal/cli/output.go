// Package cli renders search results, contexts and stats for the command line.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/hyperjump/ragcore/internal/models"
	"github.com/hyperjump/ragcore/internal/rag"
	"github.com/hyperjump/ragcore/pkg/utils"
)

// OutputFormat selects how results are written.
type OutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText OutputFormat = "text"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON OutputFormat = "json"
)

// snippetRunes bounds the chunk text shown per hit in text output.
const snippetRunes = 200

// WriteSearchResults writes a search result to w in the given format.
// Unknown formats fall back to text.
func WriteSearchResults(w io.Writer, res *models.SearchResult, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, res)
	}
	mode := res.Mode
	if mode == "" {
		mode = "none"
	}
	fmt.Fprintf(w, "\nFound %d of %d chunks in %dms (mode: %s)\n\n",
		len(res.RetrievedChunks), res.TotalChunks, res.SearchDurationMs, mode)
	for _, rc := range res.RetrievedChunks {
		writeHit(w, rc)
	}
	return nil
}

func writeHit(w io.Writer, rc models.RankedChunk) {
	c := rc.Chunk
	fmt.Fprintln(w, strings.Repeat("─", 57))
	fmt.Fprintf(w, "Rank: %d | Score: %.4f (Keyword: %.4f, Semantic: %.4f)\n",
		rc.Rank, rc.Score, rc.KeywordScore, rc.SemanticScore)
	fmt.Fprintf(w, "Source: %s (chunk %d, chars %d-%d)\n", c.SourcePath, c.Offset.Index, c.Offset.Start, c.Offset.End)
	if c.Offset.Heading != "" {
		fmt.Fprintf(w, "Section: %s\n", c.Offset.Heading)
	}
	fmt.Fprintf(w, "\n%s\n\n", utils.Snippet(c.Text, snippetRunes))
}

// WriteContext writes a retrieval context: the prompt block in text format,
// the full context in JSON.
func WriteContext(w io.Writer, rc *models.RAGContext, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, rc)
	}
	text := rag.FormatContext(rc)
	if text == "" {
		text = fmt.Sprintf("No relevant context for: %s\n", rc.Query)
	}
	_, err := io.WriteString(w, text)
	return err
}

// WriteStats writes pipeline counters.
func WriteStats(w io.Writer, st models.Stats, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, st)
	}
	fmt.Fprintf(w, "RAG enabled:      %t\n", st.RAGEnabled)
	fmt.Fprintf(w, "Documents:        %d\n", st.Index.Documents)
	fmt.Fprintf(w, "Chunks:           %d\n", st.Index.Chunks)
	fmt.Fprintf(w, "Content length:   %d\n", st.Index.ContentLength)
	if !st.Index.LastUpdated.IsZero() {
		fmt.Fprintf(w, "Last updated:     %s\n", st.Index.LastUpdated.Format("2006-01-02 15:04:05"))
	}
	e := st.Embedding
	if !e.Enabled {
		fmt.Fprintln(w, "Embeddings:       disabled")
		return nil
	}
	fmt.Fprintf(w, "Embeddings:       %d (%d documents, %d dims, model %s)\n", e.Embeddings, e.Documents, e.Dimensions, e.Model)
	fmt.Fprintf(w, "Embedding errors: %d\n", e.Failures)
	if e.WorkerState != "" {
		fmt.Fprintf(w, "Worker:           %s (%d pending)\n", e.WorkerState, e.PendingRequests)
	}
	if lookups := e.QueryCacheHits + e.QueryCacheMisses; lookups > 0 {
		fmt.Fprintf(w, "Query cache:      %d/%d hits\n", e.QueryCacheHits, lookups)
	}
	return nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
