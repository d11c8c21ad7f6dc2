// Package models defines core data structures for chunks, index entries, queries, and results.
package models

import "time"

// ChunkOffset locates a chunk inside its source document. Start and End are
// rune offsets into the original text (End exclusive).
type ChunkOffset struct {
	Index   int    `json:"index"`
	Start   int    `json:"start"`
	End     int    `json:"end"`
	Heading string `json:"heading,omitempty"`
}

// Chunk is a bounded contiguous span of a document's text, the unit of retrieval.
type Chunk struct {
	ID         string      `json:"id"`
	DocumentID string      `json:"document_id"`
	SourcePath string      `json:"source_path"`
	Text       string      `json:"text"`
	Offset     ChunkOffset `json:"offset"`
}

// EntryMetadata holds per-document counters.
type EntryMetadata struct {
	ChunkCount    int   `json:"chunk_count"`
	ContentLength int   `json:"content_length"`
	Size          int64 `json:"size"`
	// ChunkSignature records the chunk options the entry was produced with.
	ChunkSignature string `json:"chunk_signature,omitempty"`
}

// DocumentIndexEntry is the index record for a single document path.
type DocumentIndexEntry struct {
	ID           string        `json:"id"`
	Path         string        `json:"path"`
	Chunks       []Chunk       `json:"chunks,omitempty"`
	LastModified time.Time     `json:"last_modified"`
	Metadata     EntryMetadata `json:"metadata"`
}

// Summary returns a copy of the entry without its chunks.
func (e *DocumentIndexEntry) Summary() DocumentIndexEntry {
	s := *e
	s.Chunks = nil
	return s
}

// DocumentInput is the input for adding or re-indexing a document. When Content
// is nil the document is read from Path.
type DocumentInput struct {
	Path    string  `json:"path"`
	Content *string `json:"content,omitempty"`
}

// Embedding is a vector representation of one chunk.
type Embedding struct {
	ChunkID    string    `json:"chunk_id"`
	Vector     []float32 `json:"vector"`
	Model      string    `json:"model"`
	Dimensions int       `json:"dimensions"`
}
