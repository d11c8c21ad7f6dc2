// Package extract turns document files into plain text for chunking.
package extract

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// ErrTooLarge is returned when a file exceeds the extractor's size limit.
var ErrTooLarge = errors.New("file too large")

// DefaultMaxFileBytes bounds the size of a single file read for indexing.
const DefaultMaxFileBytes = 64 << 20

type extractFunc func(content []byte) (string, error)

// Extractor extracts plain text from document files by extension.
// Unknown extensions are treated as plain text.
type Extractor struct {
	byExt    map[string]extractFunc
	maxBytes int64
}

// NewExtractor returns an Extractor with every supported format registered.
func NewExtractor() *Extractor {
	e := &Extractor{byExt: make(map[string]extractFunc), maxBytes: DefaultMaxFileBytes}
	for _, ext := range []string{".txt", ".md", ".markdown", ".rst", ".text", ""} {
		e.byExt[ext] = decodeText
	}
	e.byExt[".pdf"] = extractPDF
	e.byExt[".xlsx"] = extractExcel
	e.byExt[".docx"] = extractDOCX
	e.byExt[".pptx"] = extractPPTX
	for _, ext := range []string{".odt", ".odp", ".ods"} {
		e.byExt[ext] = extractODF
	}
	return e
}

// WithMaxBytes sets the largest file Extract will read. Non-positive disables the limit.
func (e *Extractor) WithMaxBytes(n int64) *Extractor {
	e.maxBytes = n
	return e
}

// Supported reports whether ext (with leading dot, any case) has a dedicated extractor.
func (e *Extractor) Supported(ext string) bool {
	_, ok := e.byExt[strings.ToLower(ext)]
	return ok
}

// Extensions returns the registered extensions, sorted.
func (e *Extractor) Extensions() []string {
	out := make([]string, 0, len(e.byExt))
	for ext := range e.byExt {
		if ext != "" {
			out = append(out, ext)
		}
	}
	sort.Strings(out)
	return out
}

// Extract reads the file at path and returns its text content.
func (e *Extractor) Extract(path string) (string, error) {
	if e.maxBytes > 0 {
		info, err := os.Stat(path)
		if err != nil {
			return "", fmt.Errorf("stat file: %w", err)
		}
		if info.Size() > e.maxBytes {
			return "", fmt.Errorf("%w: %s is %d bytes (limit %d)", ErrTooLarge, path, info.Size(), e.maxBytes)
		}
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read file: %w", err)
	}
	return e.ExtractBytes(content, filepath.Ext(path))
}

// ExtractBytes extracts text from content based on the given extension.
// ext should include the leading dot (e.g. ".pdf").
func (e *Extractor) ExtractBytes(content []byte, ext string) (string, error) {
	fn, ok := e.byExt[strings.ToLower(ext)]
	if !ok {
		fn = decodeText
	}
	return fn(content)
}
