// Package fileid derives deterministic document and chunk IDs from file paths.
package fileid

import (
	"crypto/sha256"
	"encoding/hex"
	"path/filepath"
	"strconv"
	"strings"
)

const (
	prefix    = "doc:"
	separator = "#"
)

// DocID returns a stable document ID for the given absolute path.
// Same path always yields the same ID.
func DocID(absolutePath string) string {
	normalized := filepath.Clean(absolutePath)
	hash := sha256.Sum256([]byte(normalized))
	return prefix + hex.EncodeToString(hash[:12])
}

// ChunkPrefix returns the prefix shared by every chunk ID of docID.
func ChunkPrefix(docID string) string {
	return docID + separator
}

// ChunkID returns the ID of the chunk at index within docID.
func ChunkID(docID string, index int) string {
	return ChunkPrefix(docID) + strconv.Itoa(index)
}

// OwnedBy reports whether chunkID belongs to docID.
func OwnedBy(chunkID, docID string) bool {
	return strings.HasPrefix(chunkID, ChunkPrefix(docID))
}

// DocIDForPath resolves path to an absolute path and returns its document ID
// together with the absolute path.
func DocIDForPath(path string) (docID, absPath string, err error) {
	absPath, err = filepath.Abs(path)
	if err != nil {
		return "", "", err
	}
	absPath = filepath.Clean(absPath)
	return DocID(absPath), absPath, nil
}

// DocOf returns the document ID part of a chunk ID, or "" when chunkID has no
// chunk separator.
func DocOf(chunkID string) string {
	i := strings.LastIndex(chunkID, separator)
	if i <= 0 {
		return ""
	}
	return chunkID[:i]
}
