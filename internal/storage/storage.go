// Package storage persists the document catalog: index entries and their
// chunks, so unchanged files can be restored on startup without re-reading.
package storage

import (
	"context"
	"errors"

	"github.com/hyperjump/ragcore/internal/models"
)

// ErrNotFound is returned when no entry exists for a path.
var ErrNotFound = errors.New("catalog entry not found")

// Catalog defines document catalog operations. Entries are keyed by path.
type Catalog interface {
	// SaveEntry replaces the entry for entry.Path together with its chunks.
	SaveEntry(ctx context.Context, entry *models.DocumentIndexEntry) error
	// GetEntry returns the entry for path including its chunks.
	GetEntry(ctx context.Context, path string) (*models.DocumentIndexEntry, error)
	DeleteEntry(ctx context.Context, path string) error
	// ListEntries returns every entry without chunks, ordered by path.
	ListEntries(ctx context.Context) ([]*models.DocumentIndexEntry, error)
	Count(ctx context.Context) (documents, chunks int64, err error)
	Close() error
}
