// Package vector provides the in-memory store for chunk embeddings.
package vector

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrDimensionMismatch is returned when a vector's length differs from the index dimension.
var ErrDimensionMismatch = errors.New("vector dimension mismatch")

// MemoryIndex stores vectors keyed by chunk ID. Adding an existing ID
// replaces its vector. Safe for concurrent use.
type MemoryIndex struct {
	mu         sync.RWMutex
	dimensions int
	vectors    map[string][]float32
}

// NewMemoryIndex creates an index. With dimensions 0 the dimension is taken
// from the first vector added.
func NewMemoryIndex(dimensions int) (*MemoryIndex, error) {
	if dimensions < 0 {
		return nil, fmt.Errorf("dimensions must not be negative")
	}
	return &MemoryIndex{
		dimensions: dimensions,
		vectors:    make(map[string][]float32),
	}, nil
}

// Add stores vectors with the given IDs. Either all vectors are stored or none.
func (m *MemoryIndex) Add(ctx context.Context, ids []string, vectors [][]float32) error {
	if len(ids) != len(vectors) {
		return fmt.Errorf("ids and vectors length mismatch")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	dim := m.dimensions
	for i := range vectors {
		if dim == 0 {
			dim = len(vectors[i])
		}
		if len(vectors[i]) == 0 || len(vectors[i]) != dim {
			return fmt.Errorf("%w: got %d, expected %d", ErrDimensionMismatch, len(vectors[i]), dim)
		}
	}
	m.dimensions = dim
	for i, id := range ids {
		vec := make([]float32, dim)
		copy(vec, vectors[i])
		m.vectors[id] = vec
	}
	return nil
}

// Get returns the vector stored for id. The slice must not be modified.
func (m *MemoryIndex) Get(id string) ([]float32, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	vec, ok := m.vectors[id]
	return vec, ok
}

// Remove deletes vectors by ID and returns how many were present.
func (m *MemoryIndex) Remove(ctx context.Context, ids []string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	removed := 0
	for _, id := range ids {
		if _, ok := m.vectors[id]; ok {
			delete(m.vectors, id)
			removed++
		}
	}
	return removed
}

// Size returns the number of vectors in the index.
func (m *MemoryIndex) Size() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.vectors)
}

// Dimensions returns the vector dimension, or 0 while it is still unknown.
func (m *MemoryIndex) Dimensions() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.dimensions
}

// Reset drops every vector. A dimension inferred from data is kept.
func (m *MemoryIndex) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.vectors = make(map[string][]float32)
}
