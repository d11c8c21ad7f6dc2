package embedding

import (
	"context"

	"github.com/hyperjump/ragcore/internal/models"
)

// Noop is the Manager used when embeddings are disabled.
type Noop struct{}

var _ Manager = Noop{}

func (Noop) Generate(context.Context, []models.Chunk) ([]models.Embedding, error) { return nil, nil }
func (Noop) Store(models.Embedding) error                                         { return nil }
func (Noop) RemoveForDocument(string) int                                         { return 0 }
func (Noop) Vector(string) ([]float32, bool)                                      { return nil, false }
func (Noop) EmbedQuery(context.Context, string) ([]float32, error)                { return nil, ErrDisabled }
func (Noop) Stats() models.EmbeddingStats                                         { return models.EmbeddingStats{} }
func (Noop) Enabled() bool                                                        { return false }
func (Noop) Close() error                                                         { return nil }
