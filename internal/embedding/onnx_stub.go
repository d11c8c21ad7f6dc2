//go:build !cgo
// +build !cgo

package embedding

import (
	"context"
	"errors"
)

// ErrONNXUnavailable is returned by every ONNXEmbedder method in binaries
// built without CGO.
var ErrONNXUnavailable = errors.New("onnx embedder unavailable: rebuild with CGO_ENABLED=1 and the onnxruntime library")

// ONNXEmbedder is a placeholder so callers compile without CGO.
type ONNXEmbedder struct{}

// NewONNXEmbedder always fails with ErrONNXUnavailable.
func NewONNXEmbedder(ONNXConfig) (*ONNXEmbedder, error) { return nil, ErrONNXUnavailable }

func (*ONNXEmbedder) Embed(context.Context, string) ([]float32, error) {
	return nil, ErrONNXUnavailable
}

func (*ONNXEmbedder) EmbedBatch(context.Context, []string) ([][]float32, error) {
	return nil, ErrONNXUnavailable
}

func (*ONNXEmbedder) Dimensions() int { return 0 }

func (*ONNXEmbedder) Close() error { return nil }
