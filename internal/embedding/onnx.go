//go:build cgo
// +build cgo

package embedding

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/hyperjump/ragcore/pkg/utils"
	ort "github.com/yalue/onnxruntime_go"
)

// inputNames are the BERT-style graph inputs, in the order Tokenize returns them.
var inputNames = []string{"input_ids", "attention_mask", "token_type_ids"}

var errClosed = errors.New("onnx embedder closed")

// ONNXEmbedder runs a sentence-embedding model with ONNX Runtime. It requires
// CGO and the onnxruntime shared library. Runs are serialized because the
// session binds one set of pre-allocated tensors.
type ONNXEmbedder struct {
	dimensions int
	maxTokens  int
	tokenizer  Tokenizer
	cache      *QueryCache

	mu      sync.Mutex
	session *ort.AdvancedSession
	inputs  []*ort.Tensor[int64]
	output  *ort.Tensor[float32]
}

// NewONNXEmbedder loads cfg.ModelPath, initializing the runtime environment
// on first use.
func NewONNXEmbedder(cfg ONNXConfig) (*ONNXEmbedder, error) {
	cfg = cfg.withDefaults()
	if cfg.LibraryPath != "" {
		ort.SetSharedLibraryPath(cfg.LibraryPath)
	}
	if !ort.IsInitialized() {
		if err := ort.InitializeEnvironment(); err != nil {
			return nil, fmt.Errorf("initialize onnxruntime: %w", err)
		}
	}

	e := &ONNXEmbedder{
		dimensions: cfg.Dimensions,
		maxTokens:  cfg.MaxTokens,
		tokenizer:  &SimpleTokenizer{},
		cache:      NewQueryCache(cfg.CacheSize),
	}
	inShape := ort.NewShape(1, int64(cfg.MaxTokens))
	ins := make([]ort.ArbitraryTensor, 0, len(inputNames))
	for _, name := range inputNames {
		t, err := ort.NewEmptyTensor[int64](inShape)
		if err != nil {
			e.destroyTensors()
			return nil, fmt.Errorf("allocate %s tensor: %w", name, err)
		}
		e.inputs = append(e.inputs, t)
		ins = append(ins, t)
	}
	out, err := ort.NewEmptyTensor[float32](ort.NewShape(1, int64(cfg.Dimensions)))
	if err != nil {
		e.destroyTensors()
		return nil, fmt.Errorf("allocate %s tensor: %w", cfg.OutputName, err)
	}
	e.output = out

	e.session, err = ort.NewAdvancedSession(cfg.ModelPath, inputNames, []string{cfg.OutputName},
		ins, []ort.ArbitraryTensor{out}, nil)
	if err != nil {
		e.destroyTensors()
		return nil, fmt.Errorf("load model %s: %w", cfg.ModelPath, err)
	}
	return e, nil
}

// Embed returns the unit-length embedding of a single text. Results are
// cached, since single texts are queries.
func (e *ONNXEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if v, ok := e.cache.Lookup(text); ok {
		return v, nil
	}
	v, err := e.run(ctx, text)
	if err != nil {
		return nil, err
	}
	e.cache.Remember(text, v)
	return v, nil
}

// EmbedBatch embeds texts in order without touching the query cache.
func (e *ONNXEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for i, text := range texts {
		v, err := e.run(ctx, text)
		if err != nil {
			return nil, fmt.Errorf("text %d: %w", i, err)
		}
		out = append(out, v)
	}
	return out, nil
}

func (e *ONNXEmbedder) run(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.session == nil {
		return nil, errClosed
	}

	ids, mask, types := e.tokenizer.Tokenize(text, e.maxTokens)
	for i, src := range [][]int64{ids, mask, types} {
		copy(e.inputs[i].GetData(), src)
	}
	if err := e.session.Run(); err != nil {
		return nil, fmt.Errorf("run model: %w", err)
	}
	v := make([]float32, e.dimensions)
	copy(v, e.output.GetData())
	utils.NormalizeL2(v)
	return v, nil
}

// CacheCounters returns the query cache hit and miss totals.
func (e *ONNXEmbedder) CacheCounters() (hits, misses int64) {
	return e.cache.Counters()
}

// Dimensions returns the output width of the model.
func (e *ONNXEmbedder) Dimensions() int { return e.dimensions }

// Close releases the session and its tensors.
func (e *ONNXEmbedder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.session == nil {
		return nil
	}
	err := e.session.Destroy()
	e.session = nil
	e.destroyTensors()
	return err
}

func (e *ONNXEmbedder) destroyTensors() {
	for _, t := range e.inputs {
		_ = t.Destroy()
	}
	e.inputs = nil
	if e.output != nil {
		_ = e.output.Destroy()
		e.output = nil
	}
}
