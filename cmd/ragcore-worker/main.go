// Package main is the reference ragcore embedding worker. It speaks the
// line-delimited JSON protocol on stdin/stdout and logs to stderr.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/hyperjump/ragcore/internal/embedding"
	"github.com/hyperjump/ragcore/internal/worker"
	"github.com/hyperjump/ragcore/pkg/utils"
	"go.uber.org/zap"
)

type embedder interface {
	worker.BatchEmbedder
	Close() error
}

type options struct {
	model     string
	modelPath string
	library   string
	output    string
	dims      int
	maxTokens int
	strict    bool
	debug     bool
}

func main() {
	var o options
	flag.StringVar(&o.model, "model", "", "model name to serve; embed requests naming another model are rejected (empty accepts any)")
	flag.StringVar(&o.modelPath, "model-path", os.Getenv("RAGCORE_ONNX_MODEL"), "ONNX model file; empty uses the deterministic mock embedder")
	flag.StringVar(&o.library, "onnx-library", os.Getenv("RAGCORE_ONNX_LIBRARY"), "onnxruntime shared library path")
	flag.StringVar(&o.output, "output-name", "", "pooled embedding output of the model graph")
	flag.IntVar(&o.dims, "dimensions", 384, "embedding dimensions")
	flag.IntVar(&o.maxTokens, "max-tokens", 256, "maximum tokens per text")
	flag.BoolVar(&o.strict, "strict", false, "fail instead of falling back to the mock embedder when the model cannot load")
	flag.BoolVar(&o.debug, "debug", false, "enable debug logging")
	flag.Parse()

	if err := run(o); err != nil {
		fmt.Fprintf(os.Stderr, "ragcore-worker: %v\n", err)
		os.Exit(1)
	}
}

func run(o options) error {
	logger, err := utils.NewWorkerLogger(o.debug)
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	emb, err := newEmbedder(o, logger)
	if err != nil {
		return err
	}
	defer func() { _ = emb.Close() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("worker ready", zap.String("model", o.model), zap.Int("dimensions", emb.Dimensions()))
	err = worker.Serve(ctx, os.Stdin, os.Stdout, emb, worker.ServeOptions{Model: o.model, Logger: logger})
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func newEmbedder(o options, logger *zap.Logger) (embedder, error) {
	if o.modelPath == "" {
		logger.Info("no model path, using mock embedder")
		return embedding.NewMockEmbedder(o.dims), nil
	}
	onnx, err := embedding.NewONNXEmbedder(embedding.ONNXConfig{
		ModelPath:   o.modelPath,
		LibraryPath: o.library,
		Dimensions:  o.dims,
		MaxTokens:   o.maxTokens,
		OutputName:  o.output,
	})
	if err == nil {
		return onnx, nil
	}
	if o.strict {
		return nil, fmt.Errorf("load model: %w", err)
	}
	logger.Warn("model unavailable, using mock embedder", zap.String("model_path", o.modelPath), zap.Error(err))
	return embedding.NewMockEmbedder(o.dims), nil
}
