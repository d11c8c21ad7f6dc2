package worker

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"runtime/debug"
	"sync"

	"go.uber.org/zap"
)

// BatchEmbedder is the model side of a worker.
type BatchEmbedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
}

// ServeOptions configures Serve.
type ServeOptions struct {
	// Model is the model name the worker serves. Embed requests naming a
	// different model are rejected. Empty accepts any model.
	Model  string
	Logger *zap.Logger
}

// Serve answers protocol requests read from r on w until r reaches EOF, a
// shutdown request is answered or ctx is cancelled. Requests are handled one
// at a time.
func Serve(ctx context.Context, r io.Reader, w io.Writer, embedder BatchEmbedder, opts ServeOptions) error {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	var writeMu sync.Mutex
	enc := json.NewEncoder(w)
	send := func(resp Response) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		return enc.Encode(resp)
	}

	br := bufio.NewReaderSize(r, 64*1024)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		line, readErr := br.ReadBytes('\n')
		if len(line) > 0 {
			resp, stop := handleRequest(ctx, line, embedder, opts.Model, logger)
			if resp != nil {
				if err := send(*resp); err != nil {
					return fmt.Errorf("write response: %w", err)
				}
			}
			if stop {
				return nil
			}
		}
		if readErr != nil {
			if errors.Is(readErr, io.EOF) {
				return nil
			}
			return fmt.Errorf("read request: %w", readErr)
		}
	}
}

func handleRequest(ctx context.Context, line []byte, embedder BatchEmbedder, model string, logger *zap.Logger) (resp *Response, stop bool) {
	if len(bytes.TrimSpace(line)) == 0 {
		return nil, false
	}
	var req Request
	if err := json.Unmarshal(line, &req); err != nil {
		logger.Warn("invalid request", zap.Error(err))
		return &Response{Success: false, Error: "invalid request: " + err.Error()}, false
	}
	defer func() {
		if p := recover(); p != nil {
			logger.Error("request panicked", zap.Any("panic", p), zap.String("id", req.ID))
			resp = &Response{ID: req.ID, Error: fmt.Sprint(p), Traceback: string(debug.Stack())}
			stop = false
		}
	}()

	switch req.Action {
	case ActionPing:
		return &Response{ID: req.ID, Success: true, Pong: true}, false
	case ActionShutdown:
		logger.Info("shutdown requested")
		return &Response{ID: req.ID, Success: true, Shutdown: true}, true
	case ActionEmbed:
		if model != "" && req.Model != "" && req.Model != model {
			return &Response{ID: req.ID, Error: fmt.Sprintf("model %q not loaded (serving %q)", req.Model, model)}, false
		}
		vectors, err := embedder.EmbedBatch(ctx, req.Texts)
		if err != nil {
			logger.Warn("embed failed", zap.Error(err), zap.Int("texts", len(req.Texts)))
			return &Response{ID: req.ID, Error: err.Error()}, false
		}
		if vectors == nil {
			vectors = [][]float32{}
		}
		return &Response{
			ID:         req.ID,
			Success:    true,
			Embeddings: vectors,
			Dimensions: embedder.Dimensions(),
			Count:      len(vectors),
		}, false
	}
	return &Response{ID: req.ID, Error: fmt.Sprintf("unknown action %q", req.Action)}, false
}
