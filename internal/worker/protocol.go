// Package worker supervises an external embedding process and implements the
// newline-delimited JSON protocol spoken over its stdin and stdout.
package worker

import (
	"encoding/json"
	"fmt"
)

// Action is the operation requested from the worker.
type Action string

const (
	ActionEmbed    Action = "embed"
	ActionPing     Action = "ping"
	ActionShutdown Action = "shutdown"
)

// Request is one frame sent to the worker.
type Request struct {
	ID     string   `json:"id"`
	Action Action   `json:"action"`
	Texts  []string `json:"texts,omitempty"`
	Model  string   `json:"model,omitempty"`
}

// Response is one frame received from the worker.
type Response struct {
	ID         string      `json:"id"`
	Success    bool        `json:"success"`
	Embeddings [][]float32 `json:"embeddings,omitempty"`
	Dimensions int         `json:"dimensions,omitempty"`
	Count      int         `json:"count,omitempty"`
	Pong       bool        `json:"pong,omitempty"`
	Shutdown   bool        `json:"shutdown,omitempty"`
	Error      string      `json:"error,omitempty"`
	Traceback  string      `json:"traceback,omitempty"`
}

// encodeFrame renders v as a single protocol line.
func encodeFrame(v any) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode frame: %w", err)
	}
	return append(b, '\n'), nil
}

func decodeResponse(line []byte) (*Response, error) {
	var resp Response
	if err := json.Unmarshal(line, &resp); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProtocol, err)
	}
	if resp.ID == "" {
		return nil, fmt.Errorf("%w: response without id", ErrProtocol)
	}
	return &resp, nil
}
