package worker

import (
	"errors"
	"fmt"
)

var (
	// ErrTimeout is returned when a request receives no response in time.
	ErrTimeout = errors.New("worker request timed out")
	// ErrProcessExited is returned to every pending request when the worker exits.
	ErrProcessExited = errors.New("worker process exited")
	// ErrNotRunning is returned when a request is made without a ready worker.
	ErrNotRunning = errors.New("worker not running")
	// ErrStartup is returned when the worker does not answer the startup probe.
	ErrStartup = errors.New("worker failed to start")
	// ErrPermanentlyFailed is returned once too many consecutive starts failed.
	ErrPermanentlyFailed = errors.New("worker permanently failed")
	// ErrProtocol reports a malformed or inconsistent response.
	ErrProtocol = errors.New("worker protocol error")
)

// RemoteError is a failure reported by the worker in a response frame.
type RemoteError struct {
	Action    Action
	Message   string
	Traceback string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("worker %s failed: %s", e.Action, e.Message)
}
