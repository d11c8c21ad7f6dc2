package worker

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hyperjump/ragcore/pkg/utils"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/singleflight"
)

// Config describes the worker process and the supervision timings.
type Config struct {
	Command string
	Args    []string
	// Env is appended to the parent environment.
	Env []string
	Dir string

	RequestTimeout       time.Duration
	StartupProbeInterval time.Duration
	StartupTimeout       time.Duration
	ShutdownGrace        time.Duration
	MaxStartFailures     int
}

// Default supervision timings.
const (
	DefaultRequestTimeout       = 30 * time.Second
	DefaultStartupProbeInterval = time.Second
	DefaultStartupTimeout       = 10 * time.Second
	DefaultShutdownGrace        = 2 * time.Second
	DefaultMaxStartFailures     = 3
)

func (c Config) withDefaults() Config {
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = DefaultRequestTimeout
	}
	if c.StartupProbeInterval <= 0 {
		c.StartupProbeInterval = DefaultStartupProbeInterval
	}
	if c.StartupTimeout <= 0 {
		c.StartupTimeout = DefaultStartupTimeout
	}
	if c.ShutdownGrace <= 0 {
		c.ShutdownGrace = DefaultShutdownGrace
	}
	if c.MaxStartFailures <= 0 {
		c.MaxStartFailures = DefaultMaxStartFailures
	}
	return c
}

// Option configures a Supervisor.
type Option func(*Supervisor)

// WithLogger sets the logger used for lifecycle and protocol events.
func WithLogger(l *zap.Logger) Option {
	return func(s *Supervisor) {
		s.trace = utils.NewTracer(l, "worker_supervisor")
	}
}

// Supervisor owns one external worker process: it starts and probes it,
// correlates requests with responses by id, enforces per-request timeouts and
// fails every pending request when the process exits.
type Supervisor struct {
	cfg    Config
	trace  *utils.Tracer
	starts singleflight.Group

	mu            sync.Mutex
	state         State
	proc          *process
	pending       map[string]*pendingRequest
	startFailures int
	shuttingDown  bool

	// writeMu serializes frames on the worker's stdin.
	writeMu sync.Mutex
}

type process struct {
	cmd   *exec.Cmd
	stdin io.WriteCloser
	pid   int
	// done is closed once the exit has been handled.
	done chan struct{}
}

type pendingRequest struct {
	id     string
	action Action
	sentAt time.Time
	result chan result
	timer  *time.Timer
}

type result struct {
	resp *Response
	err  error
}

// NewSupervisor creates a stopped supervisor. The process is spawned by Start.
func NewSupervisor(cfg Config, opts ...Option) *Supervisor {
	s := &Supervisor{
		cfg:     cfg.withDefaults(),
		trace:   utils.NewTracer(nil, "worker_supervisor"),
		pending: make(map[string]*pendingRequest),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// State returns the current lifecycle state. A ready worker with requests in
// flight reports StateBusy.
func (s *Supervisor) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateReady && len(s.pending) > 0 {
		return StateBusy
	}
	return s.state
}

// Pending returns the number of requests awaiting a response.
func (s *Supervisor) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// PID returns the worker's process id, or 0 when no process is running.
func (s *Supervisor) PID() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.proc == nil {
		return 0
	}
	return s.proc.pid
}

// Start spawns the worker and waits until it answers a ping. Concurrent
// callers share one in-flight start. Cancelling ctx abandons the wait but not
// the start itself.
func (s *Supervisor) Start(ctx context.Context) error {
	s.mu.Lock()
	switch s.state {
	case StateReady:
		s.mu.Unlock()
		return nil
	case StatePermanentlyFailed:
		s.mu.Unlock()
		return ErrPermanentlyFailed
	}
	s.mu.Unlock()

	ch := s.starts.DoChan("start", func() (any, error) {
		return nil, s.spawnAndProbe()
	})
	select {
	case res := <-ch:
		return res.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Supervisor) spawnAndProbe() error {
	s.mu.Lock()
	switch s.state {
	case StateReady:
		s.mu.Unlock()
		return nil
	case StatePermanentlyFailed:
		s.mu.Unlock()
		return ErrPermanentlyFailed
	case StateCrashed:
		s.setStateLocked(StateRestarting)
	default:
		s.setStateLocked(StateStarting)
	}
	s.mu.Unlock()

	began := time.Now()
	proc, err := s.spawn()
	if err != nil {
		return s.startFailed(err)
	}
	if err := s.probe(proc); err != nil {
		s.kill(proc)
		return s.startFailed(err)
	}

	s.mu.Lock()
	if s.proc != proc {
		s.mu.Unlock()
		return s.startFailed(ErrProcessExited)
	}
	s.startFailures = 0
	s.setStateLocked(StateReady)
	s.mu.Unlock()
	s.trace.Timed(zapcore.InfoLevel, "worker_ready", began, zap.Int("pid", proc.pid))
	return nil
}

func (s *Supervisor) spawn() (*process, error) {
	cmd := exec.Command(s.cfg.Command, s.cfg.Args...)
	cmd.Dir = s.cfg.Dir
	if len(s.cfg.Env) > 0 {
		cmd.Env = append(os.Environ(), s.cfg.Env...)
	}
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("spawn %s: %w", s.cfg.Command, err)
	}

	proc := &process{
		cmd:   cmd,
		stdin: stdin,
		pid:   cmd.Process.Pid,
		done:  make(chan struct{}),
	}
	s.mu.Lock()
	s.proc = proc
	s.mu.Unlock()
	s.trace.Info("worker_spawned", zap.Int("pid", proc.pid), zap.String("command", s.cfg.Command))

	// cmd.Wait closes the pipes, so it only runs once both readers hit EOF.
	var readers sync.WaitGroup
	readers.Add(2)
	go func() {
		defer readers.Done()
		s.readLoop(stdout)
	}()
	go func() {
		defer readers.Done()
		s.logStderr(proc.pid, stderr)
	}()
	go func() {
		readers.Wait()
		err := cmd.Wait()
		s.handleExit(proc, err)
		close(proc.done)
	}()
	return proc, nil
}

// probe pings the new process until it answers or StartupTimeout elapses.
func (s *Supervisor) probe(proc *process) error {
	deadline := time.Now().Add(s.cfg.StartupTimeout)
	attempts := 0
	for {
		attempts++
		wait := s.cfg.StartupProbeInterval
		if remaining := time.Until(deadline); remaining < wait {
			wait = remaining
		}
		err := s.ping(context.Background(), wait, true)
		if err == nil {
			return nil
		}
		if errors.Is(err, ErrProcessExited) || errors.Is(err, ErrNotRunning) {
			return fmt.Errorf("%w: process exited during startup", ErrStartup)
		}
		s.trace.Debug("startup_probe_failed", zap.Int("attempt", attempts), zap.Error(err))
		if !time.Now().Before(deadline) {
			return fmt.Errorf("%w: no pong after %s (%d probes)", ErrStartup, s.cfg.StartupTimeout, attempts)
		}
		if !errors.Is(err, ErrTimeout) {
			// The worker answered, but not with a pong; retry on the next tick.
			select {
			case <-time.After(wait):
			case <-proc.done:
			}
		}
	}
}

func (s *Supervisor) startFailed(err error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.startFailures++
	if !errors.Is(err, ErrStartup) {
		err = fmt.Errorf("%w: %w", ErrStartup, err)
	}
	s.trace.Warn("worker_start_failed", err, zap.Int("consecutive_failures", s.startFailures))
	if s.startFailures >= s.cfg.MaxStartFailures {
		s.setStateLocked(StatePermanentlyFailed)
		return fmt.Errorf("%w after %d attempts: %w", ErrPermanentlyFailed, s.startFailures, err)
	}
	s.setStateLocked(StateCrashed)
	return err
}

// kill terminates proc and waits, bounded by ShutdownGrace, for its exit to be handled.
func (s *Supervisor) kill(proc *process) {
	if err := proc.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		s.trace.Warn("worker_kill_failed", err, zap.Int("pid", proc.pid))
	}
	select {
	case <-proc.done:
	case <-time.After(s.cfg.ShutdownGrace):
		s.trace.Warn("worker_exit_wait_timeout", nil, zap.Int("pid", proc.pid))
	}
}

func (s *Supervisor) readLoop(r io.Reader) {
	lines := NewLineBuffer(0)
	buf := make([]byte, 64*1024)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			for _, line := range lines.Feed(buf[:n]) {
				s.handleLine(line)
			}
		}
		if err != nil {
			if lines.Pending() > 0 {
				s.trace.Warn("partial_frame_discarded", nil, zap.Int("bytes", lines.Pending()))
			}
			return
		}
	}
}

func (s *Supervisor) handleLine(line []byte) {
	if len(line) == 0 {
		return
	}
	resp, err := decodeResponse(line)
	if err != nil {
		s.trace.Warn("protocol_error", err, zap.String("line", utils.Clip(string(line), 200)))
		return
	}
	if !s.complete(resp.ID, result{resp: resp}) {
		s.trace.Warn("unmatched_response", nil, zap.String("id", resp.ID))
	}
}

func (s *Supervisor) logStderr(pid int, r io.Reader) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for sc.Scan() {
		s.trace.Debug("worker_stderr", zap.Int("pid", pid), zap.String("line", sc.Text()))
	}
	// Drain whatever is left so the child never blocks on a full pipe.
	_, _ = io.Copy(io.Discard, r)
}

func (s *Supervisor) handleExit(proc *process, waitErr error) {
	s.mu.Lock()
	if s.proc != proc {
		s.mu.Unlock()
		return
	}
	s.proc = nil
	pending := s.pending
	s.pending = make(map[string]*pendingRequest)
	switch {
	case s.shuttingDown:
		s.setStateLocked(StateStopped)
	case s.state != StatePermanentlyFailed:
		s.setStateLocked(StateCrashed)
	}
	s.mu.Unlock()

	level := zapcore.WarnLevel
	if waitErr == nil {
		level = zapcore.InfoLevel
	}
	fields := []zap.Field{zap.Int("pid", proc.pid), zap.Int("rejected_requests", len(pending))}
	if waitErr != nil {
		fields = append(fields, zap.Error(waitErr))
	}
	s.trace.Event(level, "worker_exited", fields...)

	exitErr := ErrProcessExited
	if waitErr != nil {
		exitErr = fmt.Errorf("%w: %v", ErrProcessExited, waitErr)
	}
	for _, p := range pending {
		p.timer.Stop()
		p.result <- result{err: exitErr}
	}
}

// setStateLocked must be called with s.mu held.
func (s *Supervisor) setStateLocked(next State) {
	if s.state == next {
		return
	}
	s.trace.Debug("state_change", zap.Stringer("from", s.state), zap.Stringer("to", next))
	s.state = next
}

// complete resolves and removes the pending request id. It reports false when
// no such request is pending.
func (s *Supervisor) complete(id string, res result) bool {
	s.mu.Lock()
	p, ok := s.pending[id]
	if ok {
		delete(s.pending, id)
		p.timer.Stop()
	}
	s.mu.Unlock()
	if !ok {
		return false
	}
	p.result <- res
	return true
}

// request sends req and waits for the correlated response. Unless probe is
// set, the worker must be ready.
func (s *Supervisor) request(ctx context.Context, req Request, timeout time.Duration, probe bool) (*Response, error) {
	req.ID = uuid.NewString()
	frame, err := encodeFrame(req)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	proc := s.proc
	if proc == nil || (!probe && s.state != StateReady) {
		s.mu.Unlock()
		return nil, ErrNotRunning
	}
	p := &pendingRequest{
		id:     req.ID,
		action: req.Action,
		sentAt: time.Now(),
		result: make(chan result, 1),
	}
	p.timer = time.AfterFunc(timeout, func() {
		s.expire(p, timeout)
	})
	s.pending[req.ID] = p
	s.mu.Unlock()

	s.writeMu.Lock()
	_, werr := proc.stdin.Write(frame)
	s.writeMu.Unlock()
	if werr != nil {
		s.complete(req.ID, result{err: fmt.Errorf("%w: write %s request: %v", ErrProcessExited, req.Action, werr)})
	}

	select {
	case res := <-p.result:
		return res.resp, res.err
	case <-ctx.Done():
		if s.complete(req.ID, result{err: ctx.Err()}) {
			s.trace.Debug("request_cancelled", zap.String("id", req.ID), zap.String("request_action", string(req.Action)))
		}
		res := <-p.result
		return res.resp, res.err
	}
}

func (s *Supervisor) expire(p *pendingRequest, timeout time.Duration) {
	err := fmt.Errorf("%w: %s request %s after %s", ErrTimeout, p.action, p.id, timeout)
	if s.complete(p.id, result{err: err}) {
		s.trace.Warn("request_timeout", nil,
			zap.String("id", p.id),
			zap.String("request_action", string(p.action)),
			utils.DurationMs(time.Since(p.sentAt)))
	}
}

// Ping checks that the worker answers.
func (s *Supervisor) Ping(ctx context.Context) error {
	return s.ping(ctx, s.cfg.RequestTimeout, false)
}

func (s *Supervisor) ping(ctx context.Context, timeout time.Duration, probe bool) error {
	resp, err := s.request(ctx, Request{Action: ActionPing}, timeout, probe)
	if err != nil {
		return err
	}
	if !resp.Success {
		return &RemoteError{Action: ActionPing, Message: resp.Error, Traceback: resp.Traceback}
	}
	if !resp.Pong {
		return fmt.Errorf("%w: ping answered without pong", ErrProtocol)
	}
	return nil
}

// Embed returns one vector per text, in the order of texts.
func (s *Supervisor) Embed(ctx context.Context, texts []string, model string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	started := time.Now()
	resp, err := s.request(ctx, Request{Action: ActionEmbed, Texts: texts, Model: model}, s.cfg.RequestTimeout, false)
	if err != nil {
		return nil, err
	}
	if !resp.Success {
		return nil, &RemoteError{Action: ActionEmbed, Message: resp.Error, Traceback: resp.Traceback}
	}
	if len(resp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("%w: sent %d texts, received %d embeddings", ErrProtocol, len(texts), len(resp.Embeddings))
	}
	s.trace.Timed(zapcore.DebugLevel, "embed", started, zap.Int("texts", len(texts)), zap.Int("dimensions", resp.Dimensions))
	return resp.Embeddings, nil
}

// Shutdown asks the worker to exit, waits ShutdownGrace and kills it if it is
// still alive. The supervisor is always left Stopped with its failure count
// reset, so a later Start can succeed.
func (s *Supervisor) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	proc := s.proc
	s.shuttingDown = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.shuttingDown = false
		s.startFailures = 0
		s.setStateLocked(StateStopped)
		s.mu.Unlock()
	}()

	if proc == nil {
		return nil
	}

	grace := s.cfg.ShutdownGrace
	reqCtx, cancel := context.WithTimeout(ctx, grace)
	if _, err := s.request(reqCtx, Request{Action: ActionShutdown}, grace, true); err != nil {
		s.trace.Debug("shutdown_request_failed", zap.Error(err))
	}
	cancel()

	s.writeMu.Lock()
	_ = proc.stdin.Close()
	s.writeMu.Unlock()

	timer := time.NewTimer(grace)
	defer timer.Stop()
	select {
	case <-proc.done:
		s.trace.Info("worker_stopped", zap.Int("pid", proc.pid))
		return nil
	case <-timer.C:
	case <-ctx.Done():
	}
	s.trace.Warn("worker_force_killed", nil, zap.Int("pid", proc.pid))
	s.kill(proc)
	return ctx.Err()
}
