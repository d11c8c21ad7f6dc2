// Package watcher keeps the corpus in step with the filesystem: it watches
// the corpus roots with fsnotify and reports debounced file changes.
package watcher

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/hyperjump/ragcore/pkg/utils"
	"go.uber.org/zap"
)

const defaultDebounce = 400 * time.Millisecond

// ErrStopped is returned when starting a watcher that was already stopped.
var ErrStopped = errors.New("watcher stopped")

// root is a watched corpus root and the directories registered for it.
type root struct {
	path string
	dirs []string
}

// Watcher watches file and directory roots and invokes callbacks on changes.
type Watcher struct {
	accept    func(path string) bool
	recursive bool
	onIndex   func(path string)
	onRemove  func(path string)
	quiet     time.Duration
	pending   *debouncer
	trace     *utils.Tracer

	mu      sync.Mutex
	fsw     *fsnotify.Watcher
	roots   []*root
	running bool

	done     chan struct{}
	stopOnce sync.Once
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithLogger sets a logger for watcher events.
func WithLogger(l *zap.Logger) Option {
	return func(w *Watcher) { w.trace = utils.NewTracer(l, "watcher") }
}

// WithDebounce sets how long a file must be quiet before onIndex fires.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) {
		if d > 0 {
			w.quiet = d
		}
	}
}

// NewWatcher creates a watcher. accept filters the files found inside watched
// directories (nil accepts every file); a file root is always accepted.
// onIndex fires for created or written files after the debounce period and
// onRemove fires immediately for removed or renamed paths, files or
// directories.
func NewWatcher(roots []string, accept func(path string) bool, recursive bool, onIndex, onRemove func(path string), opts ...Option) *Watcher {
	w := &Watcher{
		accept:    accept,
		recursive: recursive,
		onIndex:   onIndex,
		onRemove:  onRemove,
		quiet:     defaultDebounce,
		trace:     utils.NewTracer(nil, "watcher"),
		done:      make(chan struct{}),
	}
	for _, r := range roots {
		if abs, err := filepath.Abs(r); err == nil {
			w.roots = append(w.roots, &root{path: abs})
		}
	}
	for _, opt := range opts {
		opt(w)
	}
	w.pending = newDebouncer(w.quiet)
	return w
}

// Start registers every root and begins delivering events. Missing roots are
// created as directories. It runs until ctx is cancelled or Stop is called;
// a stopped watcher cannot be restarted.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return nil
	}
	select {
	case <-w.done:
		return ErrStopped
	default:
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	w.fsw = fsw
	for _, r := range w.roots {
		if err := w.registerLocked(r); err != nil {
			_ = fsw.Close()
			w.fsw = nil
			return err
		}
	}
	w.running = true
	w.trace.Debug("watcher_started", zap.Strings("roots", w.pathsLocked()), zap.Bool("recursive", w.recursive))
	go w.loop(ctx, fsw)
	return nil
}

func (w *Watcher) loop(ctx context.Context, fsw *fsnotify.Watcher) {
	for {
		select {
		case <-ctx.Done():
			w.Stop()
			return
		case <-w.done:
			return
		case ev, ok := <-fsw.Events:
			if !ok {
				return
			}
			w.dispatch(ev)
		case err, ok := <-fsw.Errors:
			if !ok {
				return
			}
			w.trace.Warn("watcher_error", err)
		}
	}
}

func (w *Watcher) dispatch(ev fsnotify.Event) {
	path := filepath.Clean(ev.Name)
	isRoot, covered := w.classify(path)
	if !covered {
		return
	}
	w.trace.Debug("watcher_event", zap.String("op", ev.Op.String()), zap.String("path", path))

	if ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename) {
		w.pending.cancel(path)
		w.unwatchBelow(path)
		if w.onRemove != nil {
			w.onRemove(path)
		}
		return
	}
	if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) {
		return
	}
	info, err := os.Stat(path)
	switch {
	case err != nil:
	case info.IsDir():
		if !isRoot && ev.Has(fsnotify.Create) {
			w.adoptDirectory(path)
		}
	case isRoot || w.accepts(path):
		w.schedule(path)
	}
}

func (w *Watcher) accepts(path string) bool {
	return w.accept == nil || w.accept(path)
}

func (w *Watcher) schedule(path string) {
	w.pending.trigger(path, func() {
		w.trace.Debug("file_changed", zap.String("path", path))
		if w.onIndex != nil {
			w.onIndex(path)
		}
	})
}

// adoptDirectory starts watching a directory created or moved under a root
// and reports the accepted files already inside it.
func (w *Watcher) adoptDirectory(dir string) {
	if hidden(filepath.Base(dir)) {
		return
	}
	w.mu.Lock()
	fsw := w.fsw
	w.mu.Unlock()
	if fsw == nil {
		return
	}
	add := func(d string) error {
		if err := fsw.Add(d); err != nil {
			w.trace.Warn("watch_add_failed", err, zap.String("path", d))
		}
		return nil
	}
	if w.recursive {
		_ = eachDir(dir, add)
	} else {
		_ = add(dir)
	}
	w.trace.Debug("directory_adopted", zap.String("path", dir))
	w.indexExisting(dir)
}

// unwatchBelow drops every fsnotify watch on path or below it.
func (w *Watcher) unwatchBelow(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.fsw == nil {
		return
	}
	for _, p := range w.fsw.WatchList() {
		if within(path, p) {
			_ = w.fsw.Remove(p)
		}
	}
}

// classify reports whether path is itself a root and whether any root
// covers it.
func (w *Watcher) classify(path string) (isRoot, covered bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, r := range w.roots {
		if r.path == path {
			return true, true
		}
		if within(r.path, path) {
			covered = true
		}
	}
	return false, covered
}

// registerLocked adds the fsnotify watches for r, creating a missing root
// directory first.
func (w *Watcher) registerLocked(r *root) error {
	info, err := os.Stat(r.path)
	if errors.Is(err, os.ErrNotExist) {
		if err = os.MkdirAll(r.path, 0o755); err == nil {
			info, err = os.Stat(r.path)
		}
	}
	if err != nil {
		return err
	}
	if !info.IsDir() || !w.recursive {
		if err := w.fsw.Add(r.path); err != nil {
			return err
		}
		r.dirs = []string{r.path}
		return nil
	}
	var dirs []string
	err = eachDir(r.path, func(d string) error {
		if err := w.fsw.Add(d); err != nil {
			return err
		}
		dirs = append(dirs, d)
		return nil
	})
	if err != nil {
		return err
	}
	r.dirs = dirs
	return nil
}

func (w *Watcher) indexExisting(top string) {
	if w.onIndex == nil {
		return
	}
	eachFile(top, func(path string) {
		if w.accepts(path) {
			w.onIndex(path)
		}
	})
}

// AddDirectory adds a root to a running watcher. With syncExisting the
// accepted files already under it are reported in the background. Adding a
// known root, or adding to a watcher that is not running, does nothing.
func (w *Watcher) AddDirectory(path string, syncExisting bool) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	w.mu.Lock()
	if w.fsw == nil || w.findLocked(abs) >= 0 {
		w.mu.Unlock()
		return nil
	}
	r := &root{path: abs}
	if err := w.registerLocked(r); err != nil {
		w.mu.Unlock()
		return err
	}
	w.roots = append(w.roots, r)
	w.mu.Unlock()

	w.trace.Debug("root_added", zap.String("path", abs), zap.Bool("sync_existing", syncExisting))
	if syncExisting {
		go w.indexExisting(abs)
	}
	return nil
}

// RemoveDirectory stops watching the given root. It does not remove indexed documents.
func (w *Watcher) RemoveDirectory(path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.fsw == nil {
		return nil
	}
	i := w.findLocked(abs)
	if i < 0 {
		return nil
	}
	for _, d := range w.roots[i].dirs {
		_ = w.fsw.Remove(d)
	}
	w.roots = append(w.roots[:i], w.roots[i+1:]...)
	w.trace.Debug("root_removed", zap.String("path", abs))
	return nil
}

func (w *Watcher) findLocked(path string) int {
	for i, r := range w.roots {
		if r.path == path {
			return i
		}
	}
	return -1
}

func (w *Watcher) pathsLocked() []string {
	out := make([]string, len(w.roots))
	for i, r := range w.roots {
		out[i] = r.path
	}
	return out
}

// Directories returns the watched roots in the order they were added.
func (w *Watcher) Directories() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.pathsLocked()
}

// Stop closes the fsnotify watcher and drops pending callbacks. It is safe
// to call more than once.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.pending.cancelAll()
	_ = w.fsw.Close()
	w.fsw = nil
	w.running = false
	w.mu.Unlock()
	w.stopOnce.Do(func() { close(w.done) })
}
