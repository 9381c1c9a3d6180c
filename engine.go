package dirwatch

import (
	"sync"

	"github.com/dirwatch/dirwatch/internal/fsutil"
)

// WatcherEngine is the contract every backend (Inotify, Kqueue, FSEvents,
// Win32, Generic) implements (spec.md §4.1). It is deliberately small: the
// engineering weight lives inside each backend's I/O goroutine and its use
// of WatchRegistry/Dispatcher, not in this interface.
type WatcherEngine interface {
	// AddWatch registers path (which must exist) for notifications,
	// optionally recursively, and returns a WatchID > 0 on success.
	AddWatch(path string, l Listener, recursive bool) (WatchID, error)

	// RemoveWatchPath removes the watch rooted at exactly path (O(n) linear
	// scan, spec.md §4.1). Silent if no such watch exists.
	RemoveWatchPath(path string) error

	// RemoveWatchID removes the watch with id (O(log n) lookup). Silent if
	// no such watch exists.
	RemoveWatchID(id WatchID) error

	// Watch starts the backend's I/O goroutine. Idempotent.
	Watch() error

	// Directories returns a snapshot of every currently registered root.
	Directories() []string

	// Close stops the I/O goroutine, joins it, and drains the registry.
	// The Go realization of spec.md §5's "On destruction the engine..."
	Close() error
}

// newNativeEngine is set by exactly one platform-specific file's init()
// (engine_inotify.go, engine_kqueue.go, engine_fsevents_darwin.go,
// engine_windows.go, or select_other.go's Generic fallback) to the
// constructor for that platform's backend. This mirrors the teacher's
// per-build-tag Watcher type, adapted because this module needs one
// exported façade regardless of platform (DESIGN.md, engine.go entry).
var newNativeEngine func(opts ...Option) (WatcherEngine, error)

// Watcher is the thin public façade that forwards to the active backend
// (spec.md §1: out of scope as engineering effort, present here only as
// delegation). It is the module's one exported entry point.
type Watcher struct {
	mu     sync.Mutex
	engine WatcherEngine
}

// New constructs a Watcher backed by the platform's native engine (Inotify
// on Linux, Kqueue on the BSDs and cgo-less Darwin, FSEvents on Darwin with
// cgo, Win32 on Windows, and the Generic poller on anything else).
func New(opts ...Option) (*Watcher, error) {
	eng, err := newNativeEngine(opts...)
	if err != nil {
		return nil, err
	}
	return &Watcher{engine: eng}, nil
}

// NewGeneric constructs a Watcher explicitly backed by the Generic poller,
// regardless of platform. Useful for tests and for callers who want
// deterministic, kernel-independent behavior.
func NewGeneric(opts ...Option) *Watcher {
	return &Watcher{engine: newGenericEngine(opts...)}
}

// AddWatch registers directory for notifications (spec.md §6). Relative
// paths are resolved to absolute; the root is always normalized to end with
// the OS path separator (spec.md §3).
func (w *Watcher) AddWatch(directory string, l Listener, recursive bool) (WatchID, error) {
	norm, err := fsutil.NormalizeDir(directory)
	if err != nil {
		return 0, &FileNotFound{Path: directory}
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.engine.AddWatch(norm, l, recursive)
}

// RemoveWatch removes the watch rooted at directory (spec.md §6, the
// string-addressed overload).
func (w *Watcher) RemoveWatch(directory string) error {
	norm, err := fsutil.NormalizeDir(directory)
	if err != nil {
		norm = directory
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.engine.RemoveWatchPath(norm)
}

// RemoveWatchID removes the watch identified by id (spec.md §6, the
// id-addressed overload).
func (w *Watcher) RemoveWatchID(id WatchID) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.engine.RemoveWatchID(id)
}

// Watch starts the backend's I/O goroutine; idempotent (spec.md §4.1).
func (w *Watcher) Watch() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.engine.Watch()
}

// Directories returns a snapshot of every currently registered root.
func (w *Watcher) Directories() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.engine.Directories()
}

// Close stops the backend and releases all of its resources.
func (w *Watcher) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.engine.Close()
}
