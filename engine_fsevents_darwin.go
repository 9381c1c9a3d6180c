//go:build darwin && cgo

package dirwatch

import (
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/dirwatch/dirwatch/internal/dbg"
	"github.com/dirwatch/dirwatch/internal/fsutil"
	"github.com/mutagen-io/fsevents"
)

func init() {
	newNativeEngine = func(opts ...Option) (WatcherEngine, error) {
		return newFSEventsEngine(opts...), nil
	}
}

const (
	fsEventsFlags   = fsevents.FileEvents
	fsEventsDropped = fsevents.UserDropped | fsevents.KernelDropped |
		fsevents.EventIDsWrapped | fsevents.HistoryDone |
		fsevents.MustScanSubDirs | fsevents.RootChanged |
		fsevents.Mount | fsevents.Unmount
)

// fsStream pairs one watch with its own FSEvents stream and the rename
// pairing state the stream needs between consecutive callbacks (spec.md
// §4.4: "the single most recent ItemRenamed path is remembered").
type fsStream struct {
	watch  *Watch
	stream *fsevents.EventStream

	// lastRenamed/lastWasAdd hold the half-pending rename, exactly
	// mirroring efsw's WatcherFSEvents::handleAction static state, but
	// scoped per-stream instead of per-process.
	lastRenamed string
	lastWasAdd  bool
}

// fsEventsEngine implements WatcherEngine atop the FSEvents API, one
// CFRunLoop-scheduled EventStream per watch root (spec.md §4.4). Grounded
// on mutagen-io/mutagen's watch_native_recursive_fsevents.go for the
// EventStream{Events, Paths, Latency, Flags} wiring and lifecycle, and on
// original_source/src/efsw/WatcherFSEvents.cpp's handleAction for the
// granular flag mapping and the two-event rename-pairing state machine.
type fsEventsEngine struct {
	reg  *WatchRegistry
	disp Dispatcher
	opts options

	mu      sync.Mutex
	streams map[WatchID]*fsStream
	started bool
	closed  bool
}

func newFSEventsEngine(opts ...Option) *fsEventsEngine {
	return &fsEventsEngine{
		reg:     NewWatchRegistry(),
		opts:    resolveOptions(opts),
		streams: make(map[WatchID]*fsStream),
	}
}

func (e *fsEventsEngine) AddWatch(path string, l Listener, recursive bool) (WatchID, error) {
	if !fsutil.IsDir(path) {
		if _, err := os.Stat(path); err != nil {
			return 0, &FileNotFound{Path: path}
		}
		return 0, unspecified("not a directory", nil)
	}

	w := &Watch{Root: path, Listener: l, Recursive: recursive}
	id := e.reg.Insert(w)

	rawEvents := make(chan []fsevents.Event, 64)
	stream := &fsevents.EventStream{
		Events:  rawEvents,
		Paths:   []string{path},
		Latency: e.opts.fsEventsDelay,
		Flags:   fsEventsFlags,
	}
	fs := &fsStream{watch: w, stream: stream}

	e.mu.Lock()
	e.streams[id] = fs
	started := e.started
	e.mu.Unlock()

	if started {
		stream.Start()
		go e.pump(fs)
	}

	return id, nil
}

func (e *fsEventsEngine) RemoveWatchPath(path string) error {
	w := e.reg.FindByPath(path)
	if w == nil {
		return nil
	}
	return e.RemoveWatchID(w.ID)
}

func (e *fsEventsEngine) RemoveWatchID(id WatchID) error {
	ids := e.reg.CascadeIDs(id)
	for _, cid := range ids {
		e.mu.Lock()
		fs := e.streams[cid]
		delete(e.streams, cid)
		e.mu.Unlock()
		if fs != nil {
			fs.stream.Stop()
		}
		e.reg.Remove(cid)
	}
	return nil
}

func (e *fsEventsEngine) Watch() error {
	e.mu.Lock()
	if e.started {
		e.mu.Unlock()
		return nil
	}
	e.started = true
	streams := make([]*fsStream, 0, len(e.streams))
	for _, fs := range e.streams {
		streams = append(streams, fs)
	}
	e.mu.Unlock()

	for _, fs := range streams {
		fs.stream.Start()
		go e.pump(fs)
	}
	return nil
}

// pump reads one stream's raw event batches and feeds them through
// handleAction until the stream's Events channel is closed by Stop().
func (e *fsEventsEngine) pump(fs *fsStream) {
	for batch := range fs.stream.Events {
		for _, ev := range batch {
			e.handleAction(fs, ev.Path, uint32(ev.Flags))
		}
	}
}

// handleAction reproduces efsw's WatcherFSEvents::handleAction: it filters
// non-recursive subtree noise, splits the dropped/administrative flags,
// and then either dispatches directly (no rename in progress) or pairs the
// event against the stream's single pending rename half (spec.md §4.4).
func (e *fsEventsEngine) handleAction(fs *fsStream, path string, flags uint32) {
	if flags&fsEventsDropped != 0 {
		dbg.Log("fsevents dropped/administrative flags=%s for %s", dbg.FSEvents(flags), path)
		return
	}

	w := fs.watch
	if !w.Recursive {
		// Ignore events from subfolders: only direct children of the root
		// are reported when the watch is non-recursive.
		rel, err := filepath.Rel(w.Root, filepath.Dir(path))
		if err != nil || rel != "." {
			return
		}
	}

	dirPath, filePath := fsutil.SplitPath(path)
	dbg.Log("fsevents path=%s flags=%s", path, dbg.FSEvents(flags))

	if flags&fsevents.ItemRenamed == 0 {
		e.dispatchGranular(w, dirPath, filePath, flags)
		return
	}

	if fs.lastRenamed == "" {
		fs.lastRenamed = path
		fs.lastWasAdd = fileExists(path)
		e.dispatchGranular(w, dirPath, filePath, flags)
		return
	}

	oldDir, oldFile := fsutil.SplitPath(fs.lastRenamed)
	if fs.lastRenamed != path {
		if sameParent(oldDir, dirPath) {
			if !fs.lastWasAdd {
				e.disp.DispatchMoved(w, dirPath, oldFile, filePath)
			} else {
				e.disp.DispatchMoved(w, dirPath, filePath, oldFile)
			}
		} else {
			e.disp.Dispatch(w, oldDir, oldFile, Delete)
			e.disp.Dispatch(w, dirPath, filePath, Add)
			if flags&fsevents.ItemModified != 0 {
				e.disp.Dispatch(w, dirPath, filePath, Modified)
			}
		}
	} else {
		e.dispatchGranular(w, dirPath, filePath, flags)
	}
	fs.lastRenamed = ""
}

// sameParent reports whether two SplitPath directories name the same
// parent. It is the plain string comparison efsw's handleAction uses
// (oldDir == newDir), not a deep path-component comparison: both sides come
// from fsutil.SplitPath, so equality already implies identical normalized
// parents.
func sameParent(oldDir, newDir string) bool { return oldDir == newDir }

func (e *fsEventsEngine) dispatchGranular(w *Watch, dir, name string, flags uint32) {
	if flags&fsevents.ItemCreated != 0 {
		e.disp.Dispatch(w, dir, name, Add)
	}
	if flags&fsevents.ItemModified != 0 {
		e.disp.Dispatch(w, dir, name, Modified)
	}
	if flags&fsevents.ItemRemoved != 0 {
		e.disp.Dispatch(w, dir, name, Delete)
	}
}

func fileExists(path string) bool {
	_, err := os.Lstat(strings.TrimRight(path, "/"))
	return err == nil
}

func (e *fsEventsEngine) Directories() []string { return e.reg.Directories() }

func (e *fsEventsEngine) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	streams := make([]*fsStream, 0, len(e.streams))
	for _, fs := range e.streams {
		streams = append(streams, fs)
	}
	e.streams = make(map[WatchID]*fsStream)
	e.mu.Unlock()

	for _, fs := range streams {
		fs.stream.Stop()
	}
	return nil
}
