package dirwatch

import (
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/dirwatch/dirwatch/internal/dbg"
	"github.com/dirwatch/dirwatch/internal/fsutil"
)

// dirSnapshot is a node representing one directory: its absolute path and a
// map from child name to the last-observed state of that child (spec.md
// §3). The tree is updated in place on every poll pass, and each child's
// entry is updated before the event for that child is dispatched. Events
// are dispatched as the pass proceeds; they are not held back until the
// whole tree has been diffed.
type dirSnapshot struct {
	path     string
	children map[string]*snapshotChild
}

type snapshotChild struct {
	info fsutil.Entry
	sub  *dirSnapshot // non-nil only for a directory entry under a recursive watch.
}

func newDirSnapshot(path string) *dirSnapshot {
	return &dirSnapshot{path: path, children: make(map[string]*snapshotChild)}
}

// genericEngine is the platform-independent polling fallback (spec.md
// §4.6), grounded on the teacher's polling.go (itself adapted from
// github.com/radovskyb/watcher), generalized from a flat map to a recursive
// dirSnapshot tree so that subdirectories discovered at runtime under a
// recursive watch are picked up without restarting the poller.
type genericEngine struct {
	reg  *WatchRegistry
	disp Dispatcher
	opts options

	mu    sync.Mutex
	roots map[WatchID]*dirSnapshot

	started bool
	closed  bool
	stop    chan struct{}
	done    chan struct{}
}

func newGenericEngine(opts ...Option) *genericEngine {
	return &genericEngine{
		reg:   NewWatchRegistry(),
		opts:  resolveOptions(opts),
		roots: make(map[WatchID]*dirSnapshot),
		stop:  make(chan struct{}),
		done:  make(chan struct{}),
	}
}

func (e *genericEngine) AddWatch(path string, l Listener, recursive bool) (WatchID, error) {
	if !fsutil.IsDir(path) {
		if _, err := os.Stat(path); err != nil {
			return 0, &FileNotFound{Path: path}
		}
		return 0, unspecified("not a directory", nil)
	}

	w := &Watch{Root: path, Listener: l, Recursive: recursive}
	id := e.reg.Insert(w)

	snap := newDirSnapshot(path)
	seedSnapshot(snap, recursive)

	e.mu.Lock()
	e.roots[id] = snap
	e.mu.Unlock()

	return id, nil
}

// seedSnapshot silently populates snap (and, if recursive, its full
// subtree) with the current directory contents. No events are emitted: this
// is the baseline a later poll pass will diff against, matching spec.md
// §4.1's "no events are synthesized for pre-existing files" for the initial
// recursive walk.
func seedSnapshot(snap *dirSnapshot, recursive bool) {
	entries, err := fsutil.ListDir(snap.path)
	if err != nil {
		return
	}
	for _, entry := range entries {
		child := &snapshotChild{info: entry}
		if entry.IsDir && recursive {
			child.sub = newDirSnapshot(filepath.Join(snap.path, entry.Name) + fsutil.Sep)
			seedSnapshot(child.sub, true)
		}
		snap.children[entry.Name] = child
	}
}

func (e *genericEngine) RemoveWatchPath(path string) error {
	w := e.reg.FindByPath(path)
	if w == nil {
		return nil
	}
	return e.RemoveWatchID(w.ID)
}

func (e *genericEngine) RemoveWatchID(id WatchID) error {
	ids := e.reg.CascadeIDs(id)
	if len(ids) == 0 {
		return nil
	}
	e.mu.Lock()
	for _, cid := range ids {
		delete(e.roots, cid)
	}
	e.mu.Unlock()
	for _, cid := range ids {
		e.reg.Remove(cid)
	}
	return nil
}

func (e *genericEngine) Watch() error {
	e.mu.Lock()
	if e.started {
		e.mu.Unlock()
		return nil
	}
	e.started = true
	e.mu.Unlock()

	go e.loop()
	return nil
}

func (e *genericEngine) loop() {
	defer close(e.done)
	interval := e.opts.pollInterval
	if interval <= 0 {
		interval = defaultPollInterval
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-e.stop:
			return
		case <-t.C:
			e.pollAll()
		}
	}
}

func (e *genericEngine) pollAll() {
	e.mu.Lock()
	ids := make([]WatchID, 0, len(e.roots))
	for id := range e.roots {
		ids = append(ids, id)
	}
	e.mu.Unlock()

	for _, id := range ids {
		w := e.reg.Get(id)
		if w == nil {
			e.mu.Lock()
			delete(e.roots, id)
			e.mu.Unlock()
			continue
		}
		e.mu.Lock()
		snap := e.roots[id]
		e.mu.Unlock()
		if snap == nil {
			continue
		}
		if e.pollRoot(w, snap) {
			e.mu.Lock()
			delete(e.roots, id)
			e.mu.Unlock()
			e.reg.Remove(id)
		}
	}
}

// pollRoot polls a watch's own root directory, which has no enclosing
// watched parent. It returns true if the root itself vanished (in which
// case the watch must be torn down entirely).
func (e *genericEngine) pollRoot(w *Watch, snap *dirSnapshot) bool {
	if !fsutil.IsDir(snap.path) {
		dbg.Log("generic root vanished: %s", snap.path)
		parent, name := fsutil.SplitPath(snap.path)
		e.disp.Dispatch(w, parent, name, Delete)
		return true
	}
	e.pollDir(w, snap)
	return false
}

// pollDir implements spec.md §4.6's per-pass diff for one directory,
// recursing into previously-discovered subdirectories of a recursive watch.
func (e *genericEngine) pollDir(w *Watch, snap *dirSnapshot) {
	entries, err := fsutil.ListDir(snap.path)
	if err != nil {
		// Directory vanished between the parent's IsDir check and here;
		// the parent's next pass will notice and emit the Delete.
		return
	}

	seen := make(map[string]bool, len(entries))
	for _, entry := range entries {
		seen[entry.Name] = true
		existing, known := snap.children[entry.Name]
		if !known {
			dbg.Log("generic dir=%s new entry=%s isDir=%t", snap.path, entry.Name, entry.IsDir)
			child := &snapshotChild{info: entry}
			if entry.IsDir && w.Recursive {
				child.sub = newDirSnapshot(filepath.Join(snap.path, entry.Name) + fsutil.Sep)
				seedSnapshot(child.sub, true)
			}
			snap.children[entry.Name] = child
			e.disp.Dispatch(w, snap.path, entry.Name, Add)
			continue
		}

		changed := entry.ModTime != existing.info.ModTime || entry.Size != existing.info.Size || entry.Ino != existing.info.Ino
		existing.info = entry
		if changed {
			dbg.Log("generic dir=%s changed entry=%s", snap.path, entry.Name)
			e.disp.Dispatch(w, snap.path, entry.Name, Modified)
		}
		if existing.sub != nil {
			e.pollDir(w, existing.sub)
		}
	}

	for name := range snap.children {
		if seen[name] {
			continue
		}
		dbg.Log("generic dir=%s vanished entry=%s", snap.path, name)
		// Cascading delete is not emitted for a removed subtree (spec.md
		// §4.6 point 3) - just drop it.
		delete(snap.children, name)
		e.disp.Dispatch(w, snap.path, name, Delete)
	}
}

func (e *genericEngine) Directories() []string { return e.reg.Directories() }

func (e *genericEngine) Close() error {
	e.mu.Lock()
	if e.closed || !e.started {
		e.closed = true
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	e.mu.Unlock()
	close(e.stop)
	<-e.done
	return nil
}
