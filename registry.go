package dirwatch

import (
	"strings"
	"sync"
	"sync/atomic"
)

// WatchRegistry is the single source of truth for every Watch (and
// synthetic child watch) a backend currently maintains. It is guarded by one
// RWMutex, held only for the duration of map operations and the short
// prefix-scan cascade removal performs — never while a listener callback is
// running (spec.md §5: "listener callbacks are invoked with the lock
// released").
//
// A Watch is reachable through WatchRegistry from the moment AddWatch
// returns success until RemoveWatch returns, no earlier and no later
// (spec.md §3 invariant).
type WatchRegistry struct {
	mu      sync.RWMutex
	byID    map[WatchID]*Watch
	nextID  atomic.Int64
}

// NewWatchRegistry returns an empty registry.
func NewWatchRegistry() *WatchRegistry {
	return &WatchRegistry{byID: make(map[WatchID]*Watch)}
}

// nextWatchID allocates the next WatchID, strictly greater than zero and
// never reused (spec.md §3).
func (r *WatchRegistry) nextWatchID() WatchID {
	return WatchID(r.nextID.Add(1))
}

// Insert registers w under a freshly allocated id, sets w.ID, and returns it.
func (r *WatchRegistry) Insert(w *Watch) WatchID {
	r.mu.Lock()
	defer r.mu.Unlock()
	w.ID = r.nextWatchID()
	r.byID[w.ID] = w
	return w.ID
}

// Get returns the Watch for id, or nil if none exists.
func (r *WatchRegistry) Get(id WatchID) *Watch {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.byID[id]
}

// FindByPath returns the first Watch (in map iteration order) whose Root
// equals path, performing the O(n) linear scan spec.md §4.1 explicitly
// allows for the path-based removal form.
func (r *WatchRegistry) FindByPath(path string) *Watch {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, w := range r.byID {
		if w.Root == path {
			return w
		}
	}
	return nil
}

// Directories returns a snapshot of every currently registered root,
// including synthetic child watches (spec.md §4.1).
func (r *WatchRegistry) Directories() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	dirs := make([]string, 0, len(r.byID))
	for _, w := range r.byID {
		dirs = append(dirs, w.Root)
	}
	return dirs
}

// CascadeIDs returns rootID itself (first), plus the ids of every other
// watch whose root lies strictly below rootID's root - i.e. every watch
// that must be torn down when the root watch is removed. A watch whose root
// equals rootID's root is not included. It returns nil if rootID is unknown.
//
// It is read-only and returns a plain slice specifically so that callers
// remove each id in a second pass, rather than mutating the map while
// ranging over it - fixing the iterator-invalidation bug spec.md §9 flags
// in the source this module is modeled on.
func (r *WatchRegistry) CascadeIDs(rootID WatchID) []WatchID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	root, ok := r.byID[rootID]
	if !ok {
		return nil
	}
	ids := []WatchID{rootID}
	for id, w := range r.byID {
		if id == rootID {
			continue
		}
		if w.Root != root.Root && strings.HasPrefix(w.Root, root.Root) {
			ids = append(ids, id)
		}
	}
	return ids
}

// Remove deletes id from the registry. It is silent (no error) if id is not
// present, per spec.md §4.1.
func (r *WatchRegistry) Remove(id WatchID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.byID, id)
}

// HasChildExact reports whether a watch rooted at exactly dir already
// exists. Used by the Inotify and Kqueue backends to avoid registering
// a duplicate watch for a subdirectory that is already known (spec.md
// §4.2: "unless a watch with that exact directory already exists").
func (r *WatchRegistry) HasChildExact(dir string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, w := range r.byID {
		if w.Root == dir {
			return true
		}
	}
	return false
}

// Len returns the number of registered watches (for tests and metrics).
func (r *WatchRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID)
}
