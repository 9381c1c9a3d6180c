package dirwatch

// WatchID is a stable, monotonically increasing, never-reused (within one
// process's lifetime) identifier for a Watch (spec.md §3). Zero is never
// issued; it is reserved to mean "no watch" in this module's
// (WatchID, error) return convention (DESIGN.md Open Question 1).
type WatchID int64

// Watch is the unit of user interest: a registered directory, its listener,
// and whether it extends recursively to descendants (spec.md §3).
//
// A synthetic "ChildWatch" (spec.md's term for a Watch the engine creates
// on its own when a recursive root discovers a subdirectory) is represented
// here not as a separate type but as a Watch with Parent set to the id of
// its recursive ancestor — folding the two concepts into one struct, the way
// the teacher's kq_watch.go folds "watching directory on behalf of a parent"
// into its single watch struct via a byUser flag instead of a second type.
type Watch struct {
	ID        WatchID
	Root      string // Absolute path, always ending in the OS separator.
	Listener  Listener
	Recursive bool

	// Parent is the WatchID of the recursive ancestor this Watch was
	// synthesized for, or 0 if this Watch was created directly by a caller's
	// AddWatch. Child watches share the ancestor's Listener and dispatch
	// events under the ancestor's WatchID per the compatibility contract in
	// spec.md §8 ("watch_id equals the root's id, not the synthetic
	// child's").
	Parent WatchID
}

// isChild reports whether this Watch was synthesized on behalf of a
// recursive ancestor rather than created directly by AddWatch.
func (w *Watch) isChild() bool { return w.Parent != 0 }

// dispatchID returns the WatchID that should be reported to the listener for
// events on this Watch: the watch's own id, unless it is a synthetic child,
// in which case its recursive ancestor's id (spec.md §8).
func (w *Watch) dispatchID() WatchID {
	if w.isChild() {
		return w.Parent
	}
	return w.ID
}
