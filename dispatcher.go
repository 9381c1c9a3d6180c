package dirwatch

import "github.com/dirwatch/dirwatch/internal/dbg"

// Dispatcher translates backend-specific raw events into normalized
// FileAction callbacks on a Watch's Listener (spec.md §4.7). It is invoked
// synchronously from the owning backend's I/O goroutine; it never re-enters
// the engine and never blocks on the registry lock.
type Dispatcher struct{}

// Dispatch delivers a single non-Moved action for w to its listener.
// directory always ends in the OS separator; filename is a bare name.
func (Dispatcher) Dispatch(w *Watch, directory, filename string, action FileAction) {
	if w == nil || w.Listener == nil {
		return
	}
	dbg.Log("dispatch id=%d dir=%s name=%s action=%s", w.dispatchID(), directory, filename, action)
	w.Listener.HandleFileAction(w.dispatchID(), directory, filename, action, "")
}

// DispatchMoved delivers a Moved action carrying both the old and new bare
// filenames within directory (spec.md §4.7: "The Moved variant carries both
// old and new filename").
func (Dispatcher) DispatchMoved(w *Watch, directory, oldFilename, newFilename string) {
	if w == nil || w.Listener == nil {
		return
	}
	dbg.Log("dispatch id=%d dir=%s moved %s -> %s", w.dispatchID(), directory, oldFilename, newFilename)
	w.Listener.HandleFileAction(w.dispatchID(), directory, newFilename, Moved, oldFilename)
}
