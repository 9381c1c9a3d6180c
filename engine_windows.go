//go:build windows

package dirwatch

import (
	"os"
	"sync"
	"unsafe"

	"github.com/dirwatch/dirwatch/internal/dbg"
	"github.com/dirwatch/dirwatch/internal/fsutil"
	"golang.org/x/sys/windows"
)

func init() {
	newNativeEngine = func(opts ...Option) (WatcherEngine, error) {
		return newWindowsEngine(opts...), nil
	}
}

const winNotifyFilter = windows.FILE_NOTIFY_CHANGE_FILE_NAME |
	windows.FILE_NOTIFY_CHANGE_DIR_NAME |
	windows.FILE_NOTIFY_CHANGE_ATTRIBUTES |
	windows.FILE_NOTIFY_CHANGE_SIZE |
	windows.FILE_NOTIFY_CHANGE_LAST_WRITE |
	windows.FILE_NOTIFY_CHANGE_CREATION

// winWatch is the per-root overlapped-I/O state: one directory handle and
// one 32 KiB buffer (spec.md §3 "EventBuffer", §4.5).
type winWatch struct {
	watch    *Watch
	handle   windows.Handle
	overlap  windows.Overlapped
	buf      []byte
	stopNow  bool
	pendName string // first half of a pending FILE_ACTION_RENAMED pair.
}

// windowsEngine implements WatcherEngine atop ReadDirectoryChangesW, one
// handle per watch root, bWatchSubtree equal to the recursive flag so the
// kernel itself handles recursion (spec.md §4.5). Grounded on the teacher's
// windows.go buffer-parsing and FILE_ACTION_* mapping, adapted from an
// IOCP-multiplexed single Watcher to one handle+buffer per root with an
// explicit stopNow flag as spec.md §4.5 calls for.
type windowsEngine struct {
	reg  *WatchRegistry
	disp Dispatcher
	opts options

	mu      sync.Mutex
	byID    map[WatchID]*winWatch
	started bool
	closed  bool
	wg      sync.WaitGroup
}

func newWindowsEngine(opts ...Option) *windowsEngine {
	return &windowsEngine{
		reg:  NewWatchRegistry(),
		opts: resolveOptions(opts),
		byID: make(map[WatchID]*winWatch),
	}
}

func (e *windowsEngine) AddWatch(path string, l Listener, recursive bool) (WatchID, error) {
	if !fsutil.IsDir(path) {
		if _, err := os.Stat(path); err != nil {
			return 0, &FileNotFound{Path: path}
		}
		return 0, unspecified("not a directory", nil)
	}

	pathPtr, err := windows.UTF16PtrFromString(path)
	if err != nil {
		return 0, unspecified("UTF16PtrFromString", err)
	}
	handle, err := windows.CreateFile(pathPtr,
		windows.FILE_LIST_DIRECTORY,
		windows.FILE_SHARE_READ|windows.FILE_SHARE_WRITE|windows.FILE_SHARE_DELETE,
		nil, windows.OPEN_EXISTING,
		windows.FILE_FLAG_BACKUP_SEMANTICS|windows.FILE_FLAG_OVERLAPPED, 0)
	if err != nil {
		return 0, unspecified("CreateFile", err)
	}

	w := &Watch{Root: path, Listener: l, Recursive: recursive}
	id := e.reg.Insert(w)

	bufSize := e.opts.bufferSize
	if bufSize <= 0 {
		bufSize = defaultBufferSize
	}
	ww := &winWatch{watch: w, handle: handle, buf: make([]byte, bufSize)}

	e.mu.Lock()
	e.byID[id] = ww
	started := e.started
	e.mu.Unlock()

	if started {
		if err := e.issueRead(ww); err != nil {
			return 0, err
		}
		e.wg.Add(1)
		go e.pump(ww)
	}

	return id, nil
}

func (e *windowsEngine) issueRead(ww *winWatch) error {
	var n uint32
	err := windows.ReadDirectoryChanges(ww.handle, &ww.buf[0], uint32(len(ww.buf)),
		ww.watch.Recursive, winNotifyFilter, &n, &ww.overlap, 0)
	if err != nil {
		return unspecified("ReadDirectoryChangesW", err)
	}
	return nil
}

func (e *windowsEngine) RemoveWatchPath(path string) error {
	w := e.reg.FindByPath(path)
	if w == nil {
		return nil
	}
	return e.RemoveWatchID(w.ID)
}

func (e *windowsEngine) RemoveWatchID(id WatchID) error {
	ids := e.reg.CascadeIDs(id)
	for _, cid := range ids {
		e.mu.Lock()
		ww := e.byID[cid]
		delete(e.byID, cid)
		e.mu.Unlock()
		if ww != nil {
			ww.stopNow = true
			windows.CancelIoEx(ww.handle, &ww.overlap)
			windows.CloseHandle(ww.handle)
		}
		e.reg.Remove(cid)
	}
	return nil
}

func (e *windowsEngine) Watch() error {
	e.mu.Lock()
	if e.started {
		e.mu.Unlock()
		return nil
	}
	e.started = true
	watches := make([]*winWatch, 0, len(e.byID))
	for _, ww := range e.byID {
		watches = append(watches, ww)
	}
	e.mu.Unlock()

	for _, ww := range watches {
		if err := e.issueRead(ww); err != nil {
			dbg.Log("issueRead %s: %s", ww.watch.Root, err)
			continue
		}
		e.wg.Add(1)
		go e.pump(ww)
	}
	return nil
}

// pump waits on one watch root's overlapped completion in a loop, parses
// the FILE_NOTIFY_INFORMATION chain, and re-issues ReadDirectoryChangesW
// after every completion until stopNow is set (spec.md §4.5).
func (e *windowsEngine) pump(ww *winWatch) {
	defer e.wg.Done()
	for {
		var n uint32
		err := windows.GetOverlappedResult(ww.handle, &ww.overlap, &n, true)
		if ww.stopNow {
			return
		}
		if err != nil {
			dbg.Log("GetOverlappedResult %s: %s", ww.watch.Root, err)
			return
		}
		if n == 0 {
			// Buffer overflow with zero bytes transferred: a transient
			// kernel drop (spec.md §7 class 3). Log and keep going.
			dbg.Log("buffer overflow for %s", ww.watch.Root)
		} else {
			e.handleBuffer(ww, ww.buf[:n])
		}
		if ww.stopNow {
			return
		}
		if err := e.issueRead(ww); err != nil {
			dbg.Log("re-issue ReadDirectoryChangesW %s: %s", ww.watch.Root, err)
			return
		}
	}
}

// flushPendingRename dispatches ww's pending RENAMED_OLD_NAME as a Delete
// and clears it. Called whenever a second OLD_NAME, or any non-rename
// action, arrives while a rename is only half-seen, so a stale old name is
// never held indefinitely or paired with an unrelated NEW_NAME (spec.md
// §5: a second old-name or new-name without a partner must be flushed as
// Delete/Add rather than held).
func (e *windowsEngine) flushPendingRename(ww *winWatch) {
	if ww.pendName == "" {
		return
	}
	dbg.Log("stale FILE_ACTION_RENAMED_OLD_NAME for %q, flushing as Delete", ww.pendName)
	e.disp.Dispatch(ww.watch, ww.watch.Root, ww.pendName, Delete)
	ww.pendName = ""
}

func (e *windowsEngine) handleBuffer(ww *winWatch, buf []byte) {
	var off uint32
	for {
		raw := (*windows.FileNotifyInformation)(unsafe.Pointer(&buf[off]))
		name := windows.UTF16ToString((*[1 << 16]uint16)(unsafe.Pointer(&raw.FileName))[: raw.FileNameLength/2 : raw.FileNameLength/2])
		dbg.Log("windows %s action=%s name=%q", ww.watch.Root, dbg.Windows(raw.Action), name)

		switch raw.Action {
		case windows.FILE_ACTION_ADDED:
			e.flushPendingRename(ww)
			e.disp.Dispatch(ww.watch, ww.watch.Root, name, Add)
		case windows.FILE_ACTION_REMOVED:
			e.flushPendingRename(ww)
			e.disp.Dispatch(ww.watch, ww.watch.Root, name, Delete)
		case windows.FILE_ACTION_MODIFIED:
			e.flushPendingRename(ww)
			e.disp.Dispatch(ww.watch, ww.watch.Root, name, Modified)
		case windows.FILE_ACTION_RENAMED_OLD_NAME:
			e.flushPendingRename(ww)
			ww.pendName = name
		case windows.FILE_ACTION_RENAMED_NEW_NAME:
			if ww.pendName != "" {
				e.disp.DispatchMoved(ww.watch, ww.watch.Root, ww.pendName, name)
				ww.pendName = ""
			} else {
				// A lone new-name without a partner: treat as Add, with a
				// debug warning, per spec.md §4.5.
				dbg.Log("lone FILE_ACTION_RENAMED_NEW_NAME for %q, treating as Add", name)
				e.disp.Dispatch(ww.watch, ww.watch.Root, name, Add)
			}
		}

		if raw.NextEntryOffset == 0 {
			break
		}
		off += raw.NextEntryOffset
		if off >= uint32(len(buf)) {
			break
		}
	}
}

func (e *windowsEngine) Directories() []string { return e.reg.Directories() }

func (e *windowsEngine) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	watches := make([]*winWatch, 0, len(e.byID))
	for _, ww := range e.byID {
		watches = append(watches, ww)
	}
	e.byID = make(map[WatchID]*winWatch)
	e.mu.Unlock()

	for _, ww := range watches {
		ww.stopNow = true
		windows.CancelIoEx(ww.handle, &ww.overlap)
		windows.CloseHandle(ww.handle)
	}
	e.wg.Wait()
	return nil
}
