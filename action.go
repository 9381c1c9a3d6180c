// Package dirwatch provides a cross-platform file-system change-notification
// library. Consumers register directories to observe, optionally
// recursively, and receive asynchronous notifications whenever files or
// subdirectories within them are created, modified, removed, or renamed.
package dirwatch

import "fmt"

// FileAction is the normalized vocabulary the dispatcher synthesizes from
// every backend's raw kernel events. Unlike fsnotify's Op, it is a closed
// enum: a single delivered event always carries exactly one action, never a
// combination of bits, because a raw kernel event carrying several bits is
// split into one FileAction call per bit (spec.md §4.2, §4.4).
type FileAction int

const (
	// Add: a file or directory was created, or renamed into the watch.
	Add FileAction = iota + 1
	// Delete: a file or directory was removed, or renamed out of the watch.
	Delete
	// Modified: a file's contents or metadata changed.
	Modified
	// Moved: a file or directory was renamed within the same directory.
	// Only produced by backends that can pair the two halves of a rename
	// (FSEvents granular mode, Win32); Inotify and the generic poller
	// surface a rename as Delete+Add instead (spec.md §8).
	Moved
)

func (a FileAction) String() string {
	switch a {
	case Add:
		return "Add"
	case Delete:
		return "Delete"
	case Modified:
		return "Modified"
	case Moved:
		return "Moved"
	default:
		return fmt.Sprintf("FileAction(%d)", int(a))
	}
}
