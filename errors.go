package dirwatch

import "fmt"

// FileNotFound is returned by AddWatch when the path does not exist.
type FileNotFound struct {
	Path string
}

func (e *FileNotFound) Error() string { return fmt.Sprintf("no such file or directory: %s", e.Path) }

// Unspecified wraps any other OS error encountered while adding, removing,
// or servicing a watch (spec.md §7, error class 2). Detail carries the
// underlying OS error text.
type Unspecified struct {
	Detail string
	Err    error
}

func (e *Unspecified) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s", e.Detail, e.Err)
	}
	return e.Detail
}

func (e *Unspecified) Unwrap() error { return e.Err }

func unspecified(detail string, err error) error {
	return &Unspecified{Detail: detail, Err: err}
}

// ErrClosed is the error value for an operation on a closed engine. The
// engines in this package do not return it: a WatcherEngine method called
// after Close is not rejected with ErrClosed.
var ErrClosed = fmt.Errorf("dirwatch: engine closed")

// ErrNonExistentWatch is the error value for a removal whose id or path
// matches no registered watch. The engines in this package do not return
// it: removing a non-existent watch is silent and returns nil (spec.md
// §4.1).
var ErrNonExistentWatch = fmt.Errorf("dirwatch: no such watch")
