//go:build freebsd || openbsd || netbsd || dragonfly || (darwin && !cgo)

package dbg

import "golang.org/x/sys/unix"

var kqueueNames = []flagName{
	{"NOTE_DELETE", unix.NOTE_DELETE},
	{"NOTE_WRITE", unix.NOTE_WRITE},
	{"NOTE_EXTEND", unix.NOTE_EXTEND},
	{"NOTE_ATTRIB", unix.NOTE_ATTRIB},
	{"NOTE_LINK", unix.NOTE_LINK},
	{"NOTE_RENAME", unix.NOTE_RENAME},
	{"NOTE_REVOKE", unix.NOTE_REVOKE},
}

// Kqueue renders a kevent Fflags value as a readable flag list.
func Kqueue(fflags uint32) string { return decode(fflags, kqueueNames) }
