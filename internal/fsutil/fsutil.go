// Package fsutil implements the filesystem-helper contract that spec.md §6
// assumes is available to the watch engine: trailing-slash normalization,
// directory enumeration and lightweight stat-like metadata, and splitting a
// full path into parent directory and filename. Path joining is left to
// path/filepath.
package fsutil

import (
	"os"
	"path/filepath"
	"strings"
)

// Sep is the OS path separator, as a string, per spec.md §6.
const Sep = string(filepath.Separator)

// NormalizeDir returns path converted to an absolute, cleaned directory path
// that always ends with Sep, per the Watch invariant in spec.md §3.
func NormalizeDir(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	if !strings.HasSuffix(abs, Sep) {
		abs += Sep
	}
	return abs, nil
}

// SplitPath splits a full path into its parent directory (always ending in
// Sep) and bare filename, per spec.md §6.
func SplitPath(path string) (dir, name string) {
	dir, name = filepath.Split(filepath.Clean(path))
	if !strings.HasSuffix(dir, Sep) {
		dir += Sep
	}
	return dir, name
}

// IsDir reports whether path refers to a directory. It follows symlinks and
// returns false (not an error) if path cannot be stat'd, matching the
// teacher's convention of treating a vanished path as "not a directory"
// rather than propagating a transient stat error up through recursion.
func IsDir(path string) bool {
	fi, err := os.Stat(path)
	return err == nil && fi.IsDir()
}

// Entry is one directory entry as returned by ListDir.
type Entry struct {
	Name    string
	IsDir   bool
	ModTime int64 // Unix nanoseconds.
	Size    int64
	Ino     uint64 // 0 when the platform exposes no stable inode-equivalent.
}

// ListDir enumerates the immediate children of dir, in no particular order.
// A vanished directory yields (nil, err) so callers can distinguish "empty"
// from "gone".
func ListDir(dir string) ([]Entry, error) {
	des, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	entries := make([]Entry, 0, len(des))
	for _, de := range des {
		info, err := de.Info()
		if err != nil {
			// Entry disappeared between ReadDir and Info; skip it, it'll
			// show up as a delete on the next pass/rescan.
			continue
		}
		entries = append(entries, Entry{
			Name:    de.Name(),
			IsDir:   de.IsDir(),
			ModTime: info.ModTime().UnixNano(),
			Size:    info.Size(),
			Ino:     inode(info),
		})
	}
	return entries, nil
}
