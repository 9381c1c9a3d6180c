//go:build windows

package fsutil

import "os"

// Windows exposes no cheap stable inode-equivalent through os.FileInfo, so
// the generic poller falls back to comparing size and mtime alone there.
func inode(fi os.FileInfo) uint64 { return 0 }
