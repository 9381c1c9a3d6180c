//go:build windows

package dbg

import (
	"fmt"

	"golang.org/x/sys/windows"
)

var windowsNames = []flagName{
	{"FILE_ACTION_ADDED", windows.FILE_ACTION_ADDED},
	{"FILE_ACTION_REMOVED", windows.FILE_ACTION_REMOVED},
	{"FILE_ACTION_MODIFIED", windows.FILE_ACTION_MODIFIED},
	{"FILE_ACTION_RENAMED_OLD_NAME", windows.FILE_ACTION_RENAMED_OLD_NAME},
	{"FILE_ACTION_RENAMED_NEW_NAME", windows.FILE_ACTION_RENAMED_NEW_NAME},
}

// Windows renders a FILE_NOTIFY_INFORMATION.Action value as a readable name.
// Action is an enumerated value, not a bitmask, so it is matched exactly.
func Windows(action uint32) string {
	for _, n := range windowsNames {
		if n.bit == action {
			return n.name
		}
	}
	return fmt.Sprintf("0x%x", action)
}
