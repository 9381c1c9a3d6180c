//go:build darwin && cgo

package dbg

import "github.com/mutagen-io/fsevents"

var fsEventsNames = []flagName{
	{"MustScanSubDirs", uint32(fsevents.MustScanSubDirs)},
	{"UserDropped", uint32(fsevents.UserDropped)},
	{"KernelDropped", uint32(fsevents.KernelDropped)},
	{"EventIDsWrapped", uint32(fsevents.EventIDsWrapped)},
	{"HistoryDone", uint32(fsevents.HistoryDone)},
	{"RootChanged", uint32(fsevents.RootChanged)},
	{"Mount", uint32(fsevents.Mount)},
	{"Unmount", uint32(fsevents.Unmount)},
	{"ItemCreated", uint32(fsevents.ItemCreated)},
	{"ItemRemoved", uint32(fsevents.ItemRemoved)},
	{"ItemInodeMetaMod", uint32(fsevents.ItemInodeMetaMod)},
	{"ItemRenamed", uint32(fsevents.ItemRenamed)},
	{"ItemModified", uint32(fsevents.ItemModified)},
	{"ItemIsDir", uint32(fsevents.ItemIsDir)},
}

// FSEvents renders an fsevents.EventFlags value as a readable flag list.
func FSEvents(flags uint32) string { return decode(flags, fsEventsNames) }
