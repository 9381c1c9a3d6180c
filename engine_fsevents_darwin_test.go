//go:build darwin && cgo

package dirwatch

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/goleak"
)

func TestFSEventsEngineAddModifyDelete(t *testing.T) {
	defer goleak.VerifyNone(t)

	dir := t.TempDir()
	w, err := New()
	if err != nil {
		t.Fatalf("New: %s", err)
	}
	defer w.Close()

	l := &eventCollector{}
	if _, err := w.AddWatch(dir, l, false); err != nil {
		t.Fatalf("AddWatch: %s", err)
	}
	if err := w.Watch(); err != nil {
		t.Fatalf("Watch: %s", err)
	}

	file := filepath.Join(dir, "a.txt")
	if err := os.WriteFile(file, []byte("1"), 0o644); err != nil {
		t.Fatal(err)
	}
	if !waitFor(t, 2*time.Second, func() bool { return hasAction(l.snapshot(), "a.txt", Add) }) {
		t.Fatalf("no Add event observed for a.txt: %+v", l.snapshot())
	}

	if err := os.Remove(file); err != nil {
		t.Fatal(err)
	}
	if !waitFor(t, 2*time.Second, func() bool { return hasAction(l.snapshot(), "a.txt", Delete) }) {
		t.Fatalf("no Delete event observed for a.txt: %+v", l.snapshot())
	}
}

func TestFSEventsEngineRenameWithinSameDirectory(t *testing.T) {
	defer goleak.VerifyNone(t)

	dir := t.TempDir()
	w, err := New()
	if err != nil {
		t.Fatalf("New: %s", err)
	}
	defer w.Close()

	l := &eventCollector{}
	if _, err := w.AddWatch(dir, l, false); err != nil {
		t.Fatalf("AddWatch: %s", err)
	}
	if err := w.Watch(); err != nil {
		t.Fatalf("Watch: %s", err)
	}

	oldPath := filepath.Join(dir, "old.txt")
	newPath := filepath.Join(dir, "new.txt")
	if err := os.WriteFile(oldPath, []byte("1"), 0o644); err != nil {
		t.Fatal(err)
	}
	if !waitFor(t, 2*time.Second, func() bool { return hasAction(l.snapshot(), "old.txt", Add) }) {
		t.Fatalf("no Add event observed for old.txt: %+v", l.snapshot())
	}

	if err := os.Rename(oldPath, newPath); err != nil {
		t.Fatal(err)
	}
	// FSEvents pairs the two rename halves only once both have been seen;
	// a single quick rename under default latency should surface as Moved
	// per the granular-mode algorithm (spec.md §4.4).
	if !waitFor(t, 2*time.Second, func() bool {
		for _, e := range l.snapshot() {
			if e.action == Moved && e.name == "new.txt" {
				return true
			}
		}
		return false
	}) {
		t.Fatalf("no Moved event observed for old.txt -> new.txt: %+v", l.snapshot())
	}
}
