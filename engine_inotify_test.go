//go:build linux

package dirwatch

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/goleak"
)

func TestInotifyEngineAddModifyDelete(t *testing.T) {
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
	if !waitFor(t, time.Second, func() bool { return hasAction(l.snapshot(), "a.txt", Add) }) {
		t.Fatalf("no Add event observed for a.txt: %+v", l.snapshot())
	}

	if err := os.Remove(file); err != nil {
		t.Fatal(err)
	}
	if !waitFor(t, time.Second, func() bool { return hasAction(l.snapshot(), "a.txt", Delete) }) {
		t.Fatalf("no Delete event observed for a.txt: %+v", l.snapshot())
	}
}

func TestInotifyEngineRecursiveChildWatch(t *testing.T) {
	defer goleak.VerifyNone(t)

	dir := t.TempDir()
	w, err := New()
	if err != nil {
		t.Fatalf("New: %s", err)
	}
	defer w.Close()

	l := &eventCollector{}
	if _, err := w.AddWatch(dir, l, true); err != nil {
		t.Fatalf("AddWatch: %s", err)
	}
	if err := w.Watch(); err != nil {
		t.Fatalf("Watch: %s", err)
	}

	sub := filepath.Join(dir, "sub")
	if err := os.Mkdir(sub, 0o755); err != nil {
		t.Fatal(err)
	}
	if !waitFor(t, time.Second, func() bool { return hasAction(l.snapshot(), "sub", Add) }) {
		t.Fatalf("no Add event observed for sub: %+v", l.snapshot())
	}

	nested := filepath.Join(sub, "nested.txt")
	if err := os.WriteFile(nested, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if !waitFor(t, time.Second, func() bool { return hasAction(l.snapshot(), "nested.txt", Add) }) {
		t.Fatalf("no Add event observed for a file in a newly created subdirectory: %+v", l.snapshot())
	}
}

func TestInotifyEngineCascadeRemoval(t *testing.T) {
	defer goleak.VerifyNone(t)

	dir := t.TempDir()
	sub := filepath.Join(dir, "sub")
	if err := os.Mkdir(sub, 0o755); err != nil {
		t.Fatal(err)
	}

	w, err := New()
	if err != nil {
		t.Fatalf("New: %s", err)
	}
	defer w.Close()

	l := &eventCollector{}
	id, err := w.AddWatch(dir, l, true)
	if err != nil {
		t.Fatalf("AddWatch: %s", err)
	}
	if err := w.Watch(); err != nil {
		t.Fatalf("Watch: %s", err)
	}

	if err := w.RemoveWatchID(id); err != nil {
		t.Fatalf("RemoveWatchID: %s", err)
	}
	if len(w.Directories()) != 0 {
		t.Fatalf("Directories() = %v after cascade removal, want empty", w.Directories())
	}
}
