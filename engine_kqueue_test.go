//go:build freebsd || openbsd || netbsd || dragonfly || (darwin && !cgo)

package dirwatch

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/goleak"
)

func TestKqueueEngineAddModifyDelete(t *testing.T) {
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

	if err := os.WriteFile(file, []byte("123"), 0o644); err != nil {
		t.Fatal(err)
	}
	if !waitFor(t, time.Second, func() bool { return hasAction(l.snapshot(), "a.txt", Modified) }) {
		t.Fatalf("no Modified event observed for a.txt: %+v", l.snapshot())
	}

	if err := os.Remove(file); err != nil {
		t.Fatal(err)
	}
	if !waitFor(t, time.Second, func() bool { return hasAction(l.snapshot(), "a.txt", Delete) }) {
		t.Fatalf("no Delete event observed for a.txt: %+v", l.snapshot())
	}
}

func TestKqueueEngineRecursiveChildDirectory(t *testing.T) {
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

	// A file created inside the newly discovered child directory must be
	// visible too, which requires the engine to have opened a kqueue
	// watch on sub immediately on seeing it appear (spec.md §4.3).
	nested := filepath.Join(sub, "nested.txt")
	if err := os.WriteFile(nested, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if !waitFor(t, time.Second, func() bool { return hasAction(l.snapshot(), "nested.txt", Add) }) {
		t.Fatalf("no Add event observed for nested.txt: %+v", l.snapshot())
	}
}
