package dirwatch

import "testing"

func TestWatchRegistryInsertGet(t *testing.T) {
	r := NewWatchRegistry()
	w := &Watch{Root: "/tmp/a/"}
	id := r.Insert(w)
	if id <= 0 {
		t.Fatalf("Insert returned non-positive id %d", id)
	}
	if got := r.Get(id); got != w {
		t.Fatalf("Get(%d) = %v, want %v", id, got, w)
	}
	if r.Get(id + 1) != nil {
		t.Fatalf("Get of unknown id should return nil")
	}
}

func TestWatchRegistryIDsNeverReused(t *testing.T) {
	r := NewWatchRegistry()
	a := r.Insert(&Watch{Root: "/tmp/a/"})
	r.Remove(a)
	b := r.Insert(&Watch{Root: "/tmp/b/"})
	if b <= a {
		t.Fatalf("second id %d must be greater than removed id %d", b, a)
	}
}

func TestWatchRegistryFindByPath(t *testing.T) {
	r := NewWatchRegistry()
	w := &Watch{Root: "/tmp/a/"}
	r.Insert(w)
	if got := r.FindByPath("/tmp/a/"); got != w {
		t.Fatalf("FindByPath did not find inserted watch")
	}
	if r.FindByPath("/tmp/nope/") != nil {
		t.Fatalf("FindByPath should return nil for an unknown path")
	}
}

func TestWatchRegistryCascadeIDs(t *testing.T) {
	r := NewWatchRegistry()
	root := &Watch{Root: "/tmp/root/"}
	rootID := r.Insert(root)
	child := &Watch{Root: "/tmp/root/sub/", Parent: rootID}
	childID := r.Insert(child)
	unrelated := &Watch{Root: "/tmp/other/"}
	otherID := r.Insert(unrelated)

	ids := r.CascadeIDs(rootID)
	if len(ids) != 2 {
		t.Fatalf("CascadeIDs returned %d ids, want 2: %v", len(ids), ids)
	}
	seen := map[WatchID]bool{}
	for _, id := range ids {
		seen[id] = true
	}
	if !seen[rootID] || !seen[childID] {
		t.Fatalf("CascadeIDs(%d) = %v, want to include root and child", rootID, ids)
	}
	if seen[otherID] {
		t.Fatalf("CascadeIDs(%d) wrongly included unrelated watch %d", rootID, otherID)
	}

	// Two-pass removal must not panic or skip entries, unlike ranging and
	// deleting from the map in a single pass.
	for _, id := range ids {
		r.Remove(id)
	}
	if r.Len() != 1 {
		t.Fatalf("registry has %d entries after cascade removal, want 1", r.Len())
	}
}

func TestWatchRegistryCascadeIDsUnknownRoot(t *testing.T) {
	r := NewWatchRegistry()
	if ids := r.CascadeIDs(123); ids != nil {
		t.Fatalf("CascadeIDs of unknown id = %v, want nil", ids)
	}
}

func TestWatchRegistryHasChildExact(t *testing.T) {
	r := NewWatchRegistry()
	r.Insert(&Watch{Root: "/tmp/a/"})
	if !r.HasChildExact("/tmp/a/") {
		t.Fatalf("HasChildExact should find an exact match")
	}
	if r.HasChildExact("/tmp/a/sub/") {
		t.Fatalf("HasChildExact should not match a descendant")
	}
}

func TestWatchRegistryDirectories(t *testing.T) {
	r := NewWatchRegistry()
	r.Insert(&Watch{Root: "/tmp/a/"})
	r.Insert(&Watch{Root: "/tmp/b/"})
	dirs := r.Directories()
	if len(dirs) != 2 {
		t.Fatalf("Directories() = %v, want 2 entries", dirs)
	}
}

func TestWatchDispatchID(t *testing.T) {
	root := &Watch{ID: 1}
	if root.dispatchID() != 1 {
		t.Fatalf("root.dispatchID() = %d, want 1", root.dispatchID())
	}
	child := &Watch{ID: 2, Parent: 1}
	if child.dispatchID() != 1 {
		t.Fatalf("child.dispatchID() = %d, want 1 (the ancestor's id)", child.dispatchID())
	}
	if !child.isChild() {
		t.Fatalf("child.isChild() = false, want true")
	}
	if root.isChild() {
		t.Fatalf("root.isChild() = true, want false")
	}
}
