package linkfs

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/kr/pretty"

	"devlinks/device/devicefake"
)

func newTestUpdater(t *testing.T) (*Updater, *devicefake.Store, string) {
	t.Helper()
	devfsRoot := t.TempDir()
	scratchRoot := t.TempDir()
	store := devicefake.NewStore()
	idx := NewClaimIndex(scratchRoot)
	arb := NewArbiter(idx, store)
	return NewUpdater(idx, arb, devfsRoot), store, devfsRoot
}

func touch(t *testing.T, path string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, nil, 0644); err != nil {
		t.Fatal(err)
	}
}

// TestLinkUpdate_SingleClaimantAdd is scenario 1 of the stable-name
// arbitration properties: a single device adding a name gets a symlink to
// its own node and a marker in the claim index.
func TestLinkUpdate_SingleClaimantAdd(t *testing.T) {
	u, store, devfsRoot := newTestUpdater(t)
	sda := filepath.Join(devfsRoot, "sda")
	touch(t, sda)

	d1 := &devicefake.Device{ID: "d1", Node: sda, Priority: 0, Initialized: true}
	store.Put(d1)

	stableName := filepath.Join(devfsRoot, "disk", "by-id", "X")
	if err := u.LinkUpdate(d1, stableName, true); err != nil {
		t.Fatalf("LinkUpdate(add): %v", err)
	}

	marker := u.Index.MarkerPath("d1", "disk/by-id/X")
	if _, err := os.Lstat(marker); err != nil {
		t.Errorf("marker not present: %v", err)
	}
	target, err := os.Readlink(stableName)
	if err != nil {
		t.Fatalf("Readlink: %v", err)
	}
	if target != "../../sda" {
		t.Errorf("target = %q, want ../../sda", target)
	}
}

// TestLinkUpdate_HigherPriorityTakeover is scenario 2.
func TestLinkUpdate_HigherPriorityTakeover(t *testing.T) {
	u, store, devfsRoot := newTestUpdater(t)
	sda := filepath.Join(devfsRoot, "sda")
	sdb := filepath.Join(devfsRoot, "sdb")
	touch(t, sda)
	touch(t, sdb)

	d1 := &devicefake.Device{ID: "d1", Node: sda, Priority: 0, Initialized: true}
	d2 := &devicefake.Device{ID: "d2", Node: sdb, Priority: 10, Initialized: true}
	store.Put(d1)
	store.Put(d2)

	stableName := filepath.Join(devfsRoot, "disk", "by-id", "X")
	if err := u.LinkUpdate(d1, stableName, true); err != nil {
		t.Fatalf("LinkUpdate(d1, add): %v", err)
	}
	if err := u.LinkUpdate(d2, stableName, true); err != nil {
		t.Fatalf("LinkUpdate(d2, add): %v", err)
	}

	for _, id := range []string{"d1", "d2"} {
		if _, err := os.Lstat(u.Index.MarkerPath(id, "disk/by-id/X")); err != nil {
			t.Errorf("marker %s missing: %v", id, err)
		}
	}
	target, err := os.Readlink(stableName)
	if err != nil {
		t.Fatalf("Readlink: %v", err)
	}
	if target != "../../sdb" {
		snap, _ := u.Index.Snapshot("disk/by-id/X")
		t.Errorf("target = %q, want ../../sdb; claim snapshot: %# v", target, pretty.Formatter(snap))
	}
}

// TestLinkUpdate_LowerPriorityJoinIgnored is scenario 3.
func TestLinkUpdate_LowerPriorityJoinIgnored(t *testing.T) {
	u, store, devfsRoot := newTestUpdater(t)
	sda := filepath.Join(devfsRoot, "sda")
	sdb := filepath.Join(devfsRoot, "sdb")
	sdc := filepath.Join(devfsRoot, "sdc")
	touch(t, sda)
	touch(t, sdb)
	touch(t, sdc)

	d1 := &devicefake.Device{ID: "d1", Node: sda, Priority: 0, Initialized: true}
	d2 := &devicefake.Device{ID: "d2", Node: sdb, Priority: 10, Initialized: true}
	d3 := &devicefake.Device{ID: "d3", Node: sdc, Priority: 1, Initialized: true}
	store.Put(d1)
	store.Put(d2)
	store.Put(d3)

	stableName := filepath.Join(devfsRoot, "disk", "by-id", "X")
	for _, d := range []*devicefake.Device{d1, d2, d3} {
		if err := u.LinkUpdate(d, stableName, true); err != nil {
			t.Fatalf("LinkUpdate(%s, add): %v", d.ID, err)
		}
	}

	target, err := os.Readlink(stableName)
	if err != nil {
		t.Fatalf("Readlink: %v", err)
	}
	if target != "../../sdb" {
		t.Errorf("target = %q, want ../../sdb", target)
	}
	for _, id := range []string{"d1", "d2", "d3"} {
		if _, err := os.Lstat(u.Index.MarkerPath(id, "disk/by-id/X")); err != nil {
			t.Errorf("marker %s missing: %v", id, err)
		}
	}
}

// TestLinkUpdate_RemoveWinnerPromotesRunnerUp is scenario 4.
func TestLinkUpdate_RemoveWinnerPromotesRunnerUp(t *testing.T) {
	u, store, devfsRoot := newTestUpdater(t)
	sda := filepath.Join(devfsRoot, "sda")
	sdb := filepath.Join(devfsRoot, "sdb")
	sdc := filepath.Join(devfsRoot, "sdc")
	touch(t, sda)
	touch(t, sdb)
	touch(t, sdc)

	d1 := &devicefake.Device{ID: "d1", Node: sda, Priority: 0, Initialized: true}
	d2 := &devicefake.Device{ID: "d2", Node: sdb, Priority: 10, Initialized: true}
	d3 := &devicefake.Device{ID: "d3", Node: sdc, Priority: 1, Initialized: true}
	store.Put(d1)
	store.Put(d2)
	store.Put(d3)

	stableName := filepath.Join(devfsRoot, "disk", "by-id", "X")
	for _, d := range []*devicefake.Device{d1, d2, d3} {
		if err := u.LinkUpdate(d, stableName, true); err != nil {
			t.Fatalf("LinkUpdate(%s, add): %v", d.ID, err)
		}
	}

	if err := u.LinkUpdate(d2, stableName, false); err != nil {
		t.Fatalf("LinkUpdate(d2, remove): %v", err)
	}

	if _, err := os.Lstat(u.Index.MarkerPath("d2", "disk/by-id/X")); !os.IsNotExist(err) {
		t.Errorf("marker d2 should be gone: %v", err)
	}
	target, err := os.Readlink(stableName)
	if err != nil {
		t.Fatalf("Readlink: %v", err)
	}
	if target != "../../sdc" {
		t.Errorf("target = %q, want ../../sdc (priority 1 beats 0)", target)
	}
}

// TestLinkUpdate_RemoveLastClaimantDeletesLink is scenario 5.
func TestLinkUpdate_RemoveLastClaimantDeletesLink(t *testing.T) {
	u, store, devfsRoot := newTestUpdater(t)
	sda := filepath.Join(devfsRoot, "sda")
	sdc := filepath.Join(devfsRoot, "sdc")
	touch(t, sda)
	touch(t, sdc)

	d1 := &devicefake.Device{ID: "d1", Node: sda, Priority: 0, Initialized: true}
	d3 := &devicefake.Device{ID: "d3", Node: sdc, Priority: 1, Initialized: true}
	store.Put(d1)
	store.Put(d3)

	stableName := filepath.Join(devfsRoot, "disk", "by-id", "X")
	if err := u.LinkUpdate(d1, stableName, true); err != nil {
		t.Fatal(err)
	}
	if err := u.LinkUpdate(d3, stableName, true); err != nil {
		t.Fatal(err)
	}

	if err := u.LinkUpdate(d1, stableName, false); err != nil {
		t.Fatalf("LinkUpdate(d1, remove): %v", err)
	}
	if err := u.LinkUpdate(d3, stableName, false); err != nil {
		t.Fatalf("LinkUpdate(d3, remove): %v", err)
	}

	if _, err := os.Lstat(stableName); !os.IsNotExist(err) {
		t.Errorf("stable name should not exist: %v", err)
	}
	dir, _ := u.Index.ClaimDir("disk/by-id/X")
	if _, err := os.Stat(dir); !os.IsNotExist(err) {
		t.Errorf("claim dir should be removed: %v", err)
	}
}

func TestLinkUpdate_RejectsOutsideDevfsRoot(t *testing.T) {
	u, store, _ := newTestUpdater(t)
	d1 := &devicefake.Device{ID: "d1", Node: "/dev/sda", Priority: 0, Initialized: true}
	store.Put(d1)

	err := u.LinkUpdate(d1, "/etc/passwd", true)
	if err == nil {
		t.Fatal("expected error for stable name outside devfs root")
	}
}

func TestLinkUpdate_UninitializedUsesSingleAttempt(t *testing.T) {
	u, store, devfsRoot := newTestUpdater(t)
	sda := filepath.Join(devfsRoot, "sda")
	touch(t, sda)

	d1 := &devicefake.Device{ID: "d1", Node: sda, Priority: 0, Initialized: false}
	store.Put(d1)

	stableName := filepath.Join(devfsRoot, "disk", "by-id", "X")
	if err := u.LinkUpdate(d1, stableName, true); err != nil {
		t.Fatalf("LinkUpdate(uninitialized): %v", err)
	}
	if _, err := os.Lstat(stableName); err != nil {
		t.Errorf("symlink should still be created on first pass: %v", err)
	}
}
