package devicemgr

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"devlinks/device/devicefake"
	"devlinks/linkfs"
)

func newTestFacade(t *testing.T) (*Facade, *devicefake.Store, string) {
	t.Helper()
	devfsRoot := t.TempDir()
	scratchRoot := t.TempDir()
	store := devicefake.NewStore()
	idx := linkfs.NewClaimIndex(scratchRoot)
	return New(idx, store, devfsRoot), store, devfsRoot
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

func TestFacade_AddInstallsStableNamesAndTopologyLink(t *testing.T) {
	f, store, devfsRoot := newTestFacade(t)
	sda := filepath.Join(devfsRoot, "sda")
	touch(t, sda)

	stableName := filepath.Join(devfsRoot, "disk", "by-id", "X")
	d1 := &devicefake.Device{
		ID: "d1", Node: sda, Sub: "block", Major: 8, Minor: 0,
		Priority: 0, Initialized: true, Links: []string{stableName},
	}
	store.Put(d1)

	f.Add(d1, linkfs.Permissions{Mode: linkfs.Unset, UID: linkfs.Unset, GID: linkfs.Unset})

	_, err := os.Lstat(stableName)
	require.NoError(t, err, "stable name should be installed")
	topo := filepath.Join(devfsRoot, "block", "8:0")
	_, err = os.Lstat(topo)
	require.NoError(t, err, "fixed-topology link should be installed")
}

func TestFacade_RemoveRetiresLinksAndTopology(t *testing.T) {
	f, store, devfsRoot := newTestFacade(t)
	sda := filepath.Join(devfsRoot, "sda")
	touch(t, sda)

	stableName := filepath.Join(devfsRoot, "disk", "by-id", "X")
	d1 := &devicefake.Device{
		ID: "d1", Node: sda, Sub: "block", Major: 8, Minor: 0,
		Priority: 0, Initialized: true, Links: []string{stableName},
	}
	store.Put(d1)

	f.Add(d1, linkfs.Permissions{Mode: linkfs.Unset, UID: linkfs.Unset, GID: linkfs.Unset})
	f.Remove(d1)

	if _, err := os.Lstat(stableName); !os.IsNotExist(err) {
		t.Errorf("stable name should be gone: %v", err)
	}
	topo := filepath.Join(devfsRoot, "block", "8:0")
	if _, err := os.Lstat(topo); !os.IsNotExist(err) {
		t.Errorf("fixed-topology link should be gone: %v", err)
	}
}

func TestFacade_UpdateOldLinksRetiresDroppedNames(t *testing.T) {
	f, store, devfsRoot := newTestFacade(t)
	sda := filepath.Join(devfsRoot, "sda")
	touch(t, sda)

	keep := filepath.Join(devfsRoot, "disk", "by-id", "kept")
	drop := filepath.Join(devfsRoot, "disk", "by-id", "dropped")

	dOld := &devicefake.Device{
		ID: "d1", Node: sda, Sub: "block", Major: 8, Minor: 0,
		Priority: 0, Initialized: true, Links: []string{keep, drop},
	}
	store.Put(dOld)
	f.Add(dOld, linkfs.Permissions{Mode: linkfs.Unset, UID: linkfs.Unset, GID: linkfs.Unset})

	dNew := &devicefake.Device{
		ID: "d1", Node: sda, Sub: "block", Major: 8, Minor: 0,
		Priority: 0, Initialized: true, Links: []string{keep},
	}
	store.Put(dNew)

	f.UpdateOldLinks(dNew, dOld)

	if _, err := os.Lstat(keep); err != nil {
		t.Errorf("kept stable name should still exist: %v", err)
	}
	if _, err := os.Lstat(drop); !os.IsNotExist(err) {
		t.Errorf("dropped stable name should be gone: %v", err)
	}
}

func TestFacade_AddSkipsPerNameFailures(t *testing.T) {
	f, store, devfsRoot := newTestFacade(t)
	sda := filepath.Join(devfsRoot, "sda")
	touch(t, sda)

	good := filepath.Join(devfsRoot, "disk", "by-id", "good")
	outside := filepath.Join(t.TempDir(), "outside")

	d1 := &devicefake.Device{
		ID: "d1", Node: sda, Sub: "block", Major: 8, Minor: 0,
		Priority: 0, Initialized: true, Links: []string{outside, good},
	}
	store.Put(d1)

	f.Add(d1, linkfs.Permissions{Mode: linkfs.Unset, UID: linkfs.Unset, GID: linkfs.Unset})

	if _, err := os.Lstat(good); err != nil {
		t.Errorf("good stable name should still be installed despite the bad one failing: %v", err)
	}
}
