// Package devicemgr orchestrates the claim index, arbiter, writer, and
// permission reconciler across all of a device's stable names on behalf
// of the event dispatcher.
package devicemgr

import (
	"fmt"
	"os"
	"path/filepath"

	"devlinks/device"
	linkerrors "devlinks/errors"
	"devlinks/linkfs"
	"devlinks/logging"
)

// Facade exposes the three operations the event dispatcher drives a
// device's lifecycle through: Add, Remove, and UpdateOldLinks.
type Facade struct {
	Updater   *linkfs.Updater
	DevfsRoot string
}

// New returns a Facade that manages stable names under devfsRoot using
// idx as the claim index and resolver to re-hydrate peer claimants.
func New(idx *linkfs.ClaimIndex, resolver device.Resolver, devfsRoot string) *Facade {
	arb := linkfs.NewArbiter(idx, resolver)
	return &Facade{
		Updater:   linkfs.NewUpdater(idx, arb, devfsRoot),
		DevfsRoot: devfsRoot,
	}
}

// fixedTopologyLink returns the <devfs>/<block|char>/<major>:<minor> path
// for dev.
func (f *Facade) fixedTopologyLink(dev device.Device) string {
	class := "char"
	if device.IsBlock(dev.Subsystem()) {
		class = "block"
	}
	major, minor := dev.Devnum()
	return filepath.Join(f.DevfsRoot, class, fmt.Sprintf("%d:%d", major, minor))
}

// Add reconciles dev's node permissions, installs its fixed-topology
// link, and claims every stable name in dev.Devlinks(). Failures for one
// stable name are logged and skipped; they never abort the rest.
func (f *Facade) Add(dev device.Device, perms linkfs.Permissions) {
	log := logging.WithDevice(logging.Default(), dev.DeviceID())

	if err := linkfs.ApplyNodePermissions(dev, perms); err != nil {
		kind, _ := linkerrors.GetKind(err)
		log.Error("permission reconciliation failed", "kind", kind.String(), "devpath", dev.Devpath(), "error", err)
	}

	topoLink := f.fixedTopologyLink(dev)
	if _, err := linkfs.NodeSymlink(dev.DeviceID(), dev.Devname(), topoLink); err != nil {
		log.Warn("fixed-topology link install failed", "link", topoLink, "devpath", dev.Devpath(), "error", err)
	}

	for _, name := range dev.Devlinks() {
		if err := f.Updater.LinkUpdate(dev, name, true); err != nil {
			log.Warn("link_update(add) failed for stable name", "stable_name", name, "error", err)
		}
	}
}

// Remove retires every stable name dev claimed and unlinks its
// fixed-topology link. Per-name failures are logged and skipped.
func (f *Facade) Remove(dev device.Device) {
	log := logging.WithDevice(logging.Default(), dev.DeviceID())

	for _, name := range dev.Devlinks() {
		if err := f.Updater.LinkUpdate(dev, name, false); err != nil {
			log.Warn("link_update(remove) failed for stable name", "stable_name", name, "error", err)
		}
	}

	topoLink := f.fixedTopologyLink(dev)
	if err := removeBestEffort(topoLink); err != nil {
		log.Warn("fixed-topology link removal failed", "link", topoLink, "devpath", dev.Devpath(), "error", err)
	}
}

// UpdateOldLinks retires stable names present on devOld but absent from
// dev's current list — names the rule engine stopped emitting.
func (f *Facade) UpdateOldLinks(dev, devOld device.Device) {
	log := logging.WithDevice(logging.Default(), dev.DeviceID())

	current := make(map[string]bool, len(dev.Devlinks()))
	for _, name := range dev.Devlinks() {
		current[name] = true
	}

	for _, name := range devOld.Devlinks() {
		if current[name] {
			continue
		}
		if err := f.Updater.LinkUpdate(dev, name, false); err != nil {
			log.Warn("link_update(remove stale) failed for stable name", "stable_name", name, "error", err)
		}
	}
}

func removeBestEffort(path string) error {
	err := os.Remove(path)
	if err != nil && os.IsNotExist(err) {
		return nil
	}
	return err
}
