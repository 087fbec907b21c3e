// Package device defines the device abstraction consumed by the
// device-node symlink manager.
//
// The manager never talks to the kernel device database itself; it is
// handed a Device for each add/change/remove event by an external event
// dispatcher, and resolves peer devices named in the claim index back
// to a Device through a Resolver. Production wiring backs both
// interfaces with a real device-property database; the devicefake
// subpackage provides the in-memory stand-in used by this module's own
// tests and by the devlinksctl debug CLI.
package device

// Device is the read-only view of a single kernel device event that the
// link manager needs. All methods must be side-effect free and safe to
// call repeatedly; implementations backed by a live database may return
// different values across calls if the device's properties changed.
type Device interface {
	// DeviceID returns a short string uniquely identifying the device
	// within one running system. It is filesystem-safe and is used
	// verbatim as a claim-index marker filename.
	DeviceID() string

	// Devname returns the absolute path of the device node, e.g. "/dev/sda".
	Devname() string

	// Devnum returns the device's major:minor number.
	Devnum() (major, minor uint32)

	// Subsystem returns the kernel subsystem name, e.g. "block" or "tty".
	Subsystem() string

	// Devpath returns the device's path under /sys. The facade carries it
	// into failure log lines (permission reconciliation, link install) so
	// an operator can locate the device without cross-referencing the
	// device id against the property database by hand.
	Devpath() string

	// DevlinkPriority returns the signed link-priority hint assigned by
	// the rule engine. Higher wins; default is 0.
	DevlinkPriority() int

	// IsInitialized reports whether the device's property database
	// entry has been committed. Before that, arbitration is unreliable.
	IsInitialized() bool

	// Devlinks returns the ordered sequence of stable name paths the
	// rule engine assigned to this device.
	Devlinks() []string
}

// Resolver re-hydrates a peer device from the device id recorded as a
// claim-index marker filename. It is the one non-trivial dependency the
// priority arbiter has on the outside world: production implementations
// back it with a device-property database lookup.
type Resolver interface {
	// DeviceByID resolves id to a live Device. It returns an error if
	// the id is stale (the device has since been removed) or otherwise
	// cannot be resolved; the arbiter treats any such error as "skip
	// this claimant" rather than a fatal condition.
	DeviceByID(id string) (Device, error)
}

// IsBlock reports whether subsystem denotes a block device, as opposed
// to a character device. The permission reconciler and the
// fixed-topology link both branch on this.
func IsBlock(subsystem string) bool {
	return subsystem == "block"
}
