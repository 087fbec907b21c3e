package linkfs

import (
	"os"
	"strings"

	"devlinks/device"
)

// Arbiter scans a stable name's claim dir and decides which claimant's
// device node a symlink should point at.
type Arbiter struct {
	Index    *ClaimIndex
	Resolver device.Resolver
}

// NewArbiter returns an Arbiter backed by idx and resolver.
func NewArbiter(idx *ClaimIndex, resolver device.Resolver) *Arbiter {
	return &Arbiter{Index: idx, Resolver: resolver}
}

// candidate is the currently-adopted winner during a scan.
type candidate struct {
	node     string
	priority int
	have     bool
}

func (c *candidate) adopt(node string, priority int) {
	c.node = node
	c.priority = priority
	c.have = true
}

// FindPrioritized scans the claim dir for relStableName and returns the
// device node of the highest-priority claimant. When add is true, dev's
// own node and priority seed the scan, which both handles the claim dir
// not existing yet on disk and biases ties toward dev (ties favor the
// earlier-adopted candidate, and the seed is always adopted first).
//
// ok is false if no claimant (seeded or on-disk) was found; that is not
// itself an error.
func (a *Arbiter) FindPrioritized(dev device.Device, add bool, relStableName string) (node string, ok bool, err error) {
	var best candidate
	if add {
		best.adopt(dev.Devname(), dev.DevlinkPriority())
	}

	dir, _ := a.Index.ClaimDir(relStableName)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if best.have {
			return best.node, true, nil
		}
		return "", false, nil
	}

	selfID := dev.DeviceID()
	for _, ent := range entries {
		name := ent.Name()
		if name == "" || strings.HasPrefix(name, ".") || name == selfID {
			continue
		}
		peer, rerr := a.Resolver.DeviceByID(name)
		if rerr != nil {
			continue
		}
		priority := peer.DevlinkPriority()
		if !best.have || priority > best.priority {
			best.adopt(peer.Devname(), priority)
		}
	}

	return best.node, best.have, nil
}
