package linkfs

import (
	"os"
	"path/filepath"
	"strings"

	"devlinks/device"
	linkerrors "devlinks/errors"
	"devlinks/logging"
)

// initializedRetryBudget and uninitializedRetryBudget are the two retry
// budgets LinkUpdate chooses between. Before a device's property database
// entry is committed, arbitration against it is unreliable, so a single
// pass suffices; any wrong symlink self-corrects on the next invocation.
const (
	initializedRetryBudget   = 128
	uninitializedRetryBudget = 1
)

// Updater drives the claim index and the priority arbiter to convergence
// for one stable name at a time.
type Updater struct {
	Index     *ClaimIndex
	Arbiter   *Arbiter
	DevfsRoot string
}

// NewUpdater returns an Updater rooted at devfsRoot (conventionally /dev).
func NewUpdater(idx *ClaimIndex, arb *Arbiter, devfsRoot string) *Updater {
	return &Updater{Index: idx, Arbiter: arb, DevfsRoot: devfsRoot}
}

// LinkUpdate adds or removes dev's claim on stableName and drives the
// claim index, the arbiter, and the atomic writer to a stable state,
// retrying under the bounded budget described in the retry-budget
// constants above.
func (u *Updater) LinkUpdate(dev device.Device, stableName string, add bool) error {
	rel, err := u.relativize(stableName)
	if err != nil {
		return err
	}

	if !add {
		if rerr := u.Index.RemoveClaim(dev.DeviceID(), rel); rerr != nil {
			logging.Warn("best-effort claim removal failed", "stable_name", stableName, "error", rerr)
		}
	} else {
		if aerr := u.Index.AddClaim(dev.DeviceID(), rel); aerr != nil {
			return aerr
		}
	}

	budget := uninitializedRetryBudget
	if dev.IsInitialized() {
		budget = initializedRetryBudget
	}

	for attempt := 0; attempt < budget; attempt++ {
		before, _ := u.Index.Snapshot(rel)

		node, ok, ferr := u.Arbiter.FindPrioritized(dev, add, rel)
		if ferr != nil {
			return linkerrors.WrapWithStableName(ferr, linkerrors.FatalFilesystem, "link_update", stableName)
		}

		if !ok {
			if err := os.Remove(stableName); err != nil && !os.IsNotExist(err) {
				logging.Warn("failed to remove unclaimed stable name", "stable_name", stableName, "error", err)
			}
			u.rmdirParents(filepath.Dir(stableName))
			return nil
		}

		outcome, werr := NodeSymlink(dev.DeviceID(), node, stableName)
		if werr != nil {
			if rerr := u.Index.RemoveClaim(dev.DeviceID(), rel); rerr != nil {
				log := logging.WithAttempt(logging.Default(), attempt, budget)
				log.Warn("failed to roll back claim after writer error", "stable_name", stableName, "error", rerr)
			}
			return werr
		}

		if outcome == Replaced {
			continue
		}

		// Created or Preserved: only loop again if the claim dir changed
		// identity or mtime between the two snapshots, meaning a
		// concurrent claimant joined or left while we were writing.
		if !before.Exists {
			return nil
		}
		after, _ := u.Index.Snapshot(rel)
		if before.SameIdentity(after) {
			return nil
		}
		log := logging.WithAttempt(logging.WithOutcome(logging.Default(), outcome), attempt, budget)
		log.Debug("claim state changed mid-write, retrying", "stable_name", stableName)
	}

	after, _ := u.Index.Snapshot(rel)
	log := logging.WithClaimState(logging.WithAttempt(logging.Default(), budget, budget), after.Dir, after.Exists, len(after.Markers))
	log.Warn("convergence budget exhausted", "stable_name", stableName)
	return linkerrors.WrapWithStableName(linkerrors.ErrConvergenceExhausted, linkerrors.ConvergenceExhausted, "link_update", stableName)
}

// relativize validates that stableName lies under u.DevfsRoot and returns
// the portion after the root.
func (u *Updater) relativize(stableName string) (string, error) {
	rel, err := filepath.Rel(u.DevfsRoot, stableName)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", linkerrors.WrapWithStableName(linkerrors.ErrOutsideDevfsRoot, linkerrors.InvalidArgument, "link_update", stableName)
	}
	return rel, nil
}

// rmdirParents best-effort removes dir and its ancestors up to (but not
// crossing) the device filesystem root, stopping at the first non-empty
// or otherwise unremovable directory.
func (u *Updater) rmdirParents(dir string) {
	root := filepath.Clean(u.DevfsRoot)
	for {
		clean := filepath.Clean(dir)
		if clean == root || clean == string(filepath.Separator) || clean == "." {
			return
		}
		if err := os.Remove(clean); err != nil {
			return
		}
		dir = filepath.Dir(clean)
	}
}
