package linkfs

import (
	"os"
	"path/filepath"
	"time"

	"aqwari.net/retry"
	"golang.org/x/sys/unix"

	linkerrors "devlinks/errors"
)

// maxMarkerRetries bounds the open-or-create retry loop in AddClaim against
// a claim dir that keeps vanishing underneath it. The claim dir can only
// vanish because some other claimant's RemoveClaim won an rmdir race; a
// handful of attempts is enough to ride that out, and the bound keeps a
// genuinely broken scratch filesystem from hanging the caller.
const maxMarkerRetries = 8

// ClaimIndex is the per-device marker-file index rooted at a scratch
// directory (conventionally /run/udev/links). Every method operates on one
// stable name at a time and is safe to call concurrently from independent
// processes; safety comes from the filesystem, not from any lock held here.
type ClaimIndex struct {
	Root string
}

// NewClaimIndex returns a ClaimIndex rooted at root.
func NewClaimIndex(root string) *ClaimIndex {
	return &ClaimIndex{Root: root}
}

// ClaimDir returns the claim directory for relStableName, along with the
// escaped name it is keyed on. An empty escaped name (overflow) still
// yields a valid, if collision-prone, directory under Root.
func (c *ClaimIndex) ClaimDir(relStableName string) (dir, escaped string) {
	escaped, _ = Escape(relStableName)
	return filepath.Join(c.Root, escaped), escaped
}

// MarkerPath returns the marker file path for deviceID's claim on
// relStableName.
func (c *ClaimIndex) MarkerPath(deviceID, relStableName string) string {
	dir, _ := c.ClaimDir(relStableName)
	return filepath.Join(dir, deviceID)
}

// AddClaim ensures deviceID's marker file exists under relStableName's
// claim dir, creating the claim dir if necessary. It tolerates the claim
// dir vanishing between the mkdir and the marker create (another claimant
// racing RemoveClaim's rmdir) by recreating it and retrying.
func (c *ClaimIndex) AddClaim(deviceID, relStableName string) error {
	dir, _ := c.ClaimDir(relStableName)
	marker := filepath.Join(dir, deviceID)

	backoff := retry.Exponential(time.Millisecond).Max(50 * time.Millisecond)
	for attempt := 1; attempt <= maxMarkerRetries; attempt++ {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return linkerrors.WrapWithStableName(err, linkerrors.FatalFilesystem, "add_claim", relStableName)
		}
		if err := applyDefaultMACLabel(dir); err != nil && !isMissing(err) {
			return linkerrors.WrapWithStableName(err, linkerrors.FatalFilesystem, "add_claim", relStableName)
		}

		f, err := os.OpenFile(marker, os.O_WRONLY|os.O_CREATE|os.O_TRUNC|os.O_NOFOLLOW, 0444)
		if err == nil {
			f.Close()
			return nil
		}
		if os.IsNotExist(err) {
			time.Sleep(backoff(attempt))
			continue
		}
		return linkerrors.WrapWithStableName(err, linkerrors.FatalFilesystem, "add_claim", relStableName)
	}
	return linkerrors.WrapWithStableName(linkerrors.ErrClaimDirVanished, linkerrors.TransientMissing, "add_claim", relStableName)
}

// RemoveClaim unlinks deviceID's marker under relStableName's claim dir and
// opportunistically removes the claim dir if it is now empty. A missing
// marker or a non-empty directory are both treated as success.
func (c *ClaimIndex) RemoveClaim(deviceID, relStableName string) error {
	dir, _ := c.ClaimDir(relStableName)
	marker := filepath.Join(dir, deviceID)

	if err := os.Remove(marker); err != nil && !os.IsNotExist(err) {
		return linkerrors.WrapWithStableName(err, linkerrors.FatalFilesystem, "remove_claim", relStableName)
	}
	if err := os.Remove(dir); err != nil && !os.IsNotExist(err) && !linkerrors.Is(err, unix.ENOTEMPTY) {
		return linkerrors.WrapWithStableName(err, linkerrors.FatalFilesystem, "remove_claim", relStableName)
	}
	return nil
}
