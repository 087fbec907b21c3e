package linkfs

import (
	"os"
	"path/filepath"
	"time"

	"aqwari.net/retry"
	"golang.org/x/sys/unix"

	linkerrors "devlinks/errors"
	"devlinks/logging"
)

// maxSymlinkRetries bounds the direct-create and replace-temp-create loops
// against a parent directory that keeps vanishing underneath them.
const maxSymlinkRetries = 8

// Outcome tags how NodeSymlink changed (or didn't change) the filesystem.
// It is returned as a plain value, never via a side channel, so the caller
// can drive retry decisions on it directly.
type Outcome int

const (
	Created Outcome = iota
	Preserved
	Replaced
)

func (o Outcome) String() string {
	switch o {
	case Created:
		return "created"
	case Preserved:
		return "preserved"
	case Replaced:
		return "replaced"
	default:
		return "unknown"
	}
}

// NodeSymlink creates or replaces the symlink at linkPath so that it
// resolves to nodePath, using rename to guarantee readers never observe an
// absent or half-written link. It refuses to touch linkPath if a block or
// character device inode already lives there.
func NodeSymlink(deviceID, nodePath, linkPath string) (outcome Outcome, err error) {
	defer func() {
		if err == nil {
			log := logging.WithOutcome(logging.WithDevice(logging.Default(), deviceID), outcome)
			log.Debug("node_symlink", "link", linkPath, "target", nodePath)
		}
	}()

	target, err := filepath.Rel(filepath.Dir(linkPath), nodePath)
	if err != nil {
		return 0, linkerrors.WrapWithDetail(err, linkerrors.FatalFilesystem, "node_symlink", linkerrors.ErrRelativeTarget.Detail)
	}

	fi, statErr := os.Lstat(linkPath)
	switch {
	case statErr == nil && isDeviceNode(fi):
		return 0, linkerrors.WrapWithStableName(linkerrors.ErrNodeIsDevice, linkerrors.ConflictingNode, "node_symlink", linkPath)

	case statErr == nil && fi.Mode()&os.ModeSymlink != 0:
		current, rerr := os.Readlink(linkPath)
		if rerr == nil && current == target {
			if merr := applyDefaultMACLabel(linkPath); merr != nil && !isMissing(merr) {
				return 0, linkerrors.WrapWithStableName(merr, linkerrors.FatalFilesystem, "node_symlink", linkPath)
			}
			if terr := refreshSymlinkMtime(linkPath); terr != nil && !isMissing(terr) {
				return 0, linkerrors.WrapWithStableName(terr, linkerrors.FatalFilesystem, "node_symlink", linkPath)
			}
			return Preserved, nil
		}

	case statErr != nil && !os.IsNotExist(statErr):
		return 0, linkerrors.WrapWithStableName(statErr, linkerrors.FatalFilesystem, "node_symlink", linkPath)
	}

	if os.IsNotExist(statErr) {
		if cerr := createSymlinkRetrying(target, linkPath); cerr == nil {
			return Created, nil
		}
		// fall through to replace: direct creation failed for a reason
		// other than the parent repeatedly vanishing (or exhausted that
		// retry), which §4.2 treats identically.
	}

	return replaceSymlink(deviceID, target, linkPath)
}

// replaceSymlink implements the atomic-replace branch of §4.2: build the
// new symlink at a device-id-scoped temp path, then rename it into place.
func replaceSymlink(deviceID, target, linkPath string) (Outcome, error) {
	tmp := linkPath + ".tmp-" + deviceID

	if err := os.Remove(tmp); err != nil && !os.IsNotExist(err) {
		return 0, linkerrors.WrapWithStableName(err, linkerrors.FatalFilesystem, "node_symlink", linkPath)
	}
	if err := createSymlinkRetrying(target, tmp); err != nil {
		os.Remove(tmp)
		return 0, linkerrors.WrapWithStableName(err, linkerrors.FatalFilesystem, "node_symlink", linkPath)
	}

	// Re-check the refuse-clobber guard immediately before the rename: the
	// open question in the design notes requires this precedence to match
	// the initial lstat guard.
	if fi, err := os.Lstat(linkPath); err == nil && isDeviceNode(fi) {
		os.Remove(tmp)
		return 0, linkerrors.WrapWithStableName(linkerrors.ErrNodeIsDevice, linkerrors.ConflictingNode, "node_symlink", linkPath)
	}

	if err := os.Rename(tmp, linkPath); err != nil {
		os.Remove(tmp)
		return 0, linkerrors.WrapWithDetail(err, linkerrors.FatalFilesystem, "node_symlink", linkerrors.ErrRenameFailed.Detail)
	}
	return Replaced, nil
}

// createSymlinkRetrying ensures linkPath's parent directories exist and
// creates the symlink there, retrying with backoff if an intermediate
// directory vanishes out from under it.
func createSymlinkRetrying(target, linkPath string) error {
	backoff := retry.Exponential(time.Millisecond).Max(50 * time.Millisecond)
	var lastErr error
	for attempt := 1; attempt <= maxSymlinkRetries; attempt++ {
		if err := ensureParentDirs(filepath.Dir(linkPath)); err != nil {
			lastErr = err
			time.Sleep(backoff(attempt))
			continue
		}
		err := os.Symlink(target, linkPath)
		if err == nil {
			return nil
		}
		if !os.IsNotExist(err) {
			return err
		}
		lastErr = err
		time.Sleep(backoff(attempt))
	}
	return lastErr
}

// ensureParentDirs creates dir and every missing ancestor up to an
// existing directory, applying the default MAC label to each directory it
// actually creates.
func ensureParentDirs(dir string) error {
	if dir == "" || dir == "." || dir == string(filepath.Separator) {
		return nil
	}
	if fi, err := os.Stat(dir); err == nil {
		if !fi.IsDir() {
			return &os.PathError{Op: "mkdir", Path: dir, Err: unix.ENOTDIR}
		}
		return nil
	} else if !os.IsNotExist(err) {
		return err
	}
	if err := ensureParentDirs(filepath.Dir(dir)); err != nil {
		return err
	}
	if err := os.Mkdir(dir, 0755); err != nil && !os.IsExist(err) {
		return err
	}
	if err := applyDefaultMACLabel(dir); err != nil && !isMissing(err) {
		return err
	}
	return nil
}

// refreshSymlinkMtime sets linkPath's own mtime to now without following
// the link; os.Chtimes follows symlinks, so this needs the raw syscall.
func refreshSymlinkMtime(linkPath string) error {
	now := unix.NsecToTimespec(time.Now().UnixNano())
	times := [2]unix.Timespec{now, now}
	return unix.UtimesNanoAt(unix.AT_FDCWD, linkPath, times[:], unix.AT_SYMLINK_NOFOLLOW)
}

func isDeviceNode(fi os.FileInfo) bool {
	return fi.Mode()&os.ModeSymlink == 0 && fi.Mode()&os.ModeDevice != 0
}
