package linkfs

import (
	"fmt"
	"os"
	"time"

	"golang.org/x/sys/unix"

	"devlinks/device"
	linkerrors "devlinks/errors"
	"devlinks/logging"
)

// Unset is the sentinel for "leave this field alone" in Permissions.
const Unset = -1

// Permissions is the set of node attributes the reconciler may apply.
// Mode, UID, and GID are Unset-sentinel-aware: Unset means "do not touch
// this field". Mode's low 9 bits are the permission bits; the type bits
// (S_IFBLK/S_IFCHR) are always forced from the device's subsystem,
// regardless of what Mode carries.
type Permissions struct {
	ApplyMAC bool
	Mode     int32
	UID      int32
	GID      int32
	Labels   []SecurityLabel
}

// ApplyNodePermissions verifies the live device node at dev.Devname()
// still belongs to dev (by subsystem and major:minor), then applies mode,
// ownership, and MAC labels, finishing with a fresh access timestamp that
// downstream consumers treat as a media-change heartbeat.
//
// A missing node, or one whose type/rdev no longer match dev, is treated
// as success: the device is racily gone, or another device has since
// taken the inode, and either way there is nothing this call should do.
func ApplyNodePermissions(dev device.Device, perms Permissions) error {
	path := dev.Devname()

	wantType := uint32(unix.S_IFCHR)
	if device.IsBlock(dev.Subsystem()) {
		wantType = unix.S_IFBLK
	}

	fd, err := unix.Open(path, unix.O_PATH|unix.O_NOFOLLOW|unix.O_CLOEXEC, 0)
	if err != nil {
		if isMissing(err) {
			return nil
		}
		return linkerrors.Wrap(err, linkerrors.FatalFilesystem, "node_permissions_apply")
	}
	defer unix.Close(fd)

	var st unix.Stat_t
	if err := unix.Fstat(fd, &st); err != nil {
		if isMissing(err) {
			return nil
		}
		return linkerrors.Wrap(err, linkerrors.FatalFilesystem, "node_permissions_apply")
	}

	major, minor := dev.Devnum()
	wantRdev := unix.Mkdev(major, minor)
	if st.Mode&unix.S_IFMT != wantType || st.Rdev != wantRdev {
		return nil
	}

	procPath := fmt.Sprintf("/proc/self/fd/%d", fd)

	needMode := perms.Mode != Unset && os.FileMode(st.Mode&0777) != os.FileMode(perms.Mode&0777)
	needUID := perms.UID != Unset && st.Uid != uint32(perms.UID)
	needGID := perms.GID != Unset && st.Gid != uint32(perms.GID)

	if needMode || needUID || needGID || perms.ApplyMAC {
		if needMode {
			if err := os.Chmod(procPath, os.FileMode(perms.Mode&0777)); err != nil && !isMissing(err) {
				logging.Error("node_permissions_apply: chmod failed", "devname", path, "error", err)
			}
		}
		if needUID || needGID {
			uid, gid := -1, -1
			if needUID {
				uid = int(perms.UID)
			}
			if needGID {
				gid = int(perms.GID)
			}
			if err := os.Chown(procPath, uid, gid); err != nil && !isMissing(err) {
				logging.Error("node_permissions_apply: chown failed", "devname", path, "error", err)
			}
		}

		applied, lerr := applyNodeMACLabels(procPath, perms.Labels)
		if lerr != nil {
			if isMissing(lerr) {
				logging.Debug("node_permissions_apply: label target missing", "devname", path, "error", lerr)
			} else {
				logging.Error("node_permissions_apply: label apply failed", "devname", path, "error", lerr)
			}
		}
		if !applied["smack"] {
			if err := applyNodeDefaultSMACK(procPath); err != nil && !isMissing(err) {
				logging.Error("node_permissions_apply: default smack failed", "devname", path, "error", err)
			}
		}
		if !applied["selinux"] {
			if err := restoreNodeSELinuxDefault(procPath); err != nil && !isMissing(err) {
				logging.Error("node_permissions_apply: default selinux failed", "devname", path, "error", err)
			}
		}
	}

	now := time.Now()
	if err := os.Chtimes(procPath, now, now); err != nil && !isMissing(err) {
		logging.Debug("node_permissions_apply: timestamp refresh failed", "devname", path, "error", err)
	}

	return nil
}

// applyNodeMACLabels is applyMACLabels's device-node counterpart: it
// operates through a /proc/self/fd magic-symlink path, which xattr calls
// must follow (unlike applyMACLabels, which uses the no-follow L-variant
// syscalls), so it uses the non-L xattr syscalls.
func applyNodeMACLabels(procPath string, labels []SecurityLabel) (applied map[string]bool, firstErr error) {
	applied = make(map[string]bool, len(labels))
	for _, l := range labels {
		var err error
		switch l.Module {
		case "selinux":
			err = unix.Setxattr(procPath, xattrSELinux, []byte(l.Label), 0)
		case "smack":
			err = unix.Setxattr(procPath, xattrSMACK, []byte(l.Label), 0)
		default:
			continue
		}
		if err != nil {
			if firstErr == nil && !isMissing(err) {
				firstErr = err
			}
			continue
		}
		applied[l.Module] = true
	}
	return applied, firstErr
}

func applyNodeDefaultSMACK(procPath string) error {
	err := unix.Removexattr(procPath, xattrSMACK)
	if err != nil && isMissing(err) {
		return nil
	}
	return err
}

func restoreNodeSELinuxDefault(procPath string) error {
	err := unix.Removexattr(procPath, xattrSELinux)
	if err != nil && isMissing(err) {
		return nil
	}
	return err
}
