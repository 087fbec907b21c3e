package linkfs

import (
	"errors"

	"golang.org/x/sys/unix"
)

const (
	xattrSELinux = "security.selinux"
	xattrSMACK   = "security.SMACK64"
)

// SecurityLabel is one (module, label) pair from a device's seclabel list,
// as assigned by the rule engine.
type SecurityLabel struct {
	Module string
	Label  string
}

// applyMACLabels applies every recognised (module, label) pair in labels to
// path via its xattrs, and returns the set of modules it successfully
// applied. Unrecognised modules are skipped and do not appear in applied.
func applyMACLabels(path string, labels []SecurityLabel) (applied map[string]bool, firstErr error) {
	applied = make(map[string]bool, len(labels))
	for _, l := range labels {
		var err error
		switch l.Module {
		case "selinux":
			err = unix.Lsetxattr(path, xattrSELinux, []byte(l.Label), 0)
		case "smack":
			err = unix.Lsetxattr(path, xattrSMACK, []byte(l.Label), 0)
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

// applyDefaultSMACK clears any SMACK64 override, letting the filesystem's
// mount-time default label stand. ENODATA (nothing to clear) is not an error.
func applyDefaultSMACK(path string) error {
	err := unix.Lremovexattr(path, xattrSMACK)
	if err != nil && isMissing(err) {
		return nil
	}
	return err
}

// restoreSELinuxDefault is the path-based, no-follow equivalent of
// restorecon: it drops any explicit context override so the kernel's
// create-time policy label (set when the node was first created under its
// genfscon rule) governs again. ENODATA is not an error.
func restoreSELinuxDefault(path string) error {
	err := unix.Lremovexattr(path, xattrSELinux)
	if err != nil && isMissing(err) {
		return nil
	}
	return err
}

// applyDefaultMACLabel reapplies the generic default label to path,
// ignoring "not found" — used when preserving an already-correct symlink
// and when creating intermediate claim-index directories.
func applyDefaultMACLabel(path string) error {
	if err := applyDefaultSMACK(path); err != nil {
		return err
	}
	return restoreSELinuxDefault(path)
}

func isMissing(err error) bool {
	return err != nil && (errors.Is(err, unix.ENOENT) || errors.Is(err, unix.ENODATA) || errors.Is(err, unix.ENOTDIR))
}
