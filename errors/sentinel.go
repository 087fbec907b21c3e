// Package errors provides predefined sentinel errors for common failure cases.
package errors

// Stable name validation errors.
var (
	// ErrOutsideDevfsRoot indicates a stable name does not lie under the
	// device filesystem root.
	ErrOutsideDevfsRoot = &LinkError{
		Kind:   InvalidArgument,
		Detail: "stable name is not under the device filesystem root",
	}
)

// Atomic writer errors.
var (
	// ErrNodeIsDevice indicates a block or character device inode sits
	// where a symlink was requested; the writer refuses to clobber it.
	ErrNodeIsDevice = &LinkError{
		Kind:   ConflictingNode,
		Detail: "refusing to replace a device node with a symlink",
	}

	// ErrRelativeTarget indicates the relative target between the link
	// directory and the device node could not be computed.
	ErrRelativeTarget = &LinkError{
		Kind:   FatalFilesystem,
		Detail: "failed to compute relative symlink target",
	}

	// ErrRenameFailed indicates the atomic rename step of a replace
	// failed after the temporary symlink was created.
	ErrRenameFailed = &LinkError{
		Kind:   FatalFilesystem,
		Detail: "failed to rename temporary symlink into place",
	}
)

// Claim index errors.
var (
	// ErrClaimDirVanished indicates the claim directory disappeared
	// while a marker file was being created, after exhausting retries.
	ErrClaimDirVanished = &LinkError{
		Kind:   TransientMissing,
		Detail: "claim directory repeatedly vanished while creating marker",
	}
)

// Link updater errors.
var (
	// ErrConvergenceExhausted indicates the bounded retry budget for
	// the convergence loop was consumed without reaching a stable state.
	ErrConvergenceExhausted = &LinkError{
		Kind:   ConvergenceExhausted,
		Detail: "convergence loop exhausted retry budget",
	}
)

// Device handle resolution errors.
var (
	// ErrDeviceNotResolved indicates a claim-index entry's device id
	// could not be resolved back to a device handle.
	ErrDeviceNotResolved = &LinkError{
		Kind:   TransientMissing,
		Detail: "device id did not resolve to a live device",
	}
)
