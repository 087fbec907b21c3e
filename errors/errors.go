// Package errors provides typed error handling for the device-node
// symlink manager.
//
// This package defines domain-specific error kinds matching the core's
// error taxonomy so callers can classify a failure without parsing
// messages. All errors support the standard errors.Is() and errors.As()
// functions for error inspection.
package errors

import (
	"errors"
	"fmt"
)

// Kind represents the category of an error produced by this module.
type Kind int

const (
	// InvalidArgument indicates a stable name does not lie under the
	// device filesystem root.
	InvalidArgument Kind = iota
	// ConflictingNode indicates a real device-node inode sits where a
	// symlink was requested.
	ConflictingNode
	// OutOfMemory indicates an allocation failure; bubbled up unchanged.
	OutOfMemory
	// ConvergenceExhausted indicates the retry budget was consumed
	// without the convergence loop reaching a stable state.
	ConvergenceExhausted
	// TransientMissing indicates a device node or parent directory
	// vanished during the operation; recovered locally where safe.
	TransientMissing
	// FatalFilesystem indicates any other syscall failure, surfaced
	// with the original errno.
	FatalFilesystem
)

// String returns a human-readable name for the error kind.
func (k Kind) String() string {
	switch k {
	case InvalidArgument:
		return "invalid argument"
	case ConflictingNode:
		return "conflicting node"
	case OutOfMemory:
		return "out of memory"
	case ConvergenceExhausted:
		return "convergence exhausted"
	case TransientMissing:
		return "transient missing"
	case FatalFilesystem:
		return "fatal filesystem error"
	default:
		return "unknown error"
	}
}

// LinkError represents an error that occurred while manipulating the
// name-claim index, a stable-name symlink, or a device node.
type LinkError struct {
	// Op is the operation that failed (e.g. "link_update", "add_claim").
	Op string
	// StableName is the stable name path involved, if applicable.
	StableName string
	// Err is the underlying error.
	Err error
	// Kind is the error classification.
	Kind Kind
	// Detail provides additional context about the error.
	Detail string
}

// Error returns the error message.
func (e *LinkError) Error() string {
	if e == nil {
		return "<nil>"
	}

	var msg string
	if e.StableName != "" {
		msg = fmt.Sprintf("%s: ", e.StableName)
	}
	if e.Op != "" {
		msg += fmt.Sprintf("%s: ", e.Op)
	}
	if e.Detail != "" {
		msg += e.Detail
	} else {
		msg += e.Kind.String()
	}
	if e.Err != nil {
		msg += fmt.Sprintf(": %v", e.Err)
	}
	return msg
}

// Unwrap returns the underlying error.
func (e *LinkError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is reports whether the error matches the target.
// It matches if the target is a *LinkError with the same Kind.
func (e *LinkError) Is(target error) bool {
	if e == nil {
		return target == nil
	}
	if t, ok := target.(*LinkError); ok {
		return e.Kind == t.Kind
	}
	return false
}

// New creates a new LinkError with the given kind.
func New(kind Kind, op string, detail string) *LinkError {
	return &LinkError{
		Op:     op,
		Kind:   kind,
		Detail: detail,
	}
}

// Wrap wraps an error with operation context.
func Wrap(err error, kind Kind, op string) *LinkError {
	return &LinkError{
		Op:   op,
		Err:  err,
		Kind: kind,
	}
}

// WrapWithStableName wraps an error with the stable name it occurred for.
func WrapWithStableName(err error, kind Kind, op string, stableName string) *LinkError {
	return &LinkError{
		Op:         op,
		StableName: stableName,
		Err:        err,
		Kind:       kind,
	}
}

// WrapWithDetail wraps an error with additional detail.
func WrapWithDetail(err error, kind Kind, op string, detail string) *LinkError {
	return &LinkError{
		Op:     op,
		Err:    err,
		Kind:   kind,
		Detail: detail,
	}
}

// IsKind checks if an error is of a specific kind.
func IsKind(err error, kind Kind) bool {
	var lerr *LinkError
	if errors.As(err, &lerr) {
		return lerr.Kind == kind
	}
	return false
}

// GetKind returns the error kind if the error is a LinkError.
func GetKind(err error) (Kind, bool) {
	var lerr *LinkError
	if errors.As(err, &lerr) {
		return lerr.Kind, true
	}
	return 0, false
}

// Re-export standard library functions for convenience.
var (
	Is     = errors.Is
	As     = errors.As
	Unwrap = errors.Unwrap
)
