// Package errs defines the closed error taxonomy shared by every core
// package, so a single Kind switch at the CLI boundary can pick a process
// exit code regardless of which subsystem produced the failure.
package errs

import "github.com/pkg/errors"

// Kind is the closed taxonomy of error conditions the core surfaces, mirroring
// libcontainer's old newSystemError/newGenericError split: callers at the CLI
// boundary switch on Kind to pick a process exit code, while the wrapped
// cause keeps the human-readable detail.
type Kind int

const (
	// InvalidArgs marks a CLI parse failure.
	InvalidArgs Kind = iota
	// InvalidLimit marks an unparseable memory or CPU string.
	InvalidLimit
	// UnsupportedImage marks an unknown repository name passed to pull.
	UnsupportedImage
	// DownloadFailed marks a network I/O or HTTP error during fetch.
	DownloadFailed
	// ExtractFailed marks an archive read/write error during extraction.
	ExtractFailed
	// ImageNotFound marks a run of an image absent from the store.
	ImageNotFound
	// FsSetupFailed marks a copy-fallback failure in LayeredFS.
	FsSetupFailed
	// CgroupsUnavailable marks an absent unified cgroup hierarchy.
	CgroupsUnavailable
	// LimitRejected marks a kernel refusal of a cap write.
	LimitRejected
	// AttachFailed marks failure to place the child in its cgroup.
	AttachFailed
	// SpawnFailed marks refusal of the clone-with-namespaces call.
	SpawnFailed
)

func (k Kind) String() string {
	switch k {
	case InvalidArgs:
		return "InvalidArgs"
	case InvalidLimit:
		return "InvalidLimit"
	case UnsupportedImage:
		return "UnsupportedImage"
	case DownloadFailed:
		return "DownloadFailed"
	case ExtractFailed:
		return "ExtractFailed"
	case ImageNotFound:
		return "ImageNotFound"
	case FsSetupFailed:
		return "FsSetupFailed"
	case CgroupsUnavailable:
		return "CgroupsUnavailable"
	case LimitRejected:
		return "LimitRejected"
	case AttachFailed:
		return "AttachFailed"
	case SpawnFailed:
		return "SpawnFailed"
	}
	return "Unknown"
}

// Error is a Kind-tagged, wrapped error. The cause chain is preserved for
// %+v / logrus field use; Is/As see through to Kind for CLI-boundary exit
// code selection.
type Error struct {
	Kind  Kind
	cause error
}

func (e *Error) Error() string {
	return e.Kind.String() + ": " + e.cause.Error()
}

func (e *Error) Unwrap() error {
	return e.cause
}

// Wrap builds an Error of the given Kind around cause, using errors.Wrap so
// the original call stack is retained. Returns nil if cause is nil.
func Wrap(kind Kind, cause error, msg string) error {
	if cause == nil {
		return nil
	}
	return &Error{Kind: kind, cause: errors.Wrap(cause, msg)}
}

// Wrapf is Wrap with a formatted message.
func Wrapf(kind Kind, cause error, format string, args ...interface{}) error {
	if cause == nil {
		return nil
	}
	return &Error{Kind: kind, cause: errors.Wrapf(cause, format, args...)}
}

// New creates an Error of the given Kind directly from a message, for cases
// with no underlying cause to wrap.
func New(kind Kind, msg string) error {
	return &Error{Kind: kind, cause: errors.New(msg)}
}

// KindOf extracts the Kind of err if it (or something it wraps) is an *Error.
// Callers outside this package use it to pick an exit code.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return 0, false
}
