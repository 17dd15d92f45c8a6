package abi

import "github.com/pkg/errors"

// Errno classifies every failure the core can report. The numeric values
// follow the Linux errno they correspond to.
type Errno int

const (
	// NotFound is a path, file or directory lookup miss.
	NotFound Errno = 2 // ENOENT

	// ResourceExhausted is returned when the frame pool has no free frame.
	ResourceExhausted Errno = 12 // ENOMEM

	// InvariantViolation means the page table or frame pool disagrees with
	// what a caller handed in (unknown address, page without content).
	InvariantViolation Errno = 14 // EFAULT

	// Conflict is a name that already exists.
	Conflict Errno = 17 // EEXIST

	// Unsupported is a reserved or malformed name.
	Unsupported Errno = 22 // EINVAL
)

func (e Errno) Error() string {
	switch e {
	case NotFound:
		return "not found"
	case ResourceExhausted:
		return "resource exhausted"
	case InvariantViolation:
		return "invariant violation"
	case Conflict:
		return "already exists"
	case Unsupported:
		return "unsupported"
	default:
		return "unknown errno"
	}
}

// Classify returns the Errno wrapped somewhere in err's chain.
func Classify(err error) (Errno, bool) {
	var e Errno
	if errors.As(err, &e) {
		return e, true
	}

	return 0, false
}

// Recoverable reports whether err is one of the kinds a caller handles in
// place (report and carry on). Resource exhaustion and invariant violations
// are not recoverable.
func Recoverable(err error) bool {
	e, ok := Classify(err)
	if !ok {
		return false
	}

	switch e {
	case NotFound, Conflict, Unsupported:
		return true
	}

	return false
}
