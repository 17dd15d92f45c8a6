package kpm

import (
	"github.com/evanphx/kernelino/abi"
	"github.com/pkg/errors"
)

var (
	ErrUnknownPackage     = errors.Wrap(abi.NotFound, "unknown package")
	ErrIncompleteFormula  = errors.Wrap(abi.Unsupported, "formula has no stable release")
	ErrUnsupportedArchive = errors.Wrap(abi.Unsupported, "unsupported archive format")
	ErrNotExecutable      = errors.Wrap(abi.Unsupported, "not an elf binary or tar archive")
	ErrArchiveTooLarge    = errors.Wrap(abi.ResourceExhausted, "archive does not fit in free memory")

	ErrRegistry = errors.New("registry request failed")
)

// RegistryError is a failed registry request. It matches ErrRegistry and
// unwraps to the underlying cause, so context cancellation stays visible.
type RegistryError struct {
	URL string
	Err error
}

func (e *RegistryError) Error() string {
	return ErrRegistry.Error() + ": " + e.URL + ": " + e.Err.Error()
}

func (e *RegistryError) Unwrap() error {
	return e.Err
}

func (e *RegistryError) Is(target error) bool {
	return target == ErrRegistry
}
