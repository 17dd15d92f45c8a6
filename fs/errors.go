package fs

import (
	"github.com/evanphx/kernelino/abi"
	"github.com/pkg/errors"
)

var (
	ErrUnknownPath  = errors.Wrap(abi.NotFound, "no such directory")
	ErrUnknownFile  = errors.Wrap(abi.NotFound, "no such file")
	ErrExists       = errors.Wrap(abi.Conflict, "already exists")
	ErrReservedName = errors.Wrap(abi.Unsupported, "reserved name")
	ErrInvalidName  = errors.Wrap(abi.Unsupported, "invalid name")
	ErrNoEditor     = errors.Wrap(abi.Unsupported, "no editor attached")

	// ErrInvalidUTF8 is a hard error: the caller asked for text and the
	// stored bytes aren't.
	ErrInvalidUTF8 = errors.New("content is not valid utf-8")
)
