// Package term switches the controlling terminal in and out of raw mode and
// polls it for single key presses.
package term

import "github.com/pkg/errors"

var ErrNotTerminal = errors.New("not a terminal")
