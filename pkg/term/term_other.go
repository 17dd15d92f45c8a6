//go:build !(linux || darwin || freebsd || netbsd || openbsd)

package term

import (
	"os"
	"time"
)

type TTY struct{}

func Open(f *os.File) (*TTY, error) {
	return nil, ErrNotTerminal
}

func (t *TTY) MakeRaw() (func() error, error) {
	return nil, ErrNotTerminal
}

func (t *TTY) PollKey(timeout time.Duration) (byte, bool, error) {
	return 0, false, ErrNotTerminal
}
