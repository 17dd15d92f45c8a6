//go:build linux || darwin || freebsd || netbsd || openbsd

package term

import (
	"os"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// TTY drives the terminal attached to a file descriptor, normally stdin.
type TTY struct {
	fd int
}

func Open(f *os.File) (*TTY, error) {
	fd := int(f.Fd())

	if _, err := unix.IoctlGetTermios(fd, ioctlGetTermios); err != nil {
		return nil, errors.Wrapf(ErrNotTerminal, "fd %d: %s", fd, err)
	}

	return &TTY{fd: fd}, nil
}

// MakeRaw turns off canonical mode and echo so single key presses can be
// read. The returned function puts the old settings back.
func (t *TTY) MakeRaw() (func() error, error) {
	old, err := unix.IoctlGetTermios(t.fd, ioctlGetTermios)
	if err != nil {
		return nil, errors.Wrap(err, "reading termios")
	}

	raw := *old
	raw.Lflag &^= unix.ICANON | unix.ECHO
	raw.Cc[unix.VMIN] = 1
	raw.Cc[unix.VTIME] = 0

	if err := unix.IoctlSetTermios(t.fd, ioctlSetTermios, &raw); err != nil {
		return nil, errors.Wrap(err, "setting raw mode")
	}

	return func() error {
		return unix.IoctlSetTermios(t.fd, ioctlSetTermios, old)
	}, nil
}

// PollKey waits up to timeout for a byte to become readable.
func (t *TTY) PollKey(timeout time.Duration) (byte, bool, error) {
	fds := []unix.PollFd{{Fd: int32(t.fd), Events: unix.POLLIN}}

	n, err := unix.Poll(fds, int(timeout/time.Millisecond))
	if err != nil {
		if err == unix.EINTR {
			return 0, false, nil
		}

		return 0, false, errors.Wrap(err, "polling terminal")
	}

	if n == 0 || fds[0].Revents&unix.POLLIN == 0 {
		return 0, false, nil
	}

	var buf [1]byte

	r, err := unix.Read(t.fd, buf[:])
	if err != nil {
		return 0, false, errors.Wrap(err, "reading key")
	}

	if r == 0 {
		return 0, false, nil
	}

	return buf[0], true, nil
}
