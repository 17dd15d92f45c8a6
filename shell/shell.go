// Package shell is the kernelino line shell. It owns the VFS and the package
// manager, reads one command per line and reports every failure as a
// diagnostic line without stopping.
package shell

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/evanphx/kernelino/abi"
	"github.com/evanphx/kernelino/editor"
	"github.com/evanphx/kernelino/fs"
	"github.com/evanphx/kernelino/kernel"
	"github.com/evanphx/kernelino/kpm"
	"github.com/evanphx/kernelino/log"
	hclog "github.com/hashicorp/go-hclog"
	"github.com/pkg/errors"
)

const Prompt = "kernelino> "

const clearScreen = "\033[H\033[2J"

var ErrUsage = errors.Wrap(abi.Unsupported, "usage")

type Shell struct {
	L hclog.Logger

	kernel *kernel.Kernel
	vfs    *fs.VFS
	kpm    *kpm.Manager

	in   *bufio.Reader
	out  io.Writer
	term kernel.Terminal

	registry kpm.Registry

	exited bool
}

type Option func(*Shell)

func WithInput(r io.Reader) Option {
	return func(sh *Shell) {
		sh.in = bufio.NewReader(r)
	}
}

func WithOutput(w io.Writer) Option {
	return func(sh *Shell) {
		sh.out = w
	}
}

// WithTerminal attaches the controlling terminal; top needs one.
func WithTerminal(t kernel.Terminal) Option {
	return func(sh *Shell) {
		sh.term = t
	}
}

func WithRegistry(r kpm.Registry) Option {
	return func(sh *Shell) {
		sh.registry = r
	}
}

// New builds a shell over k's init process. Without options it talks to
// stdin and stdout.
func New(k *kernel.Kernel, opts ...Option) *Shell {
	sh := &Shell{
		L:      log.L.Named("shell"),
		kernel: k,
		in:     bufio.NewReader(os.Stdin),
		out:    os.Stdout,
	}

	for _, opt := range opts {
		opt(sh)
	}

	sh.vfs = fs.New(k.Init(), fs.WithEditor(editor.New(sh.in, sh.out)))

	if sh.registry != nil {
		sh.kpm = kpm.NewManager(sh.vfs, sh.registry, sh.out)
	}

	return sh
}

func (sh *Shell) VFS() *fs.VFS {
	return sh.vfs
}

// Exited reports whether the exit command has run.
func (sh *Shell) Exited() bool {
	return sh.exited
}

func (sh *Shell) printf(format string, args ...interface{}) {
	fmt.Fprintf(sh.out, format, args...)
}

// InitBaseFS creates the tree every session starts with.
func (sh *Shell) InitBaseFS() {
	for _, d := range []string{"bin", "tmp"} {
		if err := sh.vfs.AddDirectoryRecursive(d); err != nil {
			sh.L.Warn("base-fs-mkdir", "dir", d, "error", err)
		}
	}

	if err := sh.vfs.Touch(".env"); err != nil {
		sh.L.Warn("base-fs-touch", "file", ".env", "error", err)
	}
}

// Execute runs one command line.
func (sh *Shell) Execute(ctx context.Context, line string) error {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil
	}

	cmd, ok := Commands[fields[0]]
	if !ok {
		return errors.Wrapf(ErrUnknownCommand, "%s", strings.TrimSpace(line))
	}

	sh.L.Trace("shell-exec", "command", cmd.Name, "args", fields[1:])

	return cmd.Run(ctx, sh.L, sh, fields[1:])
}

// Report prints err as a single diagnostic line.
func (sh *Shell) Report(err error) {
	switch {
	case abi.Recoverable(err):
		sh.printf("kernelino: %s\n", err)
	default:
		sh.L.Error("command-failed", "error", err)
		sh.printf("error: %s\n", err)
	}
}

// Run is the read-execute loop. It returns when exit is typed, the input
// ends or ctx is cancelled.
func (sh *Shell) Run(ctx context.Context) error {
	sh.InitBaseFS()

	if sh.term != nil {
		sh.printf(clearScreen)
	}

	for !sh.exited {
		if err := ctx.Err(); err != nil {
			return err
		}

		sh.printf(Prompt)

		line, err := sh.in.ReadString('\n')
		if err != nil && err != io.EOF {
			return errors.Wrap(err, "reading command")
		}

		if cerr := sh.Execute(ctx, line); cerr != nil {
			sh.Report(cerr)
		}

		if err == io.EOF {
			sh.printf("\n")
			break
		}
	}

	return nil
}
