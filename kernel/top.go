package kernel

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"
)

// CancelKey stops ShowProcesses.
const CancelKey = 'q'

// Terminal is what the process monitor needs from the controlling terminal.
// MakeRaw switches to unbuffered, no-echo input and returns a function that
// restores the previous mode.
type Terminal interface {
	MakeRaw() (func() error, error)
	PollKey(timeout time.Duration) (byte, bool, error)
}

type ProcessInfo struct {
	Pid    int
	Parent int
	Name   string
	Status ProcessStatus
	Ticks  uint64
}

func (p *Process) info() ProcessInfo {
	pi := ProcessInfo{
		Pid:    p.Pid,
		Name:   p.Name,
		Status: p.Status(),
		Ticks:  p.Ticks(),
	}

	if p.parent != nil {
		pi.Parent = p.parent.Pid
	}

	return pi
}

// Snapshot describes p followed by every child it recorded.
func (p *Process) Snapshot() []ProcessInfo {
	out := []ProcessInfo{p.info()}

	for _, child := range p.Children() {
		out = append(out, child.info())
	}

	return out
}

const clearScreen = "\033[H\033[2J"

func renderProcesses(w io.Writer, ticks uint64, procs []ProcessInfo) error {
	fmt.Fprint(w, clearScreen)
	fmt.Fprintf(w, "uptime %d ticks, %d processes (press %c to quit)\n\n", ticks, len(procs), CancelKey)

	tw := tabwriter.NewWriter(w, 4, 8, 2, ' ', 0)
	fmt.Fprintln(tw, "PID\tPPID\tSTATE\tTICKS\tNAME")

	for _, pi := range procs {
		fmt.Fprintf(tw, "%d\t%d\t%s\t%d\t%s\n", pi.Pid, pi.Parent, pi.Status, pi.Ticks, pi.Name)
	}

	return tw.Flush()
}

// ShowProcesses redraws the process table once per monitor period until the
// cancel key is pressed. The terminal is put in raw mode only while polling
// for the key.
func (p *Process) ShowProcesses(term Terminal, out io.Writer) error {
	period := p.Kernel.monitorPeriod

	for {
		err := renderProcesses(out, p.Kernel.clock.Ticks(), p.Snapshot())
		if err != nil {
			return err
		}

		restore, err := term.MakeRaw()
		if err != nil {
			return err
		}

		key, ok, err := term.PollKey(period)

		if rerr := restore(); rerr != nil && err == nil {
			err = rerr
		}

		if err != nil {
			return err
		}

		if ok && key == CancelKey {
			return nil
		}
	}
}
