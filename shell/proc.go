package shell

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/evanphx/kernelino/abi"
	hclog "github.com/hashicorp/go-hclog"
	"github.com/pkg/errors"
)

var ErrNoTerminal = errors.Wrap(abi.Unsupported, "no terminal attached")

func cmdTop(ctx context.Context, l hclog.Logger, sh *Shell, args []string) error {
	if sh.term == nil {
		return errors.Wrap(ErrNoTerminal, "top")
	}

	return sh.kernel.Init().ShowProcesses(sh.term, sh.out)
}

func cmdVmstat(ctx context.Context, l hclog.Logger, sh *Shell, args []string) error {
	mem := sh.kernel.Memory()

	if len(args) == 1 && args[0] == "-v" {
		sh.printf("%s", mem.Dump())
		return nil
	}

	if len(args) != 0 {
		return Commands["vmstat"].usage()
	}

	st := mem.Stats()

	tw := tabwriter.NewWriter(sh.out, 4, 8, 2, ' ', 0)
	fmt.Fprintf(tw, "total\t%d bytes\n", st.Total)
	fmt.Fprintf(tw, "free\t%d bytes\n", st.Free)
	fmt.Fprintf(tw, "frames\t%d\n", st.Frames)
	fmt.Fprintf(tw, "in use\t%d\n", st.InUse)
	fmt.Fprintf(tw, "mapped\t%d\n", st.Mapped)
	fmt.Fprintf(tw, "ticks\t%d\n", sh.kernel.Clock().Ticks())

	return tw.Flush()
}

func init() {
	register(&Command{Name: "top", Usage: "top", Help: "Show the processes (q to quit)", Run: cmdTop})
	register(&Command{Name: "vmstat", Usage: "vmstat [-v]", Help: "Show memory usage, -v dumps the page table", Run: cmdVmstat})
}
