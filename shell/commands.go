package shell

import (
	"context"
	"fmt"
	"sort"
	"text/tabwriter"

	"github.com/evanphx/kernelino/abi"
	hclog "github.com/hashicorp/go-hclog"
	"github.com/pkg/errors"
)

var ErrUnknownCommand = errors.Wrap(abi.NotFound, "unknown command")

type Command struct {
	Name  string
	Usage string
	Help  string
	Run   func(ctx context.Context, l hclog.Logger, sh *Shell, args []string) error
}

// Commands is filled from the init functions of this package.
var Commands = map[string]*Command{}

func register(c *Command) {
	Commands[c.Name] = c
}

func (c *Command) usage() error {
	return errors.Wrapf(ErrUsage, "%s", c.Usage)
}

// oneArg returns the single argument of c or a usage error.
func (c *Command) oneArg(args []string) (string, error) {
	if len(args) != 1 {
		return "", c.usage()
	}

	return args[0], nil
}

func cmdExit(ctx context.Context, l hclog.Logger, sh *Shell, args []string) error {
	sh.printf("Goodbye!\n")
	sh.exited = true
	return nil
}

func cmdHelp(ctx context.Context, l hclog.Logger, sh *Shell, args []string) error {
	names := make([]string, 0, len(Commands))
	for name := range Commands {
		names = append(names, name)
	}

	sort.Strings(names)

	sh.printf("Available commands:\n")

	tw := tabwriter.NewWriter(sh.out, 4, 8, 2, ' ', 0)

	for _, name := range names {
		c := Commands[name]
		fmt.Fprintf(tw, "  %s\t%s\n", c.Usage, c.Help)
	}

	return tw.Flush()
}

func cmdClear(ctx context.Context, l hclog.Logger, sh *Shell, args []string) error {
	sh.printf(clearScreen)
	return nil
}

func init() {
	register(&Command{Name: "exit", Usage: "exit", Help: "Exit the shell", Run: cmdExit})
	register(&Command{Name: "help", Usage: "help", Help: "Display this help message", Run: cmdHelp})
	register(&Command{Name: "clear", Usage: "clear", Help: "Clear the screen", Run: cmdClear})
}
