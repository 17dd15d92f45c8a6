package shell

import (
	"context"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/evanphx/kernelino/abi"
	hclog "github.com/hashicorp/go-hclog"
	"github.com/pkg/errors"
)

var ErrNoRegistry = errors.Wrap(abi.Unsupported, "no package registry configured")

func cmdKpm(ctx context.Context, l hclog.Logger, sh *Shell, args []string) error {
	c := Commands["kpm"]

	if len(args) == 0 {
		return c.usage()
	}

	if sh.kpm == nil {
		return errors.Wrap(ErrNoRegistry, "kpm")
	}

	switch args[0] {
	case "install":
		if len(args) != 2 {
			return c.usage()
		}

		sh.printf("Installing %s\n", args[1])

		pkg, err := sh.kpm.Install(ctx, args[1])
		if err != nil {
			return err
		}

		sh.printf("Package %s %s installed at %s\n", pkg.Name, pkg.Version, pkg.Path)
	case "list":
		tw := tabwriter.NewWriter(sh.out, 4, 8, 2, ' ', 0)
		fmt.Fprintln(tw, "NAME\tVERSION\tPATH\tSIZE\tDEPENDS")

		for _, p := range sh.kpm.List() {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\n", p.Name, p.Version, p.Path, p.Size, strings.Join(p.Dependencies, ","))
		}

		return tw.Flush()
	case "exec":
		if len(args) != 2 {
			return c.usage()
		}

		return sh.kpm.Exec(ctx, args[1])
	default:
		return c.usage()
	}

	return nil
}

func init() {
	register(&Command{Name: "kpm", Usage: "kpm install|list|exec [package]", Help: "Install, list or execute packages", Run: cmdKpm})
}
