package shell

import (
	"context"
	"fmt"
	"strings"
	"text/tabwriter"

	hclog "github.com/hashicorp/go-hclog"
	"github.com/pkg/errors"
)

func cmdPwd(ctx context.Context, l hclog.Logger, sh *Shell, args []string) error {
	sh.printf("%s\n", sh.vfs.Pwd())
	return nil
}

func cmdCd(ctx context.Context, l hclog.Logger, sh *Shell, args []string) error {
	p, err := Commands["cd"].oneArg(args)
	if err != nil {
		return err
	}

	return sh.vfs.ChangeDir(p)
}

func cmdMkdir(ctx context.Context, l hclog.Logger, sh *Shell, args []string) error {
	p, err := Commands["mkdir"].oneArg(args)
	if err != nil {
		return err
	}

	return sh.vfs.AddDirectoryRecursive(p)
}

func cmdLs(ctx context.Context, l hclog.Logger, sh *Shell, args []string) error {
	listing, err := sh.vfs.List()
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(sh.out, 4, 8, 2, ' ', 0)

	for _, d := range listing.Dirs {
		fmt.Fprintf(tw, "%s/\t-\t-\n", d)
	}

	for _, f := range listing.Files {
		fmt.Fprintf(tw, "%s\t%d bytes\t%d pages\n", f.Name, f.Size, f.Pages)
	}

	return tw.Flush()
}

func cmdRm(ctx context.Context, l hclog.Logger, sh *Shell, args []string) error {
	p, err := Commands["rm"].oneArg(args)
	if err != nil {
		return err
	}

	return sh.vfs.Remove(p)
}

func cmdTouch(ctx context.Context, l hclog.Logger, sh *Shell, args []string) error {
	name, err := Commands["touch"].oneArg(args)
	if err != nil {
		return err
	}

	return sh.vfs.Touch(name)
}

// write <file> opens the editor; write <file> <text...> stores the text as
// a single line.
func cmdWrite(ctx context.Context, l hclog.Logger, sh *Shell, args []string) error {
	if len(args) == 0 {
		return Commands["write"].usage()
	}

	if len(args) == 1 {
		return sh.vfs.WriteFile(args[0], nil, "")
	}

	return sh.vfs.WriteFile(args[0], []byte(strings.Join(args[1:], " ")+"\n"), "")
}

func cmdRead(ctx context.Context, l hclog.Logger, sh *Shell, args []string) error {
	name, err := Commands["read"].oneArg(args)
	if err != nil {
		return err
	}

	return sh.vfs.ReadFile(name, sh.out)
}

// stat <file> prints size and page count; -v dumps the file record.
func cmdStat(ctx context.Context, l hclog.Logger, sh *Shell, args []string) error {
	switch {
	case len(args) == 2 && args[1] == "-v":
		dump, err := sh.vfs.Describe(args[0])
		if err != nil {
			return err
		}

		sh.printf("%s", dump)

		return nil
	case len(args) != 1:
		return Commands["stat"].usage()
	}

	info, err := sh.vfs.Stat(args[0])
	if err != nil {
		return errors.Wrap(err, "stat")
	}

	sh.printf("%s\t%d bytes\t%d pages\n", info.Path, info.Size, info.Pages)

	return nil
}

func init() {
	register(&Command{Name: "pwd", Usage: "pwd", Help: "Print the current working directory", Run: cmdPwd})
	register(&Command{Name: "cd", Usage: "cd <path>", Help: "Change the current working directory", Run: cmdCd})
	register(&Command{Name: "mkdir", Usage: "mkdir <path>", Help: "Create a directory and any missing parents", Run: cmdMkdir})
	register(&Command{Name: "ls", Usage: "ls", Help: "List directory contents", Run: cmdLs})
	register(&Command{Name: "rm", Usage: "rm <path>", Help: "Remove a file or directory", Run: cmdRm})
	register(&Command{Name: "touch", Usage: "touch <file>", Help: "Create a new file", Run: cmdTouch})
	register(&Command{Name: "write", Usage: "write <file> [text]", Help: "Write file content", Run: cmdWrite})
	register(&Command{Name: "read", Usage: "read <file>", Help: "Read file content", Run: cmdRead})
	register(&Command{Name: "stat", Usage: "stat <file> [-v]", Help: "Show file size and pages, -v dumps the record", Run: cmdStat})
}
