package kpm

import (
	"bytes"
	"context"
	"debug/elf"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/evanphx/kernelino/fs"
	"github.com/evanphx/kernelino/kernel"
	"github.com/evanphx/kernelino/log"
	"github.com/pkg/errors"
)

// Inspector is the executor kpm hands installed files to. Nothing is run:
// an ELF image has its header reported, a tar archive has its members
// listed along with the header of every ELF member.
type Inspector struct {
	Out io.Writer
}

var _ fs.Executor = (*Inspector)(nil)

type ELFHeader struct {
	Class   elf.Class
	Machine elf.Machine
	Type    elf.Type
	Entry   uint64
}

func (h ELFHeader) String() string {
	return fmt.Sprintf("%s %s %s entry=%#x", h.Class, h.Machine, h.Type, h.Entry)
}

// ReadELFHeader decodes the header of image, reporting false when image is
// not an ELF file.
func ReadELFHeader(image []byte) (ELFHeader, bool) {
	if !bytes.HasPrefix(image, []byte(elf.ELFMAG)) {
		return ELFHeader{}, false
	}

	f, err := elf.NewFile(bytes.NewReader(image))
	if err != nil {
		log.L.Debug("kpm-elf-invalid", "error", err)
		return ELFHeader{}, false
	}

	defer f.Close()

	return ELFHeader{
		Class:   f.Class,
		Machine: f.Machine,
		Type:    f.Type,
		Entry:   f.Entry,
	}, true
}

func (i *Inspector) Exec(ctx context.Context, p *kernel.Process, info fs.FileInfo, image []byte) error {
	log.L.Debug("kpm-inspect", "pid", p.Pid, "path", info.Path, "size", len(image))

	if hdr, ok := ReadELFHeader(image); ok {
		fmt.Fprintf(i.Out, "%s: %s\n", info.Path, hdr)
		return nil
	}

	members, err := Members(image)
	if err != nil || len(members) == 0 {
		return errors.Wrapf(ErrNotExecutable, "%s", info.Path)
	}

	fmt.Fprintf(i.Out, "%s: tar archive, %d members\n", info.Path, len(members))

	tw := tabwriter.NewWriter(i.Out, 4, 8, 1, ' ', 0)

	for _, m := range members {
		if err := ctx.Err(); err != nil {
			tw.Flush()
			return err
		}

		detail := ""

		switch m.Type {
		case SymlinkMember:
			detail = "-> " + m.Link
		case RegularMember:
			if hdr, ok := ReadELFHeader(m.body); ok {
				detail = hdr.String()
			}
		}

		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\n", m.Type, m.Mode, m.Size, m.Name, detail)
	}

	return tw.Flush()
}
