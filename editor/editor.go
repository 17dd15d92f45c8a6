// Package editor is a line editor for files in the VFS. Lines are collected
// until a line consisting only of "wq" (save) or "q" (discard).
package editor

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/evanphx/kernelino/log"
	"github.com/pkg/errors"
)

const (
	SaveToken = "wq"
	QuitToken = "q"

	Prompt = "> "
)

type Editor struct {
	in  *bufio.Reader
	out io.Writer
}

func New(in io.Reader, out io.Writer) *Editor {
	br, ok := in.(*bufio.Reader)
	if !ok {
		br = bufio.NewReader(in)
	}

	return &Editor{in: br, out: out}
}

// Edit replaces current with the lines typed until a token is seen. The
// token line itself is never part of the result. Running out of input
// before a token counts as quitting.
func (e *Editor) Edit(name string, current []byte) ([]byte, bool, error) {
	fmt.Fprintf(e.out, "editing %s (%d bytes), %q saves, %q quits\n", name, len(current), SaveToken, QuitToken)

	var buf bytes.Buffer

	for {
		fmt.Fprint(e.out, Prompt)

		line, err := e.in.ReadString('\n')
		if err != nil && err != io.EOF {
			return nil, false, errors.Wrapf(err, "reading input for %s", name)
		}

		switch strings.TrimSpace(line) {
		case SaveToken:
			fmt.Fprintln(e.out, "File saved successfully!")
			log.L.Debug("editor-save", "file", name, "size", buf.Len())
			return buf.Bytes(), true, nil
		case QuitToken:
			fmt.Fprintln(e.out, "Exit without save")
			return nil, false, nil
		}

		if err == io.EOF {
			if line != "" {
				log.L.Debug("editor-eof-discard", "file", name, "partial", line)
			}

			fmt.Fprintln(e.out)
			return nil, false, nil
		}

		buf.WriteString(strings.TrimRight(line, "\r\n"))
		buf.WriteByte('\n')
	}
}

// Read prints every non-empty line of content.
func Read(w io.Writer, content []byte) error {
	for _, line := range strings.Split(string(content), "\n") {
		line = strings.TrimSuffix(line, "\r")
		if line == "" {
			continue
		}

		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}

	return nil
}
