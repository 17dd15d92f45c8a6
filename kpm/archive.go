package kpm

import (
	"archive/tar"
	"bytes"
	"compress/bzip2"
	"compress/gzip"
	"io"
	"os"
	"strings"

	"github.com/pkg/errors"
)

type compression int

const (
	none compression = iota
	gzipped
	bzipped
	rejected
)

var suffixes = []struct {
	ext  string
	kind compression
}{
	{".tar.gz", gzipped},
	{".tgz", gzipped},
	{".tar.bz2", bzipped},
	{".tbz2", bzipped},
	{".tar.xz", rejected},
	{".txz", rejected},
	{".tar.lz", rejected},
	{".tar", none},
}

// splitArchive returns filename without its archive suffix and how the
// archive is compressed.
func splitArchive(filename string) (string, compression, error) {
	for _, s := range suffixes {
		if !strings.HasSuffix(filename, s.ext) {
			continue
		}

		if s.kind == rejected {
			return "", rejected, errors.Wrapf(ErrUnsupportedArchive, "%s", filename)
		}

		return strings.TrimSuffix(filename, s.ext), s.kind, nil
	}

	return "", rejected, errors.Wrapf(ErrUnsupportedArchive, "%s", filename)
}

// Decompress turns a downloaded archive into a plain tar stream. The
// returned name is filename without its archive suffix. Output beyond limit
// bytes is an error.
func Decompress(filename string, data []byte, limit int64) (string, []byte, error) {
	base, kind, err := splitArchive(filename)
	if err != nil {
		return "", nil, err
	}

	var r io.Reader

	switch kind {
	case gzipped:
		zr, err := gzip.NewReader(bytes.NewReader(data))
		if err != nil {
			return "", nil, errors.Wrapf(err, "gunzip %s", filename)
		}

		defer zr.Close()

		r = zr
	case bzipped:
		r = bzip2.NewReader(bytes.NewReader(data))
	default:
		r = bytes.NewReader(data)
	}

	out, err := readLimited(r, limit, "decompress "+filename)
	if err != nil {
		return "", nil, err
	}

	return base, out, nil
}

type MemberType int

const (
	RegularMember MemberType = iota
	DirMember
	SymlinkMember
)

func (t MemberType) String() string {
	switch t {
	case DirMember:
		return "dir"
	case SymlinkMember:
		return "link"
	default:
		return "file"
	}
}

type Member struct {
	Name string
	Type MemberType
	Mode os.FileMode
	Size int64
	Link string

	body []byte
}

// Members lists the entries of a tar stream in archive order. Leading "./"
// and "/" are stripped from names and the archive root itself is skipped.
func Members(data []byte) ([]Member, error) {
	tr := tar.NewReader(bytes.NewReader(data))

	var out []Member

	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}

		if err != nil {
			return nil, errors.Wrap(err, "reading tar")
		}

		name := strings.TrimPrefix(hdr.Name, "./")
		name = strings.TrimPrefix(name, "/")

		if name == "" || name == "." {
			continue
		}

		m := Member{
			Name: strings.TrimSuffix(name, "/"),
			Mode: os.FileMode(hdr.Mode).Perm(),
			Size: hdr.Size,
		}

		switch hdr.Typeflag {
		case tar.TypeDir:
			m.Type = DirMember
		case tar.TypeSymlink:
			m.Type = SymlinkMember
			m.Link = hdr.Linkname
			m.Size = int64(len(hdr.Linkname))
		default:
			body, err := io.ReadAll(tr)
			if err != nil {
				return nil, errors.Wrapf(err, "reading %s", name)
			}

			m.body = body
		}

		out = append(out, m)
	}

	return out, nil
}
