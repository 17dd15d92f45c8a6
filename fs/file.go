package fs

import (
	"github.com/davecgh/go-spew/spew"
)

// File is a named byte sequence stored in VMM pages. Addrs is read in the
// order stored, which is not necessarily ascending.
type File struct {
	Name  string
	Path  string
	Addrs []uint64
	Size  uint64
}

func (f *File) Pages() int {
	return len(f.Addrs)
}

var dumper = spew.ConfigState{Indent: "  ", DisableMethods: true}

func (f *File) String() string {
	return dumper.Sdump(*f)
}

type FileInfo struct {
	Name  string
	Path  string
	Size  uint64
	Pages int
}

func (f *File) info() FileInfo {
	return FileInfo{
		Name:  f.Name,
		Path:  f.Path,
		Size:  f.Size,
		Pages: f.Pages(),
	}
}
