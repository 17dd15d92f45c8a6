package fs

// DirID addresses a directory in the VFS arena. IDs are never reused, so a
// stale ID simply fails to resolve.
type DirID int

const NoParent DirID = -1

type Directory struct {
	ID     DirID
	Name   string
	Parent DirID
	Path   string

	Files   map[string]*File
	Subdirs map[string]DirID
}

type arena struct {
	dirs []*Directory
}

func (a *arena) add(name, path string, parent DirID) *Directory {
	d := &Directory{
		ID:      DirID(len(a.dirs)),
		Name:    name,
		Parent:  parent,
		Path:    path,
		Files:   make(map[string]*File),
		Subdirs: make(map[string]DirID),
	}

	a.dirs = append(a.dirs, d)

	return d
}

func (a *arena) get(id DirID) (*Directory, bool) {
	if id < 0 || int(id) >= len(a.dirs) {
		return nil, false
	}

	d := a.dirs[id]

	return d, d != nil
}

func (a *arena) release(id DirID) {
	if id >= 0 && int(id) < len(a.dirs) {
		a.dirs[id] = nil
	}
}

// walk visits d and every directory below it, parents first.
func (a *arena) walk(d *Directory, fn func(*Directory)) {
	fn(d)

	for _, id := range d.Subdirs {
		if sub, ok := a.get(id); ok {
			a.walk(sub, fn)
		}
	}
}

func (a *arena) count() int {
	var n int

	for _, d := range a.dirs {
		if d != nil {
			n++
		}
	}

	return n
}
