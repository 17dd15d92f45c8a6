package fs

import (
	"fmt"
	"io"
	"path"
	"sort"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/evanphx/kernelino/kernel"
	"github.com/evanphx/kernelino/log"
	"github.com/pkg/errors"
)

// Editor builds new content for a file interactively. saved is false when
// the user quit without saving.
type Editor interface {
	Edit(name string, current []byte) (content []byte, saved bool, err error)
}

// VFS is the directory tree. All file bytes live in the VMM of the process
// the VFS was created with; every memory access runs in a forked identity of
// that process.
//
// Lock order is VFS then VMM. The VMM lock is only ever held for a single
// VMM call.
type VFS struct {
	mu sync.Mutex

	ns  *namespace
	cwd string

	proc   *kernel.Process
	editor Editor
}

type Option func(*VFS)

func WithEditor(e Editor) Option {
	return func(v *VFS) {
		v.editor = e
	}
}

func New(proc *kernel.Process, opts ...Option) *VFS {
	v := &VFS{
		ns:   newNamespace(),
		cwd:  Separator,
		proc: proc,
	}

	for _, opt := range opts {
		opt(v)
	}

	return v
}

func (v *VFS) Process() *kernel.Process {
	return v.proc
}

func (v *VFS) Pwd() string {
	v.mu.Lock()
	defer v.mu.Unlock()

	return v.cwd
}

func (v *VFS) Root() DirID {
	return v.ns.root
}

// DirCount is the number of directories in the tree, root included.
func (v *VFS) DirCount() int {
	v.mu.Lock()
	defer v.mu.Unlock()

	return v.ns.count()
}

func (v *VFS) abs(p string) string {
	if strings.HasPrefix(p, Separator) {
		return path.Clean(p)
	}

	return path.Clean(path.Join(v.cwd, p))
}

func (v *VFS) cwdDir() (*Directory, error) {
	return v.ns.lookupDir(v.cwd)
}

// AddDirectoryRecursive creates every missing directory along p. Reserved
// names anywhere in p reject the whole call. If every segment already
// existed nothing changes and the error matches abi.Conflict.
func (v *VFS) AddDirectoryRecursive(p string) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if isReserved(p) {
		return errors.Wrapf(ErrReservedName, "mkdir %s", p)
	}

	parts := splitPath(p)
	if len(parts) == 0 {
		return errors.Wrapf(ErrInvalidName, "mkdir %q", p)
	}

	for _, part := range parts {
		if isReserved(part) {
			return errors.Wrapf(ErrReservedName, "mkdir %s", p)
		}
	}

	var (
		cur *Directory
		err error
	)

	if strings.HasPrefix(p, Separator) {
		cur = v.ns.rootDir()
	} else {
		cur, err = v.cwdDir()
		if err != nil {
			return err
		}
	}

	var created int

	for _, part := range parts {
		if id, ok := cur.Subdirs[part]; ok {
			cur, _ = v.ns.get(id)
			continue
		}

		child := v.ns.add(part, join(cur.Path, part), cur.ID)
		cur.Subdirs[part] = child.ID
		created++

		log.L.Trace("vfs-mkdir", "path", child.Path, "id", child.ID)

		cur = child
	}

	if created == 0 {
		return errors.Wrapf(ErrExists, "directory %s", p)
	}

	return nil
}

// ChangeDir moves the cwd. A path that doesn't resolve leaves it alone.
func (v *VFS) ChangeDir(p string) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	switch p {
	case ".":
		return nil
	case Separator:
		v.cwd = Separator
		return nil
	case "..":
		cur, err := v.cwdDir()
		if err != nil {
			return errors.Wrap(err, "cd")
		}

		if parent, ok := v.ns.parentOf(cur); ok {
			v.cwd = parent.Path
		}

		return nil
	}

	d, err := v.ns.lookupDir(v.abs(p))
	if err != nil {
		return errors.Wrap(err, "cd")
	}

	v.cwd = d.Path

	return nil
}

// Touch creates an empty file in the cwd. One page is allocated up front
// even though the file has no content yet.
func (v *VFS) Touch(name string) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if name == "" || strings.Contains(name, Separator) {
		return errors.Wrapf(ErrInvalidName, "touch %q: file names can't contain %s", name, Separator)
	}

	if isReserved(name) {
		return errors.Wrapf(ErrReservedName, "touch %s", name)
	}

	dir, err := v.cwdDir()
	if err != nil {
		return err
	}

	if _, ok := dir.Files[name]; ok {
		return errors.Wrapf(ErrExists, "file %s", name)
	}

	var addr uint64

	err = v.proc.Execute(func(p *kernel.Process) error {
		var err error
		addr, _, err = p.Mem.AllocatePage()
		return err
	})
	if err != nil {
		return errors.Wrapf(err, "touch %s", name)
	}

	dir.Files[name] = &File{
		Name:  name,
		Path:  join(dir.Path, name),
		Addrs: []uint64{addr},
	}

	log.L.Trace("vfs-touch", "path", join(dir.Path, name), "vaddr", addr)

	return nil
}

func (v *VFS) fileInCwd(name string) (*Directory, *File, error) {
	dir, err := v.cwdDir()
	if err != nil {
		return nil, nil, err
	}

	f, ok := dir.Files[name]
	if !ok {
		return nil, nil, errors.Wrapf(ErrUnknownFile, "%s", name)
	}

	return dir, f, nil
}

// WriteFile replaces the content of name in the cwd. A nil payload hands
// the file to the editor; a non-nil payload, even an empty one, is written
// as is. A non-empty dest overwrites the file's recorded path.
func (v *VFS) WriteFile(name string, payload []byte, dest string) error {
	v.mu.Lock()

	dir, f, err := v.fileInCwd(name)
	if err != nil {
		v.mu.Unlock()
		return errors.Wrap(err, "write")
	}

	if payload != nil {
		defer v.mu.Unlock()
		return v.replaceContent(f, payload, dest)
	}

	ed := v.editor
	if ed == nil {
		v.mu.Unlock()
		return errors.Wrapf(ErrNoEditor, "write %s", name)
	}

	current, err := v.content(f)

	v.mu.Unlock()

	if err != nil {
		return err
	}

	// The editor is interactive; don't hold the tree while it runs.
	buf, saved, err := ed.Edit(name, current)
	if err != nil {
		return errors.Wrapf(err, "editing %s", name)
	}

	if !saved {
		log.L.Debug("vfs-write-discarded", "file", name)
		return nil
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	if d, ok := v.ns.get(dir.ID); !ok || d.Files[name] != f {
		return errors.Wrapf(ErrUnknownFile, "%s was removed while editing", name)
	}

	if buf == nil {
		buf = []byte{}
	}

	return v.replaceContent(f, buf, dest)
}

// replaceContent allocates pages for buf, swaps them into f and frees the
// old ones. Allocation failure leaves f untouched.
func (v *VFS) replaceContent(f *File, buf []byte, dest string) error {
	return v.proc.Execute(func(p *kernel.Process) error {
		addrs, err := p.Mem.AllocateBytes(buf)
		if err != nil {
			return errors.Wrapf(err, "write %s", f.Name)
		}

		old := f.Addrs

		f.Addrs = addrs
		f.Size = uint64(len(buf))

		if dest != "" {
			f.Path = dest
		}

		log.L.Trace("vfs-write", "file", f.Path, "size", f.Size, "pages", len(addrs), "pid", p.Pid)

		return p.Mem.DeallocatePages(old)
	})
}

func (v *VFS) content(f *File) ([]byte, error) {
	var out []byte

	err := v.proc.Execute(func(p *kernel.Process) error {
		var err error
		out, err = p.Mem.GetBytes(f.Addrs, f.Size)
		return err
	})
	if err != nil {
		return nil, errors.Wrapf(err, "read %s", f.Name)
	}

	return out, nil
}

// ReadFileBytes returns the raw content of the file at p, relative to the
// cwd unless absolute.
func (v *VFS) ReadFileBytes(p string) ([]byte, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	f, err := v.lookupFile(p)
	if err != nil {
		return nil, errors.Wrap(err, "read")
	}

	return v.content(f)
}

// ReadFile writes each non-empty line of name to w. Content that isn't
// valid UTF-8 is an error.
func (v *VFS) ReadFile(name string, w io.Writer) error {
	v.mu.Lock()

	_, f, err := v.fileInCwd(name)
	if err != nil {
		v.mu.Unlock()
		return errors.Wrap(err, "read")
	}

	buf, err := v.content(f)

	v.mu.Unlock()

	if err != nil {
		return err
	}

	if !utf8.Valid(buf) {
		return errors.Wrapf(ErrInvalidUTF8, "read %s", name)
	}

	for _, line := range strings.Split(string(buf), "\n") {
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

func (v *VFS) lookupFile(p string) (*File, error) {
	abs := v.abs(p)

	dir, err := v.ns.lookupDir(path.Dir(abs))
	if err != nil {
		return nil, err
	}

	f, ok := dir.Files[path.Base(abs)]
	if !ok {
		return nil, errors.Wrapf(ErrUnknownFile, "%s", abs)
	}

	return f, nil
}

// Stat describes the file at p.
func (v *VFS) Stat(p string) (FileInfo, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	f, err := v.lookupFile(p)
	if err != nil {
		return FileInfo{}, err
	}

	return f.info(), nil
}

// Describe dumps the record of the file at p, page addresses included.
func (v *VFS) Describe(p string) (string, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	f, err := v.lookupFile(p)
	if err != nil {
		return "", errors.Wrap(err, "stat")
	}

	return f.String(), nil
}

// Remove deletes a file or a directory. A final segment containing a dot
// names a file, anything else a directory; when only the other kind exists
// under that name it is removed instead. Removing a directory frees the
// pages of every file below it.
func (v *VFS) Remove(p string) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if p == "" {
		return errors.Wrap(ErrInvalidName, "rm: empty path")
	}

	abs := v.abs(p)
	if abs == Separator {
		return errors.Wrap(ErrReservedName, "rm /")
	}

	parent, err := v.ns.lookupDir(path.Dir(abs))
	if err != nil {
		return errors.Wrap(err, "rm")
	}

	base := path.Base(abs)

	_, isFile := parent.Files[base]
	_, isDir := parent.Subdirs[base]

	switch {
	case strings.Contains(base, ".") && isFile, !isDir && isFile:
		return v.removeFile(parent, base)
	case isDir:
		return v.removeDir(parent, base)
	case strings.Contains(base, "."):
		return errors.Wrapf(ErrUnknownFile, "rm %s", abs)
	default:
		return errors.Wrapf(ErrUnknownPath, "rm %s", abs)
	}
}

func (v *VFS) removeFile(parent *Directory, name string) error {
	f := parent.Files[name]

	err := v.proc.Execute(func(p *kernel.Process) error {
		return p.Mem.DeallocatePages(f.Addrs)
	})
	if err != nil {
		return errors.Wrapf(err, "rm %s", f.Path)
	}

	delete(parent.Files, name)

	log.L.Trace("vfs-rm-file", "path", join(parent.Path, name), "pages", len(f.Addrs))

	return nil
}

func (v *VFS) removeDir(parent *Directory, name string) error {
	target, ok := v.ns.get(parent.Subdirs[name])
	if !ok {
		return errors.Wrapf(ErrUnknownPath, "rm %s", join(parent.Path, name))
	}

	var (
		addrs []uint64
		ids   []DirID
	)

	v.ns.walk(target, func(d *Directory) {
		ids = append(ids, d.ID)

		for _, f := range d.Files {
			addrs = append(addrs, f.Addrs...)
		}
	})

	err := v.proc.Execute(func(p *kernel.Process) error {
		return p.Mem.DeallocatePages(addrs)
	})
	if err != nil {
		return errors.Wrapf(err, "rm %s", target.Path)
	}

	delete(parent.Subdirs, name)

	for _, id := range ids {
		v.ns.release(id)
	}

	if v.cwd == target.Path || strings.HasPrefix(v.cwd, target.Path+Separator) {
		v.cwd = parent.Path
	}

	log.L.Trace("vfs-rm-dir", "path", target.Path, "dirs", len(ids), "pages", len(addrs))

	return nil
}

// SearchFileRecursive looks p up as a file name in start, then follows p's
// directory segments down the tree.
func (v *VFS) SearchFileRecursive(p string, start DirID) (*File, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()

	dir, ok := v.ns.get(start)
	if !ok {
		return nil, false
	}

	return v.search(strings.Trim(p, Separator), dir)
}

func (v *VFS) search(p string, dir *Directory) (*File, bool) {
	if f, ok := dir.Files[p]; ok {
		return f, true
	}

	if !strings.Contains(p, Separator) {
		return nil, false
	}

	parts := splitPath(p)

	for i, part := range parts[:len(parts)-1] {
		id, ok := dir.Subdirs[part]
		if !ok {
			continue
		}

		sub, ok := v.ns.get(id)
		if !ok {
			continue
		}

		if f, ok := v.search(strings.Join(parts[i+1:], Separator), sub); ok {
			return f, true
		}
	}

	return nil, false
}

type Listing struct {
	Files []FileInfo
	Dirs  []string
}

// List describes the cwd, sorted by name.
func (v *VFS) List() (Listing, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	dir, err := v.cwdDir()
	if err != nil {
		return Listing{}, err
	}

	var l Listing

	for _, f := range dir.Files {
		l.Files = append(l.Files, f.info())
	}

	for name := range dir.Subdirs {
		l.Dirs = append(l.Dirs, name)
	}

	sort.Slice(l.Files, func(i, j int) bool {
		return l.Files[i].Name < l.Files[j].Name
	})

	sort.Strings(l.Dirs)

	return l, nil
}
