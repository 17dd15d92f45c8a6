package fs

import (
	"path"
	"strings"

	"github.com/hashicorp/golang-lru"
	"github.com/pkg/errors"
)

const Separator = "/"

var reserved = map[string]struct{}{
	"/":  {},
	".":  {},
	"..": {},
}

func isReserved(name string) bool {
	_, ok := reserved[name]
	return ok
}

func splitPath(p string) []string {
	var parts []string

	for _, part := range strings.Split(p, Separator) {
		if part != "" {
			parts = append(parts, part)
		}
	}

	return parts
}

// namespace resolves cleaned absolute paths to directories, remembering
// recent answers. Cached IDs are revalidated against the arena because
// removal never touches the cache.
type namespace struct {
	arena

	root  DirID
	cache *lru.ARCCache
}

func newNamespace() *namespace {
	cache, err := lru.NewARC(1000) // TODO size this from the directory count once that is configurable
	if err != nil {
		panic(err)
	}

	ns := &namespace{cache: cache}
	ns.root = ns.add("/", Separator, NoParent).ID

	return ns
}

func (ns *namespace) rootDir() *Directory {
	d, _ := ns.get(ns.root)
	return d
}

// lookupDir resolves abs, which must already be clean and absolute.
func (ns *namespace) lookupDir(abs string) (*Directory, error) {
	if abs == Separator {
		return ns.rootDir(), nil
	}

	if val, ok := ns.cache.Get(abs); ok {
		if d, ok := ns.get(val.(DirID)); ok && d.Path == abs {
			return d, nil
		}

		ns.cache.Remove(abs)
	}

	cur := ns.rootDir()

	for _, part := range splitPath(abs) {
		id, ok := cur.Subdirs[part]
		if !ok {
			return nil, errors.Wrapf(ErrUnknownPath, "%s", abs)
		}

		cur, ok = ns.get(id)
		if !ok {
			return nil, errors.Wrapf(ErrUnknownPath, "%s", abs)
		}
	}

	ns.cache.Add(abs, cur.ID)

	return cur, nil
}

func (ns *namespace) parentOf(d *Directory) (*Directory, bool) {
	return ns.get(d.Parent)
}

func join(dir, name string) string {
	return path.Join(dir, name)
}
