// Package kpm installs packages from a Homebrew-style formula registry into
// the VFS. Archives are stored decompressed as a single file under /bin.
package kpm

import (
	"context"
	"io"
	"path"
	"sort"
	"sync"

	"github.com/evanphx/kernelino/abi"
	"github.com/evanphx/kernelino/fs"
	"github.com/evanphx/kernelino/log"
	"github.com/pkg/errors"
)

const BinDir = "/bin"

type Package struct {
	Name         string
	Version      string
	Path         string
	Size         uint64
	Digest       string
	Dependencies []string
}

type Manager struct {
	mu sync.Mutex

	vfs      *fs.VFS
	registry Registry
	out      io.Writer

	cache    *archiveCache
	packages map[string]*Package
}

// NewManager installs into v using reg. Exec reports go to out.
func NewManager(v *fs.VFS, reg Registry, out io.Writer) *Manager {
	return &Manager{
		vfs:      v,
		registry: reg,
		out:      out,
		cache:    newArchiveCache(16),
		packages: make(map[string]*Package),
	}
}

func (m *Manager) freeMemory() int64 {
	return int64(m.vfs.Process().Mem.FreeMemory())
}

// Install fetches name's formula and stable archive and writes the
// decompressed archive to /bin. Installing an archive whose digest matches
// the installed one is a no-op as long as the file is still there.
func (m *Manager) Install(ctx context.Context, name string) (*Package, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	formula, err := m.registry.Formula(ctx, name)
	if err != nil {
		return nil, errors.Wrapf(err, "install %s", name)
	}

	archive := formula.ArchiveName()

	base, _, err := splitArchive(archive)
	if err != nil {
		return nil, errors.Wrapf(err, "install %s", name)
	}

	data, err := m.registry.Download(ctx, formula.URLs.Stable.URL, m.freeMemory())
	if err != nil {
		return nil, errors.Wrapf(err, "install %s", name)
	}

	digest := Digest(data)

	if cur, ok := m.packages[name]; ok && cur.Digest == digest {
		if _, err := m.vfs.Stat(cur.Path); err == nil {
			log.L.Info("kpm-already-installed", "package", name, "version", cur.Version)
			return cur, nil
		}
	}

	tarball, ok := m.cache.Lookup(digest)
	if ok {
		log.L.Debug("kpm-cache-hit", "package", name, "digest", digest)
	} else {
		_, tarball, err = Decompress(archive, data, m.freeMemory())
		if err != nil {
			return nil, errors.Wrapf(err, "install %s", name)
		}

		m.cache.Set(digest, tarball)
	}

	dest := path.Join(BinDir, base)

	if err := m.writeFile(base, tarball, dest); err != nil {
		return nil, errors.Wrapf(err, "install %s", name)
	}

	pkg := &Package{
		Name:         name,
		Version:      formula.Versions.Stable,
		Path:         dest,
		Size:         uint64(len(tarball)),
		Digest:       digest,
		Dependencies: formula.Dependencies,
	}

	m.packages[name] = pkg

	log.L.Info("kpm-installed", "package", name, "version", pkg.Version, "path", dest, "size", pkg.Size)

	return pkg, nil
}

// writeFile stores data as /bin/name, creating /bin when it was removed,
// and puts the cwd back where it was.
func (m *Manager) writeFile(name string, data []byte, dest string) (err error) {
	err = m.vfs.AddDirectoryRecursive(BinDir)
	if err != nil && !errors.Is(err, abi.Conflict) {
		return err
	}

	prev := m.vfs.Pwd()

	if err := m.vfs.ChangeDir(BinDir); err != nil {
		return err
	}

	defer func() {
		rerr := m.vfs.ChangeDir(prev)
		if rerr == nil {
			return
		}

		log.L.Warn("kpm-restore-cwd", "dir", prev, "error", rerr)

		if rerr := m.vfs.ChangeDir(fs.Separator); rerr != nil && err == nil {
			err = rerr
		}
	}()

	err = m.vfs.Touch(name)
	if err != nil && !errors.Is(err, abi.Conflict) {
		return err
	}

	return m.vfs.WriteFile(name, data, dest)
}

// List returns the installed packages sorted by name.
func (m *Manager) List() []Package {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Package, 0, len(m.packages))
	for _, p := range m.packages {
		out = append(out, *p)
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].Name < out[j].Name
	})

	return out
}

// Exec inspects the installed file of name in a child of the VFS process and
// waits for it to finish.
func (m *Manager) Exec(ctx context.Context, name string) error {
	m.mu.Lock()
	pkg, ok := m.packages[name]
	m.mu.Unlock()

	if !ok {
		return errors.Wrapf(ErrUnknownPackage, "%s", name)
	}

	child, err := m.vfs.ExecuteFile(ctx, pkg.Path, &Inspector{Out: m.out})
	if err != nil {
		return errors.Wrapf(err, "exec %s", name)
	}

	log.L.Debug("kpm-exec", "package", name, "pid", child.Pid)

	return child.Wait(ctx)
}
