package kpm

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"debug/elf"
	"encoding/binary"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/evanphx/kernelino/abi"
	"github.com/evanphx/kernelino/config"
	"github.com/evanphx/kernelino/fs"
	"github.com/evanphx/kernelino/kernel"
	"github.com/evanphx/kernelino/memory"
	"github.com/stretchr/testify/require"
	"github.com/vektra/neko"
)

func elfImage(t *testing.T) []byte {
	hdr := elf.Header64{
		Type:      uint16(elf.ET_EXEC),
		Machine:   uint16(elf.EM_X86_64),
		Version:   uint32(elf.EV_CURRENT),
		Entry:     0x401000,
		Ehsize:    64,
		Phentsize: 56,
		Shentsize: 64,
	}

	copy(hdr.Ident[:], elf.ELFMAG)
	hdr.Ident[elf.EI_CLASS] = byte(elf.ELFCLASS64)
	hdr.Ident[elf.EI_DATA] = byte(elf.ELFDATA2LSB)
	hdr.Ident[elf.EI_VERSION] = byte(elf.EV_CURRENT)

	var buf bytes.Buffer
	require.NoError(t, binary.Write(&buf, binary.LittleEndian, &hdr))

	return buf.Bytes()
}

func tarball(t *testing.T, files map[string][]byte) []byte {
	var buf bytes.Buffer

	tw := tar.NewWriter(&buf)

	require.NoError(t, tw.WriteHeader(&tar.Header{
		Name:     "./hello-1.0/",
		Typeflag: tar.TypeDir,
		Mode:     0755,
	}))

	require.NoError(t, tw.WriteHeader(&tar.Header{
		Name:     "hello-1.0/latest",
		Typeflag: tar.TypeSymlink,
		Linkname: "bin/hello",
		Mode:     0777,
	}))

	for name, body := range files {
		require.NoError(t, tw.WriteHeader(&tar.Header{
			Name:     name,
			Typeflag: tar.TypeReg,
			Mode:     0755,
			Size:     int64(len(body)),
		}))

		_, err := tw.Write(body)
		require.NoError(t, err)
	}

	require.NoError(t, tw.Close())

	return buf.Bytes()
}

func gzipBytes(t *testing.T, data []byte) []byte {
	var buf bytes.Buffer

	zw := gzip.NewWriter(&buf)

	_, err := zw.Write(data)
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	return buf.Bytes()
}

type fakeRegistry struct {
	formulas  map[string]*Formula
	archives  map[string][]byte
	downloads int
}

func (f *fakeRegistry) add(name, version, url string, data []byte) {
	var fm Formula
	fm.Name = name
	fm.URLs.Stable.URL = url
	fm.Versions.Stable = version

	f.formulas[name] = &fm
	f.archives[url] = data
}

func (f *fakeRegistry) Formula(ctx context.Context, name string) (*Formula, error) {
	fm, ok := f.formulas[name]
	if !ok {
		return nil, fmt.Errorf("%s: %w", name, ErrUnknownPackage)
	}

	return fm, nil
}

func (f *fakeRegistry) Download(ctx context.Context, url string, limit int64) ([]byte, error) {
	f.downloads++

	data, ok := f.archives[url]
	if !ok {
		return nil, ErrRegistry
	}

	return data, nil
}

func setup(t *testing.T) (*Manager, *fs.VFS, *fakeRegistry, *bytes.Buffer) {
	cfg := config.Default()
	cfg.MemoryBytes = 64 * memory.PageSize
	cfg.TickPeriod = config.Duration(10 * time.Millisecond)

	k, err := kernel.NewKernel(cfg)
	require.NoError(t, err)

	t.Cleanup(k.Shutdown)

	v := fs.New(k.Init())

	reg := &fakeRegistry{
		formulas: make(map[string]*Formula),
		archives: make(map[string][]byte),
	}

	var out bytes.Buffer

	return NewManager(v, reg, &out), v, reg, &out
}

func TestInstall(t *testing.T) {
	n := neko.Modern(t)

	n.It("writes the decompressed archive into /bin", func(t *testing.T) {
		m, v, reg, _ := setup(t)

		tb := tarball(t, map[string][]byte{"hello-1.0/bin/hello": elfImage(t)})
		archive := gzipBytes(t, tb)

		reg.add("hello", "1.0", "https://example.com/dl/hello-1.0.tar.gz?mirror=1", archive)

		require.NoError(t, v.AddDirectoryRecursive("tmp"))
		require.NoError(t, v.ChangeDir("tmp"))

		pkg, err := m.Install(context.Background(), "hello")
		require.NoError(t, err)

		require.Equal(t, "hello", pkg.Name)
		require.Equal(t, "1.0", pkg.Version)
		require.Equal(t, "/bin/hello-1.0", pkg.Path)
		require.Equal(t, uint64(len(tb)), pkg.Size)
		require.Equal(t, Digest(archive), pkg.Digest)
		require.Len(t, pkg.Digest, 64)

		require.Equal(t, "/tmp", v.Pwd())

		got, err := v.ReadFileBytes("/bin/hello-1.0")
		require.NoError(t, err)
		require.Equal(t, tb, got)

		info, err := v.Stat("/bin/hello-1.0")
		require.NoError(t, err)
		require.Equal(t, "/bin/hello-1.0", info.Path)

		list := m.List()
		require.Len(t, list, 1)
		require.Equal(t, *pkg, list[0])
	})

	n.It("skips reinstalling an identical archive", func(t *testing.T) {
		m, v, reg, _ := setup(t)

		reg.add("hello", "1.0", "https://example.com/hello-1.0.tar", tarball(t, nil))

		_, err := m.Install(context.Background(), "hello")
		require.NoError(t, err)

		frames := v.Process().Mem.InUseFrames()

		_, err = m.Install(context.Background(), "hello")
		require.NoError(t, err)

		require.Equal(t, 2, reg.downloads)
		require.Equal(t, frames, v.Process().Mem.InUseFrames())
	})

	n.It("reinstalls a removed file", func(t *testing.T) {
		m, v, reg, _ := setup(t)

		tb := tarball(t, nil)
		reg.add("hello", "1.0", "https://example.com/hello-1.0.tgz", gzipBytes(t, tb))

		_, err := m.Install(context.Background(), "hello")
		require.NoError(t, err)

		require.NoError(t, v.Remove("/bin"))

		_, err = m.Install(context.Background(), "hello")
		require.NoError(t, err)

		got, err := v.ReadFileBytes("/bin/hello-1.0")
		require.NoError(t, err)
		require.Equal(t, tb, got)
	})

	n.It("rejects xz and lzip archives before downloading", func(t *testing.T) {
		m, _, reg, _ := setup(t)

		reg.add("xz", "5.0", "https://example.com/xz-5.0.tar.xz", []byte("x"))
		reg.add("lz", "1.0", "https://example.com/lz-1.0.tar.lz", []byte("x"))

		for _, name := range []string{"xz", "lz"} {
			_, err := m.Install(context.Background(), name)
			require.True(t, errors.Is(err, ErrUnsupportedArchive))
			require.True(t, errors.Is(err, abi.Unsupported))
		}

		require.Equal(t, 0, reg.downloads)
		require.Empty(t, m.List())
	})

	n.It("reports unknown packages", func(t *testing.T) {
		m, _, _, _ := setup(t)

		_, err := m.Install(context.Background(), "nope")
		require.True(t, errors.Is(err, abi.NotFound))
	})

	n.It("refuses archives larger than free memory", func(t *testing.T) {
		m, _, reg, _ := setup(t)

		big := tarball(t, map[string][]byte{"big": make([]byte, 80*memory.PageSize)})
		reg.add("big", "1.0", "https://example.com/big-1.0.tar.gz", gzipBytes(t, big))

		_, err := m.Install(context.Background(), "big")
		require.True(t, errors.Is(err, abi.ResourceExhausted))
	})

	n.Meow()
}

func TestExec(t *testing.T) {
	n := neko.Modern(t)

	n.It("lists archive members with their elf headers", func(t *testing.T) {
		m, v, reg, out := setup(t)

		reg.add("hello", "1.0", "https://example.com/hello-1.0.tar.gz",
			gzipBytes(t, tarball(t, map[string][]byte{"hello-1.0/bin/hello": elfImage(t)})))

		_, err := m.Install(context.Background(), "hello")
		require.NoError(t, err)

		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()

		require.NoError(t, m.Exec(ctx, "hello"))

		s := out.String()
		require.Contains(t, s, "/bin/hello-1.0: tar archive, 3 members")
		require.Contains(t, s, "hello-1.0/bin/hello")
		require.Contains(t, s, "-> bin/hello")
		require.Contains(t, s, "EM_X86_64")
		require.Contains(t, s, "entry=0x401000")

		require.Len(t, v.Process().Children(), 1)
	})

	n.It("reports unknown packages", func(t *testing.T) {
		m, _, _, _ := setup(t)

		err := m.Exec(context.Background(), "ghost")
		require.True(t, errors.Is(err, ErrUnknownPackage))
	})

	n.Meow()
}

func TestInspector(t *testing.T) {
	n := neko.Modern(t)

	run := func(t *testing.T, image []byte) (string, error) {
		m, _, _, _ := setup(t)

		var out bytes.Buffer
		in := &Inspector{Out: &out}

		var err error

		perr := m.vfs.Process().Execute(func(p *kernel.Process) error {
			err = in.Exec(context.Background(), p, fs.FileInfo{Path: "/bin/x"}, image)
			return nil
		})
		require.NoError(t, perr)

		return out.String(), err
	}

	n.It("reports an elf header", func(t *testing.T) {
		out, err := run(t, elfImage(t))
		require.NoError(t, err)
		require.Equal(t, "/bin/x: ELFCLASS64 EM_X86_64 ET_EXEC entry=0x401000\n", out)
	})

	n.It("refuses anything else", func(t *testing.T) {
		_, err := run(t, []byte("#!/bin/sh\necho hi\n"))
		require.True(t, errors.Is(err, ErrNotExecutable))
	})

	n.Meow()
}

func TestDecompress(t *testing.T) {
	n := neko.Modern(t)

	n.It("strips the archive suffix", func(t *testing.T) {
		tb := tarball(t, nil)

		name, out, err := Decompress("pkg-2.1.tar.gz", gzipBytes(t, tb), 1<<20)
		require.NoError(t, err)
		require.Equal(t, "pkg-2.1", name)
		require.Equal(t, tb, out)

		name, out, err = Decompress("pkg-2.1.tar", tb, 1<<20)
		require.NoError(t, err)
		require.Equal(t, "pkg-2.1", name)
		require.Equal(t, tb, out)
	})

	n.It("rejects unknown formats", func(t *testing.T) {
		_, _, err := Decompress("pkg.zip", []byte("PK"), 1<<20)
		require.True(t, errors.Is(err, ErrUnsupportedArchive))
	})

	n.It("enforces the size limit", func(t *testing.T) {
		tb := tarball(t, map[string][]byte{"f": make([]byte, 4096)})

		_, _, err := Decompress("pkg.tar.gz", gzipBytes(t, tb), 1024)
		require.True(t, errors.Is(err, ErrArchiveTooLarge))
	})

	n.It("lists members in order", func(t *testing.T) {
		ms, err := Members(tarball(t, map[string][]byte{"hello-1.0/README": []byte("hi")}))
		require.NoError(t, err)
		require.Len(t, ms, 3)

		require.Equal(t, "hello-1.0", ms[0].Name)
		require.Equal(t, DirMember, ms[0].Type)

		require.Equal(t, SymlinkMember, ms[1].Type)
		require.Equal(t, "bin/hello", ms[1].Link)

		require.Equal(t, "hello-1.0/README", ms[2].Name)
		require.Equal(t, int64(2), ms[2].Size)
	})

	n.Meow()
}

func TestHTTPRegistry(t *testing.T) {
	n := neko.Modern(t)

	mux := http.NewServeMux()

	mux.HandleFunc("/api/formula/hello.json", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"name":"hello","urls":{"stable":{"url":"https://example.com/hello-2.12.tar.gz"}},"versions":{"stable":"2.12"},"dependencies":["gettext"]}`)
	})

	mux.HandleFunc("/api/formula/broken.json", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"name":"broken","urls":{},"versions":{}}`)
	})

	mux.HandleFunc("/files/blob", func(w http.ResponseWriter, r *http.Request) {
		w.Write(bytes.Repeat([]byte("z"), 100))
	})

	srv := httptest.NewServer(mux)
	defer srv.Close()

	reg := NewHTTPRegistry(srv.URL + "/api/formula")

	n.It("decodes a formula", func(t *testing.T) {
		f, err := reg.Formula(context.Background(), "hello")
		require.NoError(t, err)

		require.Equal(t, "2.12", f.Versions.Stable)
		require.Equal(t, "hello-2.12.tar.gz", f.ArchiveName())
		require.Equal(t, []string{"gettext"}, f.Dependencies)
	})

	n.It("maps a 404 to not found", func(t *testing.T) {
		_, err := reg.Formula(context.Background(), "missing")
		require.True(t, errors.Is(err, ErrUnknownPackage))
	})

	n.It("requires a stable release", func(t *testing.T) {
		_, err := reg.Formula(context.Background(), "broken")
		require.True(t, errors.Is(err, ErrIncompleteFormula))
	})

	n.It("downloads within the limit", func(t *testing.T) {
		data, err := reg.Download(context.Background(), srv.URL+"/files/blob", 100)
		require.NoError(t, err)
		require.Len(t, data, 100)

		_, err = reg.Download(context.Background(), srv.URL+"/files/blob", 99)
		require.True(t, errors.Is(err, ErrArchiveTooLarge))

		_, err = reg.Download(context.Background(), srv.URL+"/files/none", 100)
		require.True(t, errors.Is(err, ErrRegistry))
	})

	n.It("keeps cancellation visible", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err := reg.Formula(ctx, "hello")
		require.True(t, errors.Is(err, ErrRegistry))
		require.True(t, errors.Is(err, context.Canceled))

		var rerr *RegistryError
		require.True(t, errors.As(err, &rerr))
		require.Contains(t, rerr.URL, "/api/formula/hello.json")

		_, err = reg.Download(ctx, srv.URL+"/files/blob", 100)
		require.True(t, errors.Is(err, context.Canceled))
	})

	n.Meow()
}
