package kernel

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/evanphx/kernelino/config"
	"github.com/stretchr/testify/require"
	"github.com/vektra/neko"
)

func newTestKernel(t *testing.T) *Kernel {
	cfg := config.Default()
	cfg.MemoryBytes = 64 * 4096
	cfg.TickPeriod = config.Duration(5 * time.Millisecond)
	cfg.MonitorPeriod = config.Duration(time.Millisecond)

	k, err := NewKernel(cfg)
	require.NoError(t, err)

	t.Cleanup(k.Shutdown)

	return k
}

type fakeTerm struct {
	mu       sync.Mutex
	keys     []byte
	raw      bool
	polls    int
	restores int
}

func (f *fakeTerm) MakeRaw() (func() error, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.raw {
		return nil, errors.New("already raw")
	}

	f.raw = true

	return func() error {
		f.mu.Lock()
		defer f.mu.Unlock()

		f.raw = false
		f.restores++
		return nil
	}, nil
}

func (f *fakeTerm) PollKey(timeout time.Duration) (byte, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.polls++

	if len(f.keys) == 0 {
		return 0, false, nil
	}

	k := f.keys[0]
	f.keys = f.keys[1:]

	return k, true, nil
}

func TestProcess(t *testing.T) {
	n := neko.Modern(t)

	n.It("hands out increasing pids that are never reused", func(t *testing.T) {
		k := newTestKernel(t)

		root := k.Init()

		a, err := root.Fork()
		require.NoError(t, err)

		a.Exit(nil)

		b, err := root.Fork()
		require.NoError(t, err)

		require.Greater(t, a.Pid, root.Pid)
		require.Greater(t, b.Pid, a.Pid)

		_, ok := k.Lookup(a.Pid)
		require.False(t, ok)

		_, ok = k.Lookup(b.Pid)
		require.True(t, ok)
	})

	n.It("shares memory with forked identities", func(t *testing.T) {
		k := newTestKernel(t)

		child, err := k.Init().Fork()
		require.NoError(t, err)

		require.Same(t, k.Memory(), child.Mem)
		require.Same(t, k.Init(), child.Parent())
		require.Empty(t, k.Init().Children())
	})

	n.It("executes synchronously in a forked identity", func(t *testing.T) {
		k := newTestKernel(t)

		root := k.Init()

		var seen *Process

		err := root.Execute(func(p *Process) error {
			seen = p
			require.Equal(t, Running, p.Status())

			_, _, err := p.Mem.AllocatePage()
			return err
		})
		require.NoError(t, err)

		require.NotNil(t, seen)
		require.NotEqual(t, root.Pid, seen.Pid)
		require.Equal(t, Dead, seen.Status())
		require.Equal(t, 1, k.Memory().InUseFrames())

		boom := errors.New("boom")
		err = root.Execute(func(p *Process) error { return boom })
		require.Equal(t, boom, err)
	})

	n.It("records children started on their own goroutine", func(t *testing.T) {
		k := newTestKernel(t)

		root := k.Init()

		release := make(chan struct{})

		child, err := root.ExecuteChild(context.Background(), "worker", func(ctx context.Context, p *Process) error {
			<-release
			return nil
		})
		require.NoError(t, err)

		require.Equal(t, Running, child.Status())
		require.Equal(t, []*Process{child}, root.Children())

		close(release)

		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()

		require.NoError(t, root.WaitChildren(ctx))
		require.Equal(t, Dead, child.Status())
		require.NoError(t, child.ExitErr())

		// exited children remain visible to the monitor
		require.Len(t, root.Children(), 1)
	})

	n.It("interrupts children through their context", func(t *testing.T) {
		k := newTestKernel(t)

		root := k.Init()

		var (
			self  *Process
			found bool
		)

		child, err := root.ExecuteChild(context.Background(), "sleeper", func(ctx context.Context, p *Process) error {
			self, found = GetProcess(ctx)

			<-ctx.Done()
			return ctx.Err()
		})
		require.NoError(t, err)

		child.Interrupt()

		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()

		require.NoError(t, root.WaitChildren(ctx))
		require.Equal(t, context.Canceled, child.ExitErr())
		require.True(t, found)
		require.Same(t, child, self)
	})

	n.It("times out waiting on a stuck child", func(t *testing.T) {
		k := newTestKernel(t)

		child, err := k.Init().ExecuteChild(context.Background(), "stuck", func(ctx context.Context, p *Process) error {
			<-ctx.Done()
			return nil
		})
		require.NoError(t, err)

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()

		require.Equal(t, context.DeadlineExceeded, k.Init().WaitChildren(ctx))

		child.Interrupt()
	})

	n.It("counts ticks while alive and stops at exit", func(t *testing.T) {
		k := newTestKernel(t)

		child, err := k.Init().Fork()
		require.NoError(t, err)

		require.Eventually(t, func() bool {
			return child.Ticks() >= 2
		}, 2*time.Second, time.Millisecond)

		child.Exit(nil)
		frozen := child.Ticks()

		time.Sleep(20 * time.Millisecond)
		require.Equal(t, frozen, child.Ticks())
	})

	n.It("stops the clock on shutdown", func(t *testing.T) {
		k := newTestKernel(t)

		k.Shutdown()

		ticks := k.Clock().Ticks()
		time.Sleep(20 * time.Millisecond)
		require.Equal(t, ticks, k.Clock().Ticks())
		require.Equal(t, Dead, k.Init().Status())
	})

	n.Meow()
}

func TestShowProcesses(t *testing.T) {
	n := neko.Modern(t)

	n.It("redraws until the cancel key is pressed", func(t *testing.T) {
		k := newTestKernel(t)

		root := k.Init()

		_, err := root.ExecuteChild(context.Background(), "worker", func(ctx context.Context, p *Process) error {
			return nil
		})
		require.NoError(t, err)

		term := &fakeTerm{keys: []byte{'x', 'y', CancelKey}}

		var buf bytes.Buffer

		err = root.ShowProcesses(term, &buf)
		require.NoError(t, err)

		require.Equal(t, 3, term.polls)
		require.Equal(t, 3, term.restores)
		require.False(t, term.raw)

		out := buf.String()
		require.Equal(t, 3, strings.Count(out, "uptime"))
		require.Contains(t, out, "init")
		require.Contains(t, out, "worker")
	})

	n.It("stops on terminal errors", func(t *testing.T) {
		k := newTestKernel(t)

		term := &fakeTerm{raw: true}

		err := k.Init().ShowProcesses(term, &bytes.Buffer{})
		require.Error(t, err)
	})

	n.Meow()
}
