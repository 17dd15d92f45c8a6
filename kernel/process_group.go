package kernel

import (
	"context"
	"sync"

	"github.com/evanphx/kernelino/log"
	"github.com/evanphx/kernelino/pkg/waiter"
)

// ProcessGroup records the children a process started so they can be
// monitored and waited on. Exited children stay in the list.
type ProcessGroup struct {
	mu sync.RWMutex

	processes []*Process

	events waiter.Waiter
}

func NewProcessGroup() *ProcessGroup {
	return &ProcessGroup{}
}

func (pg *ProcessGroup) Add(p *Process) {
	pg.mu.Lock()
	defer pg.mu.Unlock()

	pg.processes = append(pg.processes, p)
}

func (pg *ProcessGroup) Processes() []*Process {
	pg.mu.RLock()
	defer pg.mu.RUnlock()

	out := make([]*Process, len(pg.processes))
	copy(out, pg.processes)

	return out
}

const (
	_ waiter.EventType = iota
	ProcessExitted
)

func (pg *ProcessGroup) live() int {
	pg.mu.RLock()
	defer pg.mu.RUnlock()

	var n int

	for _, p := range pg.processes {
		if p.Status() != Dead {
			n++
		}
	}

	return n
}

// WaitAll blocks until no recorded process is still alive.
func (pg *ProcessGroup) WaitAll(ctx context.Context) error {
	return pg.waitUntil(ctx, func() bool {
		n := pg.live()
		if n > 0 {
			log.L.Trace("process-waiting-children", "live", n)
		}

		return n == 0
	})
}

func (pg *ProcessGroup) waitUntil(ctx context.Context, done func() bool) error {
	c := make(chan struct{}, 1)
	ev := pg.events.RegisterChannel(ProcessExitted, c)
	defer pg.events.Unregister(ev)

	for {
		if done() {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c:
			// ok, try the loop again
		}
	}
}

func (pg *ProcessGroup) ProcessExitted(p *Process) {
	log.L.Trace("process-exitted", "pid", p.Pid)
	pg.events.Notify(ProcessExitted)
}
