package kernel

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/evanphx/kernelino/log"
	"github.com/evanphx/kernelino/memory"
)

type prockey struct{}

func GetProcess(ctx context.Context) (*Process, bool) {
	if v := ctx.Value(prockey{}); v != nil {
		return v.(*Process), true
	}

	return nil, false
}

func SetProcess(ctx context.Context, p *Process) context.Context {
	return context.WithValue(ctx, prockey{}, p)
}

type ProcessStatus int

const (
	Init    ProcessStatus = 0
	Running ProcessStatus = 1
	Dead    ProcessStatus = 2
)

func (s ProcessStatus) String() string {
	switch s {
	case Init:
		return "created"
	case Running:
		return "running"
	case Dead:
		return "dead"
	default:
		return "unknown"
	}
}

type Process struct {
	Kernel *Kernel
	Pid    int
	Name   string

	// Mem is shared with the parent, never copied.
	Mem *memory.VMM

	parent   *Process
	children *ProcessGroup

	status    ProcessStatus
	startTick uint64
	endTick   uint64
	exitErr   error

	interruptFunc func()

	mu sync.Mutex
}

func (p *Process) Parent() *Process {
	return p.parent
}

func (p *Process) Status() ProcessStatus {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.status
}

// ExitErr is the error the process finished with, if any.
func (p *Process) ExitErr() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.exitErr
}

// Ticks is the number of clock ticks the process has been alive for.
func (p *Process) Ticks() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.status == Dead {
		return p.endTick - p.startTick
	}

	return p.Kernel.clock.Ticks() - p.startTick
}

// Children returns the processes started with ExecuteChild, oldest first.
func (p *Process) Children() []*Process {
	return p.children.Processes()
}

// Fork creates a new identity sharing p's memory. Nothing else is inherited.
func (p *Process) Fork() (*Process, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	child := &Process{
		Kernel:   p.Kernel,
		Name:     p.Name,
		parent:   p,
		Mem:      p.Mem,
		children: NewProcessGroup(),
	}

	p.Kernel.processes.AssignPid(child)

	child.startTick = p.Kernel.clock.Ticks()

	log.L.Trace("process-fork", "parent", p.Pid, "child", child.Pid)

	return child, nil
}

func (p *Process) setRunning() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.status = Running
}

// Execute runs fn against a freshly forked identity on the caller's
// goroutine and returns fn's error.
func (p *Process) Execute(fn func(*Process) error) error {
	child, err := p.Fork()
	if err != nil {
		return err
	}

	child.setRunning()

	err = fn(child)

	child.Exit(err)

	return err
}

// ExecuteChild runs fn on its own goroutine inside a forked identity that is
// recorded as a child of p. The context passed to fn is cancelled when the
// child is interrupted.
func (p *Process) ExecuteChild(ctx context.Context, name string, fn func(context.Context, *Process) error) (*Process, error) {
	child, err := p.Fork()
	if err != nil {
		return nil, err
	}

	if name != "" {
		child.Name = name
	}

	ctx, cancel := context.WithCancel(SetProcess(ctx, child))
	child.SetInterrupt(cancel)

	p.children.Add(child)

	child.setRunning()

	go func() {
		defer cancel()

		err := fn(ctx, child)
		if err != nil {
			log.L.Debug("process-child-error", "pid", child.Pid, "error", err)
		}

		child.Exit(err)
	}()

	return child, nil
}

// WaitChildren blocks until every recorded child has exited.
func (p *Process) WaitChildren(ctx context.Context) error {
	return p.children.WaitAll(ctx)
}

// Wait blocks until p, a process started with ExecuteChild, has exited and
// returns its exit error.
func (p *Process) Wait(ctx context.Context) error {
	if p.parent == nil {
		return nil
	}

	err := p.parent.children.waitUntil(ctx, func() bool {
		return p.Status() == Dead
	})
	if err != nil {
		return err
	}

	return p.ExitErr()
}

func (p *Process) Exit(err error) {
	p.mu.Lock()

	if p.status == Dead {
		p.mu.Unlock()
		return
	}

	p.exitErr = err
	p.status = Dead
	p.endTick = p.Kernel.clock.Ticks()

	p.mu.Unlock()

	log.L.Trace("process-exit", "pid", p.Pid, "error", err)

	p.Kernel.processes.RemoveProc(p)

	if p.parent != nil {
		p.parent.children.ProcessExitted(p)
	}
}

func (p *Process) Interrupt() {
	p.mu.Lock()
	f := p.interruptFunc
	p.mu.Unlock()

	if f != nil {
		f()
	}
}

func (p *Process) SetInterrupt(f func()) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.interruptFunc = f
}

// Pids are handed out from one process-wide counter and never reused.
var nextPid atomic.Int64

type ProcessManager struct {
	mu        sync.RWMutex
	processes map[int]*Process
}

func NewProcessManager() *ProcessManager {
	return &ProcessManager{
		processes: make(map[int]*Process),
	}
}

func (pm *ProcessManager) AssignPid(proc *Process) int {
	pid := int(nextPid.Add(1))

	pm.mu.Lock()
	defer pm.mu.Unlock()

	proc.Pid = pid
	pm.processes[pid] = proc

	return pid
}

func (pm *ProcessManager) Lookup(pid int) (*Process, bool) {
	pm.mu.RLock()
	defer pm.mu.RUnlock()

	p, ok := pm.processes[pid]
	return p, ok
}

// Live returns every process that has not exited yet.
func (pm *ProcessManager) Live() []*Process {
	pm.mu.RLock()
	defer pm.mu.RUnlock()

	out := make([]*Process, 0, len(pm.processes))
	for _, p := range pm.processes {
		out = append(out, p)
	}

	return out
}

func (pm *ProcessManager) RemoveProc(proc *Process) {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	delete(pm.processes, proc.Pid)
}
