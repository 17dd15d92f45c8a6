package kernel

import "github.com/evanphx/kernelino/log"

// InitProcess creates the root identity of the kernel. It owns the shared
// VMM handle and is already running when returned.
func (k *Kernel) InitProcess() *Process {
	proc := &Process{
		Kernel:   k,
		Name:     "init",
		Mem:      k.mem,
		children: NewProcessGroup(),
	}

	k.processes.AssignPid(proc)

	proc.startTick = k.clock.Ticks()
	proc.status = Running

	log.L.Trace("process-init", "pid", proc.Pid)

	return proc
}
