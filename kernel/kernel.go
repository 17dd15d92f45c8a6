package kernel

import (
	"context"
	"time"

	"github.com/evanphx/kernelino/config"
	"github.com/evanphx/kernelino/log"
	"github.com/evanphx/kernelino/memory"
)

type Kernel struct {
	mem   *memory.VMM
	clock *Clock

	processes *ProcessManager
	init      *Process

	monitorPeriod time.Duration
}

// NewKernel builds the shared VMM, starts the tick clock and creates the
// init process that every other identity is forked from.
func NewKernel(cfg *config.Config) (*Kernel, error) {
	if cfg == nil {
		cfg = config.Default()
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	k := &Kernel{
		mem:           memory.NewVMM(cfg.MemoryBytes),
		clock:         NewClock(time.Duration(cfg.TickPeriod)),
		processes:     NewProcessManager(),
		monitorPeriod: time.Duration(cfg.MonitorPeriod),
	}

	k.clock.Start(context.Background())

	k.init = k.InitProcess()

	return k, nil
}

func (k *Kernel) Memory() *memory.VMM {
	return k.mem
}

func (k *Kernel) Clock() *Clock {
	return k.clock
}

func (k *Kernel) Init() *Process {
	return k.init
}

func (k *Kernel) Lookup(pid int) (*Process, bool) {
	return k.processes.Lookup(pid)
}

// Shutdown interrupts every live process, retires init and stops the clock.
func (k *Kernel) Shutdown() {
	for _, p := range k.processes.Live() {
		if p != k.init {
			p.Interrupt()
		}
	}

	if k.init.Status() != Dead {
		k.init.Exit(nil)
	}

	k.clock.Stop()

	log.L.Debug("kernel-shutdown", "ticks", k.clock.Ticks())
}
