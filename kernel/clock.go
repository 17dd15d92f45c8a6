package kernel

import (
	"context"
	"sync"
	"time"

	"github.com/evanphx/kernelino/log"
)

// Clock is the tick source shared by a process lineage. It only ever moves
// forward, once per period, until Stop is called.
type Clock struct {
	mu    sync.RWMutex
	ticks uint64

	period time.Duration
	start  time.Time

	cancel context.CancelFunc
	done   chan struct{}
}

func NewClock(period time.Duration) *Clock {
	return &Clock{
		period: period,
		done:   make(chan struct{}),
	}
}

func (c *Clock) Start(ctx context.Context) {
	ctx, c.cancel = context.WithCancel(ctx)
	c.start = time.Now()

	go c.run(ctx)
}

func (c *Clock) run(ctx context.Context) {
	defer close(c.done)

	t := time.NewTicker(c.period)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			log.L.Trace("clock-stopped", "ticks", c.Ticks())
			return
		case <-t.C:
			c.mu.Lock()
			c.ticks++
			c.mu.Unlock()
		}
	}
}

// Ticks takes a snapshot of the counter.
func (c *Clock) Ticks() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.ticks
}

func (c *Clock) Uptime() time.Duration {
	return time.Since(c.start)
}

// Stop cancels the ticker goroutine and waits for it to exit. Calling Stop on
// a clock that was never started is a no-op.
func (c *Clock) Stop() {
	if c.cancel == nil {
		return
	}

	c.cancel()
	<-c.done
}
