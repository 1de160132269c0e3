package core

import (
	"context"
	"runtime"
	"sync"
	"sync/atomic"
	"time"
)

// TransitionListener receives the edges of the master clock.
type TransitionListener interface {
	RisingEdge(wallClock uint64)
	FallingEdge(wallClock uint64)
}

// Clock is the master emulation clock. Each Tick advances the wall clock by
// one cycle, delivers the rising then the falling edge to every listener in
// registration order and finally dispatches due timers.
type Clock struct {
	mu        sync.Mutex
	listeners []TransitionListener
	timerList *Timer
	tickMu    sync.Mutex
	wallClock atomic.Uint64
}

// NewClock returns a clock at wall clock 0.
func NewClock() *Clock {
	return &Clock{}
}

// AddListener registers l for all future edges.
func (c *Clock) AddListener(l TransitionListener) {
	c.mu.Lock()
	c.listeners = append(c.listeners, l)
	c.mu.Unlock()
}

// WallClock returns the number of completed cycles.
func (c *Clock) WallClock() uint64 {
	return c.wallClock.Load()
}

// Tick runs one full clock cycle. Concurrent callers are serialized so that
// listeners observe edges in strict wall clock order.
func (c *Clock) Tick() uint64 {
	c.tickMu.Lock()
	defer c.tickMu.Unlock()

	c.mu.Lock()
	listeners := c.listeners
	c.mu.Unlock()

	now := c.wallClock.Load() + 1
	for _, l := range listeners {
		l.RisingEdge(now)
	}
	for _, l := range listeners {
		l.FallingEdge(now)
	}
	c.wallClock.Store(now)
	c.timerDispatch(now)
	return now
}

// Cycles runs n cycles back to back.
func (c *Clock) Cycles(n int) {
	for i := 0; i < n; i++ {
		c.Tick()
	}
}

// Run ticks the clock once per period until ctx is done. A zero period
// runs free, yielding the processor between cycles.
func (c *Clock) Run(ctx context.Context, period time.Duration) error {
	if period <= 0 {
		for {
			select {
			case <-ctx.Done():
				return nil
			default:
			}
			c.Tick()
			runtime.Gosched()
		}
	}

	ticker := time.NewTicker(period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			c.Tick()
		}
	}
}
