package escrow

import (
	"sync"
	"time"
)

// Clock supplies the engine's notion of "now", in unix seconds. Injected so
// tests can advance time deterministically.
type Clock interface {
	Now() int64
}

// WallClock reads the local wall clock.
type WallClock struct{}

func (WallClock) Now() int64 { return time.Now().Unix() }

// ManualClock is a settable clock for tests.
type ManualClock struct {
	mu sync.Mutex
	t  int64
}

func NewManualClock(t int64) *ManualClock {
	return &ManualClock{t: t}
}

func (c *ManualClock) Now() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *ManualClock) Set(t int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = t
}

// Advance moves the clock forward by d seconds.
func (c *ManualClock) Advance(d int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t += d
}
