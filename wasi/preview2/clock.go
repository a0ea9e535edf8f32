package preview2

import (
	"time"

	"github.com/tetratelabs/wazero/sys"
)

// Clock is the monotonic time source behind clocks, timers and poll
// sleeps. It uses wazero's clock hook types so an embedder can share one
// clock between a wazero runtime and this host.
type Clock struct {
	nanotime   sys.Nanotime
	nanosleep  sys.Nanosleep
	resolution sys.ClockResolution
}

// NewClock builds a clock from explicit hooks.
func NewClock(nanotime sys.Nanotime, nanosleep sys.Nanosleep, resolution sys.ClockResolution) *Clock {
	return &Clock{nanotime: nanotime, nanosleep: nanosleep, resolution: resolution}
}

// SystemClock returns a clock backed by Go's monotonic time.
func SystemClock() *Clock {
	start := time.Now()
	return &Clock{
		nanotime: func() int64 {
			return int64(time.Since(start))
		},
		nanosleep: func(ns int64) {
			time.Sleep(time.Duration(ns))
		},
		resolution: 1,
	}
}

// Now returns nanoseconds since the clock's epoch.
func (c *Clock) Now() uint64 {
	return uint64(c.nanotime())
}

// Resolution returns the clock resolution in nanoseconds.
func (c *Clock) Resolution() uint64 {
	return uint64(c.resolution)
}

// Sleep blocks for d.
func (c *Clock) Sleep(d time.Duration) {
	if d > 0 {
		c.nanosleep(int64(d))
	}
}
