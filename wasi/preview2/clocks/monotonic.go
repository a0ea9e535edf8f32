package clocks

import (
	"github.com/wippyai/wasi-hostbridge/host"
	"github.com/wippyai/wasi-hostbridge/wasi/preview2"
)

// MonotonicClockHost implements wasi:clocks/monotonic-clock over the
// environment's clock.
type MonotonicClockHost struct {
	resources *preview2.ResourceTable
	clock     *preview2.Clock
}

func NewMonotonicClockHost(w *preview2.WASI) *MonotonicClockHost {
	return &MonotonicClockHost{
		resources: w.Resources(),
		clock:     w.Clock(),
	}
}

func (h *MonotonicClockHost) Namespace() string {
	return "wasi:clocks/monotonic-clock@0.2.0"
}

func (h *MonotonicClockHost) MonotonicNow() uint64 {
	return h.clock.Now()
}

func (h *MonotonicClockHost) MonotonicResolution() uint64 {
	return h.clock.Resolution()
}

// SubscribeInstant returns a pollable ready once the clock reaches when.
func (h *MonotonicClockHost) SubscribeInstant(when uint64) host.Handle {
	return h.resources.Add(preview2.NewTimerPollable(h.clock, when))
}

// SubscribeDuration returns a pollable ready ns nanoseconds from now. A
// zero duration is ready immediately.
func (h *MonotonicClockHost) SubscribeDuration(ns uint64) host.Handle {
	return h.resources.Add(preview2.NewTimerPollable(h.clock, h.clock.Now()+ns))
}
