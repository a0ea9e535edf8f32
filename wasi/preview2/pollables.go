package preview2

import (
	"sync/atomic"
)

// Pollable is the interface for async-ready resources that can be polled.
// Blocking is done by the poll host, which re-checks Ready between sleeps.
type Pollable interface {
	Resource
	// Ready returns true if the resource is ready for I/O.
	Ready() bool
}

// PollableResource is a pollable whose readiness is set by hand.
type PollableResource struct {
	ready atomic.Bool
}

func (p *PollableResource) Type() ResourceType { return ResourcePollable }
func (p *PollableResource) Drop()              {}
func (p *PollableResource) Ready() bool        { return p.ready.Load() }
func (p *PollableResource) SetReady(r bool)    { p.ready.Store(r) }

// FuncPollable reports the readiness of whatever it was subscribed to.
type FuncPollable struct {
	ready func() bool
}

// NewFuncPollable creates a pollable backed by a readiness check.
func NewFuncPollable(ready func() bool) *FuncPollable {
	return &FuncPollable{ready: ready}
}

func (p *FuncPollable) Type() ResourceType { return ResourcePollable }
func (p *FuncPollable) Drop()              {}
func (p *FuncPollable) Ready() bool        { return p.ready() }

// TimerPollable becomes ready once its clock reaches the deadline.
type TimerPollable struct {
	clock    *Clock
	deadline uint64
}

// NewTimerPollable creates a pollable ready at the given clock instant.
func NewTimerPollable(clock *Clock, deadline uint64) *TimerPollable {
	return &TimerPollable{clock: clock, deadline: deadline}
}

func (p *TimerPollable) Type() ResourceType { return ResourcePollable }
func (p *TimerPollable) Drop()              {}
func (p *TimerPollable) Ready() bool        { return p.clock.Now() >= p.deadline }

// Deadline returns the clock instant at which the timer fires.
func (p *TimerPollable) Deadline() uint64 { return p.deadline }
