// Package poll wraps host pollables and multiplexes readiness across them.
package poll

import (
	"context"
	"time"

	"github.com/wippyai/wasi-hostbridge/errors"
	"github.com/wippyai/wasi-hostbridge/host"
	"github.com/wippyai/wasi-hostbridge/resource"
)

// NoTimeout makes Select wait until a handle is ready or ctx ends.
const NoTimeout time.Duration = -1

// Host is what pollables need from the host.
type Host interface {
	host.Poll
	host.Clocks
}

// Pollable owns one host pollable handle. It is always owned by the entity
// that subscribed it and closed when that entity closes.
type Pollable struct {
	h   host.Poll
	ref *resource.Ref[Pollable]
}

// New takes ownership of handle.
func New(h host.Poll, handle host.Handle) *Pollable {
	return &Pollable{h: h, ref: resource.Own[Pollable](handle)}
}

// Immediate returns a synthetic pollable that is always ready, so immediate
// work can take part in the same Select as real pollables.
func Immediate(h Host) *Pollable {
	return New(h, h.SubscribeDuration(0))
}

// Handle borrows the host handle.
func (p *Pollable) Handle() host.Handle {
	return p.ref.Borrow()
}

// Valid reports whether the pollable has not been closed.
func (p *Pollable) Valid() bool {
	return p.ref.Valid()
}

// Ready reports readiness without blocking.
func (p *Pollable) Ready() bool {
	return p.h.PollableReady(p.ref.Borrow())
}

// Block waits until the pollable is ready or ctx ends.
func (p *Pollable) Block(ctx context.Context) error {
	if err := p.h.PollableBlock(ctx, p.ref.Borrow()); err != nil {
		return errors.HostCall("pollable.block", err)
	}
	return nil
}

// Close drops the pollable. Closing twice is a contract violation.
func (p *Pollable) Close() {
	p.h.DropPollable(p.ref.Take())
}

func (p *Pollable) String() string {
	return p.ref.String()
}

// Select blocks until one of handles is ready and returns the index of the
// first ready one. With timeout >= 0 it gives up after timeout and returns
// an error of kind timeout. A ready handle wins over an expired timer.
func Select(ctx context.Context, h Host, handles []host.Handle, timeout time.Duration) (int, error) {
	if len(handles) == 0 && timeout < 0 {
		return -1, errors.InvalidArgument(errors.PhasePoll, "select", "no handles and no timeout")
	}

	list := handles
	if timeout >= 0 {
		timer := h.SubscribeDuration(uint64(timeout))
		defer h.DropPollable(timer)
		list = make([]host.Handle, len(handles), len(handles)+1)
		copy(list, handles)
		list = append(list, timer)
	}

	ready, err := h.Poll(ctx, list)
	if err != nil {
		return -1, errors.HostCall("poll", err)
	}
	if len(ready) == 0 {
		return -1, errors.New(errors.PhasePoll, errors.KindGeneric).Op("poll").Detail("host returned no ready handle").Build()
	}
	idx := int(ready[0])
	if idx == len(handles) {
		return -1, errors.Timeout(errors.PhasePoll, "select")
	}
	return idx, nil
}
