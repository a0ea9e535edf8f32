package io

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/wippyai/wasi-hostbridge/errors"
	"github.com/wippyai/wasi-hostbridge/host"
	"github.com/wippyai/wasi-hostbridge/wasi/preview2"
)

// PollHost implements wasi:io/poll. Blocking calls re-check readiness on
// the environment's clock every poll interval.
type PollHost struct {
	resources *preview2.ResourceTable
	clock     *preview2.Clock
	log       *zap.Logger
	interval  time.Duration
}

func NewPollHost(w *preview2.WASI) *PollHost {
	return &PollHost{
		resources: w.Resources(),
		clock:     w.Clock(),
		log:       w.Log(),
		interval:  w.PollInterval(),
	}
}

func (h *PollHost) Namespace() string {
	return "wasi:io/poll@0.2.0"
}

func (h *PollHost) pollable(p host.Handle) (preview2.Pollable, error) {
	r, ok := h.resources.Get(p)
	if !ok {
		return nil, errors.InvalidArgument(errors.PhasePoll, "poll", "unknown pollable handle")
	}
	pollable, ok := r.(preview2.Pollable)
	if !ok {
		return nil, errors.InvalidArgument(errors.PhasePoll, "poll", "handle is a "+r.Type().String()+", not a pollable")
	}
	return pollable, nil
}

// Poll blocks until at least one of the pollables is ready and returns the
// indices of every ready one.
func (h *PollHost) Poll(ctx context.Context, pollables []host.Handle) ([]uint32, error) {
	if len(pollables) == 0 {
		return nil, errors.InvalidArgument(errors.PhasePoll, "poll", "empty pollable list")
	}
	list := make([]preview2.Pollable, len(pollables))
	for i, handle := range pollables {
		p, err := h.pollable(handle)
		if err != nil {
			return nil, err
		}
		list[i] = p
	}

	for {
		var ready []uint32
		for i, p := range list {
			if p.Ready() {
				ready = append(ready, uint32(i))
			}
		}
		if len(ready) > 0 {
			return ready, nil
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		h.clock.Sleep(h.interval)
	}
}

func (h *PollHost) PollableReady(p host.Handle) bool {
	pollable, err := h.pollable(p)
	if err != nil {
		return false
	}
	return pollable.Ready()
}

func (h *PollHost) PollableBlock(ctx context.Context, p host.Handle) error {
	_, err := h.Poll(ctx, []host.Handle{p})
	return err
}

func (h *PollHost) DropPollable(p host.Handle) {
	if err := h.resources.Remove(p); err != nil {
		h.log.Warn("drop pollable", zap.Uint32("handle", uint32(p)), zap.Error(err))
	}
}
