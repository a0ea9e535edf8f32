package http

import (
	"context"

	"github.com/wippyai/wasi-hostbridge/errors"
	"github.com/wippyai/wasi-hostbridge/host"
	"github.com/wippyai/wasi-hostbridge/internal/invariant"
	"github.com/wippyai/wasi-hostbridge/poll"
	"github.com/wippyai/wasi-hostbridge/resource"
	"github.com/wippyai/wasi-hostbridge/scheduler"
)

// FutureIncomingResponse is the pending result of OutgoingRequest.Send. It
// resolves exactly once, to a response or an error.
type FutureIncomingResponse struct {
	h        Host
	ref      *resource.Ref[FutureIncomingResponse]
	pollable *poll.Pollable
	resolved bool
}

func newFutureIncomingResponse(h Host, handle host.Handle) *FutureIncomingResponse {
	return &FutureIncomingResponse{h: h, ref: resource.Own[FutureIncomingResponse](handle)}
}

// MaybeResponse returns the outcome if it is available. ready is false
// while the request is in flight. Polling again after the future resolved
// is a contract violation.
func (f *FutureIncomingResponse) MaybeResponse() (resp *IncomingResponse, ready bool, err error) {
	invariant.Assert(!f.resolved, "poll of resolved future response")
	handle, ready, err := f.h.FutureIncomingResponseGet(f.ref.Borrow())
	if !ready {
		if err != nil {
			return nil, false, hostErr("future-incoming-response.get", err)
		}
		return nil, false, nil
	}
	f.resolved = true
	if err != nil {
		return nil, true, hostErr("future-incoming-response.get", err)
	}
	return newIncomingResponse(f.h, handle), true, nil
}

// Resolved reports whether MaybeResponse has returned the outcome.
func (f *FutureIncomingResponse) Resolved() bool {
	return f.resolved
}

// AsyncHandle returns a pollable that is ready once the future resolves.
// The pollable is owned by the future.
func (f *FutureIncomingResponse) AsyncHandle() (host.Handle, error) {
	if f.pollable == nil {
		p := f.h.FutureIncomingResponseSubscribe(f.ref.Borrow())
		if p == host.Invalid {
			return host.Invalid, errors.InvalidArgument(errors.PhaseRequest, "future-incoming-response.subscribe", "future rejected subscription")
		}
		f.pollable = poll.New(f.h, p)
	}
	return f.pollable.Handle(), nil
}

// Await queues a task that waits for the future and passes the outcome to
// cb. Exactly one of resp and err is set.
func (f *FutureIncomingResponse) Await(s *scheduler.Scheduler, cb func(resp *IncomingResponse, err error) error) error {
	p, err := f.AsyncHandle()
	if err != nil {
		return err
	}
	s.Enqueue(&awaitTask{future: f, pollable: p, cb: cb})
	return nil
}

// Close drops the pollable and the future.
func (f *FutureIncomingResponse) Close() {
	if f.pollable != nil {
		f.pollable.Close()
		f.pollable = nil
	}
	f.h.DropFutureIncomingResponse(f.ref.Take())
}

type awaitTask struct {
	future   *FutureIncomingResponse
	pollable host.Handle
	cb       func(*IncomingResponse, error) error
}

func (t *awaitTask) ID() host.Handle { return t.pollable }

func (t *awaitTask) Run(_ context.Context, s *scheduler.Scheduler) error {
	resp, ready, err := t.future.MaybeResponse()
	if !ready && err == nil {
		s.Enqueue(t)
		return nil
	}
	return t.cb(resp, err)
}

// Cancel leaves the future pending; the caller still owns and closes it.
func (t *awaitTask) Cancel(*scheduler.Scheduler) error {
	return nil
}
