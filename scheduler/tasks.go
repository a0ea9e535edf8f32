package scheduler

import (
	"context"
	"time"

	"github.com/wippyai/wasi-hostbridge/host"
	"github.com/wippyai/wasi-hostbridge/poll"
)

// Callback is a one-shot continuation run by the scheduler.
type Callback func(ctx context.Context) error

type callbackTask struct {
	id    host.Handle
	owned *poll.Pollable
	fn    Callback
}

func (t *callbackTask) ID() host.Handle { return t.id }

func (t *callbackTask) Run(ctx context.Context, _ *Scheduler) error {
	t.release()
	return t.fn(ctx)
}

func (t *callbackTask) Cancel(*Scheduler) error {
	t.release()
	return nil
}

func (t *callbackTask) release() {
	if t.owned != nil {
		t.owned.Close()
		t.owned = nil
	}
}

// Timer is a pending After callback.
type Timer struct {
	s    *Scheduler
	task *callbackTask
	done bool
}

// Stop cancels the callback. It reports false if the callback already ran
// or was stopped.
func (t *Timer) Stop() bool {
	if t.done {
		return false
	}
	t.done = true
	return t.s.Cancel(t.task) == nil
}

// After runs fn once d has elapsed on the host's monotonic clock.
func (s *Scheduler) After(d time.Duration, fn Callback) *Timer {
	if d < 0 {
		d = 0
	}
	p := poll.New(s.host, s.host.SubscribeDuration(uint64(d)))
	timer := &Timer{s: s}
	timer.task = &callbackTask{
		id:    p.Handle(),
		owned: p,
		fn: func(ctx context.Context) error {
			timer.done = true
			return fn(ctx)
		},
	}
	s.Enqueue(timer.task)
	return timer
}

// OnReady runs fn once the borrowed pollable p is ready. The caller keeps
// ownership of p and must keep it alive until fn runs.
func (s *Scheduler) OnReady(p host.Handle, fn Callback) Task {
	t := &callbackTask{id: p, fn: fn}
	s.Enqueue(t)
	return t
}

// Defer runs fn on a later turn.
func (s *Scheduler) Defer(fn Callback) Task {
	t := &callbackTask{id: Immediate, fn: fn}
	s.Enqueue(t)
	return t
}
