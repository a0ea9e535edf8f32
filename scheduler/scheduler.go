// Package scheduler is a single-threaded cooperative task scheduler.
//
// Each pending task is identified by the pollable it is waiting on. A turn
// selects the first task whose pollable is ready, removes it from the
// queue and runs it. Tasks that have more work re-enqueue themselves from
// inside Run; a task that does not is finished. There is no priority and
// no fairness beyond the order the host reports readiness in.
package scheduler

import (
	"context"
	"slices"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/wippyai/wasi-hostbridge/errors"
	"github.com/wippyai/wasi-hostbridge/host"
	"github.com/wippyai/wasi-hostbridge/poll"
)

// Immediate is the identity of a task that can run on the next turn. It
// maps onto a synthetic always-ready pollable.
const Immediate host.Handle = ^host.Handle(0)

// Task is a unit of deferred work.
type Task interface {
	// ID returns the pollable the task is waiting on, or Immediate.
	ID() host.Handle
	// Run does as much work as possible. To continue later the task calls
	// s.Enqueue(itself) before returning.
	Run(ctx context.Context, s *Scheduler) error
	// Cancel abandons the task. Tasks that cannot be abandoned safely
	// raise a contract violation.
	Cancel(s *Scheduler) error
}

// Aborter is implemented by tasks that cannot be cancelled but can be
// abandoned when their owner gives up on them. Abort releases what the
// task holds without running its completion.
type Aborter interface {
	Abort(s *Scheduler) error
}

// Scheduler holds the pending tasks. It is not safe for concurrent use.
type Scheduler struct {
	host      poll.Host
	immediate *poll.Pollable
	log       *zap.Logger
	tasks     []Task
}

// New creates a scheduler polling through h.
func New(h poll.Host) *Scheduler {
	return &Scheduler{host: h, log: Logger()}
}

// Enqueue adds t to the pending set.
func (s *Scheduler) Enqueue(t Task) {
	s.tasks = append(s.tasks, t)
}

// Cancel removes a pending task and cancels it.
func (s *Scheduler) Cancel(t Task) error {
	i := slices.Index(s.tasks, t)
	if i < 0 {
		return errors.New(errors.PhaseScheduler, errors.KindNotFound).Op("cancel").Detail("task is not pending").Build()
	}
	s.tasks = slices.Delete(s.tasks, i, i+1)
	return t.Cancel(s)
}

// Pending returns the number of queued tasks.
func (s *Scheduler) Pending() int {
	return len(s.tasks)
}

// HasPending reports whether any task is queued.
func (s *Scheduler) HasPending() bool {
	return len(s.tasks) > 0
}

func (s *Scheduler) immediateHandle() host.Handle {
	if s.immediate == nil {
		s.immediate = poll.Immediate(s.host)
	}
	return s.immediate.Handle()
}

// Step runs at most one task. It waits up to timeout for a task to become
// ready (poll.NoTimeout waits indefinitely) and reports whether a task
// ran. A task whose Run fails is dropped and its error returned.
func (s *Scheduler) Step(ctx context.Context, timeout time.Duration) (bool, error) {
	if len(s.tasks) == 0 {
		return false, nil
	}

	handles := make([]host.Handle, len(s.tasks))
	for i, t := range s.tasks {
		id := t.ID()
		if id == Immediate {
			id = s.immediateHandle()
		}
		handles[i] = id
	}

	idx, err := poll.Select(ctx, s.host, handles, timeout)
	if errors.IsKind(err, errors.KindTimeout) {
		return false, nil
	}
	if err != nil {
		return false, errors.Wrap(errors.PhaseScheduler, errors.KindGeneric, err, "select")
	}

	t := s.tasks[idx]
	s.tasks = slices.Delete(s.tasks, idx, idx+1)
	if ce := s.log.Check(zap.DebugLevel, "run task"); ce != nil {
		ce.Write(zap.Int("index", idx), zap.Uint32("pollable", uint32(handles[idx])), zap.Int("pending", len(s.tasks)))
	}
	if err := t.Run(ctx, s); err != nil {
		s.log.Debug("task failed", zap.Error(err))
		kind := errors.KindOf(err)
		if kind == "" {
			kind = errors.KindGeneric
		}
		return true, errors.Wrap(errors.PhaseScheduler, kind, err, "task run")
	}
	return true, nil
}

// Run drives tasks until none is pending or ctx ends. Task failures do
// not stop the loop; they are combined into the returned error.
func (s *Scheduler) Run(ctx context.Context) error {
	var errs error
	for s.HasPending() {
		if err := ctx.Err(); err != nil {
			return multierr.Append(errs, err)
		}
		ran, err := s.Step(ctx, poll.NoTimeout)
		if err != nil {
			errs = multierr.Append(errs, err)
			if !ran {
				return errs
			}
		}
	}
	return errs
}

// Abort drops every pending task. Tasks implementing Aborter are aborted;
// the rest are cancelled.
func (s *Scheduler) Abort() error {
	var errs error
	tasks := s.tasks
	s.tasks = nil
	for _, t := range tasks {
		if a, ok := t.(Aborter); ok {
			errs = multierr.Append(errs, a.Abort(s))
			continue
		}
		errs = multierr.Append(errs, t.Cancel(s))
	}
	if n := len(tasks); n > 0 {
		s.log.Debug("aborted pending tasks", zap.Int("count", n))
	}
	return errs
}

// Close cancels every pending task and drops the immediate pollable.
func (s *Scheduler) Close() error {
	var errs error
	tasks := s.tasks
	s.tasks = nil
	for _, t := range tasks {
		errs = multierr.Append(errs, t.Cancel(s))
	}
	if s.immediate != nil {
		s.immediate.Close()
		s.immediate = nil
	}
	return errs
}
