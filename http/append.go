package http

import (
	"context"

	"github.com/wippyai/wasi-hostbridge/host"
	"github.com/wippyai/wasi-hostbridge/internal/invariant"
	"github.com/wippyai/wasi-hostbridge/scheduler"
)

type appendState uint8

const (
	appendBlockedOnBoth appendState = iota
	appendBlockedOnIncoming
	appendBlockedOnOutgoing
	appendReady
	appendDone
)

func (s appendState) String() string {
	switch s {
	case appendBlockedOnBoth:
		return "blocked-on-both"
	case appendBlockedOnIncoming:
		return "blocked-on-incoming"
	case appendBlockedOnOutgoing:
		return "blocked-on-outgoing"
	case appendReady:
		return "ready"
	case appendDone:
		return "done"
	}
	return "unknown"
}

type appendInputKind uint8

const (
	appendStart       appendInputKind = iota // task picked by the scheduler
	appendProbed                             // zero-length read finished
	appendCapacity                           // outgoing capacity reported
	appendTransferred                        // one read/write round finished
)

type appendInput struct {
	kind appendInputKind
	n    uint64
	done bool
}

type appendAction uint8

const (
	appendProbe appendAction = iota
	appendCheckCapacity
	appendTransfer
	appendWaitIncoming
	appendWaitOutgoing
	appendFinish
)

// stepAppend is the append transition function. It never touches the
// host; the task performs the returned action and feeds the outcome back.
func stepAppend(state appendState, in appendInput) (appendState, appendAction) {
	invariant.Assert(state != appendDone, "append task stepped after completion")

	switch in.kind {
	case appendStart:
		switch state {
		case appendBlockedOnBoth, appendBlockedOnIncoming:
			return state, appendProbe
		case appendBlockedOnOutgoing:
			return state, appendCheckCapacity
		}
	case appendProbed:
		if in.done {
			return appendDone, appendFinish
		}
		return appendBlockedOnOutgoing, appendCheckCapacity
	case appendCapacity:
		if in.n > 0 {
			return appendReady, appendTransfer
		}
		return appendBlockedOnOutgoing, appendWaitOutgoing
	case appendTransferred:
		if in.done {
			return appendDone, appendFinish
		}
		if in.n == 0 {
			return appendBlockedOnIncoming, appendWaitIncoming
		}
		return appendReady, appendCheckCapacity
	}
	invariant.Unreachable("append task: input %d in state %s", in.kind, state)
	return state, appendFinish
}

// appendTask streams an incoming body into an outgoing body, moving at
// most the reported outgoing capacity per round.
type appendTask struct {
	in          *IncomingBody
	out         *OutgoingBody
	inPollable  host.Handle
	outPollable host.Handle
	cb          Completion
	state       appendState
	capacity    uint64
}

func newAppendTask(in *IncomingBody, out *OutgoingBody, inPollable, outPollable host.Handle, cb Completion) *appendTask {
	return &appendTask{
		in:          in,
		out:         out,
		inPollable:  inPollable,
		outPollable: outPollable,
		cb:          cb,
		state:       appendBlockedOnBoth,
	}
}

// ID is the pollable of whichever side the task is waiting on.
func (t *appendTask) ID() host.Handle {
	switch t.state {
	case appendBlockedOnBoth, appendBlockedOnIncoming:
		return t.inPollable
	case appendBlockedOnOutgoing:
		return t.outPollable
	}
	invariant.Unreachable("append task queued in state %s", t.state)
	return host.Invalid
}

func (t *appendTask) Run(ctx context.Context, s *scheduler.Scheduler) error {
	state, action := stepAppend(t.state, appendInput{kind: appendStart})
	for {
		t.state = state
		switch action {
		case appendProbe:
			r, err := t.in.Read(ctx, 0, false)
			if err != nil {
				return t.fail(err)
			}
			state, action = stepAppend(t.state, appendInput{kind: appendProbed, done: r.Done})

		case appendCheckCapacity:
			n, err := t.out.Capacity()
			if err != nil {
				return t.fail(err)
			}
			t.capacity = n
			state, action = stepAppend(t.state, appendInput{kind: appendCapacity, n: n})

		case appendTransfer:
			r, err := t.in.Read(ctx, t.capacity, false)
			if err != nil {
				return t.fail(err)
			}
			if err := t.out.writeChunk(r.Bytes); err != nil {
				return t.fail(err)
			}
			state, action = stepAppend(t.state, appendInput{kind: appendTransferred, n: uint64(len(r.Bytes)), done: r.Done})

		case appendWaitIncoming, appendWaitOutgoing:
			s.Enqueue(t)
			return nil

		case appendFinish:
			return complete(t.cb, nil)
		}
	}
}

func (t *appendTask) fail(err error) error {
	t.state = appendDone
	return complete(t.cb, err)
}

func (t *appendTask) Cancel(*scheduler.Scheduler) error {
	invariant.Unreachable("append task cannot be cancelled")
	return nil
}

// Abort closes the incoming body and drops the outgoing one unfinished.
// The completion does not run.
func (t *appendTask) Abort(*scheduler.Scheduler) error {
	t.state = appendDone
	var err error
	if t.in.ref.Valid() {
		err = t.in.Close()
	}
	t.out.abort()
	return err
}

// writeAllTask writes an owned buffer from an offset, yielding whenever
// the outgoing body reports no capacity.
type writeAllTask struct {
	body     *OutgoingBody
	pollable host.Handle
	buf      []byte
	offset   int
	cb       Completion
}

func (t *writeAllTask) ID() host.Handle { return t.pollable }

func (t *writeAllTask) Run(_ context.Context, s *scheduler.Scheduler) error {
	for t.offset < len(t.buf) {
		n, err := t.body.Capacity()
		if err != nil {
			return complete(t.cb, err)
		}
		if n == 0 {
			s.Enqueue(t)
			return nil
		}
		written, err := t.body.Write(t.buf[t.offset:])
		if err != nil {
			return complete(t.cb, err)
		}
		t.offset += written
	}
	return complete(t.cb, nil)
}

func (t *writeAllTask) Cancel(*scheduler.Scheduler) error {
	invariant.Unreachable("write-all task cannot be cancelled")
	return nil
}

func (t *writeAllTask) Abort(*scheduler.Scheduler) error {
	t.body.abort()
	return nil
}
