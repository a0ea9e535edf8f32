// Package http is the host-facing HTTP layer of the bridge.
//
// Every type here wraps one or more host resource handles. Headers, bodies,
// requests, responses and futures own their handles and release them on
// Close; sub-objects (headers, bodies) are created lazily on first access
// and cached for the lifetime of their parent. Body transfers that must
// wait on the host are expressed as scheduler tasks (WriteAll, Append,
// Await).
package http

import (
	"github.com/wippyai/wasi-hostbridge/errors"
	"github.com/wippyai/wasi-hostbridge/host"
)

// Host is the slice of the host the HTTP layer calls into.
type Host interface {
	host.Poll
	host.Streams
	host.Fields
	host.HTTP
	host.Clocks
}

// Completion is invoked once when a body task finishes. err is nil on
// success. Its return value is reported by the scheduler turn that ran the
// task.
type Completion func(err error) error

func hostErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return errors.HostCall(op, err)
}

func complete(cb Completion, err error) error {
	if cb == nil {
		return err
	}
	return cb(err)
}
