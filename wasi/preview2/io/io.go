package io

import "github.com/wippyai/wasi-hostbridge/wasi/preview2"

// Host aggregates all IO hosts for convenience.
type Host struct {
	*PollHost
	*StreamsHost
}

// NewHost creates all IO hosts
func NewHost(w *preview2.WASI) *Host {
	return &Host{
		PollHost:    NewPollHost(w),
		StreamsHost: NewStreamsHost(w),
	}
}
