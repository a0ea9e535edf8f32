package http

import "github.com/wippyai/wasi-hostbridge/wasi/preview2"

// Host aggregates the wasi:http hosts over one environment.
type Host struct {
	*TypesHost
	*OutgoingHandlerHost
}

func NewHost(w *preview2.WASI) *Host {
	types := NewTypesHost(w)
	return &Host{
		TypesHost:           types,
		OutgoingHandlerHost: NewOutgoingHandlerHost(types),
	}
}
