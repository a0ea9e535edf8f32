// Package world assembles the preview2 interface hosts into a single
// host.Host for the bridge core.
package world

import (
	"go.uber.org/zap"

	"github.com/wippyai/wasi-hostbridge/host"
	"github.com/wippyai/wasi-hostbridge/wasi/preview2"
	"github.com/wippyai/wasi-hostbridge/wasi/preview2/cli"
	"github.com/wippyai/wasi-hostbridge/wasi/preview2/clocks"
	"github.com/wippyai/wasi-hostbridge/wasi/preview2/http"
	"github.com/wippyai/wasi-hostbridge/wasi/preview2/io"
	"github.com/wippyai/wasi-hostbridge/wasi/preview2/random"
	"github.com/wippyai/wasi-hostbridge/wasi/preview2/sockets"
)

// Host is every interface the bridge imports, over one environment.
type Host struct {
	*io.PollHost
	*io.StreamsHost
	*http.TypesHost
	*http.OutgoingHandlerHost
	*sockets.InstanceNetworkHost
	*sockets.TCPCreateSocketHost
	*sockets.TCPHost
	*clocks.MonotonicClockHost
	*cli.EnvironmentHost
	*random.SecureRandomHost

	wasi *preview2.WASI
}

var _ host.Host = (*Host)(nil)

type namespaced interface {
	Namespace() string
}

// New wires all hosts to w.
func New(w *preview2.WASI) *Host {
	ioHost := io.NewHost(w)
	httpHost := http.NewHost(w)
	socketHost := sockets.NewHost(w)

	h := &Host{
		PollHost:            ioHost.PollHost,
		StreamsHost:         ioHost.StreamsHost,
		TypesHost:           httpHost.TypesHost,
		OutgoingHandlerHost: httpHost.OutgoingHandlerHost,
		InstanceNetworkHost: socketHost.InstanceNetworkHost,
		TCPCreateSocketHost: socketHost.TCPCreateSocketHost,
		TCPHost:             socketHost.TCPHost,
		MonotonicClockHost:  clocks.NewMonotonicClockHost(w),
		EnvironmentHost:     cli.NewEnvironmentHost(w),
		SecureRandomHost:    random.NewSecureRandomHost(w),
		wasi:                w,
	}
	if ce := w.Log().Check(zap.DebugLevel, "wasi host ready"); ce != nil {
		ce.Write(zap.Strings("namespaces", h.Namespaces()))
	}
	return h
}

// Namespaces lists the WASI interfaces the host implements.
func (h *Host) Namespaces() []string {
	hosts := []namespaced{
		h.PollHost, h.StreamsHost,
		h.TypesHost, h.OutgoingHandlerHost,
		h.InstanceNetworkHost, h.TCPCreateSocketHost, h.TCPHost,
		h.MonotonicClockHost, h.EnvironmentHost, h.SecureRandomHost,
	}
	out := make([]string, len(hosts))
	for i, n := range hosts {
		out[i] = n.Namespace()
	}
	return out
}

// WASI returns the environment the hosts share.
func (h *Host) WASI() *preview2.WASI {
	return h.wasi
}

// IncomingHandler returns a net/http handler that dispatches requests
// into d.
func (h *Host) IncomingHandler(d http.Dispatcher) *http.IncomingHandler {
	return http.NewIncomingHandler(h.TypesHost, d)
}

// Close drops every live resource.
func (h *Host) Close() {
	h.wasi.Close()
}
