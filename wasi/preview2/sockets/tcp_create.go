package sockets

import (
	"github.com/wippyai/wasi-hostbridge/host"
	"github.com/wippyai/wasi-hostbridge/wasi/preview2"
)

type TCPCreateSocketHost struct {
	resources *preview2.ResourceTable
}

func NewTCPCreateSocketHost(w *preview2.WASI) *TCPCreateSocketHost {
	return &TCPCreateSocketHost{resources: w.Resources()}
}

func (h *TCPCreateSocketHost) Namespace() string {
	return "wasi:sockets/tcp-create-socket@0.2.0"
}

func (h *TCPCreateSocketHost) CreateTCPSocket(family host.IPAddressFamily) (host.Handle, error) {
	if family != host.IPv4 && family != host.IPv6 {
		return host.Invalid, netErr(NetworkErrorInvalidArgument)
	}
	return h.resources.Add(preview2.NewTCPSocketResource(family)), nil
}
