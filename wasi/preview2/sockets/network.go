package sockets

import (
	"github.com/wippyai/wasi-hostbridge/host"
	"github.com/wippyai/wasi-hostbridge/wasi/preview2"
)

type InstanceNetworkHost struct {
	resources *preview2.ResourceTable
}

func NewInstanceNetworkHost(w *preview2.WASI) *InstanceNetworkHost {
	return &InstanceNetworkHost{resources: w.Resources()}
}

func (h *InstanceNetworkHost) Namespace() string {
	return "wasi:sockets/instance-network@0.2.0"
}

func (h *InstanceNetworkHost) InstanceNetwork() host.Handle {
	return h.resources.Add(preview2.NewNetworkResource())
}

func (h *InstanceNetworkHost) DropNetwork(n host.Handle) {
	_ = h.resources.Remove(n)
}
