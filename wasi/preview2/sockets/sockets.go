package sockets

import "github.com/wippyai/wasi-hostbridge/wasi/preview2"

// Host aggregates the socket hosts.
type Host struct {
	*InstanceNetworkHost
	*TCPCreateSocketHost
	*TCPHost
}

func NewHost(w *preview2.WASI) *Host {
	return &Host{
		InstanceNetworkHost: NewInstanceNetworkHost(w),
		TCPCreateSocketHost: NewTCPCreateSocketHost(w),
		TCPHost:             NewTCPHost(w),
	}
}
