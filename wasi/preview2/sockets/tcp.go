package sockets

import (
	"context"
	"net"
	"net/netip"
	"time"

	"go.uber.org/zap"

	"github.com/wippyai/wasi-hostbridge/errors"
	"github.com/wippyai/wasi-hostbridge/host"
	"github.com/wippyai/wasi-hostbridge/wasi/preview2"
)

// DefaultDialTimeout bounds a single start-connect.
const DefaultDialTimeout = 30 * time.Second

// TCPHost implements the client half of wasi:sockets/tcp@0.2.0.
type TCPHost struct {
	wasi        *preview2.WASI
	resources   *preview2.ResourceTable
	log         *zap.Logger
	dialTimeout time.Duration
}

// NewTCPHost creates a new TCP host
func NewTCPHost(w *preview2.WASI) *TCPHost {
	return &TCPHost{
		wasi:        w,
		resources:   w.Resources(),
		log:         w.Log(),
		dialTimeout: DefaultDialTimeout,
	}
}

// Namespace returns the WASI namespace
func (h *TCPHost) Namespace() string {
	return "wasi:sockets/tcp@0.2.0"
}

// getSocket retrieves and validates a TCP socket resource
func (h *TCPHost) getSocket(handle host.Handle) (*preview2.TCPSocketResource, error) {
	socket, ok := preview2.Lookup[*preview2.TCPSocketResource](h.resources, handle)
	if !ok {
		return nil, netErr(NetworkErrorInvalidArgument)
	}
	return socket, nil
}

// TCPStartConnect begins dialing addr on a background goroutine. The dial
// outlives ctx's cancellation but not the socket.
func (h *TCPHost) TCPStartConnect(ctx context.Context, s, network host.Handle, addr netip.AddrPort) error {
	socket, err := h.getSocket(s)
	if err != nil {
		return err
	}
	if _, ok := preview2.Lookup[*preview2.NetworkResource](h.resources, network); !ok {
		return netErr(NetworkErrorInvalidArgument)
	}
	if !addr.IsValid() || addr.Port() == 0 {
		return netErr(NetworkErrorInvalidArgument)
	}
	if addr.Addr().Is4() != (socket.Family() == host.IPv4) {
		return netErr(NetworkErrorInvalidArgument)
	}

	dialCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), h.dialTimeout)
	if !socket.BeginConnect(addr, cancel) {
		cancel()
		return netErr(NetworkErrorInvalidState)
	}

	go func() {
		defer cancel()
		var d net.Dialer
		conn, err := d.DialContext(dialCtx, "tcp", addr.String())
		if err != nil {
			h.log.Debug("tcp connect failed", zap.Stringer("addr", addr), zap.Error(err))
		}
		socket.CompleteConnect(conn, err)
	}()
	return nil
}

// TCPFinishConnect returns the socket's streams once the dial has
// finished. While it is still running the error has kind would_block.
func (h *TCPHost) TCPFinishConnect(s host.Handle) (in, out host.Handle, err error) {
	socket, err := h.getSocket(s)
	if err != nil {
		return host.Invalid, host.Invalid, err
	}
	if socket.State() != preview2.TCPStateConnectInProgress {
		return host.Invalid, host.Invalid, netErr(NetworkErrorNotInProgress)
	}

	conn, ok, dialErr := socket.TakeConnectResult()
	if !ok {
		return host.Invalid, host.Invalid, netErr(NetworkErrorWouldBlock)
	}
	if dialErr != nil {
		return host.Invalid, host.Invalid, mapNetError(dialErr)
	}

	pipe := preview2.NewPipe()
	go pipe.Fill(conn)

	in, ok = h.resources.AddChild(s, preview2.NewInputStreamResource(pipe, nil))
	if !ok {
		return host.Invalid, host.Invalid, netErr(NetworkErrorInvalidState)
	}
	out, ok = h.resources.AddChild(s, h.wasi.NewOutputStream(conn, -1))
	if !ok {
		_ = h.resources.Remove(in)
		return host.Invalid, host.Invalid, netErr(NetworkErrorInvalidState)
	}
	socket.SetStreams(in, out)
	return in, out, nil
}

// TCPSubscribe returns a pollable that is ready when finish-connect would
// not report would-block.
func (h *TCPHost) TCPSubscribe(s host.Handle) host.Handle {
	socket, err := h.getSocket(s)
	if err != nil {
		return host.Invalid
	}
	p, _ := h.resources.AddChild(s, preview2.NewFuncPollable(socket.Ready))
	return p
}

func (h *TCPHost) TCPShutdown(s host.Handle, how host.ShutdownType) error {
	socket, err := h.getSocket(s)
	if err != nil {
		return err
	}
	if socket.State() != preview2.TCPStateConnected {
		return netErr(NetworkErrorInvalidState)
	}
	tcp, ok := socket.Conn().(*net.TCPConn)
	if !ok {
		return netErr(NetworkErrorNotSupported)
	}

	var shutdownErr error
	switch how {
	case host.ShutdownReceive:
		shutdownErr = tcp.CloseRead()
	case host.ShutdownSend:
		shutdownErr = tcp.CloseWrite()
	case host.ShutdownBoth:
		if shutdownErr = tcp.CloseWrite(); shutdownErr == nil {
			shutdownErr = tcp.CloseRead()
		}
	default:
		return netErr(NetworkErrorInvalidArgument)
	}
	return mapNetError(shutdownErr).orNil()
}

// DropTCPSocket closes the socket. It fails while any stream or pollable
// of the socket is live.
func (h *TCPHost) DropTCPSocket(s host.Handle) error {
	if err := h.resources.Remove(s); err != nil {
		return errors.Wrap(errors.PhaseSocket, errors.KindInvalidArgument, err, "tcp-socket still has live children")
	}
	return nil
}
