// Package socket is a minimal blocking TCP client over host sockets.
//
// Connect blocks until the connection is established. Send and Receive are
// synchronous and do not loop: Send must fit the capacity the last
// Capacity call reported, and callers chunk larger payloads themselves.
package socket

import (
	"context"
	"io"
	"net/netip"

	"go.uber.org/multierr"

	"github.com/wippyai/wasi-hostbridge/errors"
	"github.com/wippyai/wasi-hostbridge/host"
	"github.com/wippyai/wasi-hostbridge/internal/invariant"
	"github.com/wippyai/wasi-hostbridge/poll"
	"github.com/wippyai/wasi-hostbridge/resource"
)

// Host is the slice of the host sockets need.
type Host interface {
	host.Poll
	host.Streams
	host.Sockets
}

type (
	network      struct{}
	inputStream  struct{}
	outputStream struct{}
)

// TCPSocket owns a host TCP socket, its network, and once connected its
// two streams.
type TCPSocket struct {
	h        Host
	ref      *resource.Ref[TCPSocket]
	network  *resource.Ref[network]
	in       *resource.Ref[inputStream]
	out      *resource.Ref[outputStream]
	pollable *poll.Pollable
	capacity uint64
}

// NewTCPSocket creates an IPv4 TCP socket on the instance network.
func NewTCPSocket(h Host) (*TCPSocket, error) {
	n := h.InstanceNetwork()
	s, err := h.CreateTCPSocket(host.IPv4)
	if err != nil {
		h.DropNetwork(n)
		return nil, errors.HostCall("create-tcp-socket", err)
	}
	return &TCPSocket{
		h:       h,
		ref:     resource.Own[TCPSocket](s),
		network: resource.Own[network](n),
	}, nil
}

// Connected reports whether Connect has succeeded.
func (s *TCPSocket) Connected() bool {
	return s.in != nil
}

// Connect dials addr and blocks until the connection is up or fails. Only
// IPv4 addresses are accepted.
func (s *TCPSocket) Connect(ctx context.Context, addr netip.AddrPort) error {
	if !addr.Addr().Is4() {
		return errors.New(errors.PhaseSocket, errors.KindInvalidArgument).
			Op("connect").Value(addr.String()).Detail("only IPv4 addresses are supported").Build()
	}
	invariant.Assert(!s.Connected(), "connect of connected socket")

	sock := s.ref.Borrow()
	if err := s.h.TCPStartConnect(ctx, sock, s.network.Borrow(), addr); err != nil {
		return errors.HostCall("tcp.start-connect", err)
	}
	for {
		in, out, err := s.h.TCPFinishConnect(sock)
		if errors.IsKind(err, errors.KindWouldBlock) {
			if err := s.subscribe().Block(ctx); err != nil {
				return err
			}
			continue
		}
		if err != nil {
			return errors.HostCall("tcp.finish-connect", err)
		}
		s.in = resource.Own[inputStream](in)
		s.out = resource.Own[outputStream](out)
		return nil
	}
}

func (s *TCPSocket) subscribe() *poll.Pollable {
	if s.pollable == nil {
		s.pollable = poll.New(s.h, s.h.TCPSubscribe(s.ref.Borrow()))
	}
	return s.pollable
}

// Capacity reports how many bytes the next Send may carry.
func (s *TCPSocket) Capacity() (uint64, error) {
	invariant.Assert(s.Connected(), "capacity of unconnected socket")
	n, err := s.h.OutputStreamCheckWrite(s.out.Borrow())
	if err != nil {
		s.capacity = 0
		return 0, errors.HostCall("output-stream.check-write", err)
	}
	s.capacity = n
	return n, nil
}

// Send writes p in one host call. p must fit the last reported capacity.
func (s *TCPSocket) Send(p []byte) error {
	invariant.Assert(s.Connected(), "send on unconnected socket")
	invariant.Assert(uint64(len(p)) <= s.capacity, "send of %d bytes exceeds reported capacity %d", len(p), s.capacity)
	if err := s.h.OutputStreamWrite(s.out.Borrow(), p); err != nil {
		return errors.HostCall("output-stream.write", err)
	}
	s.capacity -= uint64(len(p))
	return nil
}

// Receive blocks until at least one byte is available and returns up to n
// bytes. It returns io.EOF once the peer has closed its side.
func (s *TCPSocket) Receive(ctx context.Context, n uint64) ([]byte, error) {
	invariant.Assert(s.Connected(), "receive on unconnected socket")
	data, err := s.h.InputStreamBlockingRead(ctx, s.in.Borrow(), n)
	if errors.IsKind(err, errors.KindStreamClosed) {
		return nil, io.EOF
	}
	if err != nil {
		return nil, errors.HostCall("input-stream.blocking-read", err)
	}
	return data, nil
}

// Close shuts down both directions and releases the output stream, the
// input stream, the pollable, the socket and the network, in that order.
// The host ties stream validity to the socket, so the streams go first.
func (s *TCPSocket) Close() error {
	invariant.Assert(s.ref.Valid(), "close of closed socket")

	var errs error
	if s.Connected() {
		if err := s.h.TCPShutdown(s.ref.Borrow(), host.ShutdownBoth); err != nil {
			errs = multierr.Append(errs, errors.HostCall("tcp.shutdown", err))
		}
		s.h.DropOutputStream(s.out.Take())
		s.h.DropInputStream(s.in.Take())
		s.in, s.out = nil, nil
	}
	if s.pollable != nil {
		s.pollable.Close()
		s.pollable = nil
	}
	if err := s.h.DropTCPSocket(s.ref.Take()); err != nil {
		errs = multierr.Append(errs, errors.HostCall("tcp-socket.drop", err))
	}
	s.h.DropNetwork(s.network.Take())
	return errs
}
