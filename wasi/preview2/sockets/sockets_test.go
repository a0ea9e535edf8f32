package sockets

import (
	"context"
	stderrors "errors"
	"io"
	"net"
	"net/netip"
	"syscall"
	"testing"
	"time"

	"github.com/wippyai/wasi-hostbridge/errors"
	"github.com/wippyai/wasi-hostbridge/host"
	"github.com/wippyai/wasi-hostbridge/wasi/preview2"
)

func newHost(t *testing.T) (*Host, *preview2.WASI) {
	t.Helper()
	w := preview2.New()
	t.Cleanup(w.Close)
	return NewHost(w), w
}

func listen(t *testing.T) (net.Listener, netip.AddrPort) {
	t.Helper()
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { _ = ln.Close() })
	return ln, ln.Addr().(*net.TCPAddr).AddrPort()
}

// connect drives start/finish connect until the dial completes.
func connect(t *testing.T, h *Host, s host.Handle, addr netip.AddrPort) (host.Handle, host.Handle) {
	t.Helper()
	network := h.InstanceNetwork()
	if err := h.TCPStartConnect(context.Background(), s, network, addr); err != nil {
		t.Fatalf("StartConnect: %v", err)
	}
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		in, out, err := h.TCPFinishConnect(s)
		if err == nil {
			return in, out
		}
		if !errors.IsKind(err, errors.KindWouldBlock) {
			t.Fatalf("FinishConnect: %v", err)
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("connect did not finish")
	return host.Invalid, host.Invalid
}

func TestInstanceNetworkHost_InstanceNetwork(t *testing.T) {
	h, w := newHost(t)

	handle := h.InstanceNetwork()
	if _, ok := preview2.Lookup[*preview2.NetworkResource](w.Resources(), handle); !ok {
		t.Fatal("network not in resource table")
	}
	h.DropNetwork(handle)
	if w.Resources().Len() != 0 {
		t.Error("network not dropped")
	}
}

func TestTCPCreateSocketHost_CreateTCPSocket(t *testing.T) {
	h, w := newHost(t)

	handle, err := h.CreateTCPSocket(host.IPv4)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	socket, ok := preview2.Lookup[*preview2.TCPSocketResource](w.Resources(), handle)
	if !ok {
		t.Fatal("resource is not a TCPSocketResource")
	}
	if socket.Family() != host.IPv4 {
		t.Errorf("expected IPv4, got %d", socket.Family())
	}

	if _, err := h.CreateTCPSocket(host.IPAddressFamily(9)); !errors.IsKind(err, errors.KindInvalidArgument) {
		t.Errorf("bad family: %v", err)
	}
}

func TestTCPHost_ConnectSendReceive(t *testing.T) {
	h, w := newHost(t)
	ln, addr := listen(t)

	accepted := make(chan net.Conn, 1)
	go func() {
		c, err := ln.Accept()
		if err == nil {
			accepted <- c
		}
	}()

	s, _ := h.CreateTCPSocket(host.IPv4)
	in, out := connect(t, h, s, addr)
	peer := <-accepted
	defer peer.Close()

	outStream, _ := preview2.Lookup[*preview2.OutputStreamResource](w.Resources(), out)
	if _, err := outStream.CheckWrite(); err != nil {
		t.Fatal(err)
	}
	if err := outStream.Write([]byte("ping")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	buf := make([]byte, 4)
	if _, err := io.ReadFull(peer, buf); err != nil || string(buf) != "ping" {
		t.Fatalf("peer read %q, %v", buf, err)
	}

	_, _ = peer.Write([]byte("pong"))
	_ = peer.Close()
	inStream, _ := preview2.Lookup[*preview2.InputStreamResource](w.Resources(), in)
	var got []byte
	for len(got) < 4 {
		chunk, err := inStream.BlockingRead(context.Background(), 16)
		if err != nil {
			t.Fatalf("BlockingRead: %v", err)
		}
		got = append(got, chunk...)
	}
	if string(got) != "pong" {
		t.Fatalf("read %q, want pong", got)
	}

	if err := h.DropTCPSocket(s); err == nil {
		t.Error("drop with live streams should fail")
	}
	_ = w.Resources().Remove(in)
	_ = w.Resources().Remove(out)
	if err := h.DropTCPSocket(s); err != nil {
		t.Errorf("DropTCPSocket: %v", err)
	}
}

func TestTCPHost_ConnectRefused(t *testing.T) {
	h, _ := newHost(t)
	ln, addr := listen(t)
	_ = ln.Close()

	s, _ := h.CreateTCPSocket(host.IPv4)
	if err := h.TCPStartConnect(context.Background(), s, h.InstanceNetwork(), addr); err != nil {
		t.Fatalf("StartConnect: %v", err)
	}

	var err error
	for range 5000 {
		_, _, err = h.TCPFinishConnect(s)
		if !errors.IsKind(err, errors.KindWouldBlock) {
			break
		}
		time.Sleep(time.Millisecond)
	}
	var ne *NetworkError
	if !stderrors.As(err, &ne) || ne.Code != NetworkErrorConnectionRefused {
		t.Fatalf("FinishConnect = %v, want connection-refused", err)
	}
}

func TestTCPHost_StateErrors(t *testing.T) {
	h, _ := newHost(t)
	s, _ := h.CreateTCPSocket(host.IPv4)
	network := h.InstanceNetwork()

	if _, _, err := h.TCPFinishConnect(s); !errors.IsKind(err, errors.KindInvalidArgument) {
		t.Errorf("finish without start: %v", err)
	}
	ipv6 := netip.MustParseAddrPort("[::1]:80")
	if err := h.TCPStartConnect(context.Background(), s, network, ipv6); !errors.IsKind(err, errors.KindInvalidArgument) {
		t.Errorf("family mismatch: %v", err)
	}
	if err := h.TCPShutdown(s, host.ShutdownBoth); !errors.IsKind(err, errors.KindInvalidArgument) {
		t.Errorf("shutdown unconnected: %v", err)
	}
	if got := h.TCPSubscribe(9999); got != host.Invalid {
		t.Errorf("subscribe unknown = %d", got)
	}
}

func TestMapErrno(t *testing.T) {
	tests := []struct {
		errno syscall.Errno
		want  NetworkErrorCode
	}{
		{syscall.ECONNREFUSED, NetworkErrorConnectionRefused},
		{syscall.ECONNRESET, NetworkErrorConnectionReset},
		{syscall.ETIMEDOUT, NetworkErrorTimeout},
		{syscall.EINPROGRESS, NetworkErrorWouldBlock},
		{syscall.EACCES, NetworkErrorAccessDenied},
	}
	for _, tt := range tests {
		if got := mapErrno(tt.errno).Code; got != tt.want {
			t.Errorf("mapErrno(%v) = %s, want %s", tt.errno, got, tt.want)
		}
	}
}

func TestNetworkError_Kind(t *testing.T) {
	err := mapNetError(&net.OpError{Op: "dial", Net: "tcp", Err: syscall.ECONNREFUSED})
	if !stderrors.Is(err, syscall.ECONNREFUSED) {
		t.Error("cause not reachable")
	}
	if errors.KindOf(netErr(NetworkErrorWouldBlock)) != errors.KindWouldBlock {
		t.Error("would-block code should map to would_block kind")
	}
}
