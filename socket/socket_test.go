package socket

import (
	"context"
	"io"
	"net"
	"net/netip"
	"testing"
	"time"

	"github.com/wippyai/wasi-hostbridge/errors"
	"github.com/wippyai/wasi-hostbridge/internal/invariant"
	"github.com/wippyai/wasi-hostbridge/wasi/preview2"
	"github.com/wippyai/wasi-hostbridge/wasi/preview2/world"
)

func newHost(t *testing.T) (*world.Host, *preview2.WASI) {
	t.Helper()
	w := preview2.New().WithPollInterval(100 * time.Microsecond)
	h := world.New(w)
	t.Cleanup(h.Close)
	return h, w
}

func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

// echoServer accepts one connection and echoes it until the client
// closes.
func echoServer(t *testing.T) netip.AddrPort {
	t.Helper()
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { _ = ln.Close() })
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		_, _ = io.Copy(conn, conn)
	}()
	return ln.Addr().(*net.TCPAddr).AddrPort()
}

func TestTCPSocket_RoundTrip(t *testing.T) {
	h, w := newHost(t)
	ctx := testContext(t)
	addr := echoServer(t)

	s, err := NewTCPSocket(h)
	if err != nil {
		t.Fatalf("NewTCPSocket: %v", err)
	}
	if err := s.Connect(ctx, addr); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if !s.Connected() {
		t.Fatal("Connected = false")
	}

	n, err := s.Capacity()
	if err != nil || n < 4 {
		t.Fatalf("Capacity = %d, %v", n, err)
	}
	if err := s.Send([]byte("ping")); err != nil {
		t.Fatalf("Send: %v", err)
	}

	var got []byte
	for len(got) < 4 {
		chunk, err := s.Receive(ctx, 64)
		if err != nil {
			t.Fatalf("Receive: %v", err)
		}
		got = append(got, chunk...)
	}
	if string(got) != "ping" {
		t.Errorf("received %q", got)
	}

	if err := s.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
	if n := w.Resources().Len(); n != 0 {
		t.Errorf("%d resources left after Close", n)
	}
}

func TestTCPSocket_ReceiveEOF(t *testing.T) {
	h, _ := newHost(t)
	ctx := testContext(t)

	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		_, _ = conn.Write([]byte("bye"))
		_ = conn.Close()
	}()

	s, err := NewTCPSocket(h)
	if err != nil {
		t.Fatalf("NewTCPSocket: %v", err)
	}
	defer func() { _ = s.Close() }()
	if err := s.Connect(ctx, ln.Addr().(*net.TCPAddr).AddrPort()); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	var got []byte
	for {
		chunk, err := s.Receive(ctx, 64)
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("Receive: %v", err)
		}
		got = append(got, chunk...)
	}
	if string(got) != "bye" {
		t.Errorf("received %q", got)
	}
}

func TestTCPSocket_ConnectRefused(t *testing.T) {
	h, w := newHost(t)
	ctx := testContext(t)

	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().(*net.TCPAddr).AddrPort()
	_ = ln.Close()

	s, err := NewTCPSocket(h)
	if err != nil {
		t.Fatalf("NewTCPSocket: %v", err)
	}
	if err := s.Connect(ctx, addr); err == nil {
		t.Fatal("Connect to closed port succeeded")
	}
	if s.Connected() {
		t.Error("Connected = true after failure")
	}
	if err := s.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
	if n := w.Resources().Len(); n != 0 {
		t.Errorf("%d resources left after Close", n)
	}
}

func TestTCPSocket_IPv6Rejected(t *testing.T) {
	h, _ := newHost(t)
	s, err := NewTCPSocket(h)
	if err != nil {
		t.Fatalf("NewTCPSocket: %v", err)
	}
	defer func() { _ = s.Close() }()

	err = s.Connect(context.Background(), netip.MustParseAddrPort("[::1]:80"))
	if !errors.IsKind(err, errors.KindInvalidArgument) {
		t.Errorf("Connect(IPv6) = %v, want invalid argument", err)
	}
}

func TestTCPSocket_Violations(t *testing.T) {
	h, _ := newHost(t)
	ctx := testContext(t)
	addr := echoServer(t)

	s, err := NewTCPSocket(h)
	if err != nil {
		t.Fatalf("NewTCPSocket: %v", err)
	}
	if v := invariant.Catch(func() { _ = s.Send([]byte("x")) }); v == nil {
		t.Error("send before connect was not a contract violation")
	}
	if err := s.Connect(ctx, addr); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if v := invariant.Catch(func() { _ = s.Send([]byte("x")) }); v == nil {
		t.Error("send without capacity was not a contract violation")
	}
	if err := s.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
	if v := invariant.Catch(func() { _ = s.Close() }); v == nil {
		t.Error("second Close was not a contract violation")
	}
}
