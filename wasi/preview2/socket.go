package preview2

import (
	"context"
	"net"
	"net/netip"
	"sync"

	"github.com/wippyai/wasi-hostbridge/host"
	"github.com/wippyai/wasi-hostbridge/resource"
)

// TCPState represents the state of a TCP socket
type TCPState uint8

const (
	TCPStateUnbound TCPState = iota
	TCPStateConnectInProgress
	TCPStateConnected
	TCPStateClosed
)

func (s TCPState) String() string {
	switch s {
	case TCPStateUnbound:
		return "unbound"
	case TCPStateConnectInProgress:
		return "connect-in-progress"
	case TCPStateConnected:
		return "connected"
	default:
		return "closed"
	}
}

// TCPSocketResource is a client TCP socket. The connect goroutine and host
// calls share it under mu.
type TCPSocketResource struct {
	conn       net.Conn
	pendingErr error
	cancel     context.CancelFunc
	remote     netip.AddrPort
	mu         sync.Mutex
	input      resource.Handle
	output     resource.Handle
	state      TCPState
	family     host.IPAddressFamily
}

func NewTCPSocketResource(family host.IPAddressFamily) *TCPSocketResource {
	return &TCPSocketResource{family: family, state: TCPStateUnbound}
}

func (s *TCPSocketResource) Type() ResourceType { return ResourceTCPSocket }

// Drop cancels an in-flight connect and closes the connection.
func (s *TCPSocketResource) Drop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	if s.conn != nil {
		_ = s.conn.Close()
		s.conn = nil
	}
	s.state = TCPStateClosed
}

func (s *TCPSocketResource) Family() host.IPAddressFamily { return s.family }

func (s *TCPSocketResource) State() TCPState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Ready reports whether finish-connect would stop returning would-block.
func (s *TCPSocketResource) Ready() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state != TCPStateConnectInProgress || s.conn != nil || s.pendingErr != nil
}

// Remote returns the address passed to start-connect.
func (s *TCPSocketResource) Remote() netip.AddrPort {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.remote
}

// Conn returns the established connection, or nil.
func (s *TCPSocketResource) Conn() net.Conn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn
}

// BeginConnect moves an unbound socket into connect-in-progress.
func (s *TCPSocketResource) BeginConnect(addr netip.AddrPort, cancel context.CancelFunc) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != TCPStateUnbound {
		return false
	}
	s.state = TCPStateConnectInProgress
	s.remote = addr
	s.cancel = cancel
	return true
}

// CompleteConnect records the outcome of the dial. A socket that was
// dropped in the meantime closes conn.
func (s *TCPSocketResource) CompleteConnect(conn net.Conn, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != TCPStateConnectInProgress {
		if conn != nil {
			_ = conn.Close()
		}
		return
	}
	if err != nil {
		s.pendingErr = err
		return
	}
	s.conn = conn
}

// TakeConnectResult returns the dial outcome once available. ok is false
// while the dial is still running.
func (s *TCPSocketResource) TakeConnectResult() (conn net.Conn, ok bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pendingErr != nil {
		err = s.pendingErr
		s.pendingErr = nil
		s.state = TCPStateClosed
		return nil, true, err
	}
	if s.conn == nil {
		return nil, false, nil
	}
	s.state = TCPStateConnected
	return s.conn, true, nil
}

// SetStreams records the handles of the socket's streams.
func (s *TCPSocketResource) SetStreams(input, output resource.Handle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.input, s.output = input, output
}

// Streams returns the handles of the socket's streams.
func (s *TCPSocketResource) Streams() (input, output resource.Handle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.input, s.output
}
