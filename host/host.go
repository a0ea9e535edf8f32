package host

import (
	"context"
	"net/netip"
)

// Poll is wasi:io/poll.
type Poll interface {
	// Poll blocks until at least one pollable is ready and returns the
	// indices of the ready ones in ascending order. The list must not be
	// empty.
	Poll(ctx context.Context, pollables []Handle) ([]uint32, error)
	PollableReady(p Handle) bool
	PollableBlock(ctx context.Context, p Handle) error
	DropPollable(p Handle)
}

// Streams is wasi:io/streams.
//
// Reads and writes report a closed stream with an error of kind
// stream_closed.
type Streams interface {
	InputStreamRead(in Handle, n uint64) ([]byte, error)
	InputStreamBlockingRead(ctx context.Context, in Handle, n uint64) ([]byte, error)
	InputStreamSubscribe(in Handle) Handle
	DropInputStream(in Handle)

	OutputStreamCheckWrite(out Handle) (uint64, error)
	// OutputStreamWrite must not be given more bytes than the last
	// OutputStreamCheckWrite reported.
	OutputStreamWrite(out Handle, p []byte) error
	OutputStreamBlockingFlush(ctx context.Context, out Handle) error
	OutputStreamSubscribe(out Handle) Handle
	DropOutputStream(out Handle)
}

// Fields is the wasi:http fields resource.
//
// Mutations fail with header errors: invalid_syntax, forbidden, or
// immutable.
type Fields interface {
	NewFields() Handle
	FieldsFromList(entries []Field) (Handle, error)
	FieldsGet(f Handle, name []byte) [][]byte
	FieldsHas(f Handle, name []byte) bool
	FieldsSet(f Handle, name []byte, values [][]byte) error
	FieldsAppend(f Handle, name, value []byte) error
	FieldsDelete(f Handle, name []byte) error
	FieldsEntries(f Handle) []Field
	// FieldsClone returns a new mutable copy.
	FieldsClone(f Handle) Handle
	DropFields(f Handle)
}

// HTTP is the rest of wasi:http/types plus wasi:http/outgoing-handler.
type HTTP interface {
	IncomingRequestMethod(r Handle) Method
	IncomingRequestScheme(r Handle) (Scheme, bool)
	IncomingRequestAuthority(r Handle) (string, bool)
	IncomingRequestPathWithQuery(r Handle) (string, bool)
	// IncomingRequestHeaders returns a new immutable fields handle.
	IncomingRequestHeaders(r Handle) Handle
	// IncomingRequestConsume may succeed only once per request.
	IncomingRequestConsume(r Handle) (Handle, error)
	DropIncomingRequest(r Handle)

	IncomingBodyStream(b Handle) (Handle, error)
	// DropIncomingBody fails while the body's stream is still live.
	DropIncomingBody(b Handle) error

	// NewOutgoingRequest consumes headers.
	NewOutgoingRequest(headers Handle) Handle
	OutgoingRequestSetMethod(r Handle, m Method) error
	OutgoingRequestSetScheme(r Handle, s *Scheme) error
	OutgoingRequestSetAuthority(r Handle, authority *string) error
	OutgoingRequestSetPathWithQuery(r Handle, path *string) error
	// OutgoingRequestHeaders returns a new immutable fields handle.
	OutgoingRequestHeaders(r Handle) Handle
	OutgoingRequestBody(r Handle) (Handle, error)
	DropOutgoingRequest(r Handle)

	OutgoingBodyWrite(b Handle) (Handle, error)
	// OutgoingBodyFinish consumes b. It fails while the body's stream is
	// still live or when a declared content length was not met.
	OutgoingBodyFinish(b Handle) error
	// DropOutgoingBody drops b unfinished; its receiver sees an aborted
	// body.
	DropOutgoingBody(b Handle)

	// NewOutgoingResponse consumes headers.
	NewOutgoingResponse(headers Handle) Handle
	OutgoingResponseSetStatusCode(r Handle, status uint16) error
	OutgoingResponseHeaders(r Handle) Handle
	OutgoingResponseBody(r Handle) (Handle, error)
	DropOutgoingResponse(r Handle)

	// ResponseOutparamSet consumes out and resp.
	ResponseOutparamSet(out Handle, resp Handle)
	// ResponseOutparamSetError consumes out and answers with an error.
	ResponseOutparamSetError(out Handle, message string)

	// OutgoingHandle consumes req and returns a future response.
	OutgoingHandle(ctx context.Context, req Handle) (Handle, error)
	FutureIncomingResponseSubscribe(f Handle) Handle
	// FutureIncomingResponseGet reports ready=false while pending. Once
	// ready it yields the response or the request error exactly once; later
	// calls fail with kind consumed.
	FutureIncomingResponseGet(f Handle) (resp Handle, ready bool, err error)
	DropFutureIncomingResponse(f Handle)

	IncomingResponseStatus(r Handle) uint16
	IncomingResponseHeaders(r Handle) Handle
	IncomingResponseConsume(r Handle) (Handle, error)
	DropIncomingResponse(r Handle)
}

// Sockets is wasi:sockets instance-network, tcp-create-socket and tcp.
type Sockets interface {
	InstanceNetwork() Handle
	DropNetwork(n Handle)
	CreateTCPSocket(family IPAddressFamily) (Handle, error)
	TCPStartConnect(ctx context.Context, s, network Handle, addr netip.AddrPort) error
	// TCPFinishConnect fails with kind would_block while the connection is
	// still in progress.
	TCPFinishConnect(s Handle) (in, out Handle, err error)
	TCPSubscribe(s Handle) Handle
	TCPShutdown(s Handle, how ShutdownType) error
	// DropTCPSocket fails while either of the socket's streams is live.
	DropTCPSocket(s Handle) error
}

// Clocks is wasi:clocks/monotonic-clock.
type Clocks interface {
	MonotonicNow() uint64
	MonotonicResolution() uint64
	SubscribeInstant(when uint64) Handle
	SubscribeDuration(ns uint64) Handle
}

// Environment is wasi:cli/environment.
type Environment interface {
	Arguments() []string
	Environment() [][2]string
}

// Random is wasi:random/random.
type Random interface {
	GetRandomBytes(n uint64) []byte
	GetRandomU64() uint64
}

// Host is everything the core consumes.
type Host interface {
	Poll
	Streams
	Fields
	HTTP
	Sockets
	Clocks
	Environment
	Random
}
