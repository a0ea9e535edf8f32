// Package host defines the stable interface the bridge core consumes from a
// WASI host.
//
// The core never talks to a particular WASI snapshot directly. Each snapshot
// is served by an adapter that implements Host (see wasi/preview2/world for
// the in-process WASI 0.2 adapter). Handles are resource.Handle values owned
// by the host; which calls consume a handle is documented per method.
//
// Only calls that can block take a context: Poll, PollableBlock,
// InputStreamBlockingRead, OutputStreamBlockingFlush and OutgoingHandle.
package host
