// Package sockets implements the client side of the WASI socket interfaces.
//
// Implements:
//   - wasi:sockets/instance-network@0.2.0 - Network instance
//   - wasi:sockets/tcp-create-socket@0.2.0 - TCP socket creation
//   - wasi:sockets/tcp@0.2.0 - connect, subscribe, shutdown
//
// Connects run on a goroutine; finish-connect reports would-block until the
// dial completes. The socket's streams are children of the socket.
package sockets
