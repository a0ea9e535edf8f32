// Package http implements wasi:http@0.2.0 for the bridge host.
//
// Implements:
//   - wasi:http/types@0.2.0 - fields, requests, responses, bodies
//   - wasi:http/outgoing-handler@0.2.0 - client requests over net/http
//   - wasi:http/incoming-handler@0.2.0 - IncomingHandler, a net/http
//     Handler that dispatches into the guest
//
// Bodies are streamed. Incoming bodies are read from the connection on a
// goroutine into a preview2.Pipe. Outgoing response bytes are buffered
// until the response is handed to its outparam, then written through.
package http
