// Package io implements the WASI I/O interfaces for the bridge host.
//
// Implements:
//   - wasi:io/poll@0.2.0 - Pollable resources and blocking poll
//   - wasi:io/streams@0.2.0 - Input and output streams
//
// Stream errors are preview2.StreamError values; a closed stream matches
// errors.ErrStreamClosed.
package io
