// Package errors provides structured error types for the host bridge.
//
// Errors are categorized by Phase (which layer failed) and Kind (what went
// wrong). Kinds distinguish the recoverable host conditions callers act on:
// generic host failures, invalid arguments, already-consumed resources,
// would-block, and closed streams, plus header errors and contract
// violations.
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseBody, errors.KindInvalidArgument).
//		Op("outgoing-body.write").
//		Detail("chunk of %d bytes exceeds capacity %d", n, capacity).
//		Build()
//
// Or use convenience constructors for common patterns:
//
//	err := errors.StreamClosed(errors.PhaseBody, "blocking-flush")
//	err := errors.HeaderError(errors.KindForbidden, []byte("host"))
//
// Kind-only targets match errors from any phase:
//
//	if errors.Is(err, errors.ErrStreamClosed) { ... }
//
// All errors implement the standard error interface and support errors.Is/As.
package errors
