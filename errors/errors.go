package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Phase indicates which layer of the bridge produced the error
type Phase string

const (
	PhaseHost      Phase = "host"      // raw host call
	PhaseHandle    Phase = "handle"    // resource handle ownership
	PhasePoll      Phase = "poll"      // readiness polling
	PhaseHeaders   Phase = "headers"   // header fields
	PhaseBody      Phase = "body"      // body streams
	PhaseRequest   Phase = "request"   // requests, responses and futures
	PhaseScheduler Phase = "scheduler" // async task scheduling
	PhaseSocket    Phase = "socket"    // tcp sockets
	PhaseRuntime   Phase = "runtime"   // runtime context and dispatch
	PhaseConfig    Phase = "config"    // configuration
)

// Kind categorizes the error
type Kind string

const (
	KindGeneric           Kind = "generic"
	KindInvalidArgument   Kind = "invalid_argument"
	KindConsumed          Kind = "consumed"
	KindWouldBlock        Kind = "would_block"
	KindStreamClosed      Kind = "stream_closed"
	KindInvalidSyntax     Kind = "invalid_syntax"
	KindForbidden         Kind = "forbidden"
	KindImmutable         Kind = "immutable"
	KindNotReady          Kind = "not_ready"
	KindTimeout           Kind = "timeout"
	KindAlreadySet        Kind = "already_set"
	KindContractViolation Kind = "contract_violation"
	KindNotFound          Kind = "not_found"
	KindUnsupported       Kind = "unsupported"
)

// Kind-only match targets for errors.Is. They match any phase.
var (
	ErrStreamClosed      = &Error{Kind: KindStreamClosed}
	ErrWouldBlock        = &Error{Kind: KindWouldBlock}
	ErrConsumed          = &Error{Kind: KindConsumed}
	ErrTimeout           = &Error{Kind: KindTimeout}
	ErrContractViolation = &Error{Kind: KindContractViolation}
)

// Error is the structured error type used throughout the bridge
type Error struct {
	Value  any
	Cause  error
	Phase  Phase
	Kind   Kind
	Op     string
	Detail string
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteByte('[')
	b.WriteString(string(e.Phase))
	b.WriteString("] ")
	b.WriteString(string(e.Kind))

	if e.Op != "" {
		b.WriteString(" in ")
		b.WriteString(e.Op)
	}

	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}

	if e.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte(')')
	}

	return b.String()
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error.
// A target without a phase matches on kind alone.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Phase == "" {
		return e.Kind == t.Kind
	}
	return e.Phase == t.Phase && e.Kind == t.Kind
}

// KindOf returns the kind of the first *Error in err's chain, or "" if none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsKind reports whether any *Error in err's chain has the given kind.
func IsKind(err error, kind Kind) bool {
	return errors.Is(err, &Error{Kind: kind})
}

// Builder provides structured error construction
type Builder struct {
	err Error
}

// New creates a new error builder
func New(phase Phase, kind Kind) *Builder {
	return &Builder{
		err: Error{
			Phase: phase,
			Kind:  kind,
		},
	}
}

// Op sets the operation name
func (b *Builder) Op(op string) *Builder {
	b.err.Op = op
	return b
}

// Value sets the offending value
func (b *Builder) Value(v any) *Builder {
	b.err.Value = v
	return b
}

// Cause sets the underlying error
func (b *Builder) Cause(err error) *Builder {
	b.err.Cause = err
	return b
}

// Detail sets the human-readable detail message
func (b *Builder) Detail(msg string, args ...any) *Builder {
	if len(args) > 0 {
		b.err.Detail = fmt.Sprintf(msg, args...)
	} else {
		b.err.Detail = msg
	}
	return b
}

// Build returns the constructed error
func (b *Builder) Build() *Error {
	return &b.err
}

// Convenience constructors for common error patterns

// HostCall wraps a failed host call. Kind is taken from cause when it is
// already an *Error so host-reported kinds survive the hop.
func HostCall(op string, cause error) *Error {
	kind := KindGeneric
	if k := KindOf(cause); k != "" {
		kind = k
	}
	return &Error{
		Phase: PhaseHost,
		Kind:  kind,
		Op:    op,
		Cause: cause,
	}
}

// InvalidArgument creates an invalid argument error
func InvalidArgument(phase Phase, op, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidArgument,
		Op:     op,
		Detail: detail,
	}
}

// Consumed reports use of a resource that was already taken or closed
func Consumed(phase Phase, what string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindConsumed,
		Detail: what + " already consumed",
	}
}

// WouldBlock creates a would-block error
func WouldBlock(phase Phase, op string) *Error {
	return &Error{
		Phase: phase,
		Kind:  KindWouldBlock,
		Op:    op,
	}
}

// StreamClosed creates a stream closed error
func StreamClosed(phase Phase, op string) *Error {
	return &Error{
		Phase: phase,
		Kind:  KindStreamClosed,
		Op:    op,
	}
}

// HeaderError creates a header error of the given kind for a field name
func HeaderError(kind Kind, name []byte) *Error {
	return &Error{
		Phase:  PhaseHeaders,
		Kind:   kind,
		Detail: fmt.Sprintf("header %q", name),
		Value:  string(name),
	}
}

// Timeout creates a timeout error
func Timeout(phase Phase, op string) *Error {
	return &Error{
		Phase: phase,
		Kind:  KindTimeout,
		Op:    op,
	}
}

// Unsupported creates an unsupported operation error
func Unsupported(phase Phase, what string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindUnsupported,
		Detail: what,
	}
}

// Violation creates a contract violation error
func Violation(detail string) *Error {
	return &Error{
		Phase:  PhaseRuntime,
		Kind:   KindContractViolation,
		Detail: detail,
	}
}

// Wrap wraps an existing error with additional context
func Wrap(phase Phase, kind Kind, cause error, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   kind,
		Detail: detail,
		Cause:  cause,
	}
}
