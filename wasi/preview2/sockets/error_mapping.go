package sockets

import (
	stderrors "errors"
	"net"
	"os"
	"syscall"

	"github.com/wippyai/wasi-hostbridge/errors"
)

// NetworkError is a wasi:sockets error-code with the Go error behind it.
type NetworkError struct {
	Cause error
	Code  NetworkErrorCode
}

type NetworkErrorCode uint8

const (
	NetworkErrorUnknown NetworkErrorCode = iota
	NetworkErrorAccessDenied
	NetworkErrorNotSupported
	NetworkErrorInvalidArgument
	NetworkErrorOutOfMemory
	NetworkErrorTimeout
	NetworkErrorConcurrencyConflict
	NetworkErrorNotInProgress
	NetworkErrorWouldBlock
	NetworkErrorInvalidState
	NetworkErrorNewSocketLimit
	NetworkErrorAddressNotBindable
	NetworkErrorAddressInUse
	NetworkErrorRemoteUnreachable
	NetworkErrorConnectionRefused
	NetworkErrorConnectionReset
	NetworkErrorConnectionAborted
	NetworkErrorDatagramTooLarge
	NetworkErrorNameUnresolvable
	NetworkErrorTemporaryResolverFailure
	NetworkErrorPermanentResolverFailure
)

var networkErrorNames = [...]string{
	NetworkErrorUnknown:                  "unknown",
	NetworkErrorAccessDenied:             "access-denied",
	NetworkErrorNotSupported:             "not-supported",
	NetworkErrorInvalidArgument:          "invalid-argument",
	NetworkErrorOutOfMemory:              "out-of-memory",
	NetworkErrorTimeout:                  "timeout",
	NetworkErrorConcurrencyConflict:      "concurrency-conflict",
	NetworkErrorNotInProgress:            "not-in-progress",
	NetworkErrorWouldBlock:               "would-block",
	NetworkErrorInvalidState:             "invalid-state",
	NetworkErrorNewSocketLimit:           "new-socket-limit",
	NetworkErrorAddressNotBindable:       "address-not-bindable",
	NetworkErrorAddressInUse:             "address-in-use",
	NetworkErrorRemoteUnreachable:        "remote-unreachable",
	NetworkErrorConnectionRefused:        "connection-refused",
	NetworkErrorConnectionReset:          "connection-reset",
	NetworkErrorConnectionAborted:        "connection-aborted",
	NetworkErrorDatagramTooLarge:         "datagram-too-large",
	NetworkErrorNameUnresolvable:         "name-unresolvable",
	NetworkErrorTemporaryResolverFailure: "temporary-resolver-failure",
	NetworkErrorPermanentResolverFailure: "permanent-resolver-failure",
}

func (c NetworkErrorCode) String() string {
	if int(c) < len(networkErrorNames) {
		return networkErrorNames[c]
	}
	return "unknown"
}

func (e *NetworkError) Error() string {
	if e.Cause != nil {
		return "network error " + e.Code.String() + ": " + e.Cause.Error()
	}
	return "network error " + e.Code.String()
}

// Unwrap maps the code onto an error kind so callers can test it with
// errors.IsKind, and keeps the cause reachable.
func (e *NetworkError) Unwrap() []error {
	kinded := errors.New(errors.PhaseSocket, e.Code.kind()).Op(e.Code.String()).Build()
	if e.Cause == nil {
		return []error{kinded}
	}
	return []error{kinded, e.Cause}
}

func (c NetworkErrorCode) kind() errors.Kind {
	switch c {
	case NetworkErrorWouldBlock:
		return errors.KindWouldBlock
	case NetworkErrorInvalidArgument, NetworkErrorInvalidState, NetworkErrorNotInProgress:
		return errors.KindInvalidArgument
	case NetworkErrorTimeout:
		return errors.KindTimeout
	case NetworkErrorNotSupported:
		return errors.KindUnsupported
	default:
		return errors.KindGeneric
	}
}

func netErr(code NetworkErrorCode) *NetworkError {
	return &NetworkError{Code: code}
}

// mapNetError converts Go net package errors to WASI network error codes.
func mapNetError(err error) *NetworkError {
	if err == nil {
		return nil
	}
	ne := classify(err)
	ne.Cause = err
	return ne
}

func classify(err error) *NetworkError {

	// Check for specific error types
	var opErr *net.OpError
	if stderrors.As(err, &opErr) {
		return mapOpError(opErr)
	}

	var addrErr *net.AddrError
	if stderrors.As(err, &addrErr) {
		return &NetworkError{Code: NetworkErrorInvalidArgument}
	}

	var dnsErr *net.DNSError
	if stderrors.As(err, &dnsErr) {
		if dnsErr.IsTemporary {
			return &NetworkError{Code: NetworkErrorTemporaryResolverFailure}
		}
		if dnsErr.IsNotFound {
			return &NetworkError{Code: NetworkErrorNameUnresolvable}
		}
		return &NetworkError{Code: NetworkErrorPermanentResolverFailure}
	}

	// Check for timeout
	if os.IsTimeout(err) {
		return &NetworkError{Code: NetworkErrorTimeout}
	}

	// Check for permission error
	if os.IsPermission(err) {
		return &NetworkError{Code: NetworkErrorAccessDenied}
	}

	return &NetworkError{Code: NetworkErrorUnknown}
}

// mapOpError converts net.OpError to WASI network error codes.
func mapOpError(opErr *net.OpError) *NetworkError {
	// Check for syscall errors
	var errno syscall.Errno
	if stderrors.As(opErr.Err, &errno) {
		return mapErrno(errno)
	}

	// Check if it's a timeout
	if opErr.Timeout() {
		return &NetworkError{Code: NetworkErrorTimeout}
	}

	// Check for common error messages
	if opErr.Err != nil {
		switch opErr.Err.Error() {
		case "connection refused":
			return &NetworkError{Code: NetworkErrorConnectionRefused}
		case "connection reset":
			return &NetworkError{Code: NetworkErrorConnectionReset}
		case "connection reset by peer":
			return &NetworkError{Code: NetworkErrorConnectionReset}
		case "broken pipe":
			return &NetworkError{Code: NetworkErrorConnectionAborted}
		case "network is unreachable":
			return &NetworkError{Code: NetworkErrorRemoteUnreachable}
		case "host is unreachable":
			return &NetworkError{Code: NetworkErrorRemoteUnreachable}
		case "no route to host":
			return &NetworkError{Code: NetworkErrorRemoteUnreachable}
		}
	}

	return &NetworkError{Code: NetworkErrorUnknown}
}

// mapErrno converts syscall.Errno to WASI network error codes.
func mapErrno(errno syscall.Errno) *NetworkError {
	switch errno {
	case syscall.EACCES, syscall.EPERM:
		return &NetworkError{Code: NetworkErrorAccessDenied}
	case syscall.EADDRINUSE:
		return &NetworkError{Code: NetworkErrorAddressInUse}
	case syscall.EADDRNOTAVAIL:
		return &NetworkError{Code: NetworkErrorAddressNotBindable}
	case syscall.ECONNREFUSED:
		return &NetworkError{Code: NetworkErrorConnectionRefused}
	case syscall.ECONNRESET:
		return &NetworkError{Code: NetworkErrorConnectionReset}
	case syscall.ECONNABORTED:
		return &NetworkError{Code: NetworkErrorConnectionAborted}
	case syscall.EHOSTUNREACH:
		return &NetworkError{Code: NetworkErrorRemoteUnreachable}
	case syscall.ENETUNREACH:
		return &NetworkError{Code: NetworkErrorRemoteUnreachable}
	case syscall.ETIMEDOUT:
		return &NetworkError{Code: NetworkErrorTimeout}
	case syscall.EINVAL:
		return &NetworkError{Code: NetworkErrorInvalidArgument}
	case syscall.ENOMEM:
		return &NetworkError{Code: NetworkErrorOutOfMemory}
	case syscall.EWOULDBLOCK:
		return &NetworkError{Code: NetworkErrorWouldBlock}
	case syscall.EINPROGRESS:
		return &NetworkError{Code: NetworkErrorWouldBlock}
	case syscall.EALREADY:
		return &NetworkError{Code: NetworkErrorConcurrencyConflict}
	case syscall.ENOTSOCK:
		return &NetworkError{Code: NetworkErrorInvalidState}
	case syscall.ENOTCONN:
		return &NetworkError{Code: NetworkErrorInvalidState}
	case syscall.EISCONN:
		return &NetworkError{Code: NetworkErrorInvalidState}
	case syscall.EMSGSIZE:
		return &NetworkError{Code: NetworkErrorDatagramTooLarge}
	case syscall.EMFILE, syscall.ENFILE:
		return &NetworkError{Code: NetworkErrorNewSocketLimit}
	default:
		return &NetworkError{Code: NetworkErrorUnknown}
	}
}

func (e *NetworkError) orNil() error {
	if e == nil {
		return nil
	}
	return e
}
