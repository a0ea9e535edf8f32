package host

import (
	"strings"

	"github.com/wippyai/wasi-hostbridge/resource"
)

// Handle is a host resource handle.
type Handle = resource.Handle

// Invalid is the zero handle; no live resource has it.
const Invalid = resource.Invalid

// MethodTag enumerates the well-known HTTP methods plus Other.
type MethodTag uint8

const (
	MethodGet MethodTag = iota
	MethodHead
	MethodPost
	MethodPut
	MethodDelete
	MethodConnect
	MethodOptions
	MethodTrace
	MethodPatch
	MethodOther
)

var methodNames = [...]string{
	MethodGet:     "GET",
	MethodHead:    "HEAD",
	MethodPost:    "POST",
	MethodPut:     "PUT",
	MethodDelete:  "DELETE",
	MethodConnect: "CONNECT",
	MethodOptions: "OPTIONS",
	MethodTrace:   "TRACE",
	MethodPatch:   "PATCH",
}

// WellKnownMethods returns the canonical names of the non-Other tags, in tag
// order.
func WellKnownMethods() []string {
	out := make([]string, len(methodNames))
	copy(out, methodNames[:])
	return out
}

// Method is an HTTP method as carried across the host boundary. Other holds
// the raw token when Tag is MethodOther.
type Method struct {
	Other string
	Tag   MethodTag
}

func (m Method) String() string {
	if m.Tag == MethodOther {
		return m.Other
	}
	if int(m.Tag) < len(methodNames) {
		return methodNames[m.Tag]
	}
	return ""
}

// SchemeTag enumerates URL schemes known to the host.
type SchemeTag uint8

const (
	SchemeHTTP SchemeTag = iota
	SchemeHTTPS
	SchemeOther
)

// Scheme is a request scheme. Other holds the raw scheme when Tag is
// SchemeOther.
type Scheme struct {
	Other string
	Tag   SchemeTag
}

func (s Scheme) String() string {
	switch s.Tag {
	case SchemeHTTP:
		return "http"
	case SchemeHTTPS:
		return "https"
	default:
		return s.Other
	}
}

// ParseScheme maps a scheme string (without ':') to a Scheme.
func ParseScheme(raw string) Scheme {
	switch strings.ToLower(raw) {
	case "http":
		return Scheme{Tag: SchemeHTTP}
	case "https":
		return Scheme{Tag: SchemeHTTPS}
	default:
		return Scheme{Tag: SchemeOther, Other: raw}
	}
}

// Field is one header entry. Names and values are raw bytes.
type Field struct {
	Name  []byte
	Value []byte
}

// IPAddressFamily selects the socket address family.
type IPAddressFamily uint8

const (
	IPv4 IPAddressFamily = iota
	IPv6
)

// ShutdownType selects which direction of a socket to shut down.
type ShutdownType uint8

const (
	ShutdownReceive ShutdownType = iota
	ShutdownSend
	ShutdownBoth
)

// DefaultForbiddenHeaders is the deny-list hosts apply to mutable header
// fields. Names are lower case.
var DefaultForbiddenHeaders = []string{
	"connection",
	"host",
	"http2-settings",
	"keep-alive",
	"proxy-connection",
	"transfer-encoding",
	"upgrade",
}
