package http

import (
	"context"
	"net/url"
	"strings"

	"github.com/wippyai/wasi-hostbridge/errors"
	"github.com/wippyai/wasi-hostbridge/host"
	"github.com/wippyai/wasi-hostbridge/resource"
)

// MethodFromString maps a method token to a host method. The empty string
// is GET; the nine well-known tokens match in any case; anything else is
// passed through unchanged as Other.
func MethodFromString(method string) host.Method {
	if method == "" {
		return host.Method{Tag: host.MethodGet}
	}
	for i, name := range host.WellKnownMethods() {
		if strings.EqualFold(method, name) {
			return host.Method{Tag: host.MethodTag(i)}
		}
	}
	return host.Method{Tag: host.MethodOther, Other: method}
}

// IncomingRequest is the request delivered to the handler.
type IncomingRequest struct {
	h       Host
	ref     *resource.Ref[IncomingRequest]
	headers *HeadersReadOnly
	body    *IncomingBody
	method  string
	url     string
	hasURL  bool
}

// NewIncomingRequest takes ownership of a host incoming-request handle.
func NewIncomingRequest(h Host, handle host.Handle) *IncomingRequest {
	return &IncomingRequest{h: h, ref: resource.Own[IncomingRequest](handle)}
}

// Method returns the request method.
func (r *IncomingRequest) Method() string {
	if r.method == "" {
		r.method = r.h.IncomingRequestMethod(r.ref.Borrow()).String()
	}
	return r.method
}

// URL returns scheme://authority/path?query, computed once. ok is false
// when the host did not supply all three parts.
func (r *IncomingRequest) URL() (string, bool) {
	if r.hasURL {
		return r.url, true
	}
	handle := r.ref.Borrow()
	scheme, ok := r.h.IncomingRequestScheme(handle)
	if !ok {
		return "", false
	}
	authority, ok := r.h.IncomingRequestAuthority(handle)
	if !ok {
		return "", false
	}
	path, ok := r.h.IncomingRequestPathWithQuery(handle)
	if !ok {
		return "", false
	}
	r.url = scheme.String() + "://" + authority + path
	r.hasURL = true
	return r.url, true
}

// Headers returns the request headers.
func (r *IncomingRequest) Headers() *HeadersReadOnly {
	if r.headers == nil {
		r.headers = newHeadersReadOnly(r.h, r.h.IncomingRequestHeaders(r.ref.Borrow()))
	}
	return r.headers
}

// Body returns the request body.
func (r *IncomingRequest) Body() (*IncomingBody, error) {
	if r.body == nil {
		b, err := r.h.IncomingRequestConsume(r.ref.Borrow())
		if err != nil {
			return nil, hostErr("incoming-request.consume", err)
		}
		r.body = newIncomingBody(r.h, b)
	}
	return r.body, nil
}

// Close releases the headers and the request. A body obtained from Body
// is closed separately.
func (r *IncomingRequest) Close() {
	if r.headers != nil && r.headers.Valid() {
		r.headers.Close()
	}
	r.h.DropIncomingRequest(r.ref.Take())
}

// OutgoingRequest is a request to be sent with Send.
type OutgoingRequest struct {
	h       Host
	ref     *resource.Ref[OutgoingRequest]
	headers *HeadersReadOnly
	body    *OutgoingBody
	method  string
	url     string
}

// NewOutgoingRequest creates a request. rawURL is optional; when given it
// must be absolute. headers is consumed.
func NewOutgoingRequest(h Host, method, rawURL string, headers *Headers) (*OutgoingRequest, error) {
	var (
		scheme    *host.Scheme
		authority *string
		path      *string
	)
	if rawURL != "" {
		u, err := url.Parse(rawURL)
		if err != nil {
			return nil, errors.New(errors.PhaseRequest, errors.KindInvalidArgument).Op("new-outgoing-request").Cause(err).Build()
		}
		if !u.IsAbs() || u.Host == "" {
			return nil, errors.New(errors.PhaseRequest, errors.KindInvalidArgument).Op("new-outgoing-request").Value(rawURL).Detail("url is not absolute").Build()
		}
		s := host.ParseScheme(u.Scheme)
		a := u.Host
		p := u.RequestURI()
		scheme, authority, path = &s, &a, &p
	}
	if headers == nil {
		headers = NewHeaders(h)
	}

	handle := h.NewOutgoingRequest(headers.take())
	if handle == host.Invalid {
		return nil, errors.InvalidArgument(errors.PhaseRequest, "new-outgoing-request", "host rejected headers")
	}
	req := &OutgoingRequest{
		h:      h,
		ref:    resource.Own[OutgoingRequest](handle),
		method: method,
		url:    rawURL,
	}

	if err := h.OutgoingRequestSetMethod(handle, MethodFromString(method)); err != nil {
		req.Close()
		return nil, hostErr("outgoing-request.set-method", err)
	}
	if err := h.OutgoingRequestSetScheme(handle, scheme); err != nil {
		req.Close()
		return nil, hostErr("outgoing-request.set-scheme", err)
	}
	if err := h.OutgoingRequestSetAuthority(handle, authority); err != nil {
		req.Close()
		return nil, hostErr("outgoing-request.set-authority", err)
	}
	if err := h.OutgoingRequestSetPathWithQuery(handle, path); err != nil {
		req.Close()
		return nil, hostErr("outgoing-request.set-path-with-query", err)
	}
	return req, nil
}

// Method returns the method string the request was created with.
func (r *OutgoingRequest) Method() string {
	return r.method
}

// URL returns the URL the request was created with.
func (r *OutgoingRequest) URL() string {
	return r.url
}

// Headers returns a read-only view of the request headers.
func (r *OutgoingRequest) Headers() *HeadersReadOnly {
	if r.headers == nil {
		r.headers = newHeadersReadOnly(r.h, r.h.OutgoingRequestHeaders(r.ref.Borrow()))
	}
	return r.headers
}

// Body returns the request body. Its content length hint comes from the
// request's content-length header.
func (r *OutgoingRequest) Body() (*OutgoingBody, error) {
	if r.body == nil {
		b, err := r.h.OutgoingRequestBody(r.ref.Borrow())
		if err != nil {
			return nil, hostErr("outgoing-request.body", err)
		}
		r.body = newOutgoingBody(r.h, b, contentLengthOf(r.Headers()))
	}
	return r.body, nil
}

// Send hands the request to the host and returns the pending response.
// The request handle is consumed; only the body stays usable, and it must
// be closed to complete the request.
func (r *OutgoingRequest) Send(ctx context.Context) (*FutureIncomingResponse, error) {
	r.releaseHeaders()
	f, err := r.h.OutgoingHandle(ctx, r.ref.Take())
	if err != nil {
		return nil, hostErr("outgoing-handler.handle", err)
	}
	return newFutureIncomingResponse(r.h, f), nil
}

// Close drops a request that was never sent.
func (r *OutgoingRequest) Close() {
	r.releaseHeaders()
	r.h.DropOutgoingRequest(r.ref.Take())
}

func (r *OutgoingRequest) releaseHeaders() {
	if r.headers != nil && r.headers.Valid() {
		r.headers.Close()
	}
}
