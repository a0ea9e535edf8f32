package http

import (
	"net/http"

	"github.com/wippyai/wasi-hostbridge/errors"
	"github.com/wippyai/wasi-hostbridge/host"
	"github.com/wippyai/wasi-hostbridge/resource"
)

// IncomingResponse is the response to an outgoing request.
type IncomingResponse struct {
	h       Host
	ref     *resource.Ref[IncomingResponse]
	headers *HeadersReadOnly
	body    *IncomingBody
	status  uint16
}

func newIncomingResponse(h Host, handle host.Handle) *IncomingResponse {
	return &IncomingResponse{h: h, ref: resource.Own[IncomingResponse](handle)}
}

// Status returns the response status code.
func (r *IncomingResponse) Status() uint16 {
	if r.status == 0 {
		r.status = r.h.IncomingResponseStatus(r.ref.Borrow())
	}
	return r.status
}

// Headers returns the response headers.
func (r *IncomingResponse) Headers() *HeadersReadOnly {
	if r.headers == nil {
		r.headers = newHeadersReadOnly(r.h, r.h.IncomingResponseHeaders(r.ref.Borrow()))
	}
	return r.headers
}

// Body returns the response body.
func (r *IncomingResponse) Body() (*IncomingBody, error) {
	if r.body == nil {
		b, err := r.h.IncomingResponseConsume(r.ref.Borrow())
		if err != nil {
			return nil, hostErr("incoming-response.consume", err)
		}
		r.body = newIncomingBody(r.h, b)
	}
	return r.body, nil
}

// Close releases the headers and the response. A body obtained from Body
// is closed separately.
func (r *IncomingResponse) Close() {
	if r.headers != nil && r.headers.Valid() {
		r.headers.Close()
	}
	r.h.DropIncomingResponse(r.ref.Take())
}

// OutgoingResponse is a response under construction. Obtain its body
// before sending it; Send consumes the response handle.
type OutgoingResponse struct {
	h       Host
	ref     *resource.Ref[OutgoingResponse]
	headers *HeadersReadOnly
	body    *OutgoingBody
	status  uint16
}

// NewOutgoingResponse creates a response with the given status. headers is
// consumed; nil means no headers. The host defaults to 200, so the status
// is only set on the host when it differs.
func NewOutgoingResponse(h Host, status uint16, headers *Headers) (*OutgoingResponse, error) {
	if headers == nil {
		headers = NewHeaders(h)
	}
	handle := h.NewOutgoingResponse(headers.take())
	if handle == host.Invalid {
		return nil, errors.InvalidArgument(errors.PhaseRequest, "new-outgoing-response", "host rejected headers")
	}
	resp := &OutgoingResponse{h: h, ref: resource.Own[OutgoingResponse](handle), status: http.StatusOK}
	if status != http.StatusOK {
		if err := h.OutgoingResponseSetStatusCode(handle, status); err != nil {
			resp.Close()
			return nil, hostErr("outgoing-response.set-status-code", err)
		}
		resp.status = status
	}
	return resp, nil
}

// Status returns the response status code.
func (r *OutgoingResponse) Status() uint16 {
	return r.status
}

// Headers returns a read-only view of the response headers.
func (r *OutgoingResponse) Headers() *HeadersReadOnly {
	if r.headers == nil {
		r.headers = newHeadersReadOnly(r.h, r.h.OutgoingResponseHeaders(r.ref.Borrow()))
	}
	return r.headers
}

// Body returns the response body. Its content length hint comes from the
// response's content-length header.
func (r *OutgoingResponse) Body() (*OutgoingBody, error) {
	if r.body == nil {
		b, err := r.h.OutgoingResponseBody(r.ref.Borrow())
		if err != nil {
			return nil, hostErr("outgoing-response.body", err)
		}
		r.body = newOutgoingBody(r.h, b, contentLengthOf(r.Headers()))
	}
	return r.body, nil
}

// Close drops a response that was never sent.
func (r *OutgoingResponse) Close() {
	r.releaseHeaders()
	r.h.DropOutgoingResponse(r.ref.Take())
}

func (r *OutgoingResponse) releaseHeaders() {
	if r.headers != nil && r.headers.Valid() {
		r.headers.Close()
	}
}

// ResponseOut is the slot the host handed in for the response to the
// current incoming request. It is answered exactly once, by Send or
// SendError; a second answer is a contract violation.
type ResponseOut struct {
	h   Host
	ref *resource.Ref[ResponseOut]
}

// NewResponseOut takes ownership of a host response-outparam handle.
func NewResponseOut(h Host, handle host.Handle) *ResponseOut {
	return &ResponseOut{h: h, ref: resource.Own[ResponseOut](handle)}
}

// Send answers with resp, consuming it. Body bytes written before Send are
// delivered after the status and headers; later writes stream through.
func (o *ResponseOut) Send(resp *OutgoingResponse) {
	out := o.ref.Take()
	resp.releaseHeaders()
	o.h.ResponseOutparamSet(out, resp.ref.Take())
}

// SendError answers with a server error carrying message.
func (o *ResponseOut) SendError(message string) {
	o.h.ResponseOutparamSetError(o.ref.Take(), message)
}

// Sent reports whether the slot has been answered.
func (o *ResponseOut) Sent() bool {
	return !o.ref.Valid()
}
