package http

import (
	"context"
	stderrors "errors"
	"net/http"
	"net/url"

	"go.uber.org/zap"
	"golang.org/x/net/http/httpguts"

	"github.com/wippyai/wasi-hostbridge/errors"
	"github.com/wippyai/wasi-hostbridge/host"
	"github.com/wippyai/wasi-hostbridge/wasi/preview2"
)

// OutgoingHandlerNamespace is the WASI HTTP outgoing handler namespace.
const OutgoingHandlerNamespace = "wasi:http/outgoing-handler@0.2.0"

var errBodyAborted = stderrors.New("outgoing-body dropped without finish")

// OutgoingHandlerHost implements wasi:http/outgoing-handler@0.2.0 and the
// outgoing-request, future-incoming-response and incoming-response parts
// of wasi:http/types.
type OutgoingHandlerHost struct {
	types     *TypesHost
	resources *preview2.ResourceTable
	client    *http.Client
	log       *zap.Logger
}

// NewOutgoingHandlerHost creates a new outgoing handler host sharing
// types' resources.
func NewOutgoingHandlerHost(types *TypesHost) *OutgoingHandlerHost {
	return &OutgoingHandlerHost{
		types:     types,
		resources: types.resources,
		client:    types.wasi.HTTPClient(),
		log:       types.log,
	}
}

// Namespace returns the WASI namespace.
func (h *OutgoingHandlerHost) Namespace() string {
	return OutgoingHandlerNamespace
}

func methodFromString(m string) host.Method {
	for i, name := range host.WellKnownMethods() {
		if m == name {
			return host.Method{Tag: host.MethodTag(i)}
		}
	}
	return host.Method{Tag: host.MethodOther, Other: m}
}

// Outgoing requests

// NewOutgoingRequest consumes headers. The method defaults to GET.
func (h *OutgoingHandlerHost) NewOutgoingRequest(headers host.Handle) host.Handle {
	fields := h.types.takeFields(headers)
	if fields == nil {
		return host.Invalid
	}
	return h.resources.Add(&outgoingRequestResource{
		headers: fields,
		method:  host.Method{Tag: host.MethodGet},
	})
}

func (h *OutgoingHandlerHost) outgoingRequest(op string, r host.Handle) (*outgoingRequestResource, error) {
	req, ok := preview2.Lookup[*outgoingRequestResource](h.resources, r)
	if !ok {
		return nil, invalidHandle(errors.PhaseRequest, op)
	}
	return req, nil
}

func (h *OutgoingHandlerHost) OutgoingRequestSetMethod(r host.Handle, m host.Method) error {
	req, err := h.outgoingRequest("outgoing-request.set-method", r)
	if err != nil {
		return err
	}
	if m.Tag == host.MethodOther && !httpguts.ValidHeaderFieldName(m.Other) {
		return errors.InvalidArgument(errors.PhaseRequest, "outgoing-request.set-method", "invalid method token")
	}
	req.method = m
	return nil
}

func (h *OutgoingHandlerHost) OutgoingRequestSetScheme(r host.Handle, s *host.Scheme) error {
	req, err := h.outgoingRequest("outgoing-request.set-scheme", r)
	if err != nil {
		return err
	}
	if s != nil && s.Tag == host.SchemeOther && s.Other == "" {
		return errors.InvalidArgument(errors.PhaseRequest, "outgoing-request.set-scheme", "empty scheme")
	}
	req.scheme = s
	return nil
}

func (h *OutgoingHandlerHost) OutgoingRequestSetAuthority(r host.Handle, authority *string) error {
	req, err := h.outgoingRequest("outgoing-request.set-authority", r)
	if err != nil {
		return err
	}
	req.authority = authority
	return nil
}

func (h *OutgoingHandlerHost) OutgoingRequestSetPathWithQuery(r host.Handle, path *string) error {
	req, err := h.outgoingRequest("outgoing-request.set-path-with-query", r)
	if err != nil {
		return err
	}
	req.path = path
	return nil
}

func (h *OutgoingHandlerHost) OutgoingRequestHeaders(r host.Handle) host.Handle {
	req, err := h.outgoingRequest("outgoing-request.headers", r)
	if err != nil {
		return host.Invalid
	}
	return h.resources.Add(preview2.NewImmutableFields(h.types.wasi.ForbiddenHeaders(), req.headers.Entries()))
}

// OutgoingRequestBody returns the request body. It succeeds once. Bytes
// written to it are streamed to the server after OutgoingHandle.
func (h *OutgoingHandlerHost) OutgoingRequestBody(r host.Handle) (host.Handle, error) {
	req, err := h.outgoingRequest("outgoing-request.body", r)
	if err != nil {
		return host.Invalid, err
	}
	if req.body != nil {
		return host.Invalid, errors.Consumed(errors.PhaseBody, "outgoing-request body")
	}
	pipe := preview2.NewPipe()
	req.body = pipe

	body := newOutgoingBody(pipe, contentLength(req.headers))
	body.finish = func() { _ = pipe.Close() }
	body.abort = func() { _ = pipe.CloseWithError(errBodyAborted) }
	return h.resources.Add(body), nil
}

func (h *OutgoingHandlerHost) DropOutgoingRequest(r host.Handle) {
	h.types.drop("outgoing-request", r)
}

// buildRequest turns the resource into an *http.Request. Missing scheme is
// http and missing path is "/".
func (req *outgoingRequestResource) buildRequest(ctx context.Context) (*http.Request, error) {
	if req.authority == nil || *req.authority == "" {
		return nil, errors.InvalidArgument(errors.PhaseRequest, "handle", "request has no authority")
	}
	u := &url.URL{Scheme: "http", Host: *req.authority, Path: "/"}
	if req.scheme != nil {
		u.Scheme = req.scheme.String()
	}
	if req.path != nil && *req.path != "" {
		parsed, err := url.ParseRequestURI(*req.path)
		if err != nil {
			return nil, errors.Wrap(errors.PhaseRequest, errors.KindInvalidArgument, err, "invalid path-with-query")
		}
		u.Path, u.RawPath, u.RawQuery = parsed.Path, parsed.RawPath, parsed.RawQuery
	}

	hr, err := http.NewRequestWithContext(ctx, req.method.String(), u.String(), http.NoBody)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseRequest, errors.KindInvalidArgument, err, "build request")
	}
	for _, e := range req.headers.Entries() {
		hr.Header.Add(string(e.Name), string(e.Value))
	}
	if req.body != nil {
		hr.Body = req.body
		hr.ContentLength = contentLength(req.headers)
		hr.GetBody = nil
	}
	return hr, nil
}

// OutgoingHandle consumes req and sends it on a goroutine. The returned
// future becomes ready when response headers arrive or the request fails.
func (h *OutgoingHandlerHost) OutgoingHandle(ctx context.Context, r host.Handle) (host.Handle, error) {
	req, err := h.outgoingRequest("handle", r)
	if err != nil {
		return host.Invalid, err
	}
	hr, err := req.buildRequest(context.WithoutCancel(ctx))
	h.types.drop("outgoing-request", r)
	if err != nil {
		return host.Invalid, err
	}

	future := &futureIncomingResponseResource{done: make(chan struct{})}
	handle := h.resources.Add(future)
	go func() {
		defer close(future.done)
		resp, err := h.client.Do(hr)
		if err != nil {
			h.log.Debug("outgoing request failed", zap.String("url", hr.URL.String()), zap.Error(err))
			future.err = errors.Wrap(errors.PhaseRequest, errors.KindGeneric, err, "send request")
			return
		}
		future.response = resp
	}()
	return handle, nil
}

// Future incoming responses

func (h *OutgoingHandlerHost) FutureIncomingResponseSubscribe(f host.Handle) host.Handle {
	future, ok := preview2.Lookup[*futureIncomingResponseResource](h.resources, f)
	if !ok {
		return host.Invalid
	}
	p, _ := h.resources.AddChild(f, preview2.NewFuncPollable(future.ready))
	return p
}

// FutureIncomingResponseGet yields the response or the request error once.
func (h *OutgoingHandlerHost) FutureIncomingResponseGet(f host.Handle) (host.Handle, bool, error) {
	future, ok := preview2.Lookup[*futureIncomingResponseResource](h.resources, f)
	if !ok {
		return host.Invalid, false, invalidHandle(errors.PhaseRequest, "future-incoming-response.get")
	}
	if !future.ready() {
		return host.Invalid, false, nil
	}
	if future.taken {
		return host.Invalid, true, errors.Consumed(errors.PhaseRequest, "future-incoming-response")
	}
	future.taken = true
	if future.err != nil {
		return host.Invalid, true, future.err
	}

	resp := future.response
	return h.resources.Add(&incomingResponseResource{
		response: resp,
		status:   uint16(resp.StatusCode),
		headers:  fieldsFromHeader(resp.Header),
	}), true, nil
}

func (h *OutgoingHandlerHost) DropFutureIncomingResponse(f host.Handle) {
	h.types.drop("future-incoming-response", f)
}

// Incoming responses

func (h *OutgoingHandlerHost) incomingResponse(r host.Handle) *incomingResponseResource {
	resp, _ := preview2.Lookup[*incomingResponseResource](h.resources, r)
	return resp
}

func (h *OutgoingHandlerHost) IncomingResponseStatus(r host.Handle) uint16 {
	if resp := h.incomingResponse(r); resp != nil {
		return resp.status
	}
	return 0
}

func (h *OutgoingHandlerHost) IncomingResponseHeaders(r host.Handle) host.Handle {
	resp := h.incomingResponse(r)
	if resp == nil {
		return host.Invalid
	}
	return h.resources.Add(preview2.NewImmutableFields(h.types.wasi.ForbiddenHeaders(), resp.headers))
}

// IncomingResponseConsume returns the response body, streamed from the
// connection. It succeeds once.
func (h *OutgoingHandlerHost) IncomingResponseConsume(r host.Handle) (host.Handle, error) {
	resp := h.incomingResponse(r)
	if resp == nil {
		return host.Invalid, invalidHandle(errors.PhaseRequest, "incoming-response.consume")
	}
	if resp.consumed {
		return host.Invalid, errors.Consumed(errors.PhaseRequest, "incoming-response body")
	}
	resp.consumed = true

	pipe := preview2.NewPipe()
	go pipe.Fill(resp.response.Body)
	return h.resources.Add(&incomingBodyResource{
		pipe:   pipe,
		onDrop: func() { _ = resp.response.Body.Close() },
	}), nil
}

func (h *OutgoingHandlerHost) DropIncomingResponse(r host.Handle) {
	h.types.drop("incoming-response", r)
}
