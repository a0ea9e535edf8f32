package http

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/wippyai/wasi-hostbridge/errors"
	"github.com/wippyai/wasi-hostbridge/host"
	"github.com/wippyai/wasi-hostbridge/wasi/preview2"
)

// TypesNamespace is the WASI HTTP types namespace.
const TypesNamespace = "wasi:http/types@0.2.0"

// TypesHost implements wasi:http/types@0.2.0: fields, incoming requests,
// outgoing responses and bodies.
type TypesHost struct {
	wasi      *preview2.WASI
	resources *preview2.ResourceTable
	log       *zap.Logger
}

// NewTypesHost creates a new HTTP types host.
func NewTypesHost(w *preview2.WASI) *TypesHost {
	return &TypesHost{
		wasi:      w,
		resources: w.Resources(),
		log:       w.Log(),
	}
}

// Namespace returns the WASI namespace.
func (h *TypesHost) Namespace() string {
	return TypesNamespace
}

func (h *TypesHost) drop(kind string, handle host.Handle) {
	if err := h.resources.Remove(handle); err != nil {
		h.log.Warn("drop "+kind, zap.Uint32("handle", uint32(handle)), zap.Error(err))
	}
}

func invalidHandle(phase errors.Phase, op string) error {
	return errors.InvalidArgument(phase, op, "unknown handle")
}

// Fields

func (h *TypesHost) fields(f host.Handle) *preview2.FieldsResource {
	fields, _ := preview2.Lookup[*preview2.FieldsResource](h.resources, f)
	return fields
}

func (h *TypesHost) NewFields() host.Handle {
	return h.resources.Add(h.wasi.NewFields())
}

// FieldsFromList builds mutable fields from entries, failing on the first
// invalid or forbidden one.
func (h *TypesHost) FieldsFromList(entries []host.Field) (host.Handle, error) {
	fields := h.wasi.NewFields()
	for _, e := range entries {
		if err := fields.Append(e.Name, e.Value); err != nil {
			return host.Invalid, err
		}
	}
	return h.resources.Add(fields), nil
}

func (h *TypesHost) FieldsGet(f host.Handle, name []byte) [][]byte {
	if fields := h.fields(f); fields != nil {
		return fields.Get(name)
	}
	return nil
}

func (h *TypesHost) FieldsHas(f host.Handle, name []byte) bool {
	if fields := h.fields(f); fields != nil {
		return fields.Has(name)
	}
	return false
}

func (h *TypesHost) FieldsSet(f host.Handle, name []byte, values [][]byte) error {
	fields := h.fields(f)
	if fields == nil {
		return invalidHandle(errors.PhaseHeaders, "fields.set")
	}
	return fields.Set(name, values)
}

func (h *TypesHost) FieldsAppend(f host.Handle, name, value []byte) error {
	fields := h.fields(f)
	if fields == nil {
		return invalidHandle(errors.PhaseHeaders, "fields.append")
	}
	return fields.Append(name, value)
}

func (h *TypesHost) FieldsDelete(f host.Handle, name []byte) error {
	fields := h.fields(f)
	if fields == nil {
		return invalidHandle(errors.PhaseHeaders, "fields.delete")
	}
	return fields.Delete(name)
}

func (h *TypesHost) FieldsEntries(f host.Handle) []host.Field {
	if fields := h.fields(f); fields != nil {
		return fields.Entries()
	}
	return nil
}

func (h *TypesHost) FieldsClone(f host.Handle) host.Handle {
	fields := h.fields(f)
	if fields == nil {
		return host.Invalid
	}
	return h.resources.Add(fields.Clone())
}

func (h *TypesHost) DropFields(f host.Handle) {
	h.drop("fields", f)
}

// takeFields removes f from the table and returns it, for constructors
// that consume their headers.
func (h *TypesHost) takeFields(f host.Handle) *preview2.FieldsResource {
	fields := h.fields(f)
	if fields == nil {
		return nil
	}
	if err := h.resources.Remove(f); err != nil {
		return nil
	}
	return fields.Clone()
}

// Incoming requests

// NewIncomingRequest registers r as an incoming-request resource. The body
// is streamed from r.Body on a goroutine once consumed.
func (h *TypesHost) NewIncomingRequest(r *http.Request) host.Handle {
	req := &incomingRequestResource{
		method:    methodFromString(r.Method),
		authority: r.Host,
		path:      r.URL.RequestURI(),
		headers:   fieldsFromHeader(r.Header),
		hasScheme: true,
		scheme:    host.Scheme{Tag: host.SchemeHTTP},
	}
	if r.TLS != nil {
		req.scheme = host.Scheme{Tag: host.SchemeHTTPS}
	}
	if r.Body == nil || r.Body == http.NoBody {
		req.body = preview2.NewClosedPipe(nil)
	} else {
		req.body = preview2.NewPipe()
		go req.body.Fill(r.Body)
	}
	return h.resources.Add(req)
}

func (h *TypesHost) incomingRequest(r host.Handle) *incomingRequestResource {
	req, _ := preview2.Lookup[*incomingRequestResource](h.resources, r)
	return req
}

func (h *TypesHost) IncomingRequestMethod(r host.Handle) host.Method {
	if req := h.incomingRequest(r); req != nil {
		return req.method
	}
	return host.Method{Tag: host.MethodGet}
}

func (h *TypesHost) IncomingRequestScheme(r host.Handle) (host.Scheme, bool) {
	if req := h.incomingRequest(r); req != nil && req.hasScheme {
		return req.scheme, true
	}
	return host.Scheme{}, false
}

func (h *TypesHost) IncomingRequestAuthority(r host.Handle) (string, bool) {
	if req := h.incomingRequest(r); req != nil && req.authority != "" {
		return req.authority, true
	}
	return "", false
}

func (h *TypesHost) IncomingRequestPathWithQuery(r host.Handle) (string, bool) {
	if req := h.incomingRequest(r); req != nil && req.path != "" {
		return req.path, true
	}
	return "", false
}

func (h *TypesHost) IncomingRequestHeaders(r host.Handle) host.Handle {
	req := h.incomingRequest(r)
	if req == nil {
		return host.Invalid
	}
	return h.resources.Add(preview2.NewImmutableFields(h.wasi.ForbiddenHeaders(), req.headers))
}

// IncomingRequestConsume returns the request body. It succeeds once.
func (h *TypesHost) IncomingRequestConsume(r host.Handle) (host.Handle, error) {
	req := h.incomingRequest(r)
	if req == nil {
		return host.Invalid, invalidHandle(errors.PhaseRequest, "incoming-request.consume")
	}
	if req.consumed {
		return host.Invalid, errors.Consumed(errors.PhaseRequest, "incoming-request body")
	}
	req.consumed = true
	return h.resources.Add(&incomingBodyResource{pipe: req.body}), nil
}

func (h *TypesHost) DropIncomingRequest(r host.Handle) {
	h.drop("incoming-request", r)
}

// Incoming bodies

// IncomingBodyStream returns the body's input stream, a child of b. It
// succeeds once.
func (h *TypesHost) IncomingBodyStream(b host.Handle) (host.Handle, error) {
	body, ok := preview2.Lookup[*incomingBodyResource](h.resources, b)
	if !ok {
		return host.Invalid, invalidHandle(errors.PhaseBody, "incoming-body.stream")
	}
	if body.streamed {
		return host.Invalid, errors.Consumed(errors.PhaseBody, "incoming-body stream")
	}
	stream, ok := h.resources.AddChild(b, preview2.NewInputStreamResource(body.pipe, nil))
	if !ok {
		return host.Invalid, invalidHandle(errors.PhaseBody, "incoming-body.stream")
	}
	body.streamed = true
	return stream, nil
}

// DropIncomingBody fails while the body's stream is live.
func (h *TypesHost) DropIncomingBody(b host.Handle) error {
	if err := h.resources.Remove(b); err != nil {
		return errors.Wrap(errors.PhaseBody, errors.KindInvalidArgument, err, "incoming-body stream still live")
	}
	return nil
}

// Outgoing responses

// NewOutgoingResponse consumes headers. The status defaults to 200.
func (h *TypesHost) NewOutgoingResponse(headers host.Handle) host.Handle {
	fields := h.takeFields(headers)
	if fields == nil {
		return host.Invalid
	}
	return h.resources.Add(&outgoingResponseResource{headers: fields, status: http.StatusOK})
}

func (h *TypesHost) outgoingResponse(r host.Handle) *outgoingResponseResource {
	resp, _ := preview2.Lookup[*outgoingResponseResource](h.resources, r)
	return resp
}

func (h *TypesHost) OutgoingResponseSetStatusCode(r host.Handle, status uint16) error {
	resp := h.outgoingResponse(r)
	if resp == nil {
		return invalidHandle(errors.PhaseRequest, "outgoing-response.set-status-code")
	}
	if status < 100 || status > 999 {
		return errors.InvalidArgument(errors.PhaseRequest, "outgoing-response.set-status-code", "status out of range")
	}
	resp.status = status
	return nil
}

func (h *TypesHost) OutgoingResponseHeaders(r host.Handle) host.Handle {
	resp := h.outgoingResponse(r)
	if resp == nil {
		return host.Invalid
	}
	return h.resources.Add(preview2.NewImmutableFields(h.wasi.ForbiddenHeaders(), resp.headers.Entries()))
}

// OutgoingResponseBody returns the response body. It succeeds once.
func (h *TypesHost) OutgoingResponseBody(r host.Handle) (host.Handle, error) {
	resp := h.outgoingResponse(r)
	if resp == nil {
		return host.Invalid, invalidHandle(errors.PhaseBody, "outgoing-response.body")
	}
	if resp.body != nil {
		return host.Invalid, errors.Consumed(errors.PhaseBody, "outgoing-response body")
	}
	resp.body = &responseSink{}
	return h.resources.Add(newOutgoingBody(resp.body, contentLength(resp.headers))), nil
}

func (h *TypesHost) DropOutgoingResponse(r host.Handle) {
	h.drop("outgoing-response", r)
}

// Outgoing bodies

// OutgoingBodyWrite returns the body's output stream, a child of b. It
// succeeds once. The stream refuses writes past a declared
// content-length.
func (h *TypesHost) OutgoingBodyWrite(b host.Handle) (host.Handle, error) {
	body, ok := preview2.Lookup[*outgoingBodyResource](h.resources, b)
	if !ok {
		return host.Invalid, invalidHandle(errors.PhaseBody, "outgoing-body.write")
	}
	if body.streamed {
		return host.Invalid, errors.Consumed(errors.PhaseBody, "outgoing-body stream")
	}
	stream, ok := h.resources.AddChild(b, h.wasi.NewOutputStream(body, body.limit))
	if !ok {
		return host.Invalid, invalidHandle(errors.PhaseBody, "outgoing-body.write")
	}
	body.streamed = true
	return stream, nil
}

// OutgoingBodyFinish consumes b. It fails while the stream is live or when
// the bytes written differ from a declared content-length.
func (h *TypesHost) OutgoingBodyFinish(b host.Handle) error {
	body, ok := preview2.Lookup[*outgoingBodyResource](h.resources, b)
	if !ok {
		return invalidHandle(errors.PhaseBody, "outgoing-body.finish")
	}
	lengthErr := body.checkLength()

	body.mu.Lock()
	body.finished = lengthErr == nil
	body.mu.Unlock()
	if err := h.resources.Remove(b); err != nil {
		body.mu.Lock()
		body.finished = false
		body.mu.Unlock()
		return errors.Wrap(errors.PhaseBody, errors.KindInvalidArgument, err, "outgoing-body stream still live")
	}
	return lengthErr
}

// DropOutgoingBody drops b without finishing it. A request body is
// aborted on the wire.
func (h *TypesHost) DropOutgoingBody(b host.Handle) {
	h.drop("outgoing-body", b)
}

// Response outparams

// NewResponseOutparam registers w as the destination of the response the
// guest will produce. The returned channel closes once it is answered.
func (h *TypesHost) NewResponseOutparam(w http.ResponseWriter) (host.Handle, <-chan struct{}) {
	out := &responseOutparamResource{w: w, done: make(chan struct{})}
	return h.resources.Add(out), out.done
}

// ResponseOutparamSet commits resp's status and headers to the client and
// routes any buffered and future body bytes to it. Consumes out and resp.
func (h *TypesHost) ResponseOutparamSet(out, resp host.Handle) {
	param, ok := preview2.Lookup[*responseOutparamResource](h.resources, out)
	if !ok {
		h.log.Warn("response-outparam.set on unknown handle", zap.Uint32("handle", uint32(out)))
		return
	}
	response := h.outgoingResponse(resp)
	if response == nil {
		h.ResponseOutparamSetError(out, "invalid outgoing-response handle")
		return
	}
	h.drop("response-outparam", out)
	h.drop("outgoing-response", resp)
	if !param.resolve() {
		return
	}

	header := param.w.Header()
	for _, e := range response.headers.Entries() {
		header.Add(string(e.Name), string(e.Value))
	}
	param.w.WriteHeader(int(response.status))
	if response.body != nil {
		if err := response.body.commit(param.w); err != nil {
			h.log.Warn("write buffered response body", zap.Error(err))
		}
	}
}

// ResponseOutparamSetError answers with a 500 carrying message. Consumes
// out.
func (h *TypesHost) ResponseOutparamSetError(out host.Handle, message string) {
	param, ok := preview2.Lookup[*responseOutparamResource](h.resources, out)
	if !ok {
		return
	}
	h.drop("response-outparam", out)
	if param.resolve() {
		http.Error(param.w, message, http.StatusInternalServerError)
	}
}
