package http

import (
	"bytes"
	"io"
	"maps"
	"net/http"
	"slices"
	"strconv"
	"sync"

	"github.com/wippyai/wasi-hostbridge/errors"
	"github.com/wippyai/wasi-hostbridge/host"
	"github.com/wippyai/wasi-hostbridge/wasi/preview2"
)

type incomingRequestResource struct {
	body      *preview2.Pipe
	scheme    host.Scheme
	authority string
	path      string
	method    host.Method
	headers   []host.Field
	hasScheme bool
	consumed  bool
}

func (r *incomingRequestResource) Type() preview2.ResourceType {
	return preview2.ResourceIncomingRequest
}
func (r *incomingRequestResource) Drop() {}

// incomingBodyResource is the body of an incoming request or response.
// Its stream is a child resource.
type incomingBodyResource struct {
	pipe     *preview2.Pipe
	onDrop   func()
	streamed bool
}

func (b *incomingBodyResource) Type() preview2.ResourceType { return preview2.ResourceIncomingBody }
func (b *incomingBodyResource) Drop() {
	if b.onDrop != nil {
		b.onDrop()
		b.onDrop = nil
	}
}

type incomingResponseResource struct {
	response *http.Response
	headers  []host.Field
	status   uint16
	consumed bool
}

func (r *incomingResponseResource) Type() preview2.ResourceType {
	return preview2.ResourceIncomingResponse
}
func (r *incomingResponseResource) Drop() {
	if !r.consumed && r.response.Body != nil {
		_ = r.response.Body.Close()
	}
}

// outgoingBodyResource counts what its stream writes so finish can check
// the declared content length. abort runs when the body is dropped
// without being finished.
type outgoingBodyResource struct {
	sink     io.Writer
	finish   func()
	abort    func()
	limit    int64
	written  int64
	mu       sync.Mutex
	streamed bool
	finished bool
}

func newOutgoingBody(sink io.Writer, limit int64) *outgoingBodyResource {
	return &outgoingBodyResource{sink: sink, limit: limit}
}

func (b *outgoingBodyResource) Type() preview2.ResourceType { return preview2.ResourceOutgoingBody }
func (b *outgoingBodyResource) Drop() {
	b.mu.Lock()
	finished := b.finished
	b.mu.Unlock()
	switch {
	case finished && b.finish != nil:
		b.finish()
	case !finished && b.abort != nil:
		b.abort()
	}
}

func (b *outgoingBodyResource) Write(p []byte) (int, error) {
	n, err := b.sink.Write(p)
	b.mu.Lock()
	b.written += int64(n)
	b.mu.Unlock()
	return n, err
}

func (b *outgoingBodyResource) Flush() {
	if f, ok := b.sink.(interface{ Flush() }); ok {
		f.Flush()
	}
}

func (b *outgoingBodyResource) checkLength() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.limit >= 0 && b.written != b.limit {
		return errors.New(errors.PhaseBody, errors.KindInvalidArgument).
			Op("outgoing-body.finish").
			Detail("wrote %d bytes, content-length is %d", b.written, b.limit).
			Build()
	}
	return nil
}

type outgoingResponseResource struct {
	headers *preview2.FieldsResource
	body    *responseSink
	status  uint16
}

func (r *outgoingResponseResource) Type() preview2.ResourceType {
	return preview2.ResourceOutgoingResponse
}
func (r *outgoingResponseResource) Drop() {}

// responseSink buffers body bytes until the response is handed to its
// outparam, then writes through to the http.ResponseWriter.
type responseSink struct {
	w   http.ResponseWriter
	buf bytes.Buffer
	mu  sync.Mutex
}

func (s *responseSink) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.w == nil {
		return s.buf.Write(p)
	}
	return s.w.Write(p)
}

func (s *responseSink) Flush() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if f, ok := s.w.(http.Flusher); ok {
		f.Flush()
	}
}

func (s *responseSink) commit(w http.ResponseWriter) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.w = w
	if s.buf.Len() == 0 {
		return nil
	}
	_, err := w.Write(s.buf.Bytes())
	s.buf.Reset()
	return err
}

type responseOutparamResource struct {
	w    http.ResponseWriter
	done chan struct{}
	once sync.Once
}

func (o *responseOutparamResource) Type() preview2.ResourceType {
	return preview2.ResourceResponseOutparam
}
func (o *responseOutparamResource) Drop() {}

// resolve marks the outparam answered. Returns false if it already was.
func (o *responseOutparamResource) resolve() bool {
	first := false
	o.once.Do(func() {
		first = true
		close(o.done)
	})
	return first
}

type outgoingRequestResource struct {
	headers   *preview2.FieldsResource
	body      *preview2.Pipe
	scheme    *host.Scheme
	authority *string
	path      *string
	method    host.Method
}

func (r *outgoingRequestResource) Type() preview2.ResourceType {
	return preview2.ResourceOutgoingRequest
}
func (r *outgoingRequestResource) Drop() {}

type futureIncomingResponseResource struct {
	response *http.Response
	err      error
	done     chan struct{}
	taken    bool
}

func (f *futureIncomingResponseResource) Type() preview2.ResourceType {
	return preview2.ResourceFutureIncomingResponse
}

// Drop closes a response nobody collected.
func (f *futureIncomingResponseResource) Drop() {
	if f.taken {
		return
	}
	go func() {
		<-f.done
		if f.response != nil {
			_ = f.response.Body.Close()
		}
	}()
}

func (f *futureIncomingResponseResource) ready() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}

// contentLength returns the declared content-length, or -1.
func contentLength(fields *preview2.FieldsResource) int64 {
	values := fields.Get([]byte("content-length"))
	if len(values) != 1 {
		return -1
	}
	n, err := strconv.ParseInt(string(values[0]), 10, 64)
	if err != nil || n < 0 {
		return -1
	}
	return n
}

func fieldsFromHeader(h http.Header) []host.Field {
	var out []host.Field
	for _, name := range slices.Sorted(maps.Keys(h)) {
		for _, v := range h[name] {
			out = append(out, host.Field{Name: []byte(name), Value: []byte(v)})
		}
	}
	return out
}
