package http

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/wippyai/wasi-hostbridge/errors"
	"github.com/wippyai/wasi-hostbridge/host"
	"github.com/wippyai/wasi-hostbridge/wasi/preview2"
)

func newHost(t *testing.T) (*Host, *preview2.WASI) {
	t.Helper()
	w := preview2.New()
	t.Cleanup(w.Close)
	return NewHost(w), w
}

func writeAll(t *testing.T, w *preview2.WASI, stream host.Handle, p []byte) {
	t.Helper()
	out, ok := preview2.Lookup[preview2.OutputStream](w.Resources(), stream)
	if !ok {
		t.Fatal("not an output stream")
	}
	n, err := out.CheckWrite()
	if err != nil || n < uint64(len(p)) {
		t.Fatalf("CheckWrite = %d, %v", n, err)
	}
	if err := out.Write(p); err != nil {
		t.Fatalf("Write: %v", err)
	}
}

func readAll(t *testing.T, w *preview2.WASI, stream host.Handle) string {
	t.Helper()
	in, _ := preview2.Lookup[preview2.InputStream](w.Resources(), stream)
	var sb strings.Builder
	for {
		chunk, err := in.BlockingRead(context.Background(), 1024)
		if errors.IsKind(err, errors.KindStreamClosed) {
			return sb.String()
		}
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		sb.Write(chunk)
	}
}

func TestTypesHost_FieldsFromList(t *testing.T) {
	h, _ := newHost(t)

	f, err := h.FieldsFromList([]host.Field{
		{Name: []byte("x-a"), Value: []byte("1")},
		{Name: []byte("x-b"), Value: []byte("2")},
	})
	if err != nil {
		t.Fatalf("FieldsFromList: %v", err)
	}
	if !h.FieldsHas(f, []byte("X-B")) {
		t.Error("missing x-b")
	}

	_, err = h.FieldsFromList([]host.Field{{Name: []byte("upgrade"), Value: []byte("h2c")}})
	if !errors.IsKind(err, errors.KindForbidden) {
		t.Errorf("forbidden entry: %v", err)
	}
	if err := h.FieldsAppend(9999, []byte("a"), []byte("b")); !errors.IsKind(err, errors.KindInvalidArgument) {
		t.Errorf("unknown handle: %v", err)
	}
}

func TestTypesHost_IncomingRequest(t *testing.T) {
	h, w := newHost(t)

	r := httptest.NewRequest(http.MethodPost, "http://example.com/path?q=1", strings.NewReader("payload"))
	r.Header.Set("X-Test", "yes")
	req := h.NewIncomingRequest(r)

	if m := h.IncomingRequestMethod(req); m.Tag != host.MethodPost {
		t.Errorf("method = %v", m)
	}
	if s, ok := h.IncomingRequestScheme(req); !ok || s.Tag != host.SchemeHTTP {
		t.Errorf("scheme = %v, %v", s, ok)
	}
	if a, _ := h.IncomingRequestAuthority(req); a != "example.com" {
		t.Errorf("authority = %q", a)
	}
	if p, _ := h.IncomingRequestPathWithQuery(req); p != "/path?q=1" {
		t.Errorf("path = %q", p)
	}

	headers := h.IncomingRequestHeaders(req)
	if got := h.FieldsGet(headers, []byte("x-test")); len(got) != 1 || string(got[0]) != "yes" {
		t.Errorf("x-test = %q", got)
	}
	if err := h.FieldsAppend(headers, []byte("x-new"), []byte("1")); !errors.IsKind(err, errors.KindImmutable) {
		t.Errorf("request headers should be immutable: %v", err)
	}

	body, err := h.IncomingRequestConsume(req)
	if err != nil {
		t.Fatalf("Consume: %v", err)
	}
	if _, err := h.IncomingRequestConsume(req); !errors.IsKind(err, errors.KindConsumed) {
		t.Errorf("second consume: %v", err)
	}

	stream, err := h.IncomingBodyStream(body)
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}
	if got := readAll(t, w, stream); got != "payload" {
		t.Errorf("body = %q", got)
	}
	if err := h.DropIncomingBody(body); err == nil {
		t.Error("dropping body with live stream should fail")
	}
	_ = w.Resources().Remove(stream)
	if err := h.DropIncomingBody(body); err != nil {
		t.Errorf("DropIncomingBody: %v", err)
	}
}

func TestIncomingHandler_StreamedResponse(t *testing.T) {
	h, w := newHost(t)

	handler := NewIncomingHandler(h.TypesHost, func(_ context.Context, req, out host.Handle) error {
		h.DropIncomingRequest(req)

		headers, _ := h.FieldsFromList([]host.Field{{Name: []byte("content-type"), Value: []byte("text/plain")}})
		resp := h.NewOutgoingResponse(headers)
		if err := h.OutgoingResponseSetStatusCode(resp, http.StatusCreated); err != nil {
			return err
		}
		body, err := h.OutgoingResponseBody(resp)
		if err != nil {
			return err
		}
		stream, err := h.OutgoingBodyWrite(body)
		if err != nil {
			return err
		}
		writeAll(t, w, stream, []byte("early "))
		h.ResponseOutparamSet(out, resp)
		writeAll(t, w, stream, []byte("late"))
		_ = w.Resources().Remove(stream)
		return h.OutgoingBodyFinish(body)
	})

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if rec.Code != http.StatusCreated {
		t.Errorf("status = %d", rec.Code)
	}
	if got := rec.Header().Get("Content-Type"); got != "text/plain" {
		t.Errorf("content-type = %q", got)
	}
	if rec.Body.String() != "early late" {
		t.Errorf("body = %q", rec.Body.String())
	}
}

func TestIncomingHandler_NoResponse(t *testing.T) {
	h, _ := newHost(t)
	handler := NewIncomingHandler(h.TypesHost, func(context.Context, host.Handle, host.Handle) error {
		return nil
	})

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
}

func TestTypesHost_OutgoingBodyContentLength(t *testing.T) {
	h, w := newHost(t)

	headers, _ := h.FieldsFromList([]host.Field{{Name: []byte("content-length"), Value: []byte("5")}})
	resp := h.NewOutgoingResponse(headers)
	body, _ := h.OutgoingResponseBody(resp)
	if _, err := h.OutgoingResponseBody(resp); !errors.IsKind(err, errors.KindConsumed) {
		t.Errorf("second body: %v", err)
	}
	stream, _ := h.OutgoingBodyWrite(body)
	writeAll(t, w, stream, []byte("abc"))

	if err := h.OutgoingBodyFinish(body); err == nil {
		t.Error("finish with live stream should fail")
	}
	_ = w.Resources().Remove(stream)
	if err := h.OutgoingBodyFinish(body); !errors.IsKind(err, errors.KindInvalidArgument) {
		t.Errorf("finish short body: %v", err)
	}
	if _, ok := w.Resources().Get(body); ok {
		t.Error("finish should consume the body")
	}
}

func TestOutgoingHandler_RoundTrip(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		w.Header().Set("X-Method", r.Method)
		w.Header().Set("X-Path", r.URL.RequestURI())
		w.WriteHeader(http.StatusAccepted)
		_, _ = w.Write([]byte("echo:" + string(data)))
	}))
	defer srv.Close()

	h, w := newHost(t)
	headers := h.NewFields()
	req := h.NewOutgoingRequest(headers)
	authority := strings.TrimPrefix(srv.URL, "http://")
	path := "/submit?x=1"
	if err := h.OutgoingRequestSetMethod(req, host.Method{Tag: host.MethodPost}); err != nil {
		t.Fatal(err)
	}
	_ = h.OutgoingRequestSetAuthority(req, &authority)
	_ = h.OutgoingRequestSetPathWithQuery(req, &path)

	body, err := h.OutgoingRequestBody(req)
	if err != nil {
		t.Fatalf("Body: %v", err)
	}
	future, err := h.OutgoingHandle(context.Background(), req)
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	stream, _ := h.OutgoingBodyWrite(body)
	writeAll(t, w, stream, []byte("hi"))
	_ = w.Resources().Remove(stream)
	if err := h.OutgoingBodyFinish(body); err != nil {
		t.Fatalf("Finish: %v", err)
	}

	var resp host.Handle
	deadline := time.Now().Add(5 * time.Second)
	for {
		r, ready, err := h.FutureIncomingResponseGet(future)
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if ready {
			resp = r
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("response never arrived")
		}
		time.Sleep(time.Millisecond)
	}
	if _, _, err := h.FutureIncomingResponseGet(future); !errors.IsKind(err, errors.KindConsumed) {
		t.Errorf("second get: %v", err)
	}

	if got := h.IncomingResponseStatus(resp); got != http.StatusAccepted {
		t.Errorf("status = %d", got)
	}
	respHeaders := h.IncomingResponseHeaders(resp)
	got := map[string]string{
		"method": string(h.FieldsGet(respHeaders, []byte("x-method"))[0]),
		"path":   string(h.FieldsGet(respHeaders, []byte("x-path"))[0]),
	}
	if diff := cmp.Diff(map[string]string{"method": "POST", "path": "/submit?x=1"}, got); diff != "" {
		t.Errorf("echoed request (-want +got):\n%s", diff)
	}

	respBody, _ := h.IncomingResponseConsume(resp)
	respStream, _ := h.IncomingBodyStream(respBody)
	if got := readAll(t, w, respStream); got != "echo:hi" {
		t.Errorf("body = %q", got)
	}
}

func TestOutgoingHandler_NoAuthority(t *testing.T) {
	h, _ := newHost(t)
	req := h.NewOutgoingRequest(h.NewFields())
	if _, err := h.OutgoingHandle(context.Background(), req); !errors.IsKind(err, errors.KindInvalidArgument) {
		t.Errorf("Handle without authority: %v", err)
	}
}

func TestOutgoingHandler_InvalidMethod(t *testing.T) {
	h, _ := newHost(t)
	req := h.NewOutgoingRequest(h.NewFields())
	err := h.OutgoingRequestSetMethod(req, host.Method{Tag: host.MethodOther, Other: "BAD METHOD"})
	if !errors.IsKind(err, errors.KindInvalidArgument) {
		t.Errorf("SetMethod: %v", err)
	}
	if err := h.OutgoingRequestSetMethod(req, host.Method{Tag: host.MethodOther, Other: "PURGE"}); err != nil {
		t.Errorf("SetMethod(PURGE): %v", err)
	}
}

func TestMethodFromString(t *testing.T) {
	tests := []struct {
		in   string
		want host.Method
	}{
		{"GET", host.Method{Tag: host.MethodGet}},
		{"PATCH", host.Method{Tag: host.MethodPatch}},
		{"PURGE", host.Method{Tag: host.MethodOther, Other: "PURGE"}},
	}
	for _, tt := range tests {
		if got := methodFromString(tt.in); got != tt.want {
			t.Errorf("methodFromString(%q) = %+v, want %+v", tt.in, got, tt.want)
		}
	}
}
