package handler

import (
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/wippyai/wasi-hostbridge/errors"
	"github.com/wippyai/wasi-hostbridge/runtime"
	"github.com/wippyai/wasi-hostbridge/wasi/preview2"
	"github.com/wippyai/wasi-hostbridge/wasi/preview2/world"
)

// frontend serves fn through the full bridge: net/http server, WASI host,
// runtime dispatch.
func frontend(t *testing.T, w *preview2.WASI, fn runtime.Handler) *httptest.Server {
	t.Helper()
	h := world.New(w.WithPollInterval(100 * time.Microsecond))
	rt, err := runtime.Init(h, nil)
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	if err := rt.SetHandler(fn); err != nil {
		t.Fatalf("SetHandler: %v", err)
	}
	srv := httptest.NewServer(h.IncomingHandler(rt.Dispatch))
	t.Cleanup(func() {
		srv.Close()
		_ = runtime.Teardown()
		h.Close()
	})
	return srv
}

func do(t *testing.T, method, target, contentType, body string) (*http.Response, string) {
	t.Helper()
	req, err := http.NewRequest(method, target, strings.NewReader(body))
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	return resp, string(b)
}

func TestEcho(t *testing.T) {
	srv := frontend(t, preview2.New().WithStreamCapacities(0, 4), Echo())

	resp, body := do(t, "POST", srv.URL+"/echo", "text/plain", "hello bridge")
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d", resp.StatusCode)
	}
	if body != "hello bridge" {
		t.Errorf("body = %q", body)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "text/plain" {
		t.Errorf("content-type = %q", ct)
	}
}

func TestEcho_EmptyBody(t *testing.T) {
	srv := frontend(t, preview2.New(), Echo())

	resp, body := do(t, "GET", srv.URL+"/", "", "")
	if resp.StatusCode != http.StatusOK || body != "" {
		t.Errorf("got %d %q", resp.StatusCode, body)
	}
}

func TestProxy(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		w.Header().Set("X-Upstream", "yes")
		w.WriteHeader(http.StatusCreated)
		fmt.Fprintf(w, "%s %s %s %s", r.Method, r.URL.RequestURI(), r.Header.Get("X-Trace"), b)
	}))
	defer upstream.Close()

	fn, err := Proxy(upstream.URL + "/base/")
	if err != nil {
		t.Fatalf("Proxy: %v", err)
	}
	srv := frontend(t, preview2.New(), fn)

	req, _ := http.NewRequest("PUT", srv.URL+"/items?id=7", strings.NewReader("data"))
	req.Header.Set("X-Trace", "t1")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)

	if resp.StatusCode != http.StatusCreated {
		t.Errorf("status = %d", resp.StatusCode)
	}
	if got := string(b); got != "PUT /base/items?id=7 t1 data" {
		t.Errorf("body = %q", got)
	}
	if resp.Header.Get("X-Upstream") != "yes" {
		t.Error("upstream header not relayed")
	}
}

func TestProxy_UpstreamDown(t *testing.T) {
	upstream := httptest.NewServer(http.NotFoundHandler())
	target := upstream.URL
	upstream.Close()

	fn, err := Proxy(target)
	if err != nil {
		t.Fatalf("Proxy: %v", err)
	}
	srv := frontend(t, preview2.New(), fn)

	resp, body := do(t, "GET", srv.URL+"/", "", "")
	if resp.StatusCode != http.StatusInternalServerError {
		t.Errorf("status = %d", resp.StatusCode)
	}
	if !strings.Contains(body, "upstream request failed") {
		t.Errorf("body = %q", body)
	}
}

func TestProxy_InvalidUpstream(t *testing.T) {
	for _, upstream := range []string{"", "/relative", "::bad"} {
		if _, err := Proxy(upstream); !errors.IsKind(err, errors.KindInvalidArgument) {
			t.Errorf("Proxy(%q) = %v, want invalid argument", upstream, err)
		}
	}
}
