package http

import (
	"context"
	"net/http"
	"sync"

	"go.uber.org/zap"

	"github.com/wippyai/wasi-hostbridge/host"
)

// IncomingHandlerNamespace is the WASI HTTP incoming handler namespace.
const IncomingHandlerNamespace = "wasi:http/incoming-handler@0.2.0"

// Dispatcher runs the guest's incoming-handler for one request. It owns
// req and out and must answer out before returning.
type Dispatcher func(ctx context.Context, req, out host.Handle) error

// IncomingHandler serves net/http requests by turning each one into an
// incoming-request and response-outparam pair and dispatching it. The
// guest is single threaded, so dispatches are serialized.
type IncomingHandler struct {
	types    *TypesHost
	dispatch Dispatcher
	log      *zap.Logger
	mu       sync.Mutex
}

// NewIncomingHandler creates a handler that dispatches into d.
func NewIncomingHandler(types *TypesHost, d Dispatcher) *IncomingHandler {
	return &IncomingHandler{types: types, dispatch: d, log: types.log}
}

// Namespace returns the WASI namespace.
func (h *IncomingHandler) Namespace() string {
	return IncomingHandlerNamespace
}

func (h *IncomingHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	defer h.mu.Unlock()

	req := h.types.NewIncomingRequest(r)
	out, answered := h.types.NewResponseOutparam(w)

	err := h.dispatch(r.Context(), req, out)
	if err != nil {
		h.log.Error("incoming request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err))
	}

	select {
	case <-answered:
	default:
		msg := "handler did not produce a response"
		if err != nil {
			msg = err.Error()
		}
		h.types.ResponseOutparamSetError(out, msg)
	}
}
