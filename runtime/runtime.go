// Package runtime is the process-wide context the bridge runs in.
//
// A host delivers one incoming request at a time. Init creates the single
// Runtime, SetHandler registers the request handler once at startup, and
// Dispatch runs the handler for each request and drives the scheduler
// until no task is pending. Teardown releases the context.
package runtime

import (
	"context"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/wippyai/wasi-hostbridge/errors"
	"github.com/wippyai/wasi-hostbridge/host"
	"github.com/wippyai/wasi-hostbridge/http"
	"github.com/wippyai/wasi-hostbridge/resource"
	"github.com/wippyai/wasi-hostbridge/scheduler"
)

// DefaultDebugPortEnv names the environment variable that selects the
// debugging session port.
const DefaultDebugPortEnv = "DEBUGGER_PORT"

// Config configures the runtime.
type Config struct {
	// Logger receives runtime logs. Defaults to the package logger.
	Logger *zap.Logger

	// DebugPortEnv names the variable read by DebugPort. Defaults to
	// DefaultDebugPortEnv.
	DebugPortEnv string

	// TurnTimeout bounds how long Dispatch drives the scheduler after the
	// handler returns. Zero means no bound beyond the request context.
	TurnTimeout time.Duration

	// Debug turns on the live-handle registry.
	Debug bool

	// TracerProvider and MeterProvider receive one span and one request
	// measurement per Dispatch. They default to the otel globals.
	TracerProvider trace.TracerProvider
	MeterProvider  metric.MeterProvider
}

// Handler serves one incoming request. It must answer out exactly once,
// either directly or from a task it queues on rt.Scheduler().
type Handler func(ctx context.Context, rt *Runtime, req *http.IncomingRequest, out *http.ResponseOut) error

// Runtime holds the host, the scheduler and the registered handler.
type Runtime struct {
	host    host.Host
	sched   *scheduler.Scheduler
	log     *zap.Logger
	handler Handler
	tel     *telemetry
	cfg     Config
	mu      sync.Mutex
}

var current atomic.Pointer[Runtime]

// Init creates the process-wide runtime over h. It fails with kind
// already_set if a runtime exists.
func Init(h host.Host, cfg *Config) (*Runtime, error) {
	var c Config
	if cfg != nil {
		c = *cfg
	}
	if c.Logger == nil {
		c.Logger = Logger()
	}
	if c.DebugPortEnv == "" {
		c.DebugPortEnv = DefaultDebugPortEnv
	}

	tel, err := newTelemetry(c.TracerProvider, c.MeterProvider)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseConfig, errors.KindInvalidArgument, err, "telemetry instruments")
	}

	rt := &Runtime{
		host:  h,
		sched: scheduler.New(h),
		log:   c.Logger,
		tel:   tel,
		cfg:   c,
	}
	if !current.CompareAndSwap(nil, rt) {
		return nil, errors.New(errors.PhaseRuntime, errors.KindAlreadySet).Op("init").Detail("runtime already initialized").Build()
	}
	if c.Debug {
		resource.EnableTracking(true)
	}
	rt.log.Info("runtime initialized", zap.Bool("debug", c.Debug))
	return rt, nil
}

// Current returns the process-wide runtime, or nil before Init.
func Current() *Runtime {
	return current.Load()
}

// Teardown aborts pending tasks and clears the process-wide runtime.
func Teardown() error {
	rt := current.Swap(nil)
	if rt == nil {
		return nil
	}
	err := multierr.Append(rt.sched.Abort(), rt.sched.Close())
	if rt.cfg.Debug {
		if n := resource.LiveHandles(); n > 0 {
			rt.log.Warn("live handles at teardown", zap.Int("count", n))
		}
		resource.EnableTracking(false)
	}
	rt.log.Info("runtime torn down")
	return err
}

// SetHandler registers the request handler. It may be called once.
func (rt *Runtime) SetHandler(fn Handler) error {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	if rt.handler != nil {
		return errors.New(errors.PhaseRuntime, errors.KindAlreadySet).Op("set-handler").Detail("handler already registered").Build()
	}
	if fn == nil {
		return errors.InvalidArgument(errors.PhaseRuntime, "set-handler", "nil handler")
	}
	rt.handler = fn
	rt.log.Info("request handler registered")
	return nil
}

func (rt *Runtime) currentHandler() Handler {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return rt.handler
}

// Dispatch serves one incoming request: it wraps the host handles, runs
// the handler and drives the scheduler until no task is pending. If the
// turn timeout or ctx ends first, the remaining tasks are aborted and
// their bodies dropped unfinished. If the handler never answered, a
// server error is sent so the host always gets exactly one response.
func (rt *Runtime) Dispatch(ctx context.Context, req, out host.Handle) error {
	started := time.Now()
	request := http.NewIncomingRequest(rt.host, req)
	defer request.Close()
	response := http.NewResponseOut(rt.host, out)

	url, _ := request.URL()
	ctx, span := rt.tel.start(ctx, request.Method(), url)

	fn := rt.currentHandler()
	if fn == nil {
		response.SendError("no request handler registered")
		err := errors.New(errors.PhaseRuntime, errors.KindNotFound).Op("dispatch").Detail("no request handler registered").Build()
		rt.tel.finish(ctx, span, started, outcomeError, err)
		return err
	}

	var errs error
	if err := fn(ctx, rt, request, response); err != nil {
		rt.log.Error("request handler failed", zap.Error(err))
		errs = multierr.Append(errs, err)
	}

	runCtx := ctx
	if rt.cfg.TurnTimeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, rt.cfg.TurnTimeout)
		defer cancel()
	}
	if err := rt.sched.Run(runCtx); err != nil {
		rt.log.Error("scheduler run failed", zap.Error(err), zap.Int("pending", rt.sched.Pending()))
		errs = multierr.Append(errs, err)
	}
	// Tasks never outlive the dispatch that queued them. Abort them while
	// the request is still open.
	if n := rt.sched.Pending(); n > 0 {
		rt.log.Warn("aborting unfinished tasks", zap.Int("pending", n))
		errs = multierr.Append(errs, rt.sched.Abort())
	}

	outcome := outcomeOK
	if errs != nil {
		outcome = outcomeError
	}
	if !response.Sent() {
		msg := "handler did not produce a response"
		if errs != nil {
			msg = errs.Error()
		}
		rt.log.Warn("sending error response", zap.String("reason", msg))
		response.SendError(msg)
		outcome = outcomeUnanswered
	}
	rt.tel.finish(ctx, span, started, outcome, errs)
	return errs
}

// Host returns the host the runtime calls into.
func (rt *Runtime) Host() host.Host {
	return rt.host
}

// Scheduler returns the task scheduler.
func (rt *Runtime) Scheduler() *scheduler.Scheduler {
	return rt.sched
}

// Args returns the process start arguments.
func (rt *Runtime) Args() []string {
	return rt.host.Arguments()
}

// DebugPort returns the debugging session port named by the configured
// environment variable.
func (rt *Runtime) DebugPort() (int, bool) {
	for _, kv := range rt.host.Environment() {
		if kv[0] != rt.cfg.DebugPortEnv {
			continue
		}
		port, err := strconv.Atoi(kv[1])
		if err != nil || port <= 0 || port > 65535 {
			rt.log.Warn("ignoring invalid debug port", zap.String("env", rt.cfg.DebugPortEnv), zap.String("value", kv[1]))
			return 0, false
		}
		return port, true
	}
	return 0, false
}

// RandomBytes returns n bytes from the host's secure random source.
func (rt *Runtime) RandomBytes(n int) []byte {
	if n <= 0 {
		return nil
	}
	return rt.host.GetRandomBytes(uint64(n))
}

// RandomUint32 returns a secure random 32-bit value.
func (rt *Runtime) RandomUint32() uint32 {
	return uint32(rt.host.GetRandomU64())
}

// Now returns the host's monotonic clock reading.
func (rt *Runtime) Now() time.Duration {
	return time.Duration(rt.host.MonotonicNow())
}
