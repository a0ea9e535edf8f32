// Package hostbridge exposes HTTP, body streaming, TCP socket and async
// polling primitives of a WASI 0.2 host to an embedded script runtime.
//
// Host resources are integer handles. The bridge wraps each one in an
// owning Go value that releases it exactly once, and drives asynchronous
// work with a single-threaded cooperative scheduler that blocks on the
// host's poll primitive.
//
// # Architecture Overview
//
//	hostbridge/
//	├── host/            Host call interfaces and shared WASI types
//	├── resource/        Owned and borrowed handle references, live-handle registry
//	├── poll/            Pollable wrapper and multi-way select with timeout
//	├── scheduler/       Cooperative task scheduler, timers, one-shot callbacks
//	├── http/            Headers, bodies, requests, responses, response futures
//	├── socket/          Client TCP socket over WASI sockets
//	├── runtime/         Process-wide context, handler registration, dispatch
//	├── handler/         Echo and proxy request handlers
//	├── errors/          Structured errors with phase and kind
//	├── internal/
//	│   └── invariant/   Contract assertions
//	├── wasi/preview2/   In-process WASI 0.2 host over net and net/http
//	└── cmd/hostbridge/  serve and console commands
//
// # Quick Start
//
// Serve requests through the bridge:
//
//	h := world.New(preview2.New())
//	defer h.Close()
//
//	rt, err := runtime.Init(h, nil)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer runtime.Teardown()
//
//	rt.SetHandler(handler.Echo())
//	http.ListenAndServe(":8080", h.IncomingHandler(rt.Dispatch))
//
// A handler answers through the response outparam and may leave work on
// the scheduler; Dispatch runs the scheduler until no task is pending:
//
//	func(ctx context.Context, rt *runtime.Runtime, req *http.IncomingRequest, out *http.ResponseOut) error {
//	    resp, err := http.NewOutgoingResponse(rt.Host(), 200, nil)
//	    if err != nil {
//	        return err
//	    }
//	    body, err := resp.Body()
//	    if err != nil {
//	        resp.Close()
//	        return err
//	    }
//	    out.Send(resp)
//	    return body.WriteAll(rt.Scheduler(), []byte("hello"), func(err error) error {
//	        return multierr.Append(err, body.Close(ctx))
//	    })
//	}
//
// # Ownership
//
// Every wrapper owns its handle. Operations that consume a handle on the
// host (sending a request, finishing a body, setting a response) invalidate
// the wrapper; using it afterwards is a contract violation and panics with
// an *errors.Error of kind contract_violation. Turn on the live-handle
// registry with runtime.Config.Debug to catch double registration and use
// after release.
//
// # Subpackages
//
// See the individual package documentation for detailed API information.
package hostbridge
