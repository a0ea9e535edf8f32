// Package handler provides the request handlers the hostbridge binary can
// serve: an echo handler and a forwarding proxy. Both stream bodies with
// append tasks instead of buffering them.
package handler

import (
	"context"
	"net/url"
	"strings"

	"go.uber.org/multierr"

	"github.com/wippyai/wasi-hostbridge/errors"
	"github.com/wippyai/wasi-hostbridge/http"
	"github.com/wippyai/wasi-hostbridge/runtime"
)

// Echo answers 200 and streams the request body back, keeping the
// request's content-type.
func Echo() runtime.Handler {
	return func(ctx context.Context, rt *runtime.Runtime, req *http.IncomingRequest, out *http.ResponseOut) error {
		h := rt.Host()
		headers := http.NewHeaders(h)
		if values, ok := req.Headers().Get([]byte("content-type")); ok {
			if err := headers.Set([]byte("content-type"), values...); err != nil {
				headers.Close()
				return err
			}
		}

		in, err := req.Body()
		if err != nil {
			headers.Close()
			return err
		}
		resp, err := http.NewOutgoingResponse(h, 200, headers)
		if err != nil {
			return multierr.Append(err, in.Close())
		}
		body, err := resp.Body()
		if err != nil {
			resp.Close()
			return multierr.Append(err, in.Close())
		}
		out.Send(resp)

		return body.Append(rt.Scheduler(), in, func(err error) error {
			return multierr.Combine(err, body.Close(ctx), in.Close())
		})
	}
}

// Proxy forwards each request to upstream, keeping its method, path,
// query, headers and body, and streams the upstream response back.
func Proxy(upstream string) (runtime.Handler, error) {
	base, err := url.Parse(upstream)
	if err != nil || !base.IsAbs() || base.Host == "" {
		return nil, errors.New(errors.PhaseConfig, errors.KindInvalidArgument).
			Op("proxy").Value(upstream).Detail("upstream must be an absolute URL").Build()
	}

	return func(ctx context.Context, rt *runtime.Runtime, req *http.IncomingRequest, out *http.ResponseOut) error {
		h := rt.Host()
		s := rt.Scheduler()

		target, err := proxyTarget(base, req)
		if err != nil {
			return err
		}
		headers, err := forwardable(h, req.Headers())
		if err != nil {
			return err
		}
		upstreamReq, err := http.NewOutgoingRequest(h, req.Method(), target, headers)
		if err != nil {
			if headers.Valid() {
				headers.Close()
			}
			return err
		}
		in, err := req.Body()
		if err != nil {
			upstreamReq.Close()
			return err
		}
		reqBody, err := upstreamReq.Body()
		if err != nil {
			upstreamReq.Close()
			return multierr.Append(err, in.Close())
		}
		future, err := upstreamReq.Send(ctx)
		if err != nil {
			return multierr.Combine(err, reqBody.Close(ctx), in.Close())
		}

		if err := reqBody.Append(s, in, func(err error) error {
			return multierr.Combine(err, reqBody.Close(ctx), in.Close())
		}); err != nil {
			future.Close()
			return err
		}

		return future.Await(s, func(resp *http.IncomingResponse, err error) error {
			future.Close()
			if err != nil {
				out.SendError("upstream request failed: " + err.Error())
				return err
			}
			return relay(ctx, rt, resp, out)
		})
	}, nil
}

func relay(ctx context.Context, rt *runtime.Runtime, resp *http.IncomingResponse, out *http.ResponseOut) error {
	h := rt.Host()
	headers, err := forwardable(h, resp.Headers())
	if err != nil {
		resp.Close()
		return err
	}
	upstreamBody, err := resp.Body()
	if err != nil {
		headers.Close()
		resp.Close()
		return err
	}
	outResp, err := http.NewOutgoingResponse(h, resp.Status(), headers)
	if err != nil {
		return multierr.Append(err, closeResponse(resp, upstreamBody))
	}
	outBody, err := outResp.Body()
	if err != nil {
		outResp.Close()
		return multierr.Append(err, closeResponse(resp, upstreamBody))
	}
	out.Send(outResp)

	return outBody.Append(rt.Scheduler(), upstreamBody, func(err error) error {
		return multierr.Combine(err, outBody.Close(ctx), closeResponse(resp, upstreamBody))
	})
}

func closeResponse(resp *http.IncomingResponse, body *http.IncomingBody) error {
	err := body.Close()
	resp.Close()
	return err
}

func proxyTarget(base *url.URL, req *http.IncomingRequest) (string, error) {
	target := *base
	raw, ok := req.URL()
	if !ok {
		return target.String(), nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", errors.Wrap(errors.PhaseRequest, errors.KindInvalidArgument, err, "incoming request url")
	}
	target.Path = strings.TrimSuffix(base.Path, "/") + u.Path
	target.RawPath = ""
	target.RawQuery = u.RawQuery
	return target.String(), nil
}

// forwardable copies every header the host accepts on a new message.
func forwardable(h http.Host, src *http.HeadersReadOnly) (*http.Headers, error) {
	forbidden := make(map[string]bool)
	for _, name := range http.ForbiddenRequestHeaders() {
		forbidden[name] = true
	}
	dst := http.NewHeaders(h)
	for _, e := range src.Entries() {
		if forbidden[strings.ToLower(string(e.Name))] {
			continue
		}
		if err := dst.Append(e.Name, e.Value); err != nil {
			dst.Close()
			return nil, err
		}
	}
	return dst, nil
}
