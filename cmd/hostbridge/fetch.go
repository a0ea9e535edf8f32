package main

import (
	"bytes"
	"context"
	"strings"
	"time"

	"go.uber.org/multierr"

	"github.com/wippyai/wasi-hostbridge/host"
	"github.com/wippyai/wasi-hostbridge/http"
	"github.com/wippyai/wasi-hostbridge/runtime"
	"github.com/wippyai/wasi-hostbridge/scheduler"
)

const readChunk = 32 << 10

// exchange is one request sent from the console and its response.
type exchange struct {
	Method  string
	URL     string
	Status  uint16
	Headers []host.Field
	Body    []byte
	Elapsed time.Duration
}

// parseLine reads "[METHOD] URL [BODY]". A lone URL is a GET.
func parseLine(line string) (method, target, payload string) {
	fields := strings.SplitN(strings.TrimSpace(line), " ", 3)
	switch len(fields) {
	case 1:
		return "GET", fields[0], ""
	case 2:
		return strings.ToUpper(fields[0]), fields[1], ""
	default:
		return strings.ToUpper(fields[0]), fields[1], strings.TrimSpace(fields[2])
	}
}

// fetch sends one request through the runtime's host and drives the
// scheduler until the response body has been read.
func fetch(ctx context.Context, rt *runtime.Runtime, method, target, payload string) (*exchange, error) {
	h := rt.Host()
	s := rt.Scheduler()
	started := rt.Now()

	req, err := http.NewOutgoingRequest(h, method, target, nil)
	if err != nil {
		return nil, err
	}
	var body *http.OutgoingBody
	if payload != "" {
		if body, err = req.Body(); err != nil {
			req.Close()
			return nil, err
		}
	}
	future, err := req.Send(ctx)
	if err != nil {
		if body != nil {
			err = multierr.Append(err, body.Close(ctx))
		}
		return nil, err
	}
	if body != nil {
		if err := body.WriteAll(s, []byte(payload), func(err error) error {
			return multierr.Append(err, body.Close(ctx))
		}); err != nil {
			future.Close()
			return nil, err
		}
	}

	ex := &exchange{Method: method, URL: target}
	if err := future.Await(s, func(resp *http.IncomingResponse, err error) error {
		future.Close()
		if err != nil {
			return err
		}
		ex.Status = resp.Status()
		ex.Headers = resp.Headers().Entries()
		return collect(s, resp, ex)
	}); err != nil {
		future.Close()
		return nil, err
	}

	if err := s.Run(ctx); err != nil {
		return nil, err
	}
	ex.Elapsed = rt.Now() - started
	return ex, nil
}

// collect reads resp's body into ex without blocking the scheduler.
func collect(s *scheduler.Scheduler, resp *http.IncomingResponse, ex *exchange) error {
	in, err := resp.Body()
	if err != nil {
		resp.Close()
		return err
	}
	pollable, err := in.AsyncHandle()
	if err != nil {
		return closeAll(err, resp, in)
	}

	var buf bytes.Buffer
	var read scheduler.Callback
	read = func(ctx context.Context) error {
		for {
			r, err := in.Read(ctx, readChunk, false)
			if err != nil {
				return closeAll(err, resp, in)
			}
			if r.Done {
				ex.Body = buf.Bytes()
				return closeAll(nil, resp, in)
			}
			if len(r.Bytes) == 0 {
				s.OnReady(pollable, read)
				return nil
			}
			buf.Write(r.Bytes)
		}
	}
	s.OnReady(pollable, read)
	return nil
}

func closeAll(err error, resp *http.IncomingResponse, in *http.IncomingBody) error {
	err = multierr.Append(err, in.Close())
	resp.Close()
	return err
}
