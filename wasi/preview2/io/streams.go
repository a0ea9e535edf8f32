package io

import (
	"context"

	"go.uber.org/zap"

	"github.com/wippyai/wasi-hostbridge/errors"
	"github.com/wippyai/wasi-hostbridge/host"
	"github.com/wippyai/wasi-hostbridge/wasi/preview2"
)

// StreamsHost implements wasi:io/streams over any resource satisfying
// preview2.InputStream or preview2.OutputStream, so body and socket
// streams share it.
type StreamsHost struct {
	resources *preview2.ResourceTable
	log       *zap.Logger
}

func NewStreamsHost(w *preview2.WASI) *StreamsHost {
	return &StreamsHost{resources: w.Resources(), log: w.Log()}
}

func (h *StreamsHost) Namespace() string {
	return "wasi:io/streams@0.2.0"
}

func (h *StreamsHost) input(op string, in host.Handle) (preview2.InputStream, error) {
	s, ok := preview2.Lookup[preview2.InputStream](h.resources, in)
	if !ok {
		return nil, errors.InvalidArgument(errors.PhaseHost, op, "unknown input-stream handle")
	}
	return s, nil
}

func (h *StreamsHost) output(op string, out host.Handle) (preview2.OutputStream, error) {
	s, ok := preview2.Lookup[preview2.OutputStream](h.resources, out)
	if !ok {
		return nil, errors.InvalidArgument(errors.PhaseHost, op, "unknown output-stream handle")
	}
	return s, nil
}

func (h *StreamsHost) InputStreamRead(in host.Handle, n uint64) ([]byte, error) {
	s, err := h.input("input-stream.read", in)
	if err != nil {
		return nil, err
	}
	return s.Read(n)
}

func (h *StreamsHost) InputStreamBlockingRead(ctx context.Context, in host.Handle, n uint64) ([]byte, error) {
	s, err := h.input("input-stream.blocking-read", in)
	if err != nil {
		return nil, err
	}
	return s.BlockingRead(ctx, n)
}

// InputStreamSubscribe returns a pollable that is ready when a read would
// not block. The stream cannot be dropped while the pollable is live.
func (h *StreamsHost) InputStreamSubscribe(in host.Handle) host.Handle {
	s, err := h.input("input-stream.subscribe", in)
	if err != nil {
		return host.Invalid
	}
	p, _ := h.resources.AddChild(in, preview2.NewFuncPollable(s.Ready))
	return p
}

func (h *StreamsHost) DropInputStream(in host.Handle) {
	h.drop("input-stream", in)
}

func (h *StreamsHost) OutputStreamCheckWrite(out host.Handle) (uint64, error) {
	s, err := h.output("output-stream.check-write", out)
	if err != nil {
		return 0, err
	}
	return s.CheckWrite()
}

func (h *StreamsHost) OutputStreamWrite(out host.Handle, p []byte) error {
	s, err := h.output("output-stream.write", out)
	if err != nil {
		return err
	}
	return s.Write(p)
}

func (h *StreamsHost) OutputStreamBlockingFlush(ctx context.Context, out host.Handle) error {
	s, err := h.output("output-stream.blocking-flush", out)
	if err != nil {
		return err
	}
	return s.BlockingFlush(ctx)
}

// OutputStreamSubscribe returns a pollable that is ready when CheckWrite
// would report capacity or an error.
func (h *StreamsHost) OutputStreamSubscribe(out host.Handle) host.Handle {
	s, err := h.output("output-stream.subscribe", out)
	if err != nil {
		return host.Invalid
	}
	p, _ := h.resources.AddChild(out, preview2.NewFuncPollable(s.Ready))
	return p
}

func (h *StreamsHost) DropOutputStream(out host.Handle) {
	h.drop("output-stream", out)
}

func (h *StreamsHost) drop(kind string, handle host.Handle) {
	if err := h.resources.Remove(handle); err != nil {
		h.log.Warn("drop "+kind, zap.Uint32("handle", uint32(handle)), zap.Error(err))
	}
}
