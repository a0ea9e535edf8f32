package io

import (
	"bytes"
	"context"
	"slices"
	"testing"
	"time"

	"github.com/wippyai/wasi-hostbridge/errors"
	"github.com/wippyai/wasi-hostbridge/host"
	"github.com/wippyai/wasi-hostbridge/wasi/preview2"
)

func newWASI(t *testing.T) *preview2.WASI {
	t.Helper()
	w := preview2.New().WithPollInterval(time.Millisecond)
	t.Cleanup(w.Close)
	return w
}

func TestPollHost_Poll(t *testing.T) {
	w := newWASI(t)
	h := NewPollHost(w)

	p1 := &preview2.PollableResource{}
	p1.SetReady(true)
	h1 := w.Resources().Add(p1)
	h2 := w.Resources().Add(&preview2.PollableResource{})
	p3 := &preview2.PollableResource{}
	p3.SetReady(true)
	h3 := w.Resources().Add(p3)

	ready, err := h.Poll(context.Background(), []host.Handle{h1, h2, h3})
	if err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if !slices.Equal(ready, []uint32{0, 2}) {
		t.Errorf("ready = %v, want [0 2]", ready)
	}
}

func TestPollHost_PollBlocksUntilReady(t *testing.T) {
	w := newWASI(t)
	h := NewPollHost(w)

	p := &preview2.PollableResource{}
	handle := w.Resources().Add(p)
	go func() {
		time.Sleep(5 * time.Millisecond)
		p.SetReady(true)
	}()

	ready, err := h.Poll(context.Background(), []host.Handle{handle})
	if err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if !slices.Equal(ready, []uint32{0}) {
		t.Errorf("ready = %v", ready)
	}
}

func TestPollHost_PollCanceled(t *testing.T) {
	w := newWASI(t)
	h := NewPollHost(w)
	handle := w.Resources().Add(&preview2.PollableResource{})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
	defer cancel()
	if err := h.PollableBlock(ctx, handle); err == nil {
		t.Error("expected context error")
	}
}

func TestPollHost_InvalidInput(t *testing.T) {
	w := newWASI(t)
	h := NewPollHost(w)
	ctx := context.Background()

	if _, err := h.Poll(ctx, nil); !errors.IsKind(err, errors.KindInvalidArgument) {
		t.Errorf("empty list: %v", err)
	}
	if _, err := h.Poll(ctx, []host.Handle{9999}); !errors.IsKind(err, errors.KindInvalidArgument) {
		t.Errorf("unknown handle: %v", err)
	}
	fields := w.Resources().Add(w.NewFields())
	if _, err := h.Poll(ctx, []host.Handle{fields}); !errors.IsKind(err, errors.KindInvalidArgument) {
		t.Errorf("non-pollable handle: %v", err)
	}
	if h.PollableReady(9999) {
		t.Error("unknown pollable reported ready")
	}
}

func TestStreamsHost_ReadAndSubscribe(t *testing.T) {
	w := newWASI(t)
	h := NewHost(w)

	pipe := preview2.NewPipe()
	in := w.Resources().Add(preview2.NewInputStreamResource(pipe, nil))
	sub := h.InputStreamSubscribe(in)
	if sub == host.Invalid {
		t.Fatal("subscribe failed")
	}
	if h.PollableReady(sub) {
		t.Error("pollable ready on empty stream")
	}

	_, _ = pipe.Write([]byte("data"))
	if !h.PollableReady(sub) {
		t.Error("pollable not ready after write")
	}

	got, err := h.InputStreamRead(in, 16)
	if err != nil || string(got) != "data" {
		t.Fatalf("Read = %q, %v", got, err)
	}

	h.DropInputStream(in)
	if _, ok := w.Resources().Get(in); !ok {
		t.Error("stream with live pollable should survive drop")
	}
	h.DropPollable(sub)
	h.DropInputStream(in)
	if _, ok := w.Resources().Get(in); ok {
		t.Error("stream should be gone")
	}
}

func TestStreamsHost_BlockingRead(t *testing.T) {
	w := newWASI(t)
	h := NewStreamsHost(w)

	pipe := preview2.NewPipe()
	in := w.Resources().Add(preview2.NewInputStreamResource(pipe, nil))
	go func() {
		time.Sleep(2 * time.Millisecond)
		_, _ = pipe.Write([]byte("late"))
	}()

	got, err := h.InputStreamBlockingRead(context.Background(), in, 16)
	if err != nil || string(got) != "late" {
		t.Fatalf("BlockingRead = %q, %v", got, err)
	}
}

func TestStreamsHost_Write(t *testing.T) {
	w := newWASI(t).WithStreamCapacities(0, 4)
	h := NewHost(w)

	var sink bytes.Buffer
	out := w.Resources().Add(w.NewOutputStream(&sink, -1))
	sub := h.OutputStreamSubscribe(out)

	n, err := h.OutputStreamCheckWrite(out)
	if err != nil || n != 0 {
		t.Fatalf("CheckWrite = %d, %v", n, err)
	}
	if !h.PollableReady(sub) {
		t.Error("pollable should be ready once capacity is available")
	}
	n, _ = h.OutputStreamCheckWrite(out)
	if n != 4 {
		t.Fatalf("CheckWrite = %d, want 4", n)
	}
	if err := h.OutputStreamWrite(out, []byte("abcd")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := h.OutputStreamBlockingFlush(context.Background(), out); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if sink.String() != "abcd" {
		t.Errorf("sink = %q", sink.String())
	}
}

func TestStreamsHost_UnknownHandle(t *testing.T) {
	w := newWASI(t)
	h := NewStreamsHost(w)

	if _, err := h.InputStreamRead(77, 1); !errors.IsKind(err, errors.KindInvalidArgument) {
		t.Errorf("Read: %v", err)
	}
	if _, err := h.OutputStreamCheckWrite(77); !errors.IsKind(err, errors.KindInvalidArgument) {
		t.Errorf("CheckWrite: %v", err)
	}
	if got := h.OutputStreamSubscribe(77); got != host.Invalid {
		t.Errorf("Subscribe = %d", got)
	}
}
