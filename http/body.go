package http

import (
	"context"

	"go.uber.org/multierr"

	"github.com/wippyai/wasi-hostbridge/errors"
	"github.com/wippyai/wasi-hostbridge/host"
	"github.com/wippyai/wasi-hostbridge/internal/invariant"
	"github.com/wippyai/wasi-hostbridge/poll"
	"github.com/wippyai/wasi-hostbridge/resource"
	"github.com/wippyai/wasi-hostbridge/scheduler"
)

type (
	inputStream  struct{}
	outputStream struct{}
)

// ReadResult is one chunk of an incoming body. Done reports end of stream;
// Bytes may be empty in either case.
type ReadResult struct {
	Bytes []byte
	Done  bool
}

// IncomingBody reads a host incoming-body. Its input stream and pollable
// are created on first use.
type IncomingBody struct {
	h        Host
	ref      *resource.Ref[IncomingBody]
	stream   *resource.Ref[inputStream]
	pollable *poll.Pollable
	done     bool
}

func newIncomingBody(h Host, handle host.Handle) *IncomingBody {
	return &IncomingBody{h: h, ref: resource.Own[IncomingBody](handle)}
}

func (b *IncomingBody) ensureStream() error {
	if b.stream != nil {
		return nil
	}
	s, err := b.h.IncomingBodyStream(b.ref.Borrow())
	if err != nil {
		return hostErr("incoming-body.stream", err)
	}
	b.stream = resource.Own[inputStream](s)
	return nil
}

// Read returns up to n bytes. A non-blocking read may return no bytes with
// Done false; that means no data yet, and the caller waits on AsyncHandle.
// Reading again after Done is a contract violation.
func (b *IncomingBody) Read(ctx context.Context, n uint64, blocking bool) (ReadResult, error) {
	invariant.Assert(!b.done, "read of incoming body after end of stream")
	if err := b.ensureStream(); err != nil {
		return ReadResult{}, err
	}

	var (
		data []byte
		err  error
	)
	if blocking {
		data, err = b.h.InputStreamBlockingRead(ctx, b.stream.Borrow(), n)
	} else {
		data, err = b.h.InputStreamRead(b.stream.Borrow(), n)
	}
	if errors.IsKind(err, errors.KindStreamClosed) {
		b.done = true
		return ReadResult{Done: true}, nil
	}
	if err != nil {
		return ReadResult{}, hostErr("input-stream.read", err)
	}
	return ReadResult{Bytes: data}, nil
}

// Done reports whether end of stream has been read.
func (b *IncomingBody) Done() bool {
	return b.done
}

// AsyncHandle returns a pollable that is ready when Read would not block.
// The pollable is owned by the body.
func (b *IncomingBody) AsyncHandle() (host.Handle, error) {
	if err := b.ensureStream(); err != nil {
		return host.Invalid, err
	}
	if b.pollable == nil {
		p := b.h.InputStreamSubscribe(b.stream.Borrow())
		if p == host.Invalid {
			return host.Invalid, errors.InvalidArgument(errors.PhaseBody, "input-stream.subscribe", "stream rejected subscription")
		}
		b.pollable = poll.New(b.h, p)
	}
	return b.pollable.Handle(), nil
}

// Close drops the pollable, the stream and then the body.
func (b *IncomingBody) Close() error {
	invariant.Assert(b.ref.Valid(), "close of closed incoming body")
	if b.pollable != nil {
		b.pollable.Close()
		b.pollable = nil
	}
	if b.stream != nil {
		b.h.DropInputStream(b.stream.Take())
		b.stream = nil
	}
	return hostErr("incoming-body.drop", b.h.DropIncomingBody(b.ref.Take()))
}

// OutgoingBody writes a host outgoing-body under host-reported capacity.
// Its output stream and pollable are created on first use.
type OutgoingBody struct {
	h             Host
	ref           *resource.Ref[OutgoingBody]
	stream        *resource.Ref[outputStream]
	pollable      *poll.Pollable
	contentLength int64
	capacity      uint64
	written       int64
}

func newOutgoingBody(h Host, handle host.Handle, contentLength int64) *OutgoingBody {
	return &OutgoingBody{h: h, ref: resource.Own[OutgoingBody](handle), contentLength: contentLength}
}

func (b *OutgoingBody) ensureStream() error {
	invariant.Assert(b.ref.Valid(), "use of closed outgoing body")
	if b.stream != nil {
		return nil
	}
	s, err := b.h.OutgoingBodyWrite(b.ref.Borrow())
	if err != nil {
		return hostErr("outgoing-body.write", err)
	}
	b.stream = resource.Own[outputStream](s)
	return nil
}

// ContentLength returns the declared length, or -1 when none was declared.
func (b *OutgoingBody) ContentLength() int64 {
	return b.contentLength
}

// Written returns the number of bytes accepted so far.
func (b *OutgoingBody) Written() int64 {
	return b.written
}

// Capacity asks the host how many bytes the next Write may carry. Zero
// means the stream is back-pressured.
func (b *OutgoingBody) Capacity() (uint64, error) {
	if err := b.ensureStream(); err != nil {
		return 0, err
	}
	n, err := b.h.OutputStreamCheckWrite(b.stream.Borrow())
	if err != nil {
		b.capacity = 0
		return 0, hostErr("output-stream.check-write", err)
	}
	b.capacity = n
	return n, nil
}

// Write writes as much of p as the last reported capacity allows and
// returns the number of bytes written.
func (b *OutgoingBody) Write(p []byte) (int, error) {
	n := len(p)
	if uint64(n) > b.capacity {
		n = int(b.capacity)
	}
	if err := b.writeChunk(p[:n]); err != nil {
		return 0, err
	}
	return n, nil
}

func (b *OutgoingBody) writeChunk(p []byte) error {
	invariant.Assert(uint64(len(p)) <= b.capacity, "write of %d bytes exceeds reported capacity %d", len(p), b.capacity)
	if len(p) == 0 {
		return nil
	}
	if err := b.ensureStream(); err != nil {
		return err
	}
	if err := b.h.OutputStreamWrite(b.stream.Borrow(), p); err != nil {
		return hostErr("output-stream.write", err)
	}
	b.capacity -= uint64(len(p))
	b.written += int64(len(p))
	return nil
}

// AsyncHandle returns a pollable that is ready when capacity is available.
// The pollable is owned by the body.
func (b *OutgoingBody) AsyncHandle() (host.Handle, error) {
	if err := b.ensureStream(); err != nil {
		return host.Invalid, err
	}
	if b.pollable == nil {
		p := b.h.OutputStreamSubscribe(b.stream.Borrow())
		if p == host.Invalid {
			return host.Invalid, errors.InvalidArgument(errors.PhaseBody, "output-stream.subscribe", "stream rejected subscription")
		}
		b.pollable = poll.New(b.h, p)
	}
	return b.pollable.Handle(), nil
}

// WriteAllBlocking writes all of p, blocking on the body's pollable while
// the stream is back-pressured.
func (b *OutgoingBody) WriteAllBlocking(ctx context.Context, p []byte) error {
	for len(p) > 0 {
		n, err := b.Capacity()
		if err != nil {
			return err
		}
		if n == 0 {
			if _, err := b.AsyncHandle(); err != nil {
				return err
			}
			if err := b.pollable.Block(ctx); err != nil {
				return err
			}
			continue
		}
		written, err := b.Write(p)
		if err != nil {
			return err
		}
		p = p[written:]
	}
	return nil
}

// WriteAll queues a task that writes all of p, yielding to the scheduler
// whenever the stream is back-pressured. cb runs once at the end. p is
// copied.
func (b *OutgoingBody) WriteAll(s *scheduler.Scheduler, p []byte, cb Completion) error {
	pollable, err := b.AsyncHandle()
	if err != nil {
		return err
	}
	s.Enqueue(&writeAllTask{body: b, pollable: pollable, buf: append([]byte(nil), p...), cb: cb})
	return nil
}

// Append queues a task that streams all of in into b. cb runs once when in
// reports end of stream.
func (b *OutgoingBody) Append(s *scheduler.Scheduler, in *IncomingBody, cb Completion) error {
	inPollable, err := in.AsyncHandle()
	if err != nil {
		return err
	}
	outPollable, err := b.AsyncHandle()
	if err != nil {
		return err
	}
	s.Enqueue(newAppendTask(in, b, inPollable, outPollable, cb))
	return nil
}

// Close flushes, releases the stream and pollable, and finishes the body.
// A stream the host already closed, for instance after the declared
// content length was written, does not fail the flush. Closing twice is a
// contract violation.
func (b *OutgoingBody) Close(ctx context.Context) error {
	invariant.Assert(b.ref.Valid(), "close of closed outgoing body")

	var errs error
	if b.stream != nil {
		err := b.h.OutputStreamBlockingFlush(ctx, b.stream.Borrow())
		if err != nil && !errors.IsKind(err, errors.KindStreamClosed) {
			errs = multierr.Append(errs, hostErr("output-stream.blocking-flush", err))
		}
	}
	if b.pollable != nil {
		b.pollable.Close()
		b.pollable = nil
	}
	if b.stream != nil {
		b.h.DropOutputStream(b.stream.Take())
		b.stream = nil
	}
	errs = multierr.Append(errs, hostErr("outgoing-body.finish", b.h.OutgoingBodyFinish(b.ref.Take())))
	return errs
}

// abort releases the stream and drops the body unfinished. It is a no-op
// on a closed body.
func (b *OutgoingBody) abort() {
	if !b.ref.Valid() {
		return
	}
	if b.pollable != nil {
		b.pollable.Close()
		b.pollable = nil
	}
	if b.stream != nil {
		b.h.DropOutputStream(b.stream.Take())
		b.stream = nil
	}
	b.h.DropOutgoingBody(b.ref.Take())
}
