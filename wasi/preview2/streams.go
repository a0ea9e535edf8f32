package preview2

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/wippyai/wasi-hostbridge/errors"
)

// StreamError represents a WASI stream error.
type StreamError struct {
	Cause        error
	Closed       bool // stream is closed
	LastOpFailed bool // previous operation failed
}

func (e *StreamError) Error() string {
	if e.Closed {
		return "stream closed"
	}
	if e.Cause != nil {
		return "stream operation failed: " + e.Cause.Error()
	}
	return "stream operation failed"
}

// Unwrap exposes closed streams as errors.ErrStreamClosed and failed
// operations as their cause.
func (e *StreamError) Unwrap() error {
	if e.Closed {
		return errors.StreamClosed(errors.PhaseHost, "stream")
	}
	return e.Cause
}

func streamClosed() error { return &StreamError{Closed: true} }

func streamFailed(format string, args ...any) error {
	return &StreamError{LastOpFailed: true, Cause: fmt.Errorf(format, args...)}
}

// InputStream is a readable WASI stream.
type InputStream interface {
	Resource
	Read(n uint64) ([]byte, error)
	BlockingRead(ctx context.Context, n uint64) ([]byte, error)
	Ready() bool
}

// OutputStream is a writable WASI stream.
type OutputStream interface {
	Resource
	CheckWrite() (uint64, error)
	Write(p []byte) error
	BlockingFlush(ctx context.Context) error
	Ready() bool
}

// InputStreamResource reads from a Pipe.
type InputStreamResource struct {
	pipe   *Pipe
	onDrop func()
}

// NewInputStreamResource creates an input stream over p. onDrop, if set,
// runs when the stream is dropped.
func NewInputStreamResource(p *Pipe, onDrop func()) *InputStreamResource {
	return &InputStreamResource{pipe: p, onDrop: onDrop}
}

func (s *InputStreamResource) Type() ResourceType { return ResourceInputStream }
func (s *InputStreamResource) Drop() {
	if s.onDrop != nil {
		s.onDrop()
		s.onDrop = nil
	}
}

// Read returns up to n buffered bytes. An empty result without error means
// no data is available yet.
func (s *InputStreamResource) Read(n uint64) ([]byte, error) {
	if n > MaxAllocationSize {
		n = MaxAllocationSize
	}
	data, done, err := s.pipe.TryRead(int(n))
	if done {
		if err != nil {
			return nil, &StreamError{LastOpFailed: true, Cause: err}
		}
		return nil, streamClosed()
	}
	if data == nil {
		data = []byte{}
	}
	return data, nil
}

// BlockingRead waits for data or end of stream, then reads.
func (s *InputStreamResource) BlockingRead(ctx context.Context, n uint64) ([]byte, error) {
	if err := s.pipe.Wait(ctx); err != nil {
		return nil, err
	}
	return s.Read(n)
}

func (s *InputStreamResource) Ready() bool { return s.pipe.Ready() }

// OutputStreamResource writes to an io.Writer with host-reported capacity.
//
// Capacity comes from a CapacitySchedule. A write larger than the last
// reported capacity fails. When a declared length is set, writing past it
// fails and flushing once it is reached reports the stream closed.
type OutputStreamResource struct {
	sink     io.Writer
	schedule *CapacitySchedule
	onDrop   func()
	failed   error
	permit   uint64
	limit    int64
	written  int64
	mu       sync.Mutex
	closed   bool
}

// NewOutputStreamResource creates an output stream. limit < 0 means no
// declared length.
func NewOutputStreamResource(sink io.Writer, schedule *CapacitySchedule, limit int64) *OutputStreamResource {
	if schedule == nil {
		schedule = NewCapacitySchedule()
	}
	return &OutputStreamResource{sink: sink, schedule: schedule, limit: limit}
}

// OnDrop registers fn to run when the stream is dropped.
func (s *OutputStreamResource) OnDrop(fn func()) { s.onDrop = fn }

func (s *OutputStreamResource) Type() ResourceType { return ResourceOutputStream }
func (s *OutputStreamResource) Drop() {
	s.mu.Lock()
	s.closed = true
	fn := s.onDrop
	s.onDrop = nil
	s.mu.Unlock()
	if fn != nil {
		fn()
	}
}

// CheckWrite reports how many bytes the next Write may carry.
func (s *OutputStreamResource) CheckWrite() (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, streamClosed()
	}
	if s.failed != nil {
		return 0, &StreamError{LastOpFailed: true, Cause: s.failed}
	}
	s.permit = s.schedule.Next()
	return s.permit, nil
}

func (s *OutputStreamResource) Write(p []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return streamClosed()
	}
	if s.failed != nil {
		return &StreamError{LastOpFailed: true, Cause: s.failed}
	}
	if uint64(len(p)) > s.permit {
		return streamFailed("write of %d bytes exceeds permitted %d", len(p), s.permit)
	}
	if s.limit >= 0 && s.written+int64(len(p)) > s.limit {
		return streamFailed("write exceeds declared length %d", s.limit)
	}
	s.permit -= uint64(len(p))
	if len(p) == 0 {
		return nil
	}
	if _, err := s.sink.Write(p); err != nil {
		s.failed = err
		return &StreamError{LastOpFailed: true, Cause: err}
	}
	s.written += int64(len(p))
	return nil
}

// BlockingFlush pushes buffered bytes to the sink. A stream whose declared
// length has been reached reports itself closed.
func (s *OutputStreamResource) BlockingFlush(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || (s.limit >= 0 && s.written >= s.limit) {
		return streamClosed()
	}
	if s.failed != nil {
		return &StreamError{LastOpFailed: true, Cause: s.failed}
	}
	switch f := s.sink.(type) {
	case interface{ Flush() error }:
		if err := f.Flush(); err != nil {
			s.failed = err
			return &StreamError{LastOpFailed: true, Cause: err}
		}
	case interface{ Flush() }:
		f.Flush()
	}
	return nil
}

// Ready reports whether CheckWrite would return a non-zero capacity or an
// error.
func (s *OutputStreamResource) Ready() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed || s.failed != nil || s.schedule.Peek() > 0
}

// Written returns the number of bytes accepted so far.
func (s *OutputStreamResource) Written() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.written
}

// CapacitySchedule supplies the capacities an output stream reports. Each
// CheckWrite consumes one step; the last step repeats forever.
type CapacitySchedule struct {
	steps []uint64
	mu    sync.Mutex
}

// NewCapacitySchedule creates a schedule. With no steps it always reports
// DefaultBufferSize.
func NewCapacitySchedule(steps ...uint64) *CapacitySchedule {
	if len(steps) == 0 {
		steps = []uint64{DefaultBufferSize}
	}
	return &CapacitySchedule{steps: append([]uint64(nil), steps...)}
}

// Next returns the current step and advances.
func (c *CapacitySchedule) Next() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	v := c.steps[0]
	if len(c.steps) > 1 {
		c.steps = c.steps[1:]
	}
	return v
}

// Peek returns the current step without advancing.
func (c *CapacitySchedule) Peek() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.steps[0]
}
