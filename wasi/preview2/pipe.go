package preview2

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
)

// Pipe is an in-memory byte queue between a producer goroutine and a
// non-blocking WASI reader. Readers can poll Ready or wait for data.
type Pipe struct {
	err    error
	notify chan struct{}
	buf    bytes.Buffer
	mu     sync.Mutex
	closed bool
}

// NewPipe creates an open, empty pipe.
func NewPipe() *Pipe {
	return &Pipe{notify: make(chan struct{})}
}

// NewClosedPipe creates a pipe holding data followed by end of stream.
func NewClosedPipe(data []byte) *Pipe {
	p := NewPipe()
	p.buf.Write(data)
	p.closed = true
	return p
}

// signal wakes waiters. Caller holds mu.
func (p *Pipe) signal() {
	close(p.notify)
	p.notify = make(chan struct{})
}

// Write appends b. Writing to a closed pipe fails with io.ErrClosedPipe.
func (p *Pipe) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return 0, io.ErrClosedPipe
	}
	n, _ := p.buf.Write(b)
	if n > 0 {
		p.signal()
	}
	return n, nil
}

// Close marks end of stream. Buffered bytes remain readable.
func (p *Pipe) Close() error {
	return p.CloseWithError(nil)
}

// CloseWithError marks end of stream with a producer failure.
func (p *Pipe) CloseWithError(err error) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}
	p.closed = true
	p.err = err
	p.signal()
	return nil
}

// TryRead takes up to n buffered bytes without blocking. done is true when
// the buffer is empty and the pipe is closed; err carries the producer's
// failure, if any.
func (p *Pipe) TryRead(n int) (data []byte, done bool, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.buf.Len() == 0 {
		return nil, p.closed, p.err
	}
	if n > p.buf.Len() {
		n = p.buf.Len()
	}
	data = make([]byte, n)
	copy(data, p.buf.Next(n))
	return data, false, nil
}

// Ready reports whether a read would not block.
func (p *Pipe) Ready() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.buf.Len() > 0 || p.closed
}

// Len returns the number of buffered bytes.
func (p *Pipe) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.buf.Len()
}

// Wait blocks until the pipe is ready or ctx is done.
func (p *Pipe) Wait(ctx context.Context) error {
	for {
		p.mu.Lock()
		if p.buf.Len() > 0 || p.closed {
			p.mu.Unlock()
			return nil
		}
		ch := p.notify
		p.mu.Unlock()

		select {
		case <-ch:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Read implements io.Reader, blocking until data or end of stream.
func (p *Pipe) Read(b []byte) (int, error) {
	if len(b) == 0 {
		return 0, nil
	}
	if err := p.Wait(context.Background()); err != nil {
		return 0, err
	}
	data, done, err := p.TryRead(len(b))
	if done {
		if err != nil {
			return 0, err
		}
		return 0, io.EOF
	}
	return copy(b, data), nil
}

// Fill copies r into the pipe until EOF or error, then closes it. Run it on
// its own goroutine.
func (p *Pipe) Fill(r io.Reader) {
	buf := make([]byte, 32*1024)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			if _, werr := p.Write(buf[:n]); werr != nil {
				return
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				_ = p.Close()
			} else {
				_ = p.CloseWithError(err)
			}
			return
		}
	}
}
