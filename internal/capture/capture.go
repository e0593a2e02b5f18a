// Package capture redirects the output stream snippets print through.
//
// Every runtime writes to a Stream rather than to os.Stdout directly. While
// a Capture is held, the stream's target is an in-memory buffer; Release puts
// the previous target back. Acquisition is not reentrant across goroutines:
// callers serialize (the sandbox executor holds a single slot).
package capture

import (
	"bytes"
	"io"
	"os"
	"sync"
)

// Stdout is the process-wide stream runtimes print through.
var Stdout = NewStream(os.Stdout)

// Stream is an io.Writer with a switchable target.
type Stream struct {
	mu     sync.Mutex
	target io.Writer
}

// NewStream returns a stream forwarding to w.
func NewStream(w io.Writer) *Stream {
	return &Stream{target: w}
}

func (s *Stream) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.target.Write(p)
}

// Acquire swaps the stream's target for a fresh buffer. Any live writers
// also receive every write as it happens (e.g. an SSE client).
func (s *Stream) Acquire(live ...io.Writer) *Capture {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := &Capture{stream: s, prev: s.target}
	var target io.Writer = &c.buf
	if len(live) > 0 {
		target = io.MultiWriter(append([]io.Writer{&c.buf}, live...)...)
	}
	s.target = target
	return c
}

// Capture is a held redirection of a Stream.
type Capture struct {
	stream *Stream
	prev   io.Writer
	buf    bytes.Buffer
	once   sync.Once
	out    string
}

// Release restores the stream's previous target and returns everything
// written while the capture was held. It is safe to call more than once.
func (c *Capture) Release() string {
	c.once.Do(func() {
		c.stream.mu.Lock()
		defer c.stream.mu.Unlock()
		c.stream.target = c.prev
		c.out = c.buf.String()
	})
	return c.out
}
