package conn

import (
	"bytes"
	"errors"
	"io"
	"os"
	"time"
)

// deadlineReader is the read side every transport exposes.
type deadlineReader interface {
	io.Reader
	SetReadDeadline(t time.Time) error
}

// Framer splits a byte stream into newline-delimited messages.
//
// buf[:start] always holds the unterminated tail of the last read. When
// that tail fills the whole buffer it is moved to pending so the next read
// has room.
type Framer struct {
	r       deadlineReader
	buf     []byte
	start   int
	pending []byte
	queue   []string
	eof     bool
}

// NewFramer creates a framer reading from r with a buffer of bufSize bytes.
func NewFramer(r deadlineReader, bufSize int) *Framer {
	if bufSize <= 0 {
		bufSize = DefaultBufSize
	}
	return &Framer{r: r, buf: make([]byte, bufSize)}
}

// ReadRaw performs a single read honouring timeout.
func (f *Framer) ReadRaw(p []byte, timeout time.Duration) (int, error) {
	if err := setDeadline(f.r, timeout); err != nil {
		return 0, &ConnectionError{Op: "set deadline", Err: err}
	}
	n, err := f.r.Read(p)
	if err != nil {
		if errors.Is(err, os.ErrDeadlineExceeded) {
			return n, ErrTimeout
		}
		if errors.Is(err, io.EOF) {
			return n, io.EOF
		}
		return n, &ConnectionError{Op: "read", Err: err}
	}
	return n, nil
}

// ReadLine returns the next message. Empty lines are skipped. After the
// peer has shut down, any unterminated data is returned once as a final
// message and io.EOF follows.
func (f *Framer) ReadLine(timeout time.Duration) (string, error) {
	if msg, ok := f.pop(); ok {
		return msg, nil
	}

	for {
		if f.eof {
			return "", io.EOF
		}

		n, err := f.ReadRaw(f.buf[f.start:], timeout)
		if n > 0 {
			f.consume(f.start + n)
			if msg, ok := f.pop(); ok {
				return msg, nil
			}
		}

		switch {
		case err != nil && !errors.Is(err, io.EOF):
			return "", err
		case err != nil || n == 0:
			// A zero-byte read without an error is an orderly shutdown too.
			return f.flush()
		}
	}
}

// flush marks the stream as finished and returns the unterminated tail, if
// any.
func (f *Framer) flush() (string, error) {
	f.eof = true
	tail := string(f.pending) + string(f.buf[:f.start])
	f.pending = f.pending[:0]
	f.start = 0
	if tail != "" {
		return tail, nil
	}
	return "", io.EOF
}

func (f *Framer) consume(size int) {
	data := f.buf[:size]
	pos := 0

	for {
		i := bytes.IndexByte(data[pos:], '\n')
		if i < 0 {
			break
		}
		line := data[pos : pos+i]
		if len(f.pending) > 0 || len(line) > 0 {
			f.queue = append(f.queue, string(f.pending)+string(line))
			f.pending = f.pending[:0]
		}
		pos += i + 1
	}

	rest := size - pos
	if rest == len(f.buf) {
		f.pending = append(f.pending, data...)
		f.start = 0
		return
	}
	copy(f.buf, data[pos:])
	f.start = rest
}

func (f *Framer) pop() (string, bool) {
	if len(f.queue) == 0 {
		return "", false
	}
	msg := f.queue[0]
	f.queue = f.queue[1:]
	return msg, true
}

// Buffered reports how many complete messages are queued.
func (f *Framer) Buffered() int {
	return len(f.queue)
}

func setDeadline(r deadlineReader, timeout time.Duration) error {
	if timeout < 0 {
		return r.SetReadDeadline(time.Time{})
	}
	return r.SetReadDeadline(time.Now().Add(timeout))
}
