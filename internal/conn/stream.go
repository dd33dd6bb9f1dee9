package conn

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

// stream implements Conn over a deadline-capable reader and a writer.
// Either side may be absent.
type stream struct {
	name    string
	r       deadlineReader
	w       io.Writer
	framer  *Framer
	bufSize int
	closers []io.Closer

	rmu       sync.Mutex
	wmu       sync.Mutex
	closeOnce sync.Once
	closeErr  error
}

func newStream(name string, r deadlineReader, w io.Writer, bufSize int, closers ...io.Closer) *stream {
	if bufSize <= 0 {
		bufSize = DefaultBufSize
	}
	s := &stream{name: name, r: r, w: w, bufSize: bufSize, closers: closers}
	if r != nil {
		s.framer = NewFramer(r, bufSize)
	}
	return s
}

var errNotReadable = errors.New("connection has no read side")
var errNotWritable = errors.New("connection has no write side")

func (s *stream) Read(buf []byte, timeout time.Duration) (int, error) {
	if s.framer == nil {
		return 0, &ConnectionError{Op: "read", Err: errNotReadable}
	}
	s.rmu.Lock()
	defer s.rmu.Unlock()
	return s.framer.ReadRaw(buf, timeout)
}

func (s *stream) ReadLine(timeout time.Duration) (string, error) {
	if s.framer == nil {
		return "", &ConnectionError{Op: "read", Err: errNotReadable}
	}
	s.rmu.Lock()
	defer s.rmu.Unlock()
	return s.framer.ReadLine(timeout)
}

func (s *stream) WriteLine(msg string, newline bool) error {
	if newline {
		msg += "\n"
	}
	return s.Write([]byte(msg))
}

func (s *stream) Write(p []byte) error {
	if s.w == nil {
		return &ConnectionError{Op: "write", Err: errNotWritable}
	}
	s.wmu.Lock()
	defer s.wmu.Unlock()

	n, err := s.w.Write(p)
	if err != nil {
		return wrap("write", err)
	}
	if n != len(p) {
		return &ConnectionError{
			Op:  "write",
			Err: fmt.Errorf("wrote %d bytes instead of %d to %s", n, len(p), s.name),
		}
	}
	return nil
}

func (s *stream) WriteFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return &ConnectionError{Op: "open " + path, Err: err}
	}
	defer f.Close()

	chunk := make([]byte, FileBufferSize)
	for {
		n, rerr := f.Read(chunk)
		if n > 0 {
			if err := s.Write(chunk[:n]); err != nil {
				return err
			}
		}
		if rerr == io.EOF {
			return nil
		}
		if rerr != nil {
			return &ConnectionError{Op: "read " + path, Err: rerr}
		}
	}
}

func (s *stream) BufSize() int { return s.bufSize }

func (s *stream) Close() error {
	s.closeOnce.Do(func() {
		var errs []error
		for _, c := range s.closers {
			if err := c.Close(); err != nil && !errors.Is(err, os.ErrClosed) {
				errs = append(errs, err)
			}
		}
		s.closeErr = errors.Join(errs...)
	})
	return s.closeErr
}

func (s *stream) String() string { return s.name }
