package conn

import (
	"errors"
	"fmt"
	"time"
)

const (
	// UnlimitedAccepted lifts the acceptor connection limit.
	UnlimitedAccepted = -1

	// NoTimeout makes reads and accepts block indefinitely.
	NoTimeout time.Duration = -1

	DefaultBufSize = 1024
	FileBufferSize = 1 << 20
)

// ErrTimeout is returned when no data arrived before the timeout.
var ErrTimeout = errors.New("connection timeout")

// ConnectionError wraps any transport failure.
type ConnectionError struct {
	Op  string
	Err error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connection error during %s: %v", e.Op, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// AddrInUseError is returned by NewTCPAcceptor when the requested port is
// taken and subsequent ports were not allowed.
type AddrInUseError struct {
	Addr string
	Err  error
}

func (e *AddrInUseError) Error() string {
	return fmt.Sprintf("address %s is already in use", e.Addr)
}

func (e *AddrInUseError) Unwrap() error { return e.Err }

// Conn is a duplex connection.
type Conn interface {
	// Read reads raw bytes, bypassing message framing.
	Read(buf []byte, timeout time.Duration) (int, error)

	// ReadLine returns the next newline-delimited message.
	ReadLine(timeout time.Duration) (string, error)

	// WriteLine writes msg, followed by a newline if requested.
	WriteLine(msg string, newline bool) error

	// WriteFile streams the contents of a file.
	WriteFile(path string) error

	// Write writes raw bytes.
	Write(p []byte) error

	BufSize() int
	Close() error
}

func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	var ce *ConnectionError
	if errors.Is(err, ErrTimeout) || errors.As(err, &ce) {
		return err
	}
	return &ConnectionError{Op: op, Err: err}
}
