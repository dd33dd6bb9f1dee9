package conn

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sys/unix"
)

// TCPAcceptorConfig configures a TCP acceptor.
type TCPAcceptorConfig struct {
	Host        string
	Port        int
	MaxAccepted int

	// TrySubsequentPorts moves on to the next port while the current one is
	// in use. The final port is reflected in Instructions.
	TrySubsequentPorts bool

	Logger *zap.Logger
}

// TCPAcceptor listens on a TCP port.
type TCPAcceptor struct {
	limit
	ln     *net.TCPListener
	host   string
	port   int
	logger *zap.Logger
}

// NewTCPAcceptor binds and starts listening.
func NewTCPAcceptor(cfg TCPAcceptorConfig) (*TCPAcceptor, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	port := cfg.Port
	for {
		addr := net.JoinHostPort(cfg.Host, strconv.Itoa(port))
		ln, err := net.Listen("tcp", addr)
		if err == nil {
			tcpLn := ln.(*net.TCPListener)
			bound := tcpLn.Addr().(*net.TCPAddr).Port
			logger.Debug("TCP acceptor listening", zap.String("addr", addr), zap.Int("port", bound))
			return &TCPAcceptor{
				limit:  limit{max: cfg.MaxAccepted},
				ln:     tcpLn,
				host:   cfg.Host,
				port:   bound,
				logger: logger,
			}, nil
		}

		if !errors.Is(err, unix.EADDRINUSE) {
			return nil, &ConnectionError{Op: "listen", Err: err}
		}
		if !cfg.TrySubsequentPorts {
			return nil, &AddrInUseError{Addr: addr, Err: err}
		}
		if port >= 65535 {
			return nil, &ConnectionError{Op: "listen", Err: fmt.Errorf("no free port at or above %d", cfg.Port)}
		}
		logger.Debug("port in use, trying next", zap.Int("port", port))
		port++
	}
}

// Accept waits for the next TCP connection.
func (a *TCPAcceptor) Accept(bufSize int, timeout time.Duration) (Conn, error) {
	a.check()

	deadline := time.Time{}
	if timeout >= 0 {
		deadline = time.Now().Add(timeout)
	}
	if err := a.ln.SetDeadline(deadline); err != nil {
		return nil, &ConnectionError{Op: "set deadline", Err: err}
	}

	nc, err := a.ln.Accept()
	if err != nil {
		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			return nil, ErrTimeout
		}
		return nil, &ConnectionError{Op: "accept", Err: err}
	}
	a.add()
	a.logger.Debug("accepted TCP connection", zap.String("remote", nc.RemoteAddr().String()))
	return NewTCPConn(nc, bufSize), nil
}

// Instructions returns "<host>_<port>".
func (a *TCPAcceptor) Instructions() string {
	return a.host + "_" + strconv.Itoa(a.port)
}

// Port returns the bound port.
func (a *TCPAcceptor) Port() int { return a.port }

func (a *TCPAcceptor) Close() error {
	return a.ln.Close()
}
