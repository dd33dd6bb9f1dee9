package conn

import (
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"
)

// TCPConn is a duplex connection over a TCP socket.
type TCPConn struct {
	*stream
	nc net.Conn
}

// NewTCPConn wraps an established network connection.
func NewTCPConn(nc net.Conn, bufSize int) *TCPConn {
	return &TCPConn{
		stream: newStream(nc.RemoteAddr().String(), nc, nc, bufSize, nc),
		nc:     nc,
	}
}

// Address returns the remote host.
func (c *TCPConn) Address() string {
	host, _, _ := net.SplitHostPort(c.nc.RemoteAddr().String())
	return host
}

// Port returns the remote port.
func (c *TCPConn) Port() int {
	if addr, ok := c.nc.RemoteAddr().(*net.TCPAddr); ok {
		return addr.Port
	}
	return 0
}

// DialTCP connects to an acceptor using its connection instructions
// ("<host>_<port>").
func DialTCP(instructions string, bufSize int, timeout time.Duration) (*TCPConn, error) {
	host, port, err := ParseTCPInstructions(instructions)
	if err != nil {
		return nil, err
	}

	d := net.Dialer{}
	if timeout >= 0 {
		d.Timeout = timeout
	}
	nc, err := d.Dial("tcp", net.JoinHostPort(host, strconv.Itoa(port)))
	if err != nil {
		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			return nil, ErrTimeout
		}
		return nil, &ConnectionError{Op: "dial", Err: err}
	}
	return NewTCPConn(nc, bufSize), nil
}

// ParseTCPInstructions splits "<host>_<port>". The host may itself contain
// underscores; the port is everything after the last one.
func ParseTCPInstructions(instructions string) (string, int, error) {
	i := strings.LastIndexByte(instructions, '_')
	if i <= 0 {
		return "", 0, fmt.Errorf("invalid TCP connection instructions %q", instructions)
	}
	port, err := strconv.Atoi(instructions[i+1:])
	if err != nil || port <= 0 || port > 65535 {
		return "", 0, fmt.Errorf("invalid port in TCP connection instructions %q", instructions)
	}
	return instructions[:i], port, nil
}
