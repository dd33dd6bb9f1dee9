// Package conn provides duplex, line-framed connections and the acceptors
// producing them.
//
// Transports:
//   - FDConn: a pair of pipe file descriptors (same host, parent/child)
//   - TCPConn: a TCP socket (cross host)
//   - WSConn: a websocket (cross host, through HTTP infrastructure)
//
// All of them share the same Framer, which turns a byte stream into
// newline-delimited messages. Messages split across reads are joined,
// several messages arriving in one read are queued and handed out FIFO,
// and a partial message pending when the peer shuts down is returned as
// the final message before io.EOF.
//
// Timeouts are expressed as time.Duration; NoTimeout blocks forever. A
// read that times out returns ErrTimeout and leaves the connection usable.
// Any other transport failure is a *ConnectionError.
//
// Acceptors hand out connections up to a fixed limit. Accepting past that
// limit is a programming error and panics.
package conn
