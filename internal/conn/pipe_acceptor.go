package conn

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sys/unix"
)

// HandshakeToken is what a pipe peer writes to get accepted.
const HandshakeToken = "connect"

// PipeAcceptor hands out a single connection over two pre-allocated pipes.
type PipeAcceptor struct {
	limit
	local     *FDConn
	peerRead  *os.File
	peerWrite *os.File
}

// NewPipeAcceptor allocates the pipes. The acceptor accepts at most one
// connection.
func NewPipeAcceptor(bufSize int) (*PipeAcceptor, error) {
	local, peerRead, peerWrite, err := NewPipePair(bufSize)
	if err != nil {
		return nil, err
	}
	return &PipeAcceptor{
		limit:     limit{max: 1},
		local:     local,
		peerRead:  peerRead,
		peerWrite: peerWrite,
	}, nil
}

// Accept blocks until the peer writes the handshake token, then returns
// the local end. bufSize is fixed at construction for pipes.
func (a *PipeAcceptor) Accept(_ int, timeout time.Duration) (Conn, error) {
	a.check()

	msg, err := a.local.ReadLine(timeout)
	if err != nil {
		return nil, wrap("handshake", err)
	}
	if msg != HandshakeToken {
		return nil, &ConnectionError{
			Op:  "handshake",
			Err: fmt.Errorf("expected %q, got %q", HandshakeToken, msg),
		}
	}
	a.add()
	return a.local, nil
}

// Instructions returns "<fd-for-peer-read>_<fd-for-peer-write>" as valid in
// this process.
func (a *PipeAcceptor) Instructions() string {
	return strconv.Itoa(rawFD(a.peerRead)) + "_" + strconv.Itoa(rawFD(a.peerWrite))
}

// PeerFiles returns the peer's ends for transfer into a child process.
func (a *PipeAcceptor) PeerFiles() (read, write *os.File) {
	return a.peerRead, a.peerWrite
}

// ClosePeer closes this process's copies of the peer ends. Call it once the
// peer ends have been handed to a child.
func (a *PipeAcceptor) ClosePeer() error {
	err1 := a.peerRead.Close()
	err2 := a.peerWrite.Close()
	if err1 != nil {
		return err1
	}
	return err2
}

// Close closes the acceptor and the local end if it was never accepted.
func (a *PipeAcceptor) Close() error {
	_ = a.ClosePeer()
	if a.Accepted() == 0 {
		return a.local.Close()
	}
	return nil
}

// DialPipe connects to a PipeAcceptor in the same process using its
// instructions. The descriptors are duplicated, so the acceptor keeps
// ownership of its own copies.
func DialPipe(instructions string, bufSize int) (*FDConn, error) {
	readFD, writeFD, err := ParsePipeInstructions(instructions)
	if err != nil {
		return nil, err
	}
	r, err := unix.Dup(readFD)
	if err != nil {
		return nil, &ConnectionError{Op: "dup", Err: err}
	}
	w, err := unix.Dup(writeFD)
	if err != nil {
		unix.Close(r)
		return nil, &ConnectionError{Op: "dup", Err: err}
	}
	c, err := NewFDConn(r, w, bufSize)
	if err != nil {
		unix.Close(r)
		unix.Close(w)
		return nil, err
	}
	if err := c.WriteLine(HandshakeToken, true); err != nil {
		c.Close()
		return nil, err
	}
	return c, nil
}

// ParsePipeInstructions splits "<read-fd>_<write-fd>".
func ParsePipeInstructions(instructions string) (int, int, error) {
	parts := strings.Split(instructions, "_")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("invalid pipe connection instructions %q", instructions)
	}
	r, err1 := strconv.Atoi(parts[0])
	w, err2 := strconv.Atoi(parts[1])
	if err1 != nil || err2 != nil {
		return 0, 0, fmt.Errorf("invalid pipe connection instructions %q", instructions)
	}
	return r, w, nil
}
