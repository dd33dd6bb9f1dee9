package conn

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// FDConn is a duplex connection over two pipe file descriptors.
type FDConn struct {
	*stream
	rf *os.File
	wf *os.File
}

// NewFDConnFiles builds a connection from already-open files. A nil file
// disables that direction. The connection takes ownership of both files.
func NewFDConnFiles(r, w *os.File, bufSize int) *FDConn {
	c := &FDConn{rf: r, wf: w}
	var reader deadlineReader
	if r != nil {
		reader = r
	}
	c.stream = newStream(fdName(r, w), reader, nil, bufSize)
	if r != nil {
		c.closers = append(c.closers, r)
	}
	if w != nil {
		c.w = w
		c.closers = append(c.closers, w)
	}
	return c
}

// NewFDConn builds a connection from raw descriptor numbers, as received
// through the environment of a spawned process. A negative number disables
// that direction. The descriptors are switched to non-blocking mode so that
// read timeouts work.
func NewFDConn(readFD, writeFD int, bufSize int) (*FDConn, error) {
	var r, w *os.File
	if readFD >= 0 {
		if err := unix.SetNonblock(readFD, true); err != nil {
			return nil, &ConnectionError{Op: "set nonblock", Err: err}
		}
		r = os.NewFile(uintptr(readFD), fmt.Sprintf("fd%d", readFD))
	}
	if writeFD >= 0 {
		if err := unix.SetNonblock(writeFD, true); err != nil {
			if r != nil {
				r.Close()
			}
			return nil, &ConnectionError{Op: "set nonblock", Err: err}
		}
		w = os.NewFile(uintptr(writeFD), fmt.Sprintf("fd%d", writeFD))
	}
	return NewFDConnFiles(r, w, bufSize), nil
}

// NewPipePair creates a connection and the two files its peer needs: the
// peer reads from peerRead and writes to peerWrite. The caller transfers the
// peer files (for example as ExtraFiles of a child) and then closes its
// copies so that EOF is observable.
func NewPipePair(bufSize int) (c *FDConn, peerRead, peerWrite *os.File, err error) {
	inR, inW, err := os.Pipe()
	if err != nil {
		return nil, nil, nil, &ConnectionError{Op: "pipe", Err: err}
	}
	outR, outW, err := os.Pipe()
	if err != nil {
		inR.Close()
		inW.Close()
		return nil, nil, nil, &ConnectionError{Op: "pipe", Err: err}
	}
	return NewFDConnFiles(inR, outW, bufSize), outR, inW, nil
}

// ReadFD returns the descriptor of the read side, or -1.
func (c *FDConn) ReadFD() int { return rawFD(c.rf) }

// WriteFD returns the descriptor of the write side, or -1.
func (c *FDConn) WriteFD() int { return rawFD(c.wf) }

// CloseWrite closes only the write side, signalling EOF to the peer.
func (c *FDConn) CloseWrite() error {
	if c.wf == nil {
		return nil
	}
	c.wmu.Lock()
	defer c.wmu.Unlock()
	err := c.wf.Close()
	c.stream.w = nil
	return err
}

func fdName(r, w *os.File) string {
	rn, wn := "-", "-"
	if r != nil {
		rn = r.Name()
	}
	if w != nil {
		wn = w.Name()
	}
	return fmt.Sprintf("pipe(%s,%s)", rn, wn)
}

// rawFD avoids (*os.File).Fd, which would put the descriptor back into
// blocking mode and break read deadlines.
func rawFD(f *os.File) int {
	if f == nil {
		return -1
	}
	fd := -1
	if rc, err := f.SyscallConn(); err == nil {
		_ = rc.Control(func(u uintptr) { fd = int(u) })
	}
	return fd
}
