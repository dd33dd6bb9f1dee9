package conn

import (
	"fmt"
	"sync"
	"time"
)

// Acceptor accepts incoming connections up to a fixed limit.
type Acceptor interface {
	// Accept waits up to timeout for a new connection. Calling it after
	// the limit has been reached panics.
	Accept(bufSize int, timeout time.Duration) (Conn, error)

	// Instructions returns what a peer needs to connect.
	Instructions() string

	Close() error
}

// limit tracks accepted connections against a maximum.
type limit struct {
	mu       sync.Mutex
	max      int
	accepted int
}

// check panics when no more connections may be accepted.
func (l *limit) check() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.max != UnlimitedAccepted && l.accepted >= l.max {
		panic(fmt.Sprintf("conn: acceptor limit of %d connections reached", l.max))
	}
}

func (l *limit) add() {
	l.mu.Lock()
	l.accepted++
	l.mu.Unlock()
}

// Accepted returns the number of connections accepted so far.
func (l *limit) Accepted() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.accepted
}
