package conn

import (
	"errors"
	"io"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// WSConn is a duplex connection over a websocket. Every websocket message is
// treated as a chunk of the byte stream, so framing works exactly as for
// pipes and sockets.
type WSConn struct {
	*stream
	ws *wsStream
}

// NewWSConn wraps an established websocket.
func NewWSConn(c *websocket.Conn, bufSize int) *WSConn {
	s := newWSStream(c)
	return &WSConn{
		stream: newStream(c.RemoteAddr().String(), s, s, bufSize, s),
		ws:     s,
	}
}

// DialWS connects to a WSAcceptor URL.
func DialWS(url string, bufSize int, timeout time.Duration) (*WSConn, error) {
	dialer := *websocket.DefaultDialer
	if timeout >= 0 {
		dialer.HandshakeTimeout = timeout
	}
	c, _, err := dialer.Dial(url, nil)
	if err != nil {
		return nil, &ConnectionError{Op: "dial", Err: err}
	}
	return NewWSConn(c, bufSize), nil
}

// wsStream adapts the message-oriented websocket API to a byte stream with
// read deadlines. A pump goroutine owns the read side of the websocket so
// that a timed-out read never poisons the connection.
type wsStream struct {
	c    *websocket.Conn
	msgs chan []byte
	cur  []byte

	mu       sync.Mutex
	deadline time.Time
	readErr  error

	wmu sync.Mutex
}

func newWSStream(c *websocket.Conn) *wsStream {
	s := &wsStream{c: c, msgs: make(chan []byte, 16)}
	go s.pump()
	return s
}

func (s *wsStream) pump() {
	for {
		_, data, err := s.c.ReadMessage()
		if err != nil {
			s.mu.Lock()
			s.readErr = err
			s.mu.Unlock()
			close(s.msgs)
			return
		}
		s.msgs <- data
	}
}

func (s *wsStream) SetReadDeadline(t time.Time) error {
	s.mu.Lock()
	s.deadline = t
	s.mu.Unlock()
	return nil
}

func (s *wsStream) Read(p []byte) (int, error) {
	if len(s.cur) == 0 {
		s.mu.Lock()
		deadline := s.deadline
		s.mu.Unlock()

		var timeout <-chan time.Time
		if !deadline.IsZero() {
			timer := time.NewTimer(time.Until(deadline))
			defer timer.Stop()
			timeout = timer.C
		}

		select {
		case data, ok := <-s.msgs:
			if !ok {
				return 0, s.closedErr()
			}
			s.cur = data
		case <-timeout:
			return 0, os.ErrDeadlineExceeded
		}
	}

	n := copy(p, s.cur)
	s.cur = s.cur[n:]
	return n, nil
}

func (s *wsStream) closedErr() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if websocket.IsCloseError(s.readErr, websocket.CloseNormalClosure, websocket.CloseGoingAway) ||
		errors.Is(s.readErr, io.EOF) {
		return io.EOF
	}
	return s.readErr
}

func (s *wsStream) Write(p []byte) (int, error) {
	s.wmu.Lock()
	defer s.wmu.Unlock()
	if err := s.c.WriteMessage(websocket.BinaryMessage, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (s *wsStream) Close() error {
	s.wmu.Lock()
	_ = s.c.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	s.wmu.Unlock()
	return s.c.Close()
}

// WSAcceptor is an http.Handler upgrading requests into connections.
type WSAcceptor struct {
	limit
	url      string
	bufSize  int
	upgrader websocket.Upgrader
	conns    chan *WSConn
	done     chan struct{}
	once     sync.Once
}

// NewWSAcceptor creates an acceptor reachable at url once mounted on an
// HTTP server.
func NewWSAcceptor(url string, maxAccepted, bufSize int) *WSAcceptor {
	return &WSAcceptor{
		limit:   limit{max: maxAccepted},
		url:     url,
		bufSize: bufSize,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		conns: make(chan *WSConn),
		done:  make(chan struct{}),
	}
}

func (a *WSAcceptor) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	c, err := a.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	wc := NewWSConn(c, a.bufSize)
	select {
	case a.conns <- wc:
	case <-a.done:
		wc.Close()
	case <-r.Context().Done():
		wc.Close()
	}
}

// Accept waits for the next upgraded connection.
func (a *WSAcceptor) Accept(_ int, timeout time.Duration) (Conn, error) {
	a.check()

	var expired <-chan time.Time
	if timeout >= 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}

	select {
	case c := <-a.conns:
		a.add()
		return c, nil
	case <-expired:
		return nil, ErrTimeout
	case <-a.done:
		return nil, &ConnectionError{Op: "accept", Err: errors.New("acceptor closed")}
	}
}

// Instructions returns the websocket URL.
func (a *WSAcceptor) Instructions() string { return a.url }

func (a *WSAcceptor) Close() error {
	a.once.Do(func() { close(a.done) })
	return nil
}
