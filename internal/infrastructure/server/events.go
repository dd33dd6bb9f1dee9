package server

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/adaptyst/adaptyst/internal/shared/id"
	"github.com/adaptyst/adaptyst/internal/system"
)

const (
	// sendQueue is how many events a slow subscriber may fall behind
	// before it is dropped.
	sendQueue  = 64
	writeWait  = 5 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

var upgrader = websocket.Upgrader{
	// The status server is read-only, browsers on any origin may watch.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Message is what subscribers receive. Type is "system" for the greeting
// and "event" for session events.
type Message struct {
	Type    string        `json:"type"`
	Client  id.ClientID   `json:"client,omitempty"`
	Message string        `json:"message,omitempty"`
	Event   *system.Event `json:"event,omitempty"`
}

type subscriber struct {
	id   id.ClientID
	conn *websocket.Conn
	send chan Message
	once sync.Once
}

func (s *subscriber) stop() { s.once.Do(func() { close(s.send) }) }

// Hub fans system events out to websocket subscribers.
type Hub struct {
	logger *zap.Logger

	mu     sync.Mutex
	subs   map[id.ClientID]*subscriber
	closed bool
}

// NewHub creates an empty hub.
func NewHub(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{logger: logger, subs: map[id.ClientID]*subscriber{}}
}

// Len returns the number of connected subscribers.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Broadcast queues ev for every subscriber. Subscribers whose queue is full
// are disconnected.
func (h *Hub) Broadcast(ev system.Event) {
	msg := Message{Type: "event", Event: &ev}

	h.mu.Lock()
	defer h.mu.Unlock()
	for cid, s := range h.subs {
		select {
		case s.send <- msg:
		default:
			h.logger.Warn("Dropping slow event subscriber", zap.String("client", cid.String()))
			delete(h.subs, cid)
			s.stop()
		}
	}
}

// Close disconnects every subscriber and refuses new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for cid, s := range h.subs {
		delete(h.subs, cid)
		s.stop()
	}
}

func (h *Hub) add(s *subscriber) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.subs[s.id] = s
	return true
}

func (h *Hub) remove(s *subscriber) {
	h.mu.Lock()
	if h.subs[s.id] == s {
		delete(h.subs, s.id)
	}
	h.mu.Unlock()
	s.stop()
}

// HandleConnection upgrades the request and streams events until the
// client goes away or the hub closes.
func (h *Hub) HandleConnection(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("WebSocket upgrade failed", zap.Error(err))
		return
	}

	s := &subscriber{
		id:   id.NewClientID(),
		conn: conn,
		send: make(chan Message, sendQueue),
	}
	s.send <- Message{Type: "system", Client: s.id, Message: "Connected to Adaptyst"}
	if !h.add(s) {
		conn.Close()
		return
	}
	h.logger.Debug("Event subscriber connected", zap.String("client", s.id.String()))

	go h.writePump(s)
	h.readPump(s)
}

// readPump only watches for the client closing; subscribers send nothing.
func (h *Hub) readPump(s *subscriber) {
	defer h.remove(s)

	s.conn.SetReadLimit(512)
	_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := s.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug("WebSocket read error", zap.String("client", s.id.String()), zap.Error(err))
			}
			return
		}
	}
}

func (h *Hub) writePump(s *subscriber) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		s.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-s.send:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = s.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := s.conn.WriteJSON(msg); err != nil {
				h.logger.Debug("WebSocket write error", zap.String("client", s.id.String()), zap.Error(err))
				return
			}
		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
