// Package transport implements Konflikt's WebSocket transport: the
// server-side connection registry with a ping/pong keepalive pump, and
// the client dialer with TLS support. Both sides exchange the raw JSON
// frames produced by internal/protocol as text messages.
package transport

import (
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 1 << 20
	sendBufferSize = 32
)

// MessageHandler is invoked for every frame received from conn.
type MessageHandler func(conn string, data []byte)

// DisconnectHandler is invoked once a connection's read pump exits.
type DisconnectHandler func(conn string)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

type serverConn struct {
	id   string
	ws   *websocket.Conn
	send chan []byte
}

// Server is the WebSocket connection registry. A Server is also valid
// to use directly as an engine.Broadcaster and a session.Transport.
type Server struct {
	mu    sync.RWMutex
	conns map[string]*serverConn

	onMessage    MessageHandler
	onDisconnect DisconnectHandler
	log          *slog.Logger
}

// NewServer creates an empty connection registry.
func NewServer(log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{conns: make(map[string]*serverConn), log: log}
}

// OnMessage registers the callback invoked for every received frame.
func (s *Server) OnMessage(fn MessageHandler) { s.onMessage = fn }

// OnDisconnect registers the callback invoked when a connection closes.
func (s *Server) OnDisconnect(fn DisconnectHandler) { s.onDisconnect = fn }

// HandleUpgrade upgrades an HTTP request to a WebSocket connection and
// starts its read/write pumps. Suitable for mounting at "/ws".
func (s *Server) HandleUpgrade(w http.ResponseWriter, r *http.Request) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("transport: upgrade failed", "error", err)
		return
	}

	c := &serverConn{id: uuid.NewString(), ws: ws, send: make(chan []byte, sendBufferSize)}
	s.mu.Lock()
	s.conns[c.id] = c
	s.mu.Unlock()

	s.log.Info("transport: connection accepted", "conn", c.id)
	go s.writePump(c)
	go s.readPump(c)
}

func (s *Server) readPump(c *serverConn) {
	defer s.removeConn(c)

	c.ws.SetReadLimit(maxMessageSize)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			s.log.Info("transport: connection closed", "conn", c.id, "error", err)
			return
		}
		if s.onMessage != nil {
			s.onMessage(c.id, data)
		}
	}
}

func (s *Server) writePump(c *serverConn) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.ws.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.ws.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (s *Server) removeConn(c *serverConn) {
	s.mu.Lock()
	_, existed := s.conns[c.id]
	if existed {
		delete(s.conns, c.id)
		close(c.send)
	}
	s.mu.Unlock()
	if existed && s.onDisconnect != nil {
		s.onDisconnect(c.id)
	}
}

// Send queues data for delivery to conn. Returns an error if conn is
// unknown or its send buffer is full.
func (s *Server) Send(conn string, data []byte) error {
	s.mu.RLock()
	c, ok := s.conns[conn]
	s.mu.RUnlock()
	if !ok {
		return fmt.Errorf("transport: unknown connection %q", conn)
	}
	select {
	case c.send <- data:
		return nil
	default:
		return fmt.Errorf("transport: send buffer full for connection %q", conn)
	}
}

// Broadcast queues data for delivery to every connected peer. A full
// send buffer drops the frame for that peer only, logged, not fatal.
func (s *Server) Broadcast(data []byte) {
	s.mu.RLock()
	conns := make([]*serverConn, 0, len(s.conns))
	for _, c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.RUnlock()

	for _, c := range conns {
		select {
		case c.send <- data:
		default:
			s.log.Warn("transport: dropped broadcast frame, send buffer full", "conn", c.id)
		}
	}
}

// Close closes the given connection, triggering its read pump's exit
// and the registered disconnect handler. Unknown connections are a
// no-op.
func (s *Server) Close(conn string) error {
	s.mu.RLock()
	c, ok := s.conns[conn]
	s.mu.RUnlock()
	if !ok {
		return nil
	}
	return c.ws.Close()
}

// Count returns the number of currently registered connections.
func (s *Server) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.conns)
}
