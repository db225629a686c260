package transport

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/konflikt/konflikt/internal/model"
)

// Client is a WebSocket client connection with a ping/pong keepalive
// pump and the reconnect bookkeeping the supervisor consults to decide
// when to redial.
type Client struct {
	url       string
	tlsConfig *tls.Config
	log       *slog.Logger

	mu   sync.Mutex
	ws   *websocket.Conn
	send chan []byte

	onMessage    func(data []byte)
	onDisconnect func(err error)

	// Reconnect tracks attempts/delay policy between dials. Owned by
	// the caller's supervisor loop, not mutated internally except by
	// Reset on a successful Dial.
	Reconnect model.ReconnectState
}

// NewClient creates a client for the given ws:// or wss:// URL.
// tlsConfig is used only for wss:// URLs and may be nil for plain ws.
func NewClient(url string, tlsConfig *tls.Config, log *slog.Logger) *Client {
	if log == nil {
		log = slog.Default()
	}
	return &Client{url: url, tlsConfig: tlsConfig, log: log}
}

// OnMessage registers the callback invoked for every received frame.
func (c *Client) OnMessage(fn func(data []byte)) { c.onMessage = fn }

// OnDisconnect registers the callback invoked when the read pump exits,
// passing the read error that ended it (never nil, a local Close included).
func (c *Client) OnDisconnect(fn func(err error)) { c.onDisconnect = fn }

// Dial connects to the configured URL and starts the read/write pumps.
// On success, resets the reconnect attempt counter.
func (c *Client) Dial(ctx context.Context) error {
	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
		TLSClientConfig:  c.tlsConfig,
	}
	ws, resp, err := dialer.DialContext(ctx, c.url, http.Header{})
	if err != nil {
		return fmt.Errorf("transport: dial %s: %w", c.url, err)
	}
	if resp != nil {
		resp.Body.Close()
	}

	c.mu.Lock()
	c.ws = ws
	c.send = make(chan []byte, sendBufferSize)
	c.mu.Unlock()
	c.Reconnect.Reset()

	go c.writePump(ws, c.send)
	go c.readPump(ws)
	return nil
}

func (c *Client) readPump(ws *websocket.Conn) {
	ws.SetReadLimit(maxMessageSize)
	_ = ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			if c.onDisconnect != nil {
				c.onDisconnect(err)
			}
			return
		}
		if c.onMessage != nil {
			c.onMessage(data)
		}
	}
}

func (c *Client) writePump(ws *websocket.Conn, send chan []byte) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		ws.Close()
	}()

	for {
		select {
		case data, ok := <-send:
			_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = ws.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := ws.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Send queues data for delivery to the server. Returns an error if not
// currently connected or if the send buffer is full.
func (c *Client) Send(data []byte) error {
	c.mu.Lock()
	ch := c.send
	c.mu.Unlock()
	if ch == nil {
		return fmt.Errorf("transport: client not connected")
	}
	select {
	case ch <- data:
		return nil
	default:
		return fmt.Errorf("transport: client send buffer full")
	}
}

// Close closes the underlying connection, if any.
func (c *Client) Close() error {
	c.mu.Lock()
	ws := c.ws
	c.mu.Unlock()
	if ws == nil {
		return nil
	}
	return ws.Close()
}
