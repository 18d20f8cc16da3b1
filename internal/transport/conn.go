package transport

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/danmuck/strokectl/internal/protocol/session"
	"github.com/gorilla/websocket"
)

// Conn is one open message channel.
type Conn interface {
	Read() ([]byte, error)
	Write(payload []byte) error
	Close() error
}

// Dialer opens a Conn to endpoint.
type Dialer interface {
	Dial(ctx context.Context, endpoint string) (Conn, error)
}

// WebSocketDialer dials ws:// and wss:// endpoints with gorilla/websocket.
type WebSocketDialer struct {
	Session session.Config
	Header  http.Header
}

func (d WebSocketDialer) Dial(ctx context.Context, endpoint string) (Conn, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("dial websocket: %w", err)
	}
	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: d.Session.ConnectTimeout,
	}
	if u.Scheme == "wss" {
		tlsCfg, err := d.Session.ClientTLSConfig(u.Hostname())
		if err != nil {
			return nil, fmt.Errorf("dial websocket: %w", err)
		}
		dialer.TLSClientConfig = tlsCfg
	}
	ws, _, err := dialer.DialContext(ctx, endpoint, d.Header)
	if err != nil {
		return nil, fmt.Errorf("dial websocket: %w", err)
	}
	c := &wsConn{
		ws:           ws,
		readTimeout:  d.Session.ReadTimeout,
		writeTimeout: d.Session.WriteTimeout,
	}
	ws.SetPongHandler(func(string) error {
		c.extendRead()
		return nil
	})
	return c, nil
}

type wsConn struct {
	ws           *websocket.Conn
	readTimeout  time.Duration
	writeTimeout time.Duration
	writeMu      sync.Mutex
}

func (c *wsConn) Read() ([]byte, error) {
	c.extendRead()
	_, data, err := c.ws.ReadMessage()
	return data, err
}

// extendRead pushes the read deadline out; runs on the reader goroutine.
func (c *wsConn) extendRead() {
	if c.readTimeout > 0 {
		_ = c.ws.SetReadDeadline(time.Now().Add(c.readTimeout))
	}
}

// Write sends one text frame. gorilla allows a single concurrent writer.
func (c *wsConn) Write(payload []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.writeTimeout > 0 {
		_ = c.ws.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	}
	return c.ws.WriteMessage(websocket.TextMessage, payload)
}

func (c *wsConn) Close() error {
	c.writeMu.Lock()
	_ = c.ws.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second),
	)
	c.writeMu.Unlock()
	return c.ws.Close()
}
