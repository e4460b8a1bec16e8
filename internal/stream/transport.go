package stream

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

// Conn is one live duplex connection to an upstream endpoint. A
// successful Dial corresponds to a completed handshake; ReadMessage
// returning an error corresponds to transport closure or failure.
type Conn interface {
	// ReadMessage blocks until the next frame arrives or the
	// connection fails.
	ReadMessage() ([]byte, error)
	// Close tears the connection down. Safe to call more than once.
	Close() error
}

// Transport establishes connections to upstream endpoints. The manager
// only ever holds one live Conn per channel.
type Transport interface {
	Dial(ctx context.Context, url string, header http.Header) (Conn, error)
}

// WebsocketTransport dials upstream endpoints over WebSocket.
//
// HandshakeTimeout of zero means the dial waits indefinitely; a channel
// whose handshake never completes stays in the connecting state until
// the caller reconnects.
type WebsocketTransport struct {
	HandshakeTimeout time.Duration
}

var _ Transport = (*WebsocketTransport)(nil)

// Dial opens a WebSocket connection to url, sending header with the
// handshake request.
func (t *WebsocketTransport) Dial(ctx context.Context, url string, header http.Header) (Conn, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout:  t.HandshakeTimeout,
		EnableCompression: true,
	}
	conn, _, err := dialer.DialContext(ctx, url, header)
	if err != nil {
		return nil, err
	}
	return &wsConn{conn: conn}, nil
}

type wsConn struct {
	conn *websocket.Conn
}

func (c *wsConn) ReadMessage() ([]byte, error) {
	_, data, err := c.conn.ReadMessage()
	return data, err
}

func (c *wsConn) Close() error {
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	return c.conn.Close()
}
