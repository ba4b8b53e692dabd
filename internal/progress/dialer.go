package progress

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

const closeWriteWait = time.Second

// Conn is the subset of a WebSocket connection the channel needs.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// Dialer opens a Conn for a channel URL.
type Dialer interface {
	Dial(ctx context.Context, url string) (Conn, error)
}

// WebsocketDialer dials with gorilla/websocket.
type WebsocketDialer struct {
	// Dialer defaults to websocket.DefaultDialer.
	Dialer *websocket.Dialer
	// Header is sent with the handshake request.
	Header http.Header
}

// Dial implements Dialer.
func (d WebsocketDialer) Dial(ctx context.Context, url string) (Conn, error) {
	dialer := d.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	conn, resp, err := dialer.DialContext(ctx, url, d.Header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s: status %d: %w", url, resp.StatusCode, err)
		}
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	return &wsConn{Conn: conn}, nil
}

// wsConn sends a normal-closure frame before dropping the socket.
type wsConn struct {
	*websocket.Conn
}

func (c *wsConn) Close() error {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = c.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeWriteWait))
	if err := c.Conn.Close(); err != nil {
		return fmt.Errorf("close websocket: %w", err)
	}
	return nil
}
