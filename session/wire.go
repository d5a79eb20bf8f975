package session

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"nhooyr.io/websocket"
)

// Synthesized speech arrives as base64 data URLs inside one frame, so
// the read limit is far above the websocket default.
const maxFrameBytes = 32 << 20

// WebsocketDialer returns a Dialer that connects to the backend's
// event endpoint. Accepts http(s):// or ws(s):// server URLs.
func WebsocketDialer(serverURL string) (Dialer, error) {
	endpoint, err := url.Parse(serverURL)
	if err != nil {
		return nil, fmt.Errorf("parsing server URL: %w", err)
	}
	switch endpoint.Scheme {
	case "http":
		endpoint.Scheme = "ws"
	case "https":
		endpoint.Scheme = "wss"
	case "ws", "wss":
	default:
		return nil, fmt.Errorf("unsupported scheme %q", endpoint.Scheme)
	}
	if endpoint.Path == "" || endpoint.Path == "/" {
		endpoint.Path = "/ws"
	}
	target := endpoint.String()

	return func(ctx context.Context) (Conn, error) {
		conn, _, err := websocket.Dial(ctx, target, nil)
		if err != nil {
			return nil, fmt.Errorf("dialing %s: %w", target, err)
		}
		conn.SetReadLimit(maxFrameBytes)
		return &wsConn{conn: conn}, nil
	}, nil
}

type wsConn struct {
	conn *websocket.Conn
}

func (c *wsConn) Read(ctx context.Context) ([]byte, error) {
	for {
		typ, data, err := c.conn.Read(ctx)
		if err != nil {
			return nil, err
		}
		// The protocol is text frames only; stray binary frames are
		// not a reason to drop the connection.
		if typ != websocket.MessageText {
			continue
		}
		return data, nil
	}
}

func (c *wsConn) Write(ctx context.Context, frame []byte) error {
	return c.conn.Write(ctx, websocket.MessageText, frame)
}

func (c *wsConn) Close() error {
	err := c.conn.Close(websocket.StatusNormalClosure, "")
	if err != nil && strings.Contains(err.Error(), "already wrote close") {
		return nil
	}
	return err
}
