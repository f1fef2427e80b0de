// ABOUTME: WebSocket-backed implementation of the registry Channel interface.
// ABOUTME: Wraps a coder/websocket connection for push delivery to one client.

package connection

import (
	"context"
	"sync"

	"github.com/coder/websocket"
)

// WSChannel adapts a websocket connection to the Channel interface.
type WSChannel struct {
	conn *websocket.Conn

	mu     sync.Mutex
	closed bool
}

// NewWSChannel wraps an accepted websocket connection.
func NewWSChannel(conn *websocket.Conn) *WSChannel {
	return &WSChannel{conn: conn}
}

// Send writes payload as a single text frame.
func (c *WSChannel) Send(ctx context.Context, payload []byte) error {
	return c.conn.Write(ctx, websocket.MessageText, payload)
}

// Close shuts the connection down with a normal closure. Safe to call more
// than once; the registry closes replaced handles and the accept handler
// closes its own on teardown.
func (c *WSChannel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true
	return c.conn.Close(websocket.StatusNormalClosure, "connection closed")
}
