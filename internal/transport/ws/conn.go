// Package ws serves the overlay feed: chat events pushed to WebSocket clients.
package ws

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
)

// Conn adapts a server-side gobwas/ws connection to chat.Conn.
type Conn struct {
	conn       net.Conn
	remoteAddr string
	writeMu    sync.Mutex
	closeOnce  sync.Once
	closeErr   error
}

// NewConn wraps an upgraded connection.
func NewConn(conn net.Conn) *Conn {
	return NewConnWithAddr(conn, conn.RemoteAddr().String())
}

// NewConnWithAddr wraps an upgraded connection with the specified remote address.
func NewConnWithAddr(conn net.Conn, addr string) *Conn {
	return &Conn{conn: conn, remoteAddr: addr}
}

// Read implements chat.Conn.
// Control frames are answered internally; only data frames are returned.
func (c *Conn) Read(ctx context.Context) ([]byte, error) {
	if deadline, ok := ctx.Deadline(); ok {
		c.conn.SetReadDeadline(deadline)
		defer c.conn.SetReadDeadline(time.Time{})
	}
	data, _, err := wsutil.ReadClientData(c.conn)
	return data, err
}

// Write implements chat.Conn.
// Writes a binary message to the WebSocket connection.
func (c *Conn) Write(ctx context.Context, data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if deadline, ok := ctx.Deadline(); ok {
		c.conn.SetWriteDeadline(deadline)
		defer c.conn.SetWriteDeadline(time.Time{})
	}
	return wsutil.WriteServerBinary(c.conn, data)
}

// Close implements chat.Conn. It sends a close frame on the first call.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		c.writeMu.Lock()
		c.conn.SetWriteDeadline(time.Now().Add(time.Second))
		_ = wsutil.WriteServerMessage(c.conn, ws.OpClose, ws.NewCloseFrameBody(ws.StatusNormalClosure, ""))
		c.writeMu.Unlock()
		c.closeErr = c.conn.Close()
	})
	return c.closeErr
}

// RemoteAddr implements chat.Conn.
func (c *Conn) RemoteAddr() string {
	return c.remoteAddr
}
