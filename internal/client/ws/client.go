// Package ws provides a WebSocket subscriber for the chatbot overlay feed.
package ws

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
	"go.uber.org/zap"

	"github.com/omochice/toy-irc-chat/internal/client"
	"github.com/omochice/toy-irc-chat/pkg/protocol"
)

// ErrClosed is returned by Connect after Disconnect.
var ErrClosed = errors.New("feed client closed")

// Client receives chat events from a feed server.
type Client struct {
	address string
	logger  *zap.Logger
	conn    net.Conn
	events  chan protocol.ChatEvent
	err     error
	ended   bool
	mu      sync.RWMutex
	done    chan struct{}
	wg      sync.WaitGroup
}

// New creates a feed Client for a ws:// address.
func New(address string, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		address: address,
		logger:  logger.With(zap.String("feed", address)),
		events:  make(chan protocol.ChatEvent, 10),
		done:    make(chan struct{}),
	}
}

// Connect performs the WebSocket handshake and starts receiving events.
// A Client connects once; create a new one to reconnect.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		return client.ErrAlreadyConnected
	}
	select {
	case <-c.done:
		return ErrClosed
	default:
	}

	conn, br, _, err := ws.Dial(ctx, c.address)
	if err != nil {
		return &client.ConnectError{Addr: c.address, Err: err}
	}
	c.conn = conn

	var r io.Reader = conn
	if br != nil {
		// Frames the server sent right after the upgrade are buffered here.
		r = io.MultiReader(br, conn)
	}

	c.wg.Add(1)
	go c.receiveEvents(r, conn)

	c.logger.Info("Connected to feed")
	return nil
}

// Disconnect sends a close frame and waits for the receiver to stop.
func (c *Client) Disconnect() {
	c.mu.Lock()
	conn := c.conn
	select {
	case <-c.done:
		c.mu.Unlock()
		return
	default:
		close(c.done)
	}
	c.mu.Unlock()

	if conn != nil {
		_ = wsutil.WriteClientMessage(conn, ws.OpClose, ws.NewCloseFrameBody(ws.StatusNormalClosure, ""))
		conn.Close()
	}
	c.wg.Wait()
}

// IsConnected reports whether the receiver is still running.
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.conn != nil && !c.ended
}

// Events returns the channel of decoded chat events.
// It is closed when the connection ends.
func (c *Client) Events() <-chan protocol.ChatEvent {
	return c.events
}

// Err returns why the feed ended, or nil after a clean close.
func (c *Client) Err() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.err
}

func (c *Client) receiveEvents(r io.Reader, w io.Writer) {
	defer c.wg.Done()
	defer close(c.events)
	defer func() {
		c.mu.Lock()
		c.ended = true
		c.mu.Unlock()
	}()

	rw := struct {
		io.Reader
		io.Writer
	}{r, w}

	for {
		data, err := wsutil.ReadServerBinary(rw)
		if err != nil {
			c.finish(err)
			return
		}

		var event protocol.ChatEvent
		if err := event.Decode(data); err != nil {
			c.logger.Warn("Skipping undecodable frame", zap.Error(err))
			continue
		}

		select {
		case c.events <- event:
		case <-c.done:
			return
		}
	}
}

func (c *Client) finish(err error) {
	select {
	case <-c.done:
		return
	default:
	}

	var closed wsutil.ClosedError
	if errors.As(err, &closed) || errors.Is(err, io.EOF) {
		c.logger.Info("Feed closed by server")
		return
	}

	c.mu.Lock()
	c.err = fmt.Errorf("failed to read from feed: %w", err)
	c.mu.Unlock()
	c.logger.Warn("Feed read failed", zap.Error(err))
}
