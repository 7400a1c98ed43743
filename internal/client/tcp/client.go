// Package tcp provides the Twitch chat connection over a single TCP (or TLS)
// socket, driven by periodic Tick calls.
package tcp

import (
	"bufio"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/omochice/toy-irc-chat/internal/chat"
	"github.com/omochice/toy-irc-chat/internal/client"
	"github.com/omochice/toy-irc-chat/internal/ratelimit"
	"github.com/omochice/toy-irc-chat/pkg/protocol"
)

const (
	lineDelimiter       = "\r\n"
	maxLineLength       = 8192
	defaultLineBuffer   = 256
	defaultDialTimeout  = 10 * time.Second
	DefaultTickInterval = 16 * time.Millisecond
)

// Server notices sent when the PASS line is rejected.
var authFailureNotices = []string{
	"Login authentication failed",
	"Login unsuccessful",
	"Improperly formatted auth",
}

// Dialer opens the stream socket. *net.Dialer and *tls.Dialer satisfy it.
type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// Options configures a Client. Only Credentials is required.
type Options struct {
	Host        string
	Port        int
	TLS         bool
	Credentials client.Credentials
	// Rate defaults to ratelimit.DefaultConfig when left zero.
	Rate       ratelimit.Config
	Dialer     Dialer
	Logger     *zap.Logger
	LineBuffer int
}

// Client is a Twitch chat connection. All socket reads happen on a reader
// goroutine; parsing, listener calls and writes happen inside Tick.
type Client struct {
	opts       Options
	addr       string
	logger     *zap.Logger
	dispatcher *chat.Dispatcher
	governor   *ratelimit.Governor

	mu      sync.Mutex
	state   client.State
	conn    net.Conn
	writer  *bufio.Writer
	lines   chan string
	readErr chan error
	done    chan struct{}
	err     error
	// attempt identifies the latest Connect call.
	attempt uint64

	// writeMu serializes writers without holding mu, so Disconnect can
	// close the socket under a blocked write.
	writeMu sync.Mutex
	// tickMu keeps Tick single-threaded; listeners must not call Tick.
	tickMu sync.Mutex
	wg     sync.WaitGroup
}

var _ client.Client = (*Client)(nil)

// New creates a new Client instance
func New(opts Options) (*Client, error) {
	if err := opts.Credentials.Validate(); err != nil {
		return nil, fmt.Errorf("invalid credentials: %w", err)
	}

	if opts.Rate == (ratelimit.Config{}) {
		opts.Rate = ratelimit.DefaultConfig()
	}
	governor, err := ratelimit.New(opts.Rate)
	if err != nil {
		return nil, fmt.Errorf("invalid rate limit: %w", err)
	}

	if opts.Host == "" {
		opts.Host = client.DefaultHost
	}
	if opts.Port == 0 {
		opts.Port = client.DefaultPort
		if opts.TLS {
			opts.Port = client.DefaultTLSPort
		}
	}
	if opts.LineBuffer <= 0 {
		opts.LineBuffer = defaultLineBuffer
	}
	if opts.Dialer == nil {
		netDialer := &net.Dialer{Timeout: defaultDialTimeout}
		opts.Dialer = netDialer
		if opts.TLS {
			opts.Dialer = &tls.Dialer{
				NetDialer: netDialer,
				Config:    &tls.Config{ServerName: opts.Host},
			}
		}
	}

	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	addr := net.JoinHostPort(opts.Host, strconv.Itoa(opts.Port))

	return &Client{
		opts:       opts,
		addr:       addr,
		logger:     logger.With(zap.String("addr", addr), zap.String("channel", opts.Credentials.Channel)),
		dispatcher: chat.NewDispatcher(logger),
		governor:   governor,
		state:      client.Disconnected,
	}, nil
}

// Connect dials the server, sends the handshake and starts reading.
// On failure the client is left Disconnected and a *client.ConnectError is
// returned.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.state != client.Disconnected {
		c.mu.Unlock()
		return client.ErrAlreadyConnected
	}
	c.state = client.Connecting
	c.err = nil
	c.attempt++
	attempt := c.attempt
	c.mu.Unlock()

	conn, err := c.opts.Dialer.DialContext(ctx, "tcp", c.addr)
	if err != nil {
		return c.failConnect(attempt, nil, err)
	}

	handshake := c.handshake()
	writer := bufio.NewWriter(conn)
	for _, line := range handshake {
		if _, err := writer.WriteString(line + lineDelimiter); err != nil {
			return c.failConnect(attempt, conn, err)
		}
	}
	if err := writer.Flush(); err != nil {
		return c.failConnect(attempt, conn, err)
	}

	c.mu.Lock()
	if c.state != client.Connecting || c.attempt != attempt {
		// Disconnect was called while we were dialing, possibly followed by
		// a newer Connect that now owns the state.
		c.mu.Unlock()
		conn.Close()
		return &client.ConnectError{Addr: c.addr, Err: client.ErrNotConnected}
	}
	c.conn = conn
	c.writer = writer
	c.lines = make(chan string, c.opts.LineBuffer)
	c.readErr = make(chan error, 1)
	c.done = make(chan struct{})
	c.state = client.Connected
	c.governor.Prime(len(handshake))

	c.wg.Add(1)
	go c.readLoop(conn, c.lines, c.readErr, c.done)
	c.mu.Unlock()

	c.logger.Info("Connected to chat server", zap.String("nick", c.opts.Credentials.Nick))
	return nil
}

// Disconnect closes the socket and stops the reader. It is safe to call in
// any state, more than once, concurrently with Tick and from a listener.
func (c *Client) Disconnect() {
	c.mu.Lock()
	if c.state == client.Disconnected || c.state == client.Disconnecting {
		c.mu.Unlock()
		return
	}
	wasConnected := c.state == client.Connected
	c.state = client.Disconnecting
	conn, done := c.conn, c.done
	c.conn, c.writer, c.done = nil, nil, nil
	c.mu.Unlock()

	if done != nil {
		close(done)
	}
	if conn != nil {
		conn.Close()
	}
	c.wg.Wait()

	c.mu.Lock()
	c.state = client.Disconnected
	c.mu.Unlock()

	if wasConnected {
		c.logger.Info("Disconnected from chat server")
	}
}

// State returns the current connection state.
func (c *Client) State() client.State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// IsConnected returns whether the client is connected
func (c *Client) IsConnected() bool {
	return c.State() == client.Connected
}

// Err returns the error that ended the last connection, if any.
func (c *Client) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Send queues a chat message to the joined channel.
func (c *Client) Send(text string) {
	c.SendRaw(protocol.PrivmsgLine(c.opts.Credentials.Channel, text))
}

// SendRaw queues a protocol line. Queued lines survive a reconnect.
func (c *Client) SendRaw(line string) {
	c.governor.Enqueue(line)
}

// SendImmediate writes a line now, bypassing the queue. The line still
// counts against the current window.
func (c *Client) SendImmediate(line string) error {
	if err := c.writeLines(line); err != nil {
		return err
	}
	c.governor.CountImmediate()
	return nil
}

// Subscribe registers a listener for chat messages.
func (c *Client) Subscribe(listener chat.Listener) chat.Subscription {
	return c.dispatcher.Subscribe(listener)
}

// Unsubscribe removes a listener.
func (c *Client) Unsubscribe(sub chat.Subscription) bool {
	return c.dispatcher.Unsubscribe(sub)
}

// Tick processes every line received since the last tick, then advances the
// rate window by delta and writes what the budget allows. It never waits for
// the network and does nothing unless the client is Connected.
func (c *Client) Tick(delta time.Duration) {
	c.tickMu.Lock()
	defer c.tickMu.Unlock()

	c.mu.Lock()
	if c.state != client.Connected {
		c.mu.Unlock()
		return
	}
	lines, readErr := c.lines, c.readErr
	c.mu.Unlock()

	if !c.drainLines(lines) {
		return
	}

	select {
	case err := <-readErr:
		// readLoop hands over every line before the error, so whatever
		// arrived ahead of the close is still buffered.
		if !c.drainLines(lines) {
			return
		}
		c.fail(fmt.Errorf("failed to read from server: %w", err))
		return
	default:
	}

	c.governor.Advance(delta)
	if ready := c.governor.DrainReady(); len(ready) > 0 {
		if err := c.writeLines(ready...); err != nil {
			c.fail(err)
		}
	}
}

// Run calls Tick every interval with the measured elapsed time until ctx is
// done or the connection drops. The client must already be connected.
func (c *Client) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = DefaultTickInterval
	}
	if !c.IsConnected() {
		return client.ErrNotConnected
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	last := time.Now()
	for {
		select {
		case <-ctx.Done():
			c.Disconnect()
			return ctx.Err()
		case now := <-ticker.C:
			c.Tick(now.Sub(last))
			last = now
			if !c.IsConnected() {
				if err := c.Err(); err != nil {
					return err
				}
				return client.ErrNotConnected
			}
		}
	}
}

// drainLines processes buffered lines without waiting for more. It reports
// false once a line has ended the connection.
func (c *Client) drainLines(lines <-chan string) bool {
	for {
		select {
		case line := <-lines:
			c.processLine(line)
			if !c.IsConnected() {
				return false
			}
		default:
			return true
		}
	}
}

func (c *Client) handshake() []string {
	creds := c.opts.Credentials
	return []string{
		protocol.PassLine(creds.Token),
		protocol.NickLine(creds.Nick),
		protocol.JoinLine(creds.Channel),
	}
}

func (c *Client) processLine(line string) {
	msg, ok := protocol.Parse(line)
	if !ok {
		return
	}

	switch msg.Command {
	case protocol.CommandPing:
		if err := c.SendImmediate(protocol.PongLine(msg.Parameters, msg.HasParameters)); err != nil {
			c.fail(err)
		}
	case protocol.CommandPrivmsg:
		c.dispatcher.Publish(msg.Source, msg.Parameters)
	case protocol.CommandNotice:
		if isAuthFailure(msg.Parameters) {
			c.fail(fmt.Errorf("%w: %s", client.ErrAuthFailed, msg.Parameters))
			return
		}
		c.logger.Info("Server notice", zap.String("text", msg.Parameters))
	default:
		c.logger.Debug("Ignoring command", zap.String("command", msg.Command))
	}
}

func isAuthFailure(text string) bool {
	for _, notice := range authFailureNotices {
		if strings.Contains(text, notice) {
			return true
		}
	}
	return false
}

func (c *Client) writeLines(lines ...string) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.mu.Lock()
	writer := c.writer
	connected := c.state == client.Connected
	c.mu.Unlock()

	if !connected || writer == nil {
		return client.ErrNotConnected
	}

	for _, line := range lines {
		if _, err := writer.WriteString(line + lineDelimiter); err != nil {
			return fmt.Errorf("failed to send line: %w", err)
		}
	}
	if err := writer.Flush(); err != nil {
		return fmt.Errorf("failed to send line: %w", err)
	}
	return nil
}

// fail records err and tears the connection down. Errors caused by our own
// Disconnect are ignored.
func (c *Client) fail(err error) {
	c.mu.Lock()
	if c.state != client.Connected {
		c.mu.Unlock()
		return
	}
	c.err = err
	c.mu.Unlock()

	c.logger.Error("Connection lost", zap.Error(err))
	c.Disconnect()
}

func (c *Client) failConnect(attempt uint64, conn net.Conn, cause error) error {
	if conn != nil {
		conn.Close()
	}
	err := &client.ConnectError{Addr: c.addr, Err: cause}

	c.mu.Lock()
	// A newer attempt owns the state once Disconnect abandoned this one.
	if c.attempt == attempt && c.state == client.Connecting {
		c.state = client.Disconnected
		c.err = err
	}
	c.mu.Unlock()

	c.logger.Error("Failed to connect", zap.Error(cause))
	return err
}

// readLoop hands complete lines to Tick in arrival order.
func (c *Client) readLoop(conn net.Conn, lines chan<- string, readErr chan<- error, done <-chan struct{}) {
	defer c.wg.Done()

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 4096), maxLineLength)
	for scanner.Scan() {
		select {
		case lines <- scanner.Text():
		case <-done:
			return
		}
	}

	err := scanner.Err()
	if err == nil {
		err = io.EOF
	}
	select {
	case <-done:
	default:
		readErr <- err
	}
}
