// Package client defines the chat connection contract shared by the host
// application and the connection implementations.
package client

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/omochice/toy-irc-chat/internal/chat"
)

// Well-known Twitch chat endpoint.
const (
	DefaultHost    = "irc.chat.twitch.tv"
	DefaultPort    = 6667
	DefaultTLSPort = 6697
)

var (
	ErrMissingToken     = errors.New("oauth token is required")
	ErrMissingNick      = errors.New("bot account name is required")
	ErrMissingChannel   = errors.New("channel is required")
	ErrAlreadyConnected = errors.New("client is already connected or connecting")
	ErrNotConnected     = errors.New("not connected to server")
	ErrAuthFailed       = errors.New("server rejected the credentials")
)

// Client defines the interface for chat connections.
type Client interface {
	Connect(ctx context.Context) error
	Disconnect()
	Tick(delta time.Duration)
	State() State
	Err() error
	Send(text string)
	SendRaw(line string)
	Subscribe(listener chat.Listener) chat.Subscription
	Unsubscribe(sub chat.Subscription) bool
}

// State is the connection lifecycle state.
type State int

const (
	Disconnected State = iota
	Connecting
	Connected
	Disconnecting
)

// String returns the string representation of State
func (s State) String() string {
	switch s {
	case Disconnected:
		return "DISCONNECTED"
	case Connecting:
		return "CONNECTING"
	case Connected:
		return "CONNECTED"
	case Disconnecting:
		return "DISCONNECTING"
	default:
		return "UNKNOWN"
	}
}

// Credentials identify the bot account and the channel it joins.
// AppID is the registered application's client id; the chat handshake does
// not use it.
type Credentials struct {
	AppID   string
	Token   string
	Nick    string
	Channel string
}

// Validate reports the first required field that is empty.
func (c Credentials) Validate() error {
	switch {
	case c.Token == "":
		return ErrMissingToken
	case c.Nick == "":
		return ErrMissingNick
	case strings.TrimPrefix(c.Channel, "#") == "":
		return ErrMissingChannel
	}
	return nil
}

// ConnectError is returned when dialing or the handshake fails.
type ConnectError struct {
	Addr string
	Err  error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("failed to connect to %s: %v", e.Addr, e.Err)
}

func (e *ConnectError) Unwrap() error {
	return e.Err
}
