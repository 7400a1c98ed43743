package client_test

import (
	"errors"
	"io"
	"testing"

	"github.com/omochice/toy-irc-chat/internal/client"
)

func TestCredentials_Validate(t *testing.T) {
	valid := client.Credentials{Token: "abc", Nick: "bot", Channel: "quill18"}

	tests := []struct {
		name    string
		mutate  func(c *client.Credentials)
		wantErr error
	}{
		{"complete", func(c *client.Credentials) {}, nil},
		{"app id is optional", func(c *client.Credentials) { c.AppID = "" }, nil},
		{"missing token", func(c *client.Credentials) { c.Token = "" }, client.ErrMissingToken},
		{"missing nick", func(c *client.Credentials) { c.Nick = "" }, client.ErrMissingNick},
		{"missing channel", func(c *client.Credentials) { c.Channel = "" }, client.ErrMissingChannel},
		{"bare channel prefix", func(c *client.Credentials) { c.Channel = "#" }, client.ErrMissingChannel},
		{"prefixed channel", func(c *client.Credentials) { c.Channel = "#quill18" }, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			creds := valid
			tt.mutate(&creds)
			if err := creds.Validate(); !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate() = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestState_String(t *testing.T) {
	tests := []struct {
		state client.State
		want  string
	}{
		{client.Disconnected, "DISCONNECTED"},
		{client.Connecting, "CONNECTING"},
		{client.Connected, "CONNECTED"},
		{client.Disconnecting, "DISCONNECTING"},
		{client.State(42), "UNKNOWN"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := tt.state.String(); got != tt.want {
				t.Errorf("State.String() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestConnectError(t *testing.T) {
	err := &client.ConnectError{Addr: "irc.chat.twitch.tv:6667", Err: io.ErrUnexpectedEOF}

	if !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Error("ConnectError should unwrap to its cause")
	}
	want := "failed to connect to irc.chat.twitch.tv:6667: unexpected EOF"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}
