package ws_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	gobwas "github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/omochice/toy-irc-chat/internal/chat"
	"github.com/omochice/toy-irc-chat/internal/client"
	ws "github.com/omochice/toy-irc-chat/internal/client/ws"
	feedserver "github.com/omochice/toy-irc-chat/internal/transport/ws"
	"github.com/omochice/toy-irc-chat/pkg/protocol"
)

func startFeed(t *testing.T) (*feedserver.Server, *chat.Hub) {
	t.Helper()
	logger := zaptest.NewLogger(t)
	hub := chat.NewHub(logger)
	srv := feedserver.New("127.0.0.1:0", hub, logger)
	go func() {
		_ = srv.Start()
	}()
	t.Cleanup(srv.Stop)

	select {
	case <-srv.Ready():
	case <-time.After(2 * time.Second):
		t.Fatal("Feed server did not start")
	}
	return srv, hub
}

func nextEvent(t *testing.T, c *ws.Client) protocol.ChatEvent {
	t.Helper()
	select {
	case event, ok := <-c.Events():
		require.True(t, ok, "events channel closed")
		return event
	case <-time.After(2 * time.Second):
		t.Fatal("Timeout waiting for event")
		return protocol.ChatEvent{}
	}
}

func TestClient_ConnectAndDisconnect(t *testing.T) {
	srv, hub := startFeed(t)

	c := ws.New("ws://"+srv.Addr()+"/", zaptest.NewLogger(t))
	assert.False(t, c.IsConnected(), "before Connect")

	require.NoError(t, c.Connect(context.Background()))
	assert.True(t, c.IsConnected())
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	c.Disconnect()
	assert.False(t, c.IsConnected(), "after Disconnect")
	assert.NoError(t, c.Err())
	require.Eventually(t, func() bool { return hub.ClientCount() == 0 }, 2*time.Second, 10*time.Millisecond)

	c.Disconnect()
	assert.ErrorIs(t, c.Connect(context.Background()), ws.ErrClosed)
}

func TestClient_ConnectTwice(t *testing.T) {
	srv, _ := startFeed(t)

	c := ws.New("ws://"+srv.Addr()+"/", zaptest.NewLogger(t))
	require.NoError(t, c.Connect(context.Background()))
	defer c.Disconnect()

	assert.ErrorIs(t, c.Connect(context.Background()), client.ErrAlreadyConnected)
}

func TestClient_ConnectFailure(t *testing.T) {
	c := ws.New("ws://127.0.0.1:1/", zaptest.NewLogger(t))

	err := c.Connect(context.Background())
	var connErr *client.ConnectError
	require.ErrorAs(t, err, &connErr)
	assert.Equal(t, "ws://127.0.0.1:1/", connErr.Addr)
	assert.False(t, c.IsConnected())
}

func TestClient_ReceivesEvents(t *testing.T) {
	srv, hub := startFeed(t)

	c := ws.New("ws://"+srv.Addr()+"/", zaptest.NewLogger(t))
	require.NoError(t, c.Connect(context.Background()))
	defer c.Disconnect()
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	relay := hub.Relay("quill18")
	require.NoError(t, relay("alice", "first"))
	require.NoError(t, relay("bob", "second"))

	first := nextEvent(t, c)
	assert.Equal(t, "alice", first.Sender)
	assert.Equal(t, "first", first.Text)
	assert.Equal(t, "#quill18", first.Channel)

	second := nextEvent(t, c)
	assert.Equal(t, "bob", second.Sender)
	assert.Equal(t, "second", second.Text)
}

func TestClient_SkipsUndecodableFrames(t *testing.T) {
	srv, hub := startFeed(t)

	c := ws.New("ws://"+srv.Addr()+"/", zaptest.NewLogger(t))
	require.NoError(t, c.Connect(context.Background()))
	defer c.Disconnect()
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	assert.Equal(t, 1, hub.Broadcast([]byte{0xff, 0xff, 0xff}))

	event := protocol.ChatEvent{Sender: "alice", Text: "still here", Channel: "#quill18", ReceivedAt: time.Now().UTC()}
	data, err := event.Encode()
	require.NoError(t, err)
	assert.Equal(t, 1, hub.Broadcast(data))

	got := nextEvent(t, c)
	assert.Equal(t, "still here", got.Text)
}

func TestClient_ServerClose(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, _, _, err := gobwas.UpgradeHTTP(r, w)
		if err != nil {
			return
		}
		defer conn.Close()
		_ = wsutil.WriteServerMessage(conn, gobwas.OpClose, gobwas.NewCloseFrameBody(gobwas.StatusNormalClosure, "bye"))
		// Wait for the client's close reply before dropping the socket.
		_, _, _ = wsutil.ReadClientData(conn)
	}))
	defer server.Close()

	c := ws.New("ws"+strings.TrimPrefix(server.URL, "http"), zaptest.NewLogger(t))
	require.NoError(t, c.Connect(context.Background()))
	defer c.Disconnect()

	select {
	case _, ok := <-c.Events():
		assert.False(t, ok, "events channel should close")
	case <-time.After(2 * time.Second):
		t.Fatal("Events channel was not closed")
	}
	assert.False(t, c.IsConnected())
	assert.NoError(t, c.Err(), "a close frame is a clean end")
}
