package chat

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/omochice/toy-irc-chat/pkg/protocol"
)

// Client is an overlay connected to the feed.
type Client struct {
	ID       string
	Conn     Conn
	Outgoing chan []byte
}

// Hub tracks overlay clients and broadcasts encoded chat events to them.
type Hub struct {
	clients map[*Client]bool
	mu      sync.RWMutex
	logger  *zap.Logger
	now     func() time.Time
}

// NewHub creates a new Hub.
func NewHub(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		clients: make(map[*Client]bool),
		logger:  logger,
		now:     time.Now,
	}
}

// Register adds a client to the hub.
func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[client] = true
}

// Unregister removes a client from the hub. Once it returns, Broadcast no
// longer writes to client.Outgoing, so the caller may close it.
func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.clients, client)
}

// ClientCount returns number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Clients returns a snapshot of the registered clients.
func (h *Hub) Clients() []*Client {
	h.mu.RLock()
	defer h.mu.RUnlock()
	clients := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	return clients
}

// Broadcast queues data for every client without blocking. Clients whose
// queue is full miss the frame. It returns the number of clients reached.
func (h *Hub) Broadcast(data []byte) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	sent := 0
	for c := range h.clients {
		select {
		case c.Outgoing <- data:
			sent++
		default:
			h.logger.Warn("Dropping frame for slow feed client",
				zap.String("client", c.ID),
				zap.String("remote", c.Conn.RemoteAddr()))
		}
	}
	return sent
}

// Relay returns a Listener that forwards chat messages from channel to every
// feed client.
func (h *Hub) Relay(channel string) Listener {
	channel = protocol.ChannelName(channel)
	return func(sender, text string) error {
		event := protocol.ChatEvent{
			Sender:     sender,
			Text:       text,
			Channel:    channel,
			ReceivedAt: h.now(),
		}
		data, err := event.Encode()
		if err != nil {
			return fmt.Errorf("failed to relay message: %w", err)
		}
		h.Broadcast(data)
		return nil
	}
}
