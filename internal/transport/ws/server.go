package ws

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gobwas/ws"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/omochice/toy-irc-chat/internal/chat"
)

const (
	outgoingBuffer  = 32
	writeTimeout    = 5 * time.Second
	shutdownTimeout = 5 * time.Second
)

// Server accepts overlay WebSocket connections and registers them in a Hub.
// Frames sent by overlays are read and discarded.
type Server struct {
	address string
	hub     *chat.Hub
	logger  *zap.Logger

	mu       sync.Mutex
	listener net.Listener
	server   *http.Server
	ready    chan struct{}
	quit     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// New creates a feed server that uses the provided Hub.
func New(address string, hub *chat.Hub, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		address: address,
		hub:     hub,
		logger:  logger,
		ready:   make(chan struct{}),
		quit:    make(chan struct{}),
	}
}

// Start listens and serves until Stop is called.
func (s *Server) Start() error {
	listener, err := net.Listen("tcp", s.address)
	if err != nil {
		return fmt.Errorf("failed to start feed server: %w", err)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleWebSocket)
	server := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.mu.Lock()
	select {
	case <-s.quit:
		s.mu.Unlock()
		listener.Close()
		return nil
	default:
	}
	s.listener = listener
	s.server = server
	s.mu.Unlock()
	close(s.ready)

	s.logger.Info("Feed server started", zap.String("addr", listener.Addr().String()))

	if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("feed server failed: %w", err)
	}
	return nil
}

// Ready is closed once the server is listening.
func (s *Server) Ready() <-chan struct{} {
	return s.ready
}

// Stop stops accepting connections and disconnects every overlay.
func (s *Server) Stop() {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		close(s.quit)
		server := s.server
		s.mu.Unlock()

		if server != nil {
			ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := server.Shutdown(ctx); err != nil {
				s.logger.Warn("Feed server shutdown failed", zap.Error(err))
			}
		}

		for _, client := range s.hub.Clients() {
			client.Conn.Close()
		}
	})
	s.wg.Wait()
}

// Addr returns the listening address.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return ""
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, _, _, err := ws.UpgradeHTTP(r, w)
	if err != nil {
		s.logger.Warn("Failed to upgrade feed connection",
			zap.String("remote", r.RemoteAddr),
			zap.Error(err))
		return
	}

	client := &chat.Client{
		ID:       uuid.NewString(),
		Conn:     NewConnWithAddr(conn, r.RemoteAddr),
		Outgoing: make(chan []byte, outgoingBuffer),
	}

	s.mu.Lock()
	select {
	case <-s.quit:
		s.mu.Unlock()
		client.Conn.Close()
		return
	default:
	}
	s.hub.Register(client)
	s.wg.Add(2)
	s.mu.Unlock()

	s.logger.Info("Feed client connected",
		zap.String("client", client.ID),
		zap.String("remote", client.Conn.RemoteAddr()))

	go s.readLoop(client)
	go s.writeLoop(client)
}

// readLoop owns the client's lifetime: when the overlay goes away it
// unregisters the client and closes its queue.
func (s *Server) readLoop(client *chat.Client) {
	defer s.wg.Done()

	for {
		if _, err := client.Conn.Read(context.Background()); err != nil {
			break
		}
	}

	s.hub.Unregister(client)
	close(client.Outgoing)
	client.Conn.Close()

	s.logger.Info("Feed client disconnected", zap.String("client", client.ID))
}

func (s *Server) writeLoop(client *chat.Client) {
	defer s.wg.Done()
	for data := range client.Outgoing {
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		err := client.Conn.Write(ctx, data)
		cancel()
		if err != nil {
			s.logger.Warn("Failed to write to feed client",
				zap.String("client", client.ID),
				zap.Error(err))
			client.Conn.Close()
			return
		}
	}
}
