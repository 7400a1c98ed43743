// Package chat fans incoming chat messages out to in-process listeners and to
// the overlay feed.
package chat

import "context"

// Conn is the transport seam for overlay feed clients.
type Conn interface {
	// Read returns the next frame sent by the client.
	// Returns an error once the client is gone.
	Read(ctx context.Context) ([]byte, error)

	// Write sends one encoded ChatEvent frame.
	Write(ctx context.Context, data []byte) error

	Close() error

	// RemoteAddr is used for logging only.
	RemoteAddr() string
}
