// Package ratelimit holds outbound lines back so the account stays under the
// server's anti-spam budget.
package ratelimit

import (
	"errors"
	"sync"
	"time"
)

// Budget of a regular (non-moderator) chat account.
const (
	DefaultLimit  = 15
	DefaultWindow = 30 * time.Second
)

var (
	ErrInvalidLimit  = errors.New("rate limit must be positive")
	ErrInvalidWindow = errors.New("rate window must be positive")
)

// Config is the per-deployment budget: at most Limit lines per Window.
type Config struct {
	Limit  int
	Window time.Duration
}

// DefaultConfig returns the budget for a regular chat account.
func DefaultConfig() Config {
	return Config{Limit: DefaultLimit, Window: DefaultWindow}
}

// Validate reports whether the budget can be enforced.
func (c Config) Validate() error {
	if c.Limit <= 0 {
		return ErrInvalidLimit
	}
	if c.Window <= 0 {
		return ErrInvalidWindow
	}
	return nil
}

// Governor is a FIFO send queue released through a fixed-window counter.
// Lines queued right before a window resets may go out back to back with the
// next window's lines.
type Governor struct {
	mu        sync.Mutex
	limit     int
	window    time.Duration
	sent      int
	remaining time.Duration
	queue     []string
}

// New creates a Governor with a fresh window.
func New(cfg Config) (*Governor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Governor{
		limit:     cfg.Limit,
		window:    cfg.Window,
		remaining: cfg.Window,
	}, nil
}

// Enqueue appends a line to the back of the queue.
func (g *Governor) Enqueue(line string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.queue = append(g.queue, line)
}

// CountImmediate records a line written outside the queue. It is never
// refused, even when the budget is exhausted.
func (g *Governor) CountImmediate() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.sent++
}

// Prime starts a new window with n lines already spent.
func (g *Governor) Prime(n int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.sent = n
	g.remaining = g.window
}

// Advance moves the window timer forward by delta.
func (g *Governor) Advance(delta time.Duration) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.remaining -= delta
	if g.remaining < 0 {
		g.sent = 0
		g.remaining = g.window
	}
}

// DrainReady dequeues as many lines as the current window still allows.
func (g *Governor) DrainReady() []string {
	g.mu.Lock()
	defer g.mu.Unlock()

	var ready []string
	for g.sent < g.limit && len(g.queue) > 0 {
		ready = append(ready, g.queue[0])
		g.queue[0] = ""
		g.queue = g.queue[1:]
		g.sent++
	}
	if len(g.queue) == 0 {
		g.queue = nil
	}
	return ready
}

// Pending returns the number of queued lines.
func (g *Governor) Pending() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.queue)
}

// Sent returns the number of lines counted in the current window.
func (g *Governor) Sent() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.sent
}

// Remaining returns the time left in the current window.
func (g *Governor) Remaining() time.Duration {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.remaining
}
