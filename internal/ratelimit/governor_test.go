package ratelimit_test

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omochice/toy-irc-chat/internal/ratelimit"
)

func newGovernor(t *testing.T, limit int, window time.Duration) *ratelimit.Governor {
	t.Helper()
	g, err := ratelimit.New(ratelimit.Config{Limit: limit, Window: window})
	require.NoError(t, err)
	return g
}

func TestGovernor_WindowBoundary(t *testing.T) {
	g := newGovernor(t, 2, time.Second)

	for i := 0; i < 5; i++ {
		g.Enqueue(fmt.Sprintf("line %d", i))
	}

	g.Advance(0)
	assert.Equal(t, []string{"line 0", "line 1"}, g.DrainReady())
	assert.Empty(t, g.DrainReady(), "no time passed, budget is spent")

	g.Advance(1100 * time.Millisecond)
	assert.Equal(t, []string{"line 2", "line 3"}, g.DrainReady())

	g.Advance(1100 * time.Millisecond)
	assert.Equal(t, []string{"line 4"}, g.DrainReady())
	assert.Equal(t, 0, g.Pending())
}

func TestGovernor_ResetsOnlyBelowZero(t *testing.T) {
	g := newGovernor(t, 1, time.Second)
	g.Enqueue("a")
	g.Enqueue("b")

	require.Len(t, g.DrainReady(), 1)

	g.Advance(time.Second)
	assert.Empty(t, g.DrainReady(), "window ends when remaining drops below zero")
	assert.Equal(t, time.Duration(0), g.Remaining())

	g.Advance(time.Nanosecond)
	assert.Equal(t, []string{"b"}, g.DrainReady())
	assert.Equal(t, time.Second, g.Remaining())
}

func TestGovernor_Prime(t *testing.T) {
	g := newGovernor(t, 4, 30*time.Second)
	g.Advance(10 * time.Second)

	g.Prime(3)
	assert.Equal(t, 3, g.Sent())
	assert.Equal(t, 30*time.Second, g.Remaining())

	g.Enqueue("first")
	g.Enqueue("second")
	assert.Equal(t, []string{"first"}, g.DrainReady())
	assert.Equal(t, 1, g.Pending())
}

func TestGovernor_CountImmediateIgnoresBudget(t *testing.T) {
	g := newGovernor(t, 2, time.Second)
	g.Prime(2)

	g.CountImmediate()
	g.CountImmediate()
	assert.Equal(t, 4, g.Sent())

	g.Enqueue("queued")
	assert.Empty(t, g.DrainReady())

	g.Advance(2 * time.Second)
	assert.Equal(t, 0, g.Sent())
	assert.Equal(t, []string{"queued"}, g.DrainReady())
}

func TestGovernor_DrainEmptyQueue(t *testing.T) {
	g := newGovernor(t, 3, time.Second)
	assert.Empty(t, g.DrainReady())
	assert.Equal(t, 0, g.Sent(), "an empty drain spends nothing")
}

func TestGovernor_ConcurrentEnqueue(t *testing.T) {
	g := newGovernor(t, 1000, time.Second)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				g.Enqueue(fmt.Sprintf("%d-%d", n, j))
			}
		}(i)
	}
	wg.Wait()

	assert.Len(t, g.DrainReady(), 500)
}

func TestNew_InvalidConfig(t *testing.T) {
	tests := []struct {
		name    string
		cfg     ratelimit.Config
		wantErr error
	}{
		{"zero limit", ratelimit.Config{Limit: 0, Window: time.Second}, ratelimit.ErrInvalidLimit},
		{"negative limit", ratelimit.Config{Limit: -1, Window: time.Second}, ratelimit.ErrInvalidLimit},
		{"zero window", ratelimit.Config{Limit: 1}, ratelimit.ErrInvalidWindow},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g, err := ratelimit.New(tt.cfg)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Nil(t, g)
		})
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := ratelimit.DefaultConfig()
	assert.Equal(t, 15, cfg.Limit)
	assert.Equal(t, 30*time.Second, cfg.Window)
	assert.NoError(t, cfg.Validate())
}
