package chat

import (
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// Listener receives one chat message. A returned error is logged and does
// not stop delivery to the remaining listeners.
type Listener func(sender, text string) error

// Subscription identifies a registered Listener. The zero value is never
// handed out.
type Subscription uint64

type subscriber struct {
	id       Subscription
	listener Listener
}

// Dispatcher fans chat messages out to listeners in subscription order.
type Dispatcher struct {
	mu          sync.RWMutex
	subscribers []subscriber
	nextID      Subscription
	logger      *zap.Logger
}

// NewDispatcher creates an empty Dispatcher.
func NewDispatcher(logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{logger: logger}
}

// Subscribe registers listener and returns the handle to remove it with.
// Subscribing the same function twice delivers every message to it twice.
func (d *Dispatcher) Subscribe(listener Listener) Subscription {
	if listener == nil {
		return 0
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	d.nextID++
	d.subscribers = append(d.subscribers, subscriber{id: d.nextID, listener: listener})
	return d.nextID
}

// Unsubscribe removes a listener. It reports whether sub was registered.
func (d *Dispatcher) Unsubscribe(sub Subscription) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	for i, s := range d.subscribers {
		if s.id != sub {
			continue
		}
		// Copy so a Publish iterating the old slice is unaffected.
		next := make([]subscriber, 0, len(d.subscribers)-1)
		next = append(next, d.subscribers[:i]...)
		next = append(next, d.subscribers[i+1:]...)
		d.subscribers = next
		return true
	}
	return false
}

// Len returns the number of registered listeners.
func (d *Dispatcher) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.subscribers)
}

// Publish calls every listener registered when Publish starts, synchronously
// and in order. It returns the number of listeners that succeeded.
func (d *Dispatcher) Publish(sender, text string) int {
	d.mu.RLock()
	snapshot := d.subscribers
	d.mu.RUnlock()

	delivered := 0
	for _, s := range snapshot {
		if err := s.invoke(sender, text); err != nil {
			d.logger.Warn("Chat listener failed",
				zap.Uint64("subscription", uint64(s.id)),
				zap.String("sender", sender),
				zap.Error(err))
			continue
		}
		delivered++
	}
	return delivered
}

func (s subscriber) invoke(sender, text string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("listener panicked: %v", r)
		}
	}()
	return s.listener(sender, text)
}
