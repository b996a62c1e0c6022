// Package broadcast wraps a named pub/sub topic behind the Channel interface.
// The delivery contract is deliberately weak: unordered, at-most-once, no
// persistence, and a peer that subscribes after an event was sent never sees
// it. Everything above this package is written against that contract.
package broadcast

import (
	"errors"
	"sync"
)

// Handler receives the raw JSON payload of one event.
type Handler func(payload []byte)

// Channel is one subscription to a room topic.
type Channel interface {
	// Ready is closed once the subscription is live and Send may be called.
	Ready() <-chan struct{}
	// On registers a handler for an event name. Later registrations for the
	// same event replace earlier ones.
	On(event string, handler Handler)
	// Send broadcasts an event to the other subscribers of the topic. The
	// sender never receives its own events back.
	Send(event string, payload interface{}) error
	// Unsubscribe releases the topic. Idempotent; the channel is unusable
	// afterwards.
	Unsubscribe()
}

var ErrChannelClosed = errors.New("broadcast: channel is closed")

// registry is the handler table shared by all Channel implementations.
type registry struct {
	mutex    sync.RWMutex
	handlers map[string]Handler
}

func newRegistry() *registry {
	return &registry{handlers: make(map[string]Handler)}
}

func (r *registry) on(event string, handler Handler) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.handlers[event] = handler
}

func (r *registry) dispatch(event string, payload []byte) {
	r.mutex.RLock()
	handler := r.handlers[event]
	r.mutex.RUnlock()

	if handler != nil {
		handler(payload)
	}
}
