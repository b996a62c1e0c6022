package broadcast

import (
	"sync"

	"github.com/tavern-games/gamesync/protocol"
)

// MemoryBus is an in-process topic bus. It backs offline mode and tests,
// where both peers live in the same process. Delivery is synchronous and
// never echoes to the sender, matching the network contract closely enough
// for the session layer not to care.
type MemoryBus struct {
	mutex  sync.RWMutex
	topics map[string][]*MemoryChannel
}

func NewMemoryBus() *MemoryBus {
	return &MemoryBus{topics: make(map[string][]*MemoryChannel)}
}

// Subscribe attaches a new channel to a topic. The channel is ready
// immediately.
func (b *MemoryBus) Subscribe(topic string) *MemoryChannel {
	ch := &MemoryChannel{
		bus:      b,
		topic:    topic,
		registry: newRegistry(),
		ready:    make(chan struct{}),
	}
	close(ch.ready)

	b.mutex.Lock()
	b.topics[topic] = append(b.topics[topic], ch)
	b.mutex.Unlock()
	return ch
}

func (b *MemoryBus) publish(origin *MemoryChannel, topic string, data []byte) {
	b.mutex.RLock()
	subs := append([]*MemoryChannel(nil), b.topics[topic]...)
	b.mutex.RUnlock()

	env, err := protocol.Decode(data)
	if err != nil {
		return
	}
	for _, ch := range subs {
		if ch == origin {
			continue
		}
		ch.registry.dispatch(env.Event, env.Payload)
	}
}

func (b *MemoryBus) remove(target *MemoryChannel) {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	subs := b.topics[target.topic]
	for i, ch := range subs {
		if ch == target {
			b.topics[target.topic] = append(subs[:i], subs[i+1:]...)
			break
		}
	}
	if len(b.topics[target.topic]) == 0 {
		delete(b.topics, target.topic)
	}
}

type MemoryChannel struct {
	bus      *MemoryBus
	topic    string
	registry *registry
	ready    chan struct{}
	mutex    sync.Mutex
	closed   bool
}

func (c *MemoryChannel) Ready() <-chan struct{} {
	return c.ready
}

func (c *MemoryChannel) On(event string, handler Handler) {
	c.registry.on(event, handler)
}

func (c *MemoryChannel) Send(event string, payload interface{}) error {
	c.mutex.Lock()
	closed := c.closed
	c.mutex.Unlock()
	if closed {
		return ErrChannelClosed
	}

	data, err := protocol.Encode(event, payload)
	if err != nil {
		return err
	}
	c.bus.publish(c, c.topic, data)
	return nil
}

func (c *MemoryChannel) Unsubscribe() {
	c.mutex.Lock()
	if c.closed {
		c.mutex.Unlock()
		return
	}
	c.closed = true
	c.mutex.Unlock()
	c.bus.remove(c)
}

// NullChannel discards everything. Offline sessions use it so that the
// session logic never has to branch on "is there a network" when sending.
type NullChannel struct {
	ready chan struct{}
}

func NewNullChannel() *NullChannel {
	ch := &NullChannel{ready: make(chan struct{})}
	close(ch.ready)
	return ch
}

func (c *NullChannel) Ready() <-chan struct{} { return c.ready }

func (c *NullChannel) On(event string, handler Handler) {}

func (c *NullChannel) Send(event string, _ interface{}) error { return nil }

func (c *NullChannel) Unsubscribe() {}

var (
	_ Channel = (*MemoryChannel)(nil)
	_ Channel = (*NullChannel)(nil)
)
