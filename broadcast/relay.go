package broadcast

import (
	"fmt"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/tavern-games/gamesync/logger"
	"github.com/tavern-games/gamesync/network"
	"github.com/tavern-games/gamesync/protocol"
)

// RelayChannel subscribes to a room topic through the relay server. The
// relay never echoes a packet back to its sender, so no self-filtering is
// needed on this transport.
type RelayChannel struct {
	conn     network.Connection
	topic    string
	registry *registry
	ready    chan struct{}
	mutex    sync.Mutex
	closed   bool
}

// DialRelay connects to a relay server (ws://host:port/ws) and joins the
// room topic. Ready fires once the relay acknowledges the subscription.
func DialRelay(url, roomCode string) (*RelayChannel, error) {
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial relay %s: %w", url, err)
	}

	c := &RelayChannel{
		conn:     network.NewWSConnection(ws),
		topic:    fmt.Sprintf("room.%s", roomCode),
		registry: newRegistry(),
		ready:    make(chan struct{}),
	}

	if err := c.conn.Send(network.MsgJoinTopic, []byte(c.topic)); err != nil {
		ws.Close()
		return nil, err
	}

	go c.readLoop()
	return c, nil
}

func (c *RelayChannel) readLoop() {
	subscribed := false
	for {
		packet, err := c.conn.ReadPacket()
		if err != nil {
			c.mutex.Lock()
			wasClosed := c.closed
			c.mutex.Unlock()
			if !wasClosed {
				logger.Log.Warnf("Relay connection lost on %s: %v", c.topic, err)
				// A dead relay link is indistinguishable from the peer
				// leaving; let the session handle it the same way.
				c.registry.dispatch(protocol.EventPlayerLeft, nil)
			}
			return
		}

		switch packet.MsgID {
		case network.MsgSubscribed:
			if !subscribed {
				subscribed = true
				close(c.ready)
			}
		case network.MsgBroadcast:
			env, err := protocol.Decode(packet.Data)
			if err != nil {
				logger.Log.Debugf("Dropping malformed relay message: %v", err)
				continue
			}
			c.registry.dispatch(env.Event, env.Payload)
		}
	}
}

func (c *RelayChannel) Ready() <-chan struct{} {
	return c.ready
}

func (c *RelayChannel) On(event string, handler Handler) {
	c.registry.on(event, handler)
}

func (c *RelayChannel) Send(event string, payload interface{}) error {
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
	return c.conn.Send(network.MsgBroadcast, data)
}

func (c *RelayChannel) Unsubscribe() {
	c.mutex.Lock()
	if c.closed {
		c.mutex.Unlock()
		return
	}
	c.closed = true
	c.mutex.Unlock()

	c.conn.Send(network.MsgLeaveTopic, []byte(c.topic))
	c.conn.Close()
}

var _ Channel = (*RelayChannel)(nil)
