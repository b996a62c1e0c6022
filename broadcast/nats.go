package broadcast

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/tavern-games/gamesync/logger"
	"github.com/tavern-games/gamesync/protocol"
)

// NatsChannel maps a room topic onto a core NATS subject. Core NATS (no
// JetStream) gives exactly the contract the protocol is designed for:
// at-most-once, unordered, nothing retained for late subscribers.
type NatsChannel struct {
	conn     *nats.Conn
	subject  string
	peerID   string
	sub      *nats.Subscription
	registry *registry
	ready    chan struct{}
	mutex    sync.Mutex
	closed   bool
}

// Connect dials a NATS server with the reconnect behavior a game client
// wants: keep trying quietly, surface disconnects in the log.
func Connect(url string) (*nats.Conn, error) {
	return nats.Connect(url,
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			logger.Log.Warnf("NATS disconnected: %v", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Log.Infof("NATS reconnected to %s", nc.ConnectedUrl())
		}),
	)
}

// SubscribeNats attaches a channel to the subject room.<code>. The returned
// channel owns the subscription but not the connection.
func SubscribeNats(conn *nats.Conn, roomCode string) (*NatsChannel, error) {
	c := &NatsChannel{
		conn:     conn,
		subject:  fmt.Sprintf("room.%s", roomCode),
		peerID:   uuid.New().String(),
		registry: newRegistry(),
		ready:    make(chan struct{}),
	}

	sub, err := conn.Subscribe(c.subject, c.handleMessage)
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", c.subject, err)
	}
	c.sub = sub

	// Flush so the subscription is active server-side before Ready fires;
	// otherwise our own player_join could outrun it.
	if err := conn.Flush(); err != nil {
		sub.Unsubscribe()
		return nil, err
	}
	close(c.ready)
	return c, nil
}

func (c *NatsChannel) handleMessage(msg *nats.Msg) {
	env, err := protocol.Decode(msg.Data)
	if err != nil {
		logger.Log.Debugf("Dropping malformed message on %s: %v", c.subject, err)
		return
	}
	if env.Sender == c.peerID {
		return
	}
	c.registry.dispatch(env.Event, env.Payload)
}

func (c *NatsChannel) Ready() <-chan struct{} {
	return c.ready
}

func (c *NatsChannel) On(event string, handler Handler) {
	c.registry.on(event, handler)
}

func (c *NatsChannel) Send(event string, payload interface{}) error {
	c.mutex.Lock()
	closed := c.closed
	c.mutex.Unlock()
	if closed {
		return ErrChannelClosed
	}

	env := protocol.Envelope{Event: event, Sender: c.peerID}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		env.Payload = raw
	}
	data, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return c.conn.Publish(c.subject, data)
}

func (c *NatsChannel) Unsubscribe() {
	c.mutex.Lock()
	if c.closed {
		c.mutex.Unlock()
		return
	}
	c.closed = true
	c.mutex.Unlock()

	if err := c.sub.Unsubscribe(); err != nil {
		logger.Log.Warnf("Unsubscribe %s: %v", c.subject, err)
	}
}

var _ Channel = (*NatsChannel)(nil)
