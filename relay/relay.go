// Package relay implements the broadcast relay: a websocket server that
// groups peers by room topic and fans every broadcast packet out to the other
// members of the same topic. It holds no game state and never inspects
// payloads beyond the frame header; all game logic lives in the peers.
package relay

import (
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/tavern-games/gamesync/logger"
	"github.com/tavern-games/gamesync/monitor"
	"github.com/tavern-games/gamesync/network"
	"github.com/tavern-games/gamesync/protocol"
)

// Peer is one connected client, member of at most one topic.
type Peer struct {
	ID    string
	Conn  network.Connection
	topic string
}

// Server accepts websocket peers and routes their packets.
type Server struct {
	addr     string
	upgrader websocket.Upgrader
	topics   *TopicRegistry
	monitor  *monitor.Monitor
	shutdown chan struct{}
	once     sync.Once
}

func NewServer(addr string, mon *monitor.Monitor) *Server {
	return &Server{
		addr:    addr,
		topics:  NewTopicRegistry(),
		monitor: mon,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		shutdown: make(chan struct{}),
	}
}

// Start blocks serving websocket upgrades on /ws.
func (s *Server) Start() error {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	logger.Log.Infof("Relay listening on %s", s.addr)
	return http.ListenAndServe(s.addr, mux)
}

func (s *Server) Shutdown() {
	s.once.Do(func() { close(s.shutdown) })
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Log.Warnf("Failed to upgrade connection: %v", err)
		return
	}
	go s.handleConnection(network.NewWSConnection(conn))
}

func (s *Server) handleConnection(conn network.Connection) {
	peer := &Peer{ID: uuid.New().String(), Conn: conn}
	logger.Log.Infof("Peer %s connected from %s", peer.ID, conn.RemoteAddr())
	if s.monitor != nil {
		s.monitor.IncConnectedPeers()
	}

	defer func() {
		s.dropPeer(peer)
		conn.Close()
		if s.monitor != nil {
			s.monitor.DecConnectedPeers()
		}
		logger.Log.Infof("Peer %s disconnected", peer.ID)
	}()

	for {
		select {
		case <-s.shutdown:
			return
		default:
		}

		packet, err := conn.ReadPacket()
		if err != nil {
			return
		}
		s.handlePacket(peer, packet)
	}
}

func (s *Server) handlePacket(peer *Peer, packet *network.Packet) {
	if s.monitor != nil {
		s.monitor.IncEventsRelayed()
	}

	switch packet.MsgID {
	case network.MsgHeartbeat:
		// Nothing to do; the read itself proves liveness.
	case network.MsgJoinTopic:
		s.joinTopic(peer, string(packet.Data))
	case network.MsgLeaveTopic:
		s.dropPeer(peer)
	case network.MsgBroadcast:
		s.fanOut(peer, packet.Data)
	default:
		logger.Log.Debugf("Peer %s sent unknown message type %d", peer.ID, packet.MsgID)
	}
}

func (s *Server) joinTopic(peer *Peer, topic string) {
	if topic == "" {
		return
	}
	if peer.topic != "" {
		s.topics.Remove(peer)
	}
	peer.topic = topic
	s.topics.Add(topic, peer)
	peer.Conn.Send(network.MsgSubscribed, []byte(topic))
	logger.Log.Infof("Peer %s joined topic %s", peer.ID, topic)
	if s.monitor != nil {
		s.monitor.SetActiveTopics(s.topics.Count())
	}
}

// dropPeer removes the peer from its topic and tells the survivors. The
// synthetic player_left makes an abrupt socket loss look identical to a
// voluntary leave, which is all the disconnect monitor needs.
func (s *Server) dropPeer(peer *Peer) {
	if peer.topic == "" {
		return
	}
	topic := peer.topic
	peer.topic = ""
	s.topics.Remove(peer)

	if data, err := protocol.Encode(protocol.EventPlayerLeft, nil); err == nil {
		for _, other := range s.topics.Members(topic) {
			other.Conn.Send(network.MsgBroadcast, data)
		}
	}
	if s.monitor != nil {
		s.monitor.SetActiveTopics(s.topics.Count())
	}
}

func (s *Server) fanOut(origin *Peer, data []byte) {
	if origin.topic == "" {
		logger.Log.Debugf("Peer %s broadcast without a topic", origin.ID)
		return
	}
	start := time.Now()
	defer func() {
		if s.monitor != nil {
			s.monitor.ObserveRelayLatency(time.Since(start))
		}
	}()
	for _, peer := range s.topics.Members(origin.topic) {
		if peer.ID == origin.ID {
			continue
		}
		if err := peer.Conn.Send(network.MsgBroadcast, data); err != nil {
			// Best effort; the reader loop will reap the dead peer.
			continue
		}
	}
}

// TopicRegistry tracks topic membership.
type TopicRegistry struct {
	mutex  sync.RWMutex
	topics map[string]map[string]*Peer
}

func NewTopicRegistry() *TopicRegistry {
	return &TopicRegistry{topics: make(map[string]map[string]*Peer)}
}

func (r *TopicRegistry) Add(topic string, peer *Peer) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if r.topics[topic] == nil {
		r.topics[topic] = make(map[string]*Peer)
	}
	r.topics[topic][peer.ID] = peer
}

// Remove detaches a peer from every topic it is in.
func (r *TopicRegistry) Remove(peer *Peer) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	for topic, members := range r.topics {
		if _, ok := members[peer.ID]; ok {
			delete(members, peer.ID)
			if len(members) == 0 {
				delete(r.topics, topic)
			}
		}
	}
}

// Members returns a copy of the peers in a topic.
func (r *TopicRegistry) Members(topic string) []*Peer {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	members := make([]*Peer, 0, len(r.topics[topic]))
	for _, peer := range r.topics[topic] {
		members = append(members, peer)
	}
	return members
}

func (r *TopicRegistry) Count() int {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	return len(r.topics)
}
