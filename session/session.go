// Package session owns the canonical phase and player slots of one
// head-to-head match (Knucklebones or Sigil Duel) and is the only place the
// match state is mutated. Consistency with the remote peer relies on
// mover-authoritative replication: the mover broadcasts the raw move and
// every peer re-derives the result through the same pure rules engine.
//
// All transitions run on a single internal event queue: local input, timer
// firings and inbound broadcast messages are serialized through it, so no
// two transitions ever race. Timers re-check their preconditions inside the
// queue, which makes a stale fire after teardown a guaranteed no-op.
package session

import (
	"errors"
	"math/rand"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/tavern-games/gamesync/broadcast"
	"github.com/tavern-games/gamesync/knucklebones"
	"github.com/tavern-games/gamesync/ledger"
	"github.com/tavern-games/gamesync/logger"
	"github.com/tavern-games/gamesync/protocol"
	"github.com/tavern-games/gamesync/sigil"
	"github.com/tavern-games/gamesync/timer"
)

type Variant string

const (
	VariantKnucklebones Variant = "knucklebones"
	VariantSigil        Variant = "sigil_duel"
)

type Phase string

const (
	PhaseWaiting      Phase = "waiting"
	PhaseDeciding     Phase = "deciding"
	PhasePlaying      Phase = "playing"
	PhaseFinished     Phase = "finished"
	PhaseDisconnected Phase = "disconnected"
)

// Terminal reports whether no further mutation is accepted.
func (p Phase) Terminal() bool {
	return p == PhaseDisconnected
}

const (
	delayRoll     = 800 * time.Millisecond
	delaySnapshot = 500 * time.Millisecond
	delayDeciding = 2500 * time.Millisecond

	offlineOpponentName   = "Oponente"
	offlineOpponentAvatar = "Gimli"
)

var (
	ErrNotYourTurn = errors.New("session: not your turn")
	ErrWrongPhase  = errors.New("session: action not valid in this phase")
	ErrNoDie       = errors.New("session: no die rolled yet")
	ErrClosed      = errors.New("session: closed")
)

// PlayerSlot is one seat's public state.
type PlayerSlot struct {
	Seat       protocol.Seat
	Name       string
	AvatarSeed string
	Score      int
}

// Snapshot is a read-only copy of the session state, safe to hand to a UI.
type Snapshot struct {
	RoomCode     string
	Variant      Variant
	Phase        Phase
	Turn         protocol.Seat
	Winner       protocol.Seat
	Draw         bool
	GameOver     bool
	Host         *PlayerSlot
	Guest        *PlayerSlot
	Grids        map[protocol.Seat]knucklebones.Grid
	Board        sigil.Board
	PendingFace  int
	OpponentFace int
}

// Config assembles a session. Channel, Wallet and Clock default to no-ops /
// the real clock when nil, so offline play needs almost nothing.
type Config struct {
	RoomCode   string
	Variant    Variant
	PlayerID   string
	PlayerName string
	AvatarSeed string
	IsHost     bool
	Offline    bool
	Stake      int

	Channel broadcast.Channel
	Wallet  ledger.Wallet
	Clock   clockwork.Clock
	Rand    *rand.Rand
}

type Session struct {
	roomCode    string
	variant     Variant
	localSeat   protocol.Seat
	localName   string
	localAvatar string
	offline     bool

	phase  Phase
	turn   protocol.Seat
	winner protocol.Seat
	draw   bool
	host   *PlayerSlot
	guest  *PlayerSlot

	grids map[protocol.Seat]knucklebones.Grid
	board sigil.Board

	pendingFace  int
	opponentFace int

	channel broadcast.Channel
	sched   *timer.Scheduler
	ledger  *ledger.Ledger
	rng     *rand.Rand

	events chan func()
	done   chan struct{}
	once   sync.Once

	snapMutex sync.RWMutex
	snap      Snapshot
}

// nopWallet keeps the ledger harmless when no wallet collaborator is wired.
type nopWallet struct{}

func (nopWallet) RequestBalanceDelta(string, int) (int, error) { return 0, nil }
func (nopWallet) VerifyIdentity(string) (bool, error)          { return true, nil }

// New creates a session and starts its event loop. Offline mode synthesizes
// a local opponent and never blocks on network events.
func New(cfg Config) *Session {
	if cfg.Channel == nil {
		cfg.Channel = broadcast.NewNullChannel()
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.Rand == nil {
		cfg.Rand = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	var wallet ledger.Wallet = nopWallet{}
	if cfg.Wallet != nil {
		wallet = cfg.Wallet
	}

	localSeat := protocol.SeatGuest
	if cfg.IsHost || cfg.Offline {
		localSeat = protocol.SeatHost
	}

	s := &Session{
		roomCode:    cfg.RoomCode,
		variant:     cfg.Variant,
		localSeat:   localSeat,
		localName:   cfg.PlayerName,
		localAvatar: cfg.AvatarSeed,
		offline:     cfg.Offline,
		turn:        protocol.SeatHost,
		host:        &PlayerSlot{Seat: protocol.SeatHost},
		guest:       nil,
		grids: map[protocol.Seat]knucklebones.Grid{
			protocol.SeatHost:  {},
			protocol.SeatGuest: {},
		},
		channel: cfg.Channel,
		sched:   timer.NewScheduler(cfg.Clock),
		ledger:  ledger.New(wallet, cfg.PlayerID, cfg.Stake),
		rng:     cfg.Rand,
		events:  make(chan func(), 64),
		done:    make(chan struct{}),
	}

	if localSeat == protocol.SeatHost {
		s.host.Name = cfg.PlayerName
		s.host.AvatarSeed = cfg.AvatarSeed
	}

	switch {
	case cfg.Offline:
		s.phase = PhaseDeciding
		s.guest = &PlayerSlot{
			Seat:       protocol.SeatGuest,
			Name:       offlineOpponentName,
			AvatarSeed: offlineOpponentAvatar,
		}
	case cfg.IsHost:
		s.phase = PhaseWaiting
	default:
		s.phase = PhaseDeciding
	}

	s.registerHandlers()
	s.publishSnapshot()
	go s.run()

	if cfg.Offline {
		// Fake coin-flip grace period, then straight into play.
		s.sched.After(delayDeciding, func() {
			s.do(func() { s.enterPlaying(s.turn) })
		})
	} else {
		go s.announceWhenReady(cfg.PlayerName, cfg.AvatarSeed)
	}

	return s
}

// run is the single logical event queue.
func (s *Session) run() {
	for {
		select {
		case fn := <-s.events:
			fn()
			s.publishSnapshot()
		case <-s.done:
			return
		}
	}
}

// do posts a transition onto the event queue. Posting after Close is a no-op.
func (s *Session) do(fn func()) {
	select {
	case s.events <- fn:
	case <-s.done:
	}
}

func (s *Session) announceWhenReady(name, avatarSeed string) {
	select {
	case <-s.channel.Ready():
	case <-s.done:
		return
	}
	if s.localSeat == protocol.SeatGuest {
		err := s.channel.Send(protocol.EventPlayerJoin, protocol.JoinPayload{
			Name:       name,
			AvatarSeed: avatarSeed,
		})
		if err != nil {
			logger.Log.Warnf("Failed to announce join in room %s: %v", s.roomCode, err)
		}
	}
}

// Close tears the session down on every exit path: best-effort player_left,
// all timers canceled, channel released. Idempotent.
func (s *Session) Close() {
	s.once.Do(func() {
		if !s.offline {
			s.channel.Send(protocol.EventPlayerLeft, nil)
		}
		s.sched.Stop()
		close(s.done)
		s.channel.Unsubscribe()
	})
}

// State returns the latest published snapshot.
func (s *Session) State() Snapshot {
	s.snapMutex.RLock()
	defer s.snapMutex.RUnlock()
	return s.snap
}

func (s *Session) publishSnapshot() {
	snap := Snapshot{
		RoomCode:     s.roomCode,
		Variant:      s.variant,
		Phase:        s.phase,
		Turn:         s.turn,
		Winner:       s.winner,
		Draw:         s.draw,
		GameOver:     s.phase == PhaseFinished,
		Board:        s.board,
		PendingFace:  s.pendingFace,
		OpponentFace: s.opponentFace,
		Grids: map[protocol.Seat]knucklebones.Grid{
			protocol.SeatHost:  s.grids[protocol.SeatHost].Clone(),
			protocol.SeatGuest: s.grids[protocol.SeatGuest].Clone(),
		},
	}
	if s.host != nil {
		h := *s.host
		snap.Host = &h
	}
	if s.guest != nil {
		g := *s.guest
		snap.Guest = &g
	}

	s.snapMutex.Lock()
	s.snap = snap
	s.snapMutex.Unlock()
}

// LocalSeat returns the seat this peer occupies.
func (s *Session) LocalSeat() protocol.Seat {
	return s.localSeat
}
