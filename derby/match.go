package derby

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/tavern-games/gamesync/broadcast"
	"github.com/tavern-games/gamesync/ledger"
	"github.com/tavern-games/gamesync/logger"
	"github.com/tavern-games/gamesync/protocol"
	"github.com/tavern-games/gamesync/timer"
)

// delaySync spaces the host's full snapshot after it sees a new joiner.
const delaySync = 500 * time.Millisecond

var (
	ErrNotHost     = errors.New("derby: host-only action")
	ErrWrongPhase  = errors.New("derby: action not valid in this phase")
	ErrBetTooSmall = errors.New("derby: bet below the table minimum")
	ErrUnknownBug  = errors.New("derby: bug is not on the roster")
	ErrClosed      = errors.New("derby: closed")
)

// Wire payloads specific to the derby topic.
type syncPayload struct {
	Players []PlayerBet  `json:"players"`
	Phase   Phase        `json:"phase"`
	NpcBets []NpcBet     `json:"npc_bets"`
	Config  Config       `json:"config"`
	Racers  []RacerState `json:"racers,omitempty"`
}

type startBettingPayload struct {
	NpcBets []NpcBet `json:"npc_bets"`
}

type tickPayload struct {
	Racers  []RacerState `json:"racers"`
	Comment string       `json:"comment"`
}

type finishPayload struct {
	WinnerID string `json:"winner_id"`
}

type resultsPayload struct {
	Players []PlayerBet `json:"players"`
}

// MatchSnapshot is a read-only copy of the match state.
type MatchSnapshot struct {
	RoomCode   string
	Phase      Phase
	Config     Config
	Players    []PlayerBet
	NpcBets    []NpcBet
	Racers     []RacerState
	WinnerID   string
	Commentary string
	MyBugID    string
	MyBet      int
}

// MatchConfig assembles a derby match. Channel, Wallet, Clock and Rand all
// default like the head-to-head session's.
type MatchConfig struct {
	RoomCode   string
	PlayerID   string
	PlayerName string
	AvatarSeed string
	IsHost     bool
	Offline    bool
	Coins      int
	Tuning     Config

	Channel broadcast.Channel
	Wallet  ledger.Wallet
	Clock   clockwork.Clock
	Rand    *rand.Rand
}

// Match owns one derby lobby on one peer: the open bettor list, the betting
// pools and, on the authoritative peer, the running simulation. All state
// transitions are serialized through a single event queue.
type Match struct {
	roomCode  string
	localID   string
	isHost    bool
	authority bool
	offline   bool

	phase      Phase
	cfg        Config
	players    []PlayerBet
	npcBets    []NpcBet
	racers     []RacerState
	winnerID   string
	commentary string

	myBugID string
	myBet   int

	channel broadcast.Channel
	sched   *timer.Scheduler
	sim     *Simulator
	ledger  *ledger.Ledger
	rng     *rand.Rand

	events chan func()
	done   chan struct{}
	once   sync.Once

	snapMutex sync.RWMutex
	snap      MatchSnapshot
}

type nopWallet struct{}

func (nopWallet) RequestBalanceDelta(string, int) (int, error) { return 0, nil }
func (nopWallet) VerifyIdentity(string) (bool, error)          { return true, nil }

// NewMatch creates a match and starts its event loop. The local peer is
// seated in the bettor list immediately and announced to the topic once the
// channel is ready.
func NewMatch(cfg MatchConfig) *Match {
	if cfg.Channel == nil {
		cfg.Channel = broadcast.NewNullChannel()
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.Rand == nil {
		cfg.Rand = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if cfg.PlayerID == "" {
		cfg.PlayerID = uuid.NewString()
	}
	if cfg.Tuning == (Config{}) {
		cfg.Tuning = DefaultConfig()
	}
	if cfg.Coins == 0 {
		cfg.Coins = cfg.Tuning.InitialCoins
	}
	var wallet ledger.Wallet = nopWallet{}
	if cfg.Wallet != nil {
		wallet = cfg.Wallet
	}

	m := &Match{
		roomCode:   cfg.RoomCode,
		localID:    cfg.PlayerID,
		isHost:     cfg.IsHost,
		authority:  cfg.IsHost || cfg.Offline,
		offline:    cfg.Offline,
		phase:      PhaseLobby,
		cfg:        cfg.Tuning,
		commentary: Commentary(nil),
		myBet:      cfg.Tuning.MinBet,
		channel:    cfg.Channel,
		sched:      timer.NewScheduler(cfg.Clock),
		ledger:     ledger.New(wallet, cfg.PlayerID, 0),
		rng:        cfg.Rand,
		events:     make(chan func(), 64),
		done:       make(chan struct{}),
	}

	m.sim = NewSimulator(cfg.Clock, cfg.Rand,
		func(racers []RacerState, comment string) {
			m.do(func() { m.applyTick(racers, comment, true) })
		},
		func(winnerID string) {
			m.do(func() {
				m.channel.Send(protocol.EventRaceFinish, finishPayload{WinnerID: winnerID})
				m.finishRace(winnerID)
			})
		})

	m.players = append(m.players, PlayerBet{
		PlayerID:   cfg.PlayerID,
		Name:       cfg.PlayerName,
		AvatarSeed: cfg.AvatarSeed,
		Coins:      cfg.Coins,
		BetAmount:  cfg.Tuning.MinBet,
		IsHost:     cfg.IsHost,
	})

	m.registerHandlers()
	m.publishSnapshot()
	go m.run()
	if !cfg.Offline {
		go m.announceWhenReady()
	}
	return m
}

func (m *Match) run() {
	for {
		select {
		case fn := <-m.events:
			fn()
			m.publishSnapshot()
		case <-m.done:
			return
		}
	}
}

func (m *Match) do(fn func()) {
	select {
	case m.events <- fn:
	case <-m.done:
	}
}

func (m *Match) request(fn func() error) error {
	errc := make(chan error, 1)
	m.do(func() { errc <- fn() })
	select {
	case err := <-errc:
		return err
	case <-m.done:
		return ErrClosed
	}
}

func (m *Match) announceWhenReady() {
	select {
	case <-m.channel.Ready():
	case <-m.done:
		return
	}
	profile := m.State().Players[0]
	if err := m.channel.Send(protocol.EventPlayerJoin, profile); err != nil {
		logger.Log.Warnf("Failed to announce join in derby room %s: %v", m.roomCode, err)
	}
}

// Close tears the match down: best-effort player_left, simulation and timers
// halted, channel released. Idempotent.
func (m *Match) Close() {
	m.once.Do(func() {
		if !m.offline {
			m.channel.Send(protocol.EventPlayerLeft, nil)
		}
		m.sim.Stop()
		m.sched.Stop()
		close(m.done)
		m.channel.Unsubscribe()
	})
}

// State returns the latest published snapshot.
func (m *Match) State() MatchSnapshot {
	m.snapMutex.RLock()
	defer m.snapMutex.RUnlock()
	return m.snap
}

func (m *Match) publishSnapshot() {
	snap := MatchSnapshot{
		RoomCode:   m.roomCode,
		Phase:      m.phase,
		Config:     m.cfg,
		Players:    append([]PlayerBet(nil), m.players...),
		NpcBets:    append([]NpcBet(nil), m.npcBets...),
		Racers:     cloneRacers(m.racers),
		WinnerID:   m.winnerID,
		Commentary: m.commentary,
		MyBugID:    m.myBugID,
		MyBet:      m.myBet,
	}
	m.snapMutex.Lock()
	m.snap = snap
	m.snapMutex.Unlock()
}

func (m *Match) registerHandlers() {
	on := func(event string, fn func(payload []byte)) {
		m.channel.On(event, func(payload []byte) {
			m.do(func() {
				if m.phase.Terminal() {
					return
				}
				fn(payload)
			})
		})
	}

	on(protocol.EventPlayerJoin, m.handlePlayerJoin)
	on(protocol.EventSyncState, m.handleSyncState)
	on(protocol.EventUpdateConfig, m.handleUpdateConfig)
	on(protocol.EventUpdateBet, m.handleUpdateBet)
	on(protocol.EventStartBetting, m.handleStartBetting)
	on(protocol.EventStartRace, func([]byte) {
		if m.authority {
			return
		}
		m.startRaceLocal()
	})
	on(protocol.EventRaceTick, m.handleRaceTick)
	on(protocol.EventRaceFinish, m.handleRaceFinish)
	on(protocol.EventRaceResults, m.handleRaceResults)
	on(protocol.EventPlayerLeft, func([]byte) { m.handlePeerLeft() })
}

func (m *Match) handlePlayerJoin(payload []byte) {
	var joiner PlayerBet
	if err := json.Unmarshal(payload, &joiner); err != nil || joiner.PlayerID == "" {
		logger.Log.Warnf("Dropping malformed player_join in derby room %s", m.roomCode)
		return
	}
	if m.findPlayer(joiner.PlayerID) != nil {
		return
	}
	m.players = append(m.players, joiner)
	logger.Log.Infof("Bettor %s joined derby room %s", joiner.Name, m.roomCode)

	if !m.isHost {
		return
	}
	// Answer every join with a full snapshot so late joiners catch up
	// without replaying history.
	m.sched.After(delaySync, func() {
		m.do(func() {
			if m.phase.Terminal() {
				return
			}
			m.channel.Send(protocol.EventSyncState, syncPayload{
				Players: m.players,
				Phase:   m.phase,
				NpcBets: m.npcBets,
				Config:  m.cfg,
				Racers:  m.racers,
			})
		})
	})
}

func (m *Match) handleSyncState(payload []byte) {
	if m.isHost {
		return
	}
	var sync syncPayload
	if err := json.Unmarshal(payload, &sync); err != nil {
		logger.Log.Warnf("Dropping malformed sync_state in derby room %s", m.roomCode)
		return
	}
	if len(sync.Players) > 0 {
		m.players = sync.Players
	}
	if sync.Phase != "" {
		m.phase = sync.Phase
	}
	m.npcBets = sync.NpcBets
	if sync.Config.MinBet > 0 {
		m.cfg = sync.Config
		if m.phase == PhaseLobby {
			m.myBet = sync.Config.MinBet
		}
	}
	if len(sync.Racers) > 0 {
		m.racers = sync.Racers
	}
}

func (m *Match) handleUpdateConfig(payload []byte) {
	if m.isHost {
		return
	}
	var cfg Config
	if err := json.Unmarshal(payload, &cfg); err != nil || cfg.MinBet <= 0 {
		logger.Log.Warnf("Dropping malformed update_config in derby room %s", m.roomCode)
		return
	}
	m.cfg = cfg
}

func (m *Match) handleUpdateBet(payload []byte) {
	// Pools are frozen outside the betting window; a late bet would reprice
	// everyone's settlement.
	if m.phase != PhaseBetting {
		return
	}
	var bet PlayerBet
	if err := json.Unmarshal(payload, &bet); err != nil || bet.PlayerID == "" {
		logger.Log.Warnf("Dropping malformed update_bet in derby room %s", m.roomCode)
		return
	}
	for i := range m.players {
		if m.players[i].PlayerID == bet.PlayerID {
			m.players[i] = bet
			return
		}
	}
}

func (m *Match) handleStartBetting(payload []byte) {
	// Only the authority drives phase changes; it announces its own rounds
	// through StartBetting, never over the wire.
	if m.authority {
		return
	}
	var start startBettingPayload
	if err := json.Unmarshal(payload, &start); err != nil {
		logger.Log.Warnf("Dropping malformed start_betting in derby room %s", m.roomCode)
		return
	}
	m.openBetting(start.NpcBets)
}

// openBetting resets the round: fresh pools, empty track, re-armed ledger.
func (m *Match) openBetting(npcBets []NpcBet) {
	m.phase = PhaseBetting
	m.winnerID = ""
	m.racers = nil
	m.npcBets = npcBets
	m.commentary = "Façam suas apostas!"
	m.myBugID = ""
	m.myBet = m.cfg.MinBet
	m.ledger.Reset()
	m.ledger.SetStake(0)
	for i := range m.players {
		m.players[i].BugID = ""
		m.players[i].BetAmount = m.cfg.MinBet
		m.players[i].LastResult = 0
	}
}

// startRaceLocal moves into racing and, on the authoritative peer, starts
// the simulation loop.
func (m *Match) startRaceLocal() {
	if m.phase == PhaseRacing {
		return
	}
	m.phase = PhaseRacing
	m.commentary = "A CORRIDA COMEÇOU!"
	m.racers = NewRacers()
	m.ledger.PayStake()
	if m.authority {
		m.sim.Start()
	}
}

func (m *Match) handleRaceTick(payload []byte) {
	if m.authority {
		return
	}
	var tick tickPayload
	if err := json.Unmarshal(payload, &tick); err != nil {
		logger.Log.Warnf("Dropping malformed race_tick in derby room %s", m.roomCode)
		return
	}
	// Pushed positions are authoritative; apply them opaquely.
	m.applyTick(tick.Racers, tick.Comment, false)
}

func (m *Match) applyTick(racers []RacerState, comment string, broadcastIt bool) {
	if m.phase != PhaseRacing {
		return
	}
	m.racers = racers
	m.commentary = comment
	if broadcastIt {
		m.channel.Send(protocol.EventRaceTick, tickPayload{Racers: racers, Comment: comment})
	}
}

func (m *Match) handleRaceFinish(payload []byte) {
	if m.authority {
		return
	}
	var finish finishPayload
	if err := json.Unmarshal(payload, &finish); err != nil || finish.WinnerID == "" {
		logger.Log.Warnf("Dropping malformed race_finish in derby room %s", m.roomCode)
		return
	}
	m.finishRace(finish.WinnerID)
}

// finishRace settles the local bet and, on the host, computes and publishes
// everyone's result for the scoreboard.
func (m *Match) finishRace(winnerID string) {
	if m.phase != PhaseRacing {
		return
	}
	m.phase = PhaseResults
	m.winnerID = winnerID
	if m.authority {
		m.racers = m.sim.Racers()
	}

	credit := 0
	if m.myBugID == winnerID {
		credit = Payout(m.myBet, Odds(winnerID, m.players, m.npcBets))
	}
	m.ledger.SettleCredit(credit)

	switch {
	case credit > 0:
		m.commentary = fmt.Sprintf("VITÓRIA! Ganhou %d moedas!", credit)
	case m.myBugID != "":
		m.commentary = "Derrota! Sorte na próxima."
	default:
		m.commentary = fmt.Sprintf("Vencedor: %s", winnerID)
	}

	if m.isHost || m.offline {
		for i := range m.players {
			p := &m.players[i]
			switch {
			case p.BugID == winnerID:
				p.LastResult = Payout(p.BetAmount, Odds(winnerID, m.players, m.npcBets))
			case p.BugID != "":
				p.LastResult = -p.BetAmount
			default:
				p.LastResult = 0
			}
		}
		m.channel.Send(protocol.EventRaceResults, resultsPayload{Players: m.players})
		return
	}

	if me := m.findPlayer(m.localID); me != nil {
		switch {
		case credit > 0:
			me.LastResult = credit
		case m.myBugID != "":
			me.LastResult = -m.myBet
		}
	}
}

func (m *Match) handleRaceResults(payload []byte) {
	if m.isHost {
		return
	}
	var results resultsPayload
	if err := json.Unmarshal(payload, &results); err != nil || len(results.Players) == 0 {
		logger.Log.Warnf("Dropping malformed race_results in derby room %s", m.roomCode)
		return
	}
	m.players = results.Players
}

func (m *Match) handlePeerLeft() {
	logger.Log.Infof("Peer left derby room %s, match is over", m.roomCode)
	m.phase = PhaseDisconnected
	m.sim.Stop()
}

func (m *Match) findPlayer(playerID string) *PlayerBet {
	for i := range m.players {
		if m.players[i].PlayerID == playerID {
			return &m.players[i]
		}
	}
	return nil
}

// UpdateConfig pushes new lobby tuning to every guest. Host only.
func (m *Match) UpdateConfig(cfg Config) error {
	return m.request(func() error {
		if !m.isHost {
			return ErrNotHost
		}
		if m.phase != PhaseLobby && m.phase != PhaseResults {
			return ErrWrongPhase
		}
		m.cfg = cfg
		m.channel.Send(protocol.EventUpdateConfig, cfg)
		return nil
	})
}

// StartBetting opens the pools: generates the NPC bets and announces them.
// Host only.
func (m *Match) StartBetting() error {
	return m.request(func() error {
		if !m.isHost && !m.offline {
			return ErrNotHost
		}
		if m.phase.Terminal() || m.phase == PhaseRacing {
			return ErrWrongPhase
		}
		npcBets := GenerateNPCBets(m.rng, m.cfg.NpcDensity, m.cfg.MinBet)
		m.channel.Send(protocol.EventStartBetting, startBettingPayload{NpcBets: npcBets})
		m.openBetting(npcBets)
		return nil
	})
}

// StartRace closes the pools and starts the race. Host only.
func (m *Match) StartRace() error {
	return m.request(func() error {
		if !m.isHost && !m.offline {
			return ErrNotHost
		}
		if m.phase != PhaseBetting {
			return ErrWrongPhase
		}
		m.channel.Send(protocol.EventStartRace, nil)
		m.startRaceLocal()
		return nil
	})
}

// PlaceBet backs a bug with an amount. Mutable until the race starts; the
// stake is only debited at race start.
func (m *Match) PlaceBet(bugID string, amount int) error {
	return m.request(func() error {
		if m.phase != PhaseBetting {
			return ErrWrongPhase
		}
		if !KnownBug(bugID) {
			return ErrUnknownBug
		}
		if amount < m.cfg.MinBet {
			return ErrBetTooSmall
		}
		m.myBugID = bugID
		m.myBet = amount
		m.ledger.SetStake(amount)

		var profile PlayerBet
		if me := m.findPlayer(m.localID); me != nil {
			me.BugID = bugID
			me.BetAmount = amount
			profile = *me
		}
		m.channel.Send(protocol.EventUpdateBet, profile)
		return nil
	})
}
