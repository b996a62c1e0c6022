package session

import (
	"encoding/json"

	"github.com/tavern-games/gamesync/logger"
	"github.com/tavern-games/gamesync/protocol"
	"github.com/tavern-games/gamesync/sigil"
)

// registerHandlers wires the broadcast events into the event queue. Every
// handler re-validates inside the queue; malformed or out-of-phase events
// are dropped, never fatal.
func (s *Session) registerHandlers() {
	if s.offline {
		return
	}

	s.channel.On(protocol.EventPlayerJoin, func(payload []byte) {
		s.do(func() { s.handlePlayerJoin(payload) })
	})
	s.channel.On(protocol.EventSyncState, func(payload []byte) {
		s.do(func() { s.handleSyncState(payload) })
	})
	s.channel.On(protocol.EventGameStart, func(payload []byte) {
		s.do(func() { s.handleGameStart(payload) })
	})
	s.channel.On(protocol.EventDiceRolled, func(payload []byte) {
		s.do(func() { s.handleDiceRolled(payload) })
	})
	s.channel.On(protocol.EventMakeMove, func(payload []byte) {
		s.do(func() { s.handleMakeMove(payload) })
	})
	s.channel.On(protocol.EventRestartGame, func(payload []byte) {
		s.do(func() { s.resetRound(false) })
	})
	s.channel.On(protocol.EventPlayerLeft, func(payload []byte) {
		s.do(func() { s.handlePeerLeft() })
	})
}

// handlePlayerJoin accepts the first guest. Joins are sequenced by the event
// queue, so when two hopeful guests race, the first event processed wins and
// the later one is ignored.
func (s *Session) handlePlayerJoin(payload []byte) {
	if s.phase.Terminal() || s.localSeat != protocol.SeatHost {
		return
	}
	if s.guest != nil {
		logger.Log.Infof("Ignoring join in room %s: guest slot already taken", s.roomCode)
		return
	}

	var join protocol.JoinPayload
	if err := json.Unmarshal(payload, &join); err != nil {
		logger.Log.Debugf("Dropping malformed player_join in room %s: %v", s.roomCode, err)
		return
	}

	avatar := join.AvatarSeed
	if avatar == "" {
		avatar = join.Name
	}
	s.guest = &PlayerSlot{
		Seat:       protocol.SeatGuest,
		Name:       join.Name,
		AvatarSeed: avatar,
	}

	// Uniform 50/50 first turn.
	starter := protocol.SeatHost
	if s.rng.Intn(2) == 1 {
		starter = protocol.SeatGuest
	}
	s.turn = starter
	s.phase = PhaseDeciding
	logger.Log.Infof("Guest %q joined room %s, %s starts", join.Name, s.roomCode, starter)

	// Snapshot shortly after the accept, then hold the deciding phase long
	// enough for the coin-flip animation before play begins.
	s.sched.After(delaySnapshot, func() {
		s.do(func() {
			if s.phase != PhaseDeciding {
				return
			}
			s.channel.Send(protocol.EventSyncState, protocol.SyncStatePayload{
				HostName:       s.host.Name,
				HostAvatarSeed: s.host.AvatarSeed,
				CurrentTurn:    s.turn,
				Phase:          string(PhaseDeciding),
			})
		})
		s.sched.After(delayDeciding, func() {
			s.do(func() {
				if s.phase != PhaseDeciding {
					return
				}
				s.channel.Send(protocol.EventGameStart, protocol.GameStartPayload{
					StartingSeat: s.turn,
				})
				s.enterPlaying(s.turn)
			})
		})
	})
}

// handleSyncState hydrates a late-joining guest from the host's snapshot,
// jumping straight to the phase named in the payload.
func (s *Session) handleSyncState(payload []byte) {
	if s.phase.Terminal() || s.localSeat != protocol.SeatGuest || s.guest != nil {
		return
	}

	var sync protocol.SyncStatePayload
	if err := json.Unmarshal(payload, &sync); err != nil {
		logger.Log.Debugf("Dropping malformed sync_state in room %s: %v", s.roomCode, err)
		return
	}
	if !sync.CurrentTurn.Valid() {
		logger.Log.Debugf("Dropping sync_state with bad turn %q", sync.CurrentTurn)
		return
	}

	s.host.Name = sync.HostName
	s.host.AvatarSeed = sync.HostAvatarSeed
	s.guest = &PlayerSlot{
		Seat:       protocol.SeatGuest,
		Name:       s.localName,
		AvatarSeed: s.localAvatar,
	}
	s.turn = sync.CurrentTurn

	switch Phase(sync.Phase) {
	case PhaseDeciding:
		s.phase = PhaseDeciding
	default:
		// Snapshot says the match is already underway.
		s.enterPlaying(sync.CurrentTurn)
	}
	logger.Log.Infof("Synced with host %q in room %s (phase %s)", sync.HostName, s.roomCode, s.phase)
}

func (s *Session) handleGameStart(payload []byte) {
	if s.phase.Terminal() || s.phase == PhasePlaying {
		return
	}

	var start protocol.GameStartPayload
	if err := json.Unmarshal(payload, &start); err != nil {
		logger.Log.Debugf("Dropping malformed game_start in room %s: %v", s.roomCode, err)
		return
	}
	if !start.StartingSeat.Valid() {
		return
	}

	// game_start can outrun sync_state on an unordered channel; a guest
	// still knows its own identity, so seat itself and play.
	if s.guest == nil && s.localSeat == protocol.SeatGuest {
		s.guest = &PlayerSlot{
			Seat:       protocol.SeatGuest,
			Name:       s.localName,
			AvatarSeed: s.localAvatar,
		}
	}
	s.enterPlaying(start.StartingSeat)
}

func (s *Session) handleDiceRolled(payload []byte) {
	if s.phase != PhasePlaying {
		return
	}
	var rolled protocol.DiceRolledPayload
	if err := json.Unmarshal(payload, &rolled); err != nil {
		return
	}
	s.opponentFace = rolled.FaceValue
}

func (s *Session) handleMakeMove(payload []byte) {
	if s.phase != PhasePlaying {
		return
	}
	s.opponentFace = 0

	switch s.variant {
	case VariantKnucklebones:
		var move protocol.KnucklebonesMove
		if err := json.Unmarshal(payload, &move); err != nil {
			logger.Log.Debugf("Dropping malformed make_move in room %s: %v", s.roomCode, err)
			return
		}
		if !move.Seat.Valid() || move.Seat != s.turn {
			logger.Log.Debugf("Dropping out-of-turn move from seat %q", move.Seat)
			return
		}
		if err := s.applyKnucklebones(move.Seat, move.Column, move.FaceValue); err != nil {
			logger.Log.Debugf("Dropping illegal remote move in room %s: %v", s.roomCode, err)
		}
	case VariantSigil:
		var move protocol.SigilMove
		if err := json.Unmarshal(payload, &move); err != nil {
			logger.Log.Debugf("Dropping malformed make_move in room %s: %v", s.roomCode, err)
			return
		}
		seat, ok := sigil.SeatFor(sigil.Symbol(move.Symbol))
		if !ok || seat != s.turn {
			logger.Log.Debugf("Dropping out-of-turn sigil move %q", move.Symbol)
			return
		}
		if err := s.applySigil(seat, move.CellIndex); err != nil {
			logger.Log.Debugf("Dropping illegal remote move in room %s: %v", s.roomCode, err)
		}
	}
}

// handlePeerLeft is the disconnect monitor: peer loss is fatal to the
// session, and the terminal phase refuses all further mutation.
func (s *Session) handlePeerLeft() {
	if s.phase.Terminal() {
		return
	}
	logger.Log.Infof("Peer left room %s, session is over", s.roomCode)
	s.phase = PhaseDisconnected
	s.winner = ""
	s.draw = false
}
