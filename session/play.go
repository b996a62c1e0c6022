package session

import (
	"github.com/tavern-games/gamesync/knucklebones"
	"github.com/tavern-games/gamesync/ledger"
	"github.com/tavern-games/gamesync/logger"
	"github.com/tavern-games/gamesync/protocol"
	"github.com/tavern-games/gamesync/sigil"
)

// enterPlaying moves the session into the playing phase, arming the stake
// debit and the first auto-roll. Safe to reach from waiting, deciding or a
// repeated game_start.
func (s *Session) enterPlaying(turn protocol.Seat) {
	if s.phase.Terminal() || s.phase == PhaseFinished {
		return
	}
	s.turn = turn
	if s.phase == PhasePlaying {
		return
	}
	s.phase = PhasePlaying
	s.ledger.PayStake()
	s.maybeScheduleRoll()
}

// maybeScheduleRoll arms the delayed auto-roll when it is the local actor's
// turn and no face value is pending. The fired callback re-checks every
// precondition inside the event queue, so a stale timer is a no-op.
func (s *Session) maybeScheduleRoll() {
	if s.variant != VariantKnucklebones || s.phase != PhasePlaying {
		return
	}
	if s.pendingFace != 0 {
		return
	}
	if !s.offline && s.turn != s.localSeat {
		return
	}

	s.sched.After(delayRoll, func() {
		s.do(func() {
			if s.phase != PhasePlaying || s.pendingFace != 0 {
				return
			}
			if !s.offline && s.turn != s.localSeat {
				return
			}
			s.pendingFace = s.rollDie()
			if !s.offline {
				s.channel.Send(protocol.EventDiceRolled, protocol.DiceRolledPayload{
					FaceValue: s.pendingFace,
				})
			}
		})
	})
}

// rollDie generates randomness only at the acting peer; the resolved face
// travels with the move and is never recomputed remotely.
func (s *Session) rollDie() int {
	return s.rng.Intn(knucklebones.MaxFace) + 1
}

// PlaceDie plays the pending die into a column. Illegal actions are inert:
// they return an error, change nothing and broadcast nothing.
func (s *Session) PlaceDie(column int) error {
	return s.request(func() error { return s.placeDie(column) })
}

// PlaceSigil claims a cell for the active seat's symbol.
func (s *Session) PlaceSigil(cell int) error {
	return s.request(func() error { return s.placeSigil(cell) })
}

// Restart begins a new round and tells the peer to do the same.
func (s *Session) Restart() {
	s.do(func() { s.resetRound(true) })
}

// request runs fn on the event queue and waits for its result.
func (s *Session) request(fn func() error) error {
	errc := make(chan error, 1)
	s.do(func() { errc <- fn() })
	select {
	case err := <-errc:
		return err
	case <-s.done:
		return ErrClosed
	}
}

func (s *Session) actorSeat() (protocol.Seat, error) {
	if s.phase != PhasePlaying {
		return "", ErrWrongPhase
	}
	if s.offline {
		// The local peer acts for both logical seats.
		return s.turn, nil
	}
	if s.turn != s.localSeat {
		return "", ErrNotYourTurn
	}
	return s.localSeat, nil
}

func (s *Session) placeDie(column int) error {
	seat, err := s.actorSeat()
	if err != nil {
		return err
	}
	if s.pendingFace == 0 {
		return ErrNoDie
	}

	face := s.pendingFace
	if err := s.applyKnucklebones(seat, column, face); err != nil {
		return err
	}
	s.pendingFace = 0

	if !s.offline {
		s.channel.Send(protocol.EventMakeMove, protocol.KnucklebonesMove{
			Column:    column,
			FaceValue: face,
			Seat:      seat,
		})
	}
	s.maybeScheduleRoll()
	return nil
}

func (s *Session) placeSigil(cell int) error {
	seat, err := s.actorSeat()
	if err != nil {
		return err
	}

	if err := s.applySigil(seat, cell); err != nil {
		return err
	}
	if !s.offline {
		s.channel.Send(protocol.EventMakeMove, protocol.SigilMove{
			CellIndex: cell,
			Symbol:    string(sigil.SymbolFor(seat)),
		})
	}
	return nil
}

// applyKnucklebones replays one resolved move through the pure rules engine.
// Both peers run exactly this for every move, which is what keeps their
// grids identical without an authority.
func (s *Session) applyKnucklebones(seat protocol.Seat, column, face int) error {
	opp := seat.Opponent()
	res, err := knucklebones.Place(s.grids[seat], s.grids[opp], column, face)
	if err != nil {
		return err
	}

	s.grids[seat] = res.Grid
	s.grids[opp] = res.OpponentGrid
	s.slot(seat).Score = res.ScoreMover
	s.slot(opp).Score = res.ScoreOpponent

	if res.BoardFull {
		switch knucklebones.Compare(res.ScoreMover, res.ScoreOpponent) {
		case knucklebones.OutcomeMoverWins:
			s.finish(seat, false)
		case knucklebones.OutcomeOpponentWins:
			s.finish(opp, false)
		default:
			s.finish("", true)
		}
		return nil
	}

	s.turn = opp
	s.maybeScheduleRoll()
	return nil
}

func (s *Session) applySigil(seat protocol.Seat, cell int) error {
	res, err := sigil.Place(s.board, cell, sigil.SymbolFor(seat))
	if err != nil {
		return err
	}
	s.board = res.Board

	switch {
	case res.Won:
		// Per-round score; the board resets between rounds, the tally stays.
		s.slot(res.Winner).Score++
		s.finish(res.Winner, false)
	case res.Draw:
		s.finish("", true)
	default:
		s.turn = seat.Opponent()
	}
	return nil
}

func (s *Session) finish(winner protocol.Seat, draw bool) {
	s.phase = PhaseFinished
	s.winner = winner
	s.draw = draw

	switch {
	case draw:
		s.ledger.Settle(ledger.OutcomeDraw)
	case winner == s.localSeat:
		s.ledger.Settle(ledger.OutcomeWon)
	default:
		s.ledger.Settle(ledger.OutcomeLost)
	}
	logger.Log.Infof("Room %s finished: winner=%s draw=%v", s.roomCode, winner, draw)
}

// resetRound returns the boards to empty for the next round. Cumulative
// Sigil Duel scores persist; Knucklebones scores are grid-derived and so
// start over with the empty grid.
func (s *Session) resetRound(broadcastIt bool) {
	if s.phase.Terminal() {
		return
	}

	s.grids[protocol.SeatHost] = knucklebones.Grid{}
	s.grids[protocol.SeatGuest] = knucklebones.Grid{}
	s.board = sigil.Board{}
	s.pendingFace = 0
	s.opponentFace = 0
	s.winner = ""
	s.draw = false
	if s.variant == VariantKnucklebones {
		s.slot(protocol.SeatHost).Score = 0
		if s.guest != nil {
			s.slot(protocol.SeatGuest).Score = 0
		}
	}
	s.ledger.Reset()

	if broadcastIt && !s.offline {
		s.channel.Send(protocol.EventRestartGame, nil)
	}

	s.turn = protocol.SeatHost
	s.phase = PhaseDeciding
	s.enterPlaying(protocol.SeatHost)
}

func (s *Session) slot(seat protocol.Seat) *PlayerSlot {
	if seat == protocol.SeatHost {
		return s.host
	}
	if s.guest == nil {
		// A move can name the guest before any join was seen; give the
		// score somewhere to land.
		s.guest = &PlayerSlot{Seat: protocol.SeatGuest}
	}
	return s.guest
}