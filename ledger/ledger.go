// Package ledger enforces exactly-once wallet settlement per round. The two
// guard flags are local state only: they are never transmitted and never
// reconstructed from the network, because duplicate or re-entrant phase
// events must not be able to re-arm a payment.
package ledger

import (
	"sync"

	"github.com/tavern-games/gamesync/logger"
)

// Wallet is the external account collaborator. The ledger only ever requests
// deltas; it never reads a balance to decide whether to pay.
type Wallet interface {
	RequestBalanceDelta(playerID string, delta int) (newBalance int, err error)
	VerifyIdentity(playerID string) (bool, error)
}

// Outcome of a round from the local player's point of view.
type Outcome string

const (
	OutcomeWon  Outcome = "won"
	OutcomeDraw Outcome = "draw"
	OutcomeLost Outcome = "lost"
)

type Ledger struct {
	wallet   Wallet
	playerID string

	mutex         sync.Mutex
	stake         int
	stakePaid     bool
	payoutSettled bool
}

func New(wallet Wallet, playerID string, stake int) *Ledger {
	return &Ledger{
		wallet:   wallet,
		playerID: playerID,
		stake:    stake,
	}
}

// SetStake updates the wagered amount for the next round. Used by Bug Derby,
// where the bet is chosen per race; head-to-head stakes are fixed at session
// creation. Ignored once the current round's stake has been paid.
func (l *Ledger) SetStake(amount int) {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	if !l.stakePaid {
		l.stake = amount
	}
}

func (l *Ledger) Stake() int {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	return l.stake
}

// PayStake debits the stake on entry into play. Re-entrant calls are no-ops
// until Reset. A failed wallet request is logged and the round continues.
func (l *Ledger) PayStake() {
	l.mutex.Lock()
	if l.stake <= 0 || l.stakePaid {
		l.mutex.Unlock()
		return
	}
	l.stakePaid = true
	l.payoutSettled = false
	stake := l.stake
	l.mutex.Unlock()

	if _, err := l.wallet.RequestBalanceDelta(l.playerID, -stake); err != nil {
		logger.Log.Warnf("Stake debit of %d for %s failed: %v", stake, l.playerID, err)
		return
	}
	logger.Log.Infof("Stake deducted: %d (player %s)", stake, l.playerID)
}

// Settle credits the head-to-head result: double stake on a win, refund on a
// draw, nothing on a loss. Fires at most once per round regardless of how
// many times the finish transition is observed.
func (l *Ledger) Settle(outcome Outcome) {
	var credit int
	switch outcome {
	case OutcomeWon:
		credit = l.Stake() * 2
	case OutcomeDraw:
		credit = l.Stake()
	}
	l.SettleCredit(credit)
}

// SettleCredit credits an already-computed payout (Bug Derby passes
// floor(bet × odds)). A zero or negative credit still consumes the round's
// settlement so later finish events cannot pay out.
func (l *Ledger) SettleCredit(credit int) {
	l.mutex.Lock()
	if !l.stakePaid || l.payoutSettled {
		l.mutex.Unlock()
		return
	}
	l.payoutSettled = true
	l.mutex.Unlock()

	if credit <= 0 {
		return
	}
	if _, err := l.wallet.RequestBalanceDelta(l.playerID, credit); err != nil {
		logger.Log.Warnf("Payout credit of %d for %s failed: %v", credit, l.playerID, err)
		return
	}
	logger.Log.Infof("Payout credited: %d (player %s)", credit, l.playerID)
}

// Reset re-arms both guards for the next round.
func (l *Ledger) Reset() {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	l.stakePaid = false
	l.payoutSettled = false
}

// Settled reports whether this round's payout has already fired.
func (l *Ledger) Settled() bool {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	return l.payoutSettled
}
