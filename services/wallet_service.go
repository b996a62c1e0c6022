// services/wallet_service.go
package services

import (
	"github.com/tavern-games/gamesync/logger"
	"github.com/tavern-games/gamesync/monitor"
	"github.com/tavern-games/gamesync/persistence"
)

// WalletService is the account collaborator behind the settlement ledger:
// it only ever applies deltas, never read-modify-writes a balance.
type WalletService struct {
	db      persistence.Database
	monitor *monitor.Monitor
}

func NewWalletService(db persistence.Database, mon *monitor.Monitor) *WalletService {
	return &WalletService{db: db, monitor: mon}
}

// RequestBalanceDelta applies a coin delta and returns the new balance.
func (s *WalletService) RequestBalanceDelta(playerID string, delta int) (int, error) {
	balance, err := s.db.AdjustCoins(playerID, delta)
	if err != nil {
		logger.Log.Warnf("Coin delta %d for player %s failed: %v", delta, playerID, err)
		if s.monitor != nil {
			s.monitor.IncSettlementFailures()
		}
		return 0, err
	}
	return balance, nil
}

// VerifyIdentity reports whether a profile exists for the player.
func (s *WalletService) VerifyIdentity(playerID string) (bool, error) {
	_, err := s.db.LoadProfile(playerID)
	if err == persistence.ErrProfileNotFound {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// EnsureProfile creates the player's account on first contact.
func (s *WalletService) EnsureProfile(playerID, name, avatarSeed string) (int, error) {
	profile, err := s.db.EnsureProfile(playerID, name, avatarSeed)
	if err != nil {
		return 0, err
	}
	return profile.Coins, nil
}
