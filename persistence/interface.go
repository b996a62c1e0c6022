// persistence/interface.go
package persistence

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/tavern-games/gamesync/models"
)

// Database stores player profiles and game records. The room directory lives
// in its own store (see postgresql.go); profiles are the wallet's backing
// state, so coin changes go through AdjustCoins and nothing else.
type Database interface {
	EnsureProfile(playerID, name, avatarSeed string) (*models.Profile, error)
	LoadProfile(playerID string) (*models.Profile, error)
	AdjustCoins(playerID string, delta int) (int, error)
	SaveGameRecord(record *models.GameRecord) error
	GetPlayerStats(playerID string) (*models.PlayerStats, error)
	Transaction(fn func(tx *gorm.DB) error) error
	Close() error
}

var (
	ErrProfileNotFound   = fmt.Errorf("profile not found")
	ErrInsufficientCoins = fmt.Errorf("insufficient coins")
	ErrRoomNotFound      = fmt.Errorf("room not found")
)
