// services/room_service.go
package services

import (
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/tavern-games/gamesync/config"
	"github.com/tavern-games/gamesync/logger"
	"github.com/tavern-games/gamesync/models"
	"github.com/tavern-games/gamesync/persistence"
)

const (
	roomCodeLength   = 4
	roomCodeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	createRetries    = 5
)

var ErrStakeOutOfRange = fmt.Errorf("services: stake outside the configured limits")

// RoomService is the room directory collaborator: short uppercase codes that
// double as the broadcast topic name.
type RoomService struct {
	store  *persistence.RoomStore
	tuning config.GameConfig
	rng    *rand.Rand
}

func NewRoomService(store *persistence.RoomStore, tuning config.GameConfig) *RoomService {
	return &RoomService{
		store:  store,
		tuning: tuning,
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// CreateRoom registers a new room and returns its code. A code collision is
// retried with a fresh draw. Stake zero means a friendly match; anything else
// has to sit inside the configured limits.
func (s *RoomService) CreateRoom(gameType, hostID string, stake int) (string, error) {
	if stake != 0 {
		if stake < s.tuning.MinStake || (s.tuning.MaxStake > 0 && stake > s.tuning.MaxStake) {
			return "", ErrStakeOutOfRange
		}
	}
	for attempt := 0; attempt < createRetries; attempt++ {
		code := s.newCode()
		err := s.store.CreateRoom(&models.Room{
			Code:     code,
			HostID:   hostID,
			GameType: gameType,
			Status:   models.RoomWaiting,
			Stake:    stake,
		})
		if err != nil {
			logger.Log.Debugf("Room code %s rejected, retrying: %v", code, err)
			continue
		}
		logger.Log.Infof("Room %s created (%s, stake %d)", code, gameType, stake)
		return code, nil
	}
	return "", fmt.Errorf("could not allocate a room code after %d attempts", createRetries)
}

// LookupRoom finds a room by code, case-insensitively.
func (s *RoomService) LookupRoom(code string) (*models.Room, error) {
	return s.store.LookupRoom(strings.ToUpper(code))
}

func (s *RoomService) UpdateRoomStatus(code, status string) error {
	return s.store.UpdateRoomStatus(strings.ToUpper(code), status)
}

// ListOpenRooms returns joinable rooms for a game type.
func (s *RoomService) ListOpenRooms(gameType string) ([]*models.Room, error) {
	return s.store.ListOpenRooms(gameType)
}

func (s *RoomService) newCode() string {
	var b strings.Builder
	for i := 0; i < roomCodeLength; i++ {
		b.WriteByte(roomCodeAlphabet[s.rng.Intn(len(roomCodeAlphabet))])
	}
	return b.String()
}
