// models/models.go
package models

import (
	"time"
)

// Game type identifiers, shared by the room directory and game records.
const (
	GameKnucklebones = "knucklebones"
	GameSigilDuel    = "sigil_duel"
	GameBugDerby     = "bug_derby"
)

// Room statuses.
const (
	RoomWaiting  = "waiting"
	RoomPlaying  = "playing"
	RoomFinished = "finished"
)

// Profile is a player's account: display identity plus the coin balance that
// every stake settles against.
type Profile struct {
	PlayerID   string    `json:"player_id"`
	Name       string    `json:"name"`
	AvatarSeed string    `json:"avatar_seed"`
	Coins      int       `json:"coins"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Room is one entry in the room directory.
type Room struct {
	Code      string    `json:"code"`
	HostID    string    `json:"host_id"`
	GameType  string    `json:"game_type"`
	Status    string    `json:"status"`
	Stake     int       `json:"stake"`
	CreatedAt time.Time `json:"created_at"`
}

// GameRecord archives a finished match.
type GameRecord struct {
	RoomCode  string         `json:"room_code"`
	GameType  string         `json:"game_type"`
	Players   []PlayerResult `json:"players"`
	CreatedAt time.Time      `json:"created_at"`
}

// PlayerResult is one player's line in a game record.
type PlayerResult struct {
	PlayerID   string `json:"player_id"`
	Name       string `json:"name"`
	Outcome    string `json:"outcome"` // win/lose/draw
	CoinsDelta int    `json:"coins_delta"`
}

// PlayerStats aggregates a player's record history.
type PlayerStats struct {
	TotalGames int `json:"total_games"`
	Wins       int `json:"wins"`
	Losses     int `json:"losses"`
	Draws      int `json:"draws"`
	TotalCoins int `json:"total_coins"`
}
