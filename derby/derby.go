// Package derby implements Bug Derby: a continuous race between a fixed
// roster of four bugs with pari-mutuel betting. Unlike the head-to-head
// variants the race is nondeterministic, so only the host runs the
// simulation and every tick's already-computed racer positions travel as
// authoritative state. Guests apply what they receive and never simulate.
package derby

import (
	"math/rand"
	"strings"
)

// Phase of a derby match. The lobby is open-ended: any number of bettors may
// join before the race starts.
type Phase string

const (
	PhaseLobby        Phase = "lobby"
	PhaseBetting      Phase = "betting"
	PhaseRacing       Phase = "racing"
	PhaseResults      Phase = "results"
	PhaseDisconnected Phase = "disconnected"
)

// Terminal reports whether no further mutation is accepted.
func (p Phase) Terminal() bool {
	return p == PhaseDisconnected
}

// The fixed roster.
const (
	BugTank      = "tank"
	BugSpeedster = "speedster"
	BugVoid      = "void"
	BugGolden    = "golden"
)

// Roster lists the four racers in lane order.
var Roster = []string{BugTank, BugSpeedster, BugVoid, BugGolden}

// BugStats drive the simulation: base speed per tick and volatility, which
// scales both the sleep and the boost chance.
type BugStats struct {
	BaseSpeed  float64
	Volatility float64
}

var bugStats = map[string]BugStats{
	BugTank:      {BaseSpeed: 0.38, Volatility: 0.05},
	BugSpeedster: {BaseSpeed: 0.55, Volatility: 0.8},
	BugVoid:      {BaseSpeed: 0.42, Volatility: 0.3},
	BugGolden:    {BaseSpeed: 0.45, Volatility: 0.2},
}

var fallbackStats = BugStats{BaseSpeed: 0.4, Volatility: 0.2}

// StatsFor returns the roster stats for a bug id, falling back to a middle
// of the road profile for unknown ids.
func StatsFor(bugID string) BugStats {
	if s, ok := bugStats[bugID]; ok {
		return s
	}
	return fallbackStats
}

// KnownBug reports whether the id belongs to the roster.
func KnownBug(bugID string) bool {
	_, ok := bugStats[bugID]
	return ok
}

// Status of a racer within a tick.
type Status string

const (
	StatusRunning  Status = "running"
	StatusSleeping Status = "sleeping"
	StatusBoosting Status = "boosting"
)

// RacerState is one racer's authoritative state, recreated at every race
// start and mutated only by the host's simulator.
type RacerState struct {
	ID       string  `json:"id"`
	Position float64 `json:"position"`
	Status   Status  `json:"status"`
}

// PlayerBet is one bettor's public entry in the lobby list. Bets are mutable
// until the race starts.
type PlayerBet struct {
	PlayerID   string `json:"player_id"`
	Name       string `json:"name"`
	AvatarSeed string `json:"avatar_seed"`
	Coins      int    `json:"coins"`
	BetAmount  int    `json:"bet_amount"`
	BugID      string `json:"bug_id,omitempty"`
	IsHost     bool   `json:"is_host"`
	LastResult int    `json:"last_result"`
}

// NpcBet pads the pool so odds stay interesting in small lobbies. Generated
// once per betting phase, immutable afterwards.
type NpcBet struct {
	BugID  string `json:"bug_id"`
	Amount int    `json:"amount"`
}

// Density controls how many NPC bets each betting phase generates.
type Density string

const (
	DensityNone   Density = "none"
	DensityLow    Density = "low"
	DensityMedium Density = "medium"
	DensityHigh   Density = "high"
)

func (d Density) betCount() int {
	switch d {
	case DensityLow:
		return 3
	case DensityMedium:
		return 8
	case DensityHigh:
		return 15
	default:
		return 0
	}
}

// Config is the host-tunable lobby configuration, pushed to guests via
// update_config.
type Config struct {
	InitialCoins int     `json:"initial_coins"`
	MinBet       int     `json:"min_bet"`
	NpcDensity   Density `json:"npc_density"`
}

func DefaultConfig() Config {
	return Config{
		InitialCoins: 100,
		MinBet:       10,
		NpcDensity:   DensityMedium,
	}
}

// GenerateNPCBets draws the betting phase's NPC pool: each bet picks a
// uniform roster bug for one to five times the minimum bet.
func GenerateNPCBets(rng *rand.Rand, density Density, minBet int) []NpcBet {
	count := density.betCount()
	bets := make([]NpcBet, 0, count)
	for i := 0; i < count; i++ {
		bets = append(bets, NpcBet{
			BugID:  Roster[rng.Intn(len(Roster))],
			Amount: (rng.Intn(5) + 1) * minBet,
		})
	}
	return bets
}

// Commentary derives the tick's one-liner: a sleeping racer steals the show,
// otherwise the leader gets the call.
func Commentary(racers []RacerState) string {
	if len(racers) == 0 {
		return "Aguardando corrida..."
	}
	leader := racers[0]
	for _, r := range racers[1:] {
		if r.Position > leader.Position {
			leader = r
		}
	}
	for _, r := range racers {
		if r.Status == StatusSleeping {
			return strings.ToUpper(r.ID) + " dormiu no ponto!"
		}
	}
	return strings.ToUpper(leader.ID) + " lidera a disputa!"
}
