// Package protocol defines the broadcast events exchanged between peers of a
// room topic, and the payload shapes that both seats must agree on. Payloads
// travel as JSON; delivery is unordered and at-most-once, so every event here
// must be safe to drop or to receive twice.
package protocol

import (
	"encoding/json"
	"errors"
)

// Seat identifies one of the two fixed identities in a head-to-head match.
type Seat string

const (
	SeatHost  Seat = "host"
	SeatGuest Seat = "guest"
)

// Opponent returns the other seat.
func (s Seat) Opponent() Seat {
	if s == SeatHost {
		return SeatGuest
	}
	return SeatHost
}

func (s Seat) Valid() bool {
	return s == SeatHost || s == SeatGuest
}

// Broadcast event names. Head-to-head variants use the first group; Bug Derby
// adds the host-driven race events.
const (
	EventPlayerJoin  = "player_join"
	EventSyncState   = "sync_state"
	EventGameStart   = "game_start"
	EventMakeMove    = "make_move"
	EventDiceRolled  = "dice_rolled"
	EventRestartGame = "restart_game"
	EventPlayerLeft  = "player_left"

	EventUpdateBet    = "update_bet"
	EventUpdateConfig = "update_config"
	EventStartBetting = "start_betting"
	EventStartRace    = "start_race"
	EventRaceTick     = "race_tick"
	EventRaceFinish   = "race_finish"
	EventRaceResults  = "race_results"
)

// JoinPayload announces a guest to the host.
type JoinPayload struct {
	Name       string `json:"name"`
	AvatarSeed string `json:"avatar_seed"`
}

// SyncStatePayload is the host's snapshot for a late joiner. The guest jumps
// directly to the named phase instead of replaying history.
type SyncStatePayload struct {
	HostName       string `json:"host_name"`
	HostAvatarSeed string `json:"host_avatar_seed"`
	CurrentTurn    Seat   `json:"current_turn"`
	Phase          string `json:"phase"`
}

// GameStartPayload carries the coin-flip result.
type GameStartPayload struct {
	StartingSeat Seat `json:"starting_seat"`
}

// KnucklebonesMove is a resolved move: the die face was rolled by the acting
// peer and travels as data, never recomputed remotely.
type KnucklebonesMove struct {
	Column    int  `json:"column"`
	FaceValue int  `json:"face_value"`
	Seat      Seat `json:"seat"`
}

// SigilMove places a symbol on the 9-cell board.
type SigilMove struct {
	CellIndex int    `json:"cell_index"`
	Symbol    string `json:"symbol"`
}

// DiceRolledPayload is advisory: it lets the opponent show the rolled face
// while the mover is still thinking. Dropping it loses nothing.
type DiceRolledPayload struct {
	FaceValue int `json:"face_value"`
}

// Envelope frames every broadcast message on the wire. Sender is filled by
// transports whose subscriptions echo a peer's own publishes back to it, so
// the adapter can drop them before dispatch.
type Envelope struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Sender  string          `json:"sender,omitempty"`
}

var ErrEmptyEvent = errors.New("protocol: envelope has no event name")

// Encode marshals an event and its payload into wire bytes.
func Encode(event string, payload interface{}) ([]byte, error) {
	if event == "" {
		return nil, ErrEmptyEvent
	}
	env := Envelope{Event: event}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		env.Payload = raw
	}
	return json.Marshal(env)
}

// Decode unmarshals wire bytes into an envelope.
func Decode(data []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, err
	}
	if env.Event == "" {
		return nil, ErrEmptyEvent
	}
	return &env, nil
}
