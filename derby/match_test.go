package derby

import (
	"math/rand"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/tavern-games/gamesync/broadcast"
)

type MockWallet struct {
	balance int
}

func (m *MockWallet) RequestBalanceDelta(playerID string, delta int) (int, error) {
	m.balance += delta
	return m.balance, nil
}

func (m *MockWallet) VerifyIdentity(playerID string) (bool, error) {
	return true, nil
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func advanceUntil(t *testing.T, fc *clockwork.FakeClock, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		fc.Advance(TickInterval)
		time.Sleep(time.Millisecond)
	}
	t.Fatal("condition not met while advancing the clock")
}

type derbyPair struct {
	bus   *broadcast.MemoryBus
	clock *clockwork.FakeClock
	host  *Match
	guest *Match
}

func newDerbyPair(t *testing.T, hostWallet, guestWallet *MockWallet) *derbyPair {
	t.Helper()
	bus := broadcast.NewMemoryBus()
	fc := clockwork.NewFakeClock()
	tuning := Config{InitialCoins: 100, MinBet: 10, NpcDensity: DensityLow}

	hostCfg := MatchConfig{
		RoomCode:   "RACE",
		PlayerID:   "host-player",
		PlayerName: "Ana",
		AvatarSeed: "Drake",
		IsHost:     true,
		Tuning:     tuning,
		Channel:    bus.Subscribe("room.RACE"),
		Clock:      fc,
		Rand:       rand.New(rand.NewSource(21)),
	}
	if hostWallet != nil {
		hostCfg.Wallet = hostWallet
	}
	host := NewMatch(hostCfg)
	t.Cleanup(host.Close)

	guestCfg := MatchConfig{
		RoomCode:   "RACE",
		PlayerID:   "guest-player",
		PlayerName: "Bruno",
		AvatarSeed: "Lis",
		Tuning:     tuning,
		Channel:    bus.Subscribe("room.RACE"),
		Clock:      fc,
		Rand:       rand.New(rand.NewSource(22)),
	}
	if guestWallet != nil {
		guestCfg.Wallet = guestWallet
	}
	guest := NewMatch(guestCfg)
	t.Cleanup(guest.Close)

	return &derbyPair{bus: bus, clock: fc, host: host, guest: guest}
}

func TestMatch_JoinAndHostSnapshot(t *testing.T) {
	p := newDerbyPair(t, nil, nil)

	waitFor(t, func() bool { return len(p.host.State().Players) == 2 })
	// The host answers the join with a full snapshot after a short delay;
	// the snapshot lists the host first.
	advanceUntil(t, p.clock, func() bool {
		players := p.guest.State().Players
		return len(players) == 2 && players[0].IsHost
	})

	guestState := p.guest.State()
	if guestState.Players[0].Name != "Ana" || !guestState.Players[0].IsHost {
		t.Errorf("Snapshot should list the host first, got %+v", guestState.Players)
	}
	if guestState.Config.MinBet != 10 {
		t.Errorf("Snapshot should carry the host config, got %+v", guestState.Config)
	}
}

func TestMatch_GuestCannotDriveThePhases(t *testing.T) {
	p := newDerbyPair(t, nil, nil)
	waitFor(t, func() bool { return len(p.host.State().Players) == 2 })

	if err := p.guest.StartBetting(); err != ErrNotHost {
		t.Errorf("Guest StartBetting should fail with ErrNotHost, got %v", err)
	}
	if err := p.guest.StartRace(); err != ErrNotHost {
		t.Errorf("Guest StartRace should fail with ErrNotHost, got %v", err)
	}
	if err := p.guest.UpdateConfig(DefaultConfig()); err != ErrNotHost {
		t.Errorf("Guest UpdateConfig should fail with ErrNotHost, got %v", err)
	}
}

func TestMatch_BetValidation(t *testing.T) {
	p := newDerbyPair(t, nil, nil)
	waitFor(t, func() bool { return len(p.host.State().Players) == 2 })

	// Pools are closed until the host opens betting.
	if err := p.guest.PlaceBet(BugTank, 20); err != ErrWrongPhase {
		t.Errorf("Betting in the lobby should fail with ErrWrongPhase, got %v", err)
	}

	if err := p.host.StartBetting(); err != nil {
		t.Fatalf("StartBetting failed: %v", err)
	}
	waitFor(t, func() bool { return p.guest.State().Phase == PhaseBetting })

	if err := p.guest.PlaceBet("centipede", 20); err != ErrUnknownBug {
		t.Errorf("Expected ErrUnknownBug, got %v", err)
	}
	if err := p.guest.PlaceBet(BugTank, 5); err != ErrBetTooSmall {
		t.Errorf("Expected ErrBetTooSmall, got %v", err)
	}
	if err := p.guest.PlaceBet(BugTank, 20); err != nil {
		t.Errorf("Valid bet rejected: %v", err)
	}
}

func TestMatch_FullRace(t *testing.T) {
	hostWallet := &MockWallet{balance: 100}
	guestWallet := &MockWallet{balance: 100}
	p := newDerbyPair(t, hostWallet, guestWallet)

	waitFor(t, func() bool { return len(p.host.State().Players) == 2 })
	advanceUntil(t, p.clock, func() bool { return len(p.guest.State().Players) == 2 })

	if err := p.host.StartBetting(); err != nil {
		t.Fatalf("StartBetting failed: %v", err)
	}
	waitFor(t, func() bool { return p.guest.State().Phase == PhaseBetting })

	// NPC bets travel with start_betting, so both peers price the same pools.
	if len(p.guest.State().NpcBets) != len(p.host.State().NpcBets) {
		t.Fatalf("NPC pools differ: %d vs %d", len(p.guest.State().NpcBets), len(p.host.State().NpcBets))
	}

	if err := p.host.PlaceBet(BugTank, 70); err != nil {
		t.Fatalf("Host bet failed: %v", err)
	}
	if err := p.guest.PlaceBet(BugSpeedster, 30); err != nil {
		t.Fatalf("Guest bet failed: %v", err)
	}
	waitFor(t, func() bool {
		for _, player := range p.host.State().Players {
			if player.PlayerID == "guest-player" && player.BugID == BugSpeedster {
				return true
			}
		}
		return false
	})

	if err := p.host.StartRace(); err != nil {
		t.Fatalf("StartRace failed: %v", err)
	}
	waitFor(t, func() bool { return p.guest.State().Phase == PhaseRacing })

	// Stakes are debited at race start, exactly once.
	waitFor(t, func() bool { return hostWallet.balance == 30 && guestWallet.balance == 70 })

	// The guest never simulates; it applies pushed ticks opaquely.
	advanceUntil(t, p.clock, func() bool {
		state := p.guest.State()
		for _, r := range state.Racers {
			if r.Position > 0 {
				return true
			}
		}
		return false
	})

	advanceUntil(t, p.clock, func() bool {
		return p.host.State().Phase == PhaseResults && p.guest.State().Phase == PhaseResults
	})

	hostState := p.host.State()
	guestState := p.guest.State()
	if hostState.WinnerID != guestState.WinnerID {
		t.Fatalf("Peers disagree on the winner: %q vs %q", hostState.WinnerID, guestState.WinnerID)
	}
	winner := hostState.WinnerID
	if !KnownBug(winner) {
		t.Fatalf("Winner %q is not on the roster", winner)
	}

	// The host's scoreboard reaches the guest.
	waitFor(t, func() bool {
		for _, player := range p.guest.State().Players {
			if player.PlayerID == "host-player" && player.LastResult == hostResult(p.host.State()) {
				return true
			}
		}
		return false
	})

	// Settlement: winner credited floor(bet*odds), loser forfeits the stake.
	odds := Odds(winner, hostState.Players, hostState.NpcBets)
	switch winner {
	case BugTank:
		want := 30 + Payout(70, odds)
		waitFor(t, func() bool { return hostWallet.balance == want })
		if guestWallet.balance != 70 {
			t.Errorf("Losing guest balance = %d, want 70", guestWallet.balance)
		}
	case BugSpeedster:
		want := 70 + Payout(30, odds)
		waitFor(t, func() bool { return guestWallet.balance == want })
		if hostWallet.balance != 30 {
			t.Errorf("Losing host balance = %d, want 30", hostWallet.balance)
		}
	default:
		if hostWallet.balance != 30 || guestWallet.balance != 70 {
			t.Errorf("Both bets lost, balances = %d/%d, want 30/70", hostWallet.balance, guestWallet.balance)
		}
	}

	// A new betting phase re-arms everything.
	if err := p.host.StartBetting(); err != nil {
		t.Fatalf("Second StartBetting failed: %v", err)
	}
	waitFor(t, func() bool { return p.guest.State().Phase == PhaseBetting })
	for _, player := range p.guest.State().Players {
		if player.BugID != "" || player.LastResult != 0 {
			t.Errorf("Player %s carried bet state into the new round: %+v", player.Name, player)
		}
	}
}

func hostResult(state MatchSnapshot) int {
	for _, player := range state.Players {
		if player.PlayerID == "host-player" {
			return player.LastResult
		}
	}
	return 0
}

func TestMatch_OfflineRunsWithoutNetwork(t *testing.T) {
	fc := clockwork.NewFakeClock()
	wallet := &MockWallet{balance: 100}
	m := NewMatch(MatchConfig{
		RoomCode:   "SOLO",
		PlayerName: "Ana",
		Offline:    true,
		Wallet:     wallet,
		Clock:      fc,
		Rand:       rand.New(rand.NewSource(13)),
	})
	defer m.Close()

	if err := m.StartBetting(); err != nil {
		t.Fatalf("Offline StartBetting failed: %v", err)
	}
	if got := len(m.State().NpcBets); got != 8 {
		t.Errorf("Default medium density should generate 8 NPC bets, got %d", got)
	}
	if err := m.PlaceBet(BugGolden, 10); err != nil {
		t.Fatalf("Offline bet failed: %v", err)
	}
	if err := m.StartRace(); err != nil {
		t.Fatalf("Offline StartRace failed: %v", err)
	}
	waitFor(t, func() bool { return wallet.balance == 90 })

	advanceUntil(t, fc, func() bool { return m.State().Phase == PhaseResults })
	if !KnownBug(m.State().WinnerID) {
		t.Errorf("Offline race winner %q is not on the roster", m.State().WinnerID)
	}
}

func TestMatch_PeerLeftIsTerminal(t *testing.T) {
	p := newDerbyPair(t, nil, nil)
	waitFor(t, func() bool { return len(p.host.State().Players) == 2 })

	p.guest.Close()
	waitFor(t, func() bool { return p.host.State().Phase == PhaseDisconnected })

	if err := p.host.StartBetting(); err != ErrWrongPhase {
		t.Errorf("Disconnected match should reject StartBetting, got %v", err)
	}
}

func TestMatch_BetAfterRaceStartIsIgnored(t *testing.T) {
	p := newDerbyPair(t, nil, nil)
	waitFor(t, func() bool { return len(p.host.State().Players) == 2 })

	if err := p.host.StartBetting(); err != nil {
		t.Fatalf("StartBetting failed: %v", err)
	}
	if err := p.host.PlaceBet(BugTank, 10); err != nil {
		t.Fatalf("Host bet failed: %v", err)
	}
	if err := p.host.StartRace(); err != nil {
		t.Fatalf("StartRace failed: %v", err)
	}
	waitFor(t, func() bool { return p.host.State().Phase == PhaseRacing })

	// Pools are frozen once the race starts; a straggling bet must not
	// reprice the settlement.
	rogue := p.bus.Subscribe("room.RACE")
	defer rogue.Unsubscribe()
	rogue.Send("update_bet", PlayerBet{PlayerID: "host-player", BugID: BugGolden, BetAmount: 9000})

	time.Sleep(10 * time.Millisecond)
	for _, player := range p.host.State().Players {
		if player.PlayerID == "host-player" {
			if player.BugID != BugTank || player.BetAmount != 10 {
				t.Errorf("Bet mutated after race start: bug=%s amount=%d", player.BugID, player.BetAmount)
			}
		}
	}
}

func TestMatch_HostIgnoresPhaseEventsFromPeers(t *testing.T) {
	p := newDerbyPair(t, nil, nil)
	waitFor(t, func() bool { return len(p.host.State().Players) == 2 })

	rogue := p.bus.Subscribe("room.RACE")
	defer rogue.Unsubscribe()

	// Only the host opens pools and starts races; over the wire these
	// events are host-to-guest announcements.
	rogue.Send("start_betting", startBettingPayload{NpcBets: []NpcBet{{BugID: BugTank, Amount: 50}}})
	time.Sleep(10 * time.Millisecond)
	if p.host.State().Phase != PhaseLobby {
		t.Fatalf("Host entered %s on a peer's start_betting", p.host.State().Phase)
	}

	if err := p.host.StartBetting(); err != nil {
		t.Fatalf("StartBetting failed: %v", err)
	}
	rogue.Send("start_race", nil)
	time.Sleep(10 * time.Millisecond)
	if p.host.State().Phase != PhaseBetting {
		t.Fatalf("Host entered %s on a peer's start_race", p.host.State().Phase)
	}
}

func TestMatch_MalformedPayloadsAreDropped(t *testing.T) {
	p := newDerbyPair(t, nil, nil)
	waitFor(t, func() bool { return len(p.host.State().Players) == 2 })

	rogue := p.bus.Subscribe("room.RACE")
	defer rogue.Unsubscribe()
	rogue.Send("player_join", "not an object")
	rogue.Send("update_bet", 42)
	rogue.Send("race_finish", map[string]interface{}{"winner_id": 7})

	time.Sleep(10 * time.Millisecond)
	if got := len(p.host.State().Players); got != 2 {
		t.Errorf("Malformed join changed the player list: %d entries", got)
	}
	if p.host.State().Phase != PhaseLobby {
		t.Errorf("Malformed events changed the phase to %s", p.host.State().Phase)
	}
}
