package derby

import (
	"math/rand"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/tavern-games/gamesync/timer"
)

const (
	// TrackLength is the full visual track; the finish line sits short of
	// it so the winner crosses under the banner instead of at the edge.
	TrackLength  = 1000.0
	winThreshold = TrackLength * 0.9

	globalSpeed     = 1.2
	boostMultiplier = 2.5

	// A racer trailing the leader by more than the gap gets a catch-up
	// boost, unless it is asleep.
	rubberBandGap    = 150.0
	rubberBandFactor = 1.3

	// TickInterval paces the host simulation loop.
	TickInterval = 50 * time.Millisecond
)

// NewRacers lines the roster up at the start gate.
func NewRacers() []RacerState {
	racers := make([]RacerState, 0, len(Roster))
	for _, id := range Roster {
		racers = append(racers, RacerState{ID: id, Status: StatusRunning})
	}
	return racers
}

func cloneRacers(racers []RacerState) []RacerState {
	out := make([]RacerState, len(racers))
	copy(out, racers)
	return out
}

// step advances every racer one tick and returns the winner's id the moment
// one crosses the finish threshold. Positions and the rubber-band gap are
// read from the pre-tick state, so lane order never biases a tick.
func step(rng *rand.Rand, racers []RacerState) ([]RacerState, string) {
	leaderPos := 0.0
	for _, r := range racers {
		if r.Position > leaderPos {
			leaderPos = r.Position
		}
	}

	next := make([]RacerState, 0, len(racers))
	for _, r := range racers {
		stats := StatsFor(r.ID)
		status := r.Status

		roll := rng.Float64()
		switch r.Status {
		case StatusRunning:
			sleepChance := 0.002 + 0.005*stats.Volatility
			boostChance := 0.005 + 0.01*stats.Volatility
			if roll < sleepChance {
				status = StatusSleeping
			} else if roll > 1-boostChance {
				status = StatusBoosting
			}
		case StatusSleeping:
			if rng.Float64() < 0.02 {
				status = StatusRunning
			}
		case StatusBoosting:
			if rng.Float64() < 0.05 {
				status = StatusRunning
			}
		}

		move := 0.0
		switch status {
		case StatusRunning:
			variance := 0.8 + rng.Float64()*0.4
			move = stats.BaseSpeed * variance * globalSpeed
		case StatusBoosting:
			move = stats.BaseSpeed * boostMultiplier * globalSpeed
		}

		if leaderPos-r.Position > rubberBandGap && status != StatusSleeping {
			move *= rubberBandFactor
		}

		position := r.Position + move
		if position > TrackLength {
			position = TrackLength
		}
		next = append(next, RacerState{ID: r.ID, Position: position, Status: status})
	}

	for _, r := range next {
		if r.Position >= winThreshold {
			return next, r.ID
		}
	}
	return next, ""
}

// Simulator runs the race on whichever peer holds authority. It reschedules
// itself after every tick and is cancellable only as a whole: once Stop
// returns, no callback fires again.
type Simulator struct {
	sched *timer.Scheduler
	rng   *rand.Rand

	onTick   func(racers []RacerState, comment string)
	onFinish func(winnerID string)

	mutex   sync.Mutex
	racers  []RacerState
	running bool
}

// NewSimulator prepares a simulator. Callbacks fire on the scheduler's
// goroutine; the owner is expected to hand them off to its own event queue.
func NewSimulator(clock clockwork.Clock, rng *rand.Rand, onTick func([]RacerState, string), onFinish func(string)) *Simulator {
	return &Simulator{
		sched:    timer.NewScheduler(clock),
		rng:      rng,
		onTick:   onTick,
		onFinish: onFinish,
	}
}

// Start resets the field and begins ticking. Starting an already running
// race is a no-op.
func (s *Simulator) Start() {
	s.mutex.Lock()
	if s.running {
		s.mutex.Unlock()
		return
	}
	s.racers = NewRacers()
	s.running = true
	s.mutex.Unlock()

	s.sched.After(TickInterval, s.tick)
}

func (s *Simulator) tick() {
	s.mutex.Lock()
	if !s.running {
		s.mutex.Unlock()
		return
	}
	next, winner := step(s.rng, s.racers)
	s.racers = next
	if winner != "" {
		s.running = false
	}
	snapshot := cloneRacers(next)
	s.mutex.Unlock()

	if winner != "" {
		s.onFinish(winner)
		return
	}
	s.onTick(snapshot, Commentary(snapshot))
	s.sched.After(TickInterval, s.tick)
}

// Racers returns a copy of the current field.
func (s *Simulator) Racers() []RacerState {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return cloneRacers(s.racers)
}

// Stop halts the race and the underlying scheduler for good.
func (s *Simulator) Stop() {
	s.mutex.Lock()
	s.running = false
	s.mutex.Unlock()
	s.sched.Stop()
}
