// Package knucklebones implements the dice-stacking rules engine. Everything
// here is a pure function of its inputs: both peers call Place with the same
// move and arrive at the same result, which is what makes mover-authoritative
// replication possible.
package knucklebones

import (
	"errors"

	"github.com/google/uuid"
)

const (
	Columns       = 3
	MaxDicePerCol = 3
	MinFace       = 1
	MaxFace       = 6
)

var (
	ErrColumnFull = errors.New("knucklebones: column is full")
	ErrBadColumn  = errors.New("knucklebones: column index out of range")
	ErrBadFace    = errors.New("knucklebones: face value out of range")
)

// Die is never mutated after creation except the two display flags.
type Die struct {
	ID        string `json:"id"`
	Face      int    `json:"face"`
	Destroyed bool   `json:"destroyed,omitempty"`
	Fresh     bool   `json:"fresh,omitempty"`
}

// Grid holds up to MaxDicePerCol dice per column.
type Grid [Columns][]Die

// Clone returns a deep copy.
func (g Grid) Clone() Grid {
	var out Grid
	for i, col := range g {
		out[i] = append([]Die(nil), col...)
	}
	return out
}

// Full reports whether every column is at capacity. A full grid is the sole
// game-over trigger.
func (g Grid) Full() bool {
	for _, col := range g {
		if len(col) < MaxDicePerCol {
			return false
		}
	}
	return true
}

// ColumnScore scores one column: each die contributes face × count of that
// face in the column. [4,4,2] scores 4·2 + 4·2 + 2·1 = 18.
func ColumnScore(column []Die) int {
	counts := make(map[int]int, len(column))
	for _, d := range column {
		counts[d.Face]++
	}
	score := 0
	for _, d := range column {
		score += d.Face * counts[d.Face]
	}
	return score
}

// TotalScore sums the column scores of a grid.
func TotalScore(g Grid) int {
	total := 0
	for _, col := range g {
		total += ColumnScore(col)
	}
	return total
}

// Result is the outcome of a single placement.
type Result struct {
	Grid          Grid
	OpponentGrid  Grid
	ScoreMover    int
	ScoreOpponent int
	BoardFull     bool
}

// Place appends a new die to grid[column] and knocks out every die of the
// same face in the opponent's matching column. Inputs are not mutated.
func Place(grid, opponentGrid Grid, column, face int) (*Result, error) {
	if column < 0 || column >= Columns {
		return nil, ErrBadColumn
	}
	if face < MinFace || face > MaxFace {
		return nil, ErrBadFace
	}
	if len(grid[column]) >= MaxDicePerCol {
		return nil, ErrColumnFull
	}

	next := grid.Clone()
	next[column] = append(next[column], Die{
		ID:    uuid.New().String(),
		Face:  face,
		Fresh: true,
	})

	// Knock-out rule: every matching die goes, not just one.
	opp := opponentGrid.Clone()
	surviving := opp[column][:0:0]
	for _, d := range opp[column] {
		if d.Face != face {
			surviving = append(surviving, d)
		}
	}
	opp[column] = surviving

	return &Result{
		Grid:          next,
		OpponentGrid:  opp,
		ScoreMover:    TotalScore(next),
		ScoreOpponent: TotalScore(opp),
		BoardFull:     next.Full(),
	}, nil
}

// Outcome of a finished match.
type Outcome string

const (
	OutcomeMoverWins    Outcome = "mover"
	OutcomeOpponentWins Outcome = "opponent"
	OutcomeDraw         Outcome = "draw"
)

// Compare resolves the winner once a board is full.
func Compare(scoreMover, scoreOpponent int) Outcome {
	switch {
	case scoreMover > scoreOpponent:
		return OutcomeMoverWins
	case scoreOpponent > scoreMover:
		return OutcomeOpponentWins
	default:
		return OutcomeDraw
	}
}
