package knucklebones

import (
	"testing"
)

func dice(faces ...int) []Die {
	out := make([]Die, 0, len(faces))
	for i, f := range faces {
		out = append(out, Die{ID: string(rune('a' + i)), Face: f})
	}
	return out
}

func TestColumnScore(t *testing.T) {
	cases := []struct {
		name  string
		faces []int
		want  int
	}{
		{"empty", nil, 0},
		{"single", []int{5}, 5},
		{"pair and single", []int{4, 4, 2}, 18},
		{"triple", []int{6, 6, 6}, 54},
		{"all different", []int{1, 2, 3}, 6},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := ColumnScore(dice(tc.faces...))
			if got != tc.want {
				t.Errorf("ColumnScore(%v) = %d, want %d", tc.faces, got, tc.want)
			}
		})
	}
}

func TestPlace_KnockoutRemovesEveryMatch(t *testing.T) {
	var grid, opp Grid
	opp[1] = dice(4, 4, 2)

	res, err := Place(grid, opp, 1, 4)
	if err != nil {
		t.Fatalf("Place returned error: %v", err)
	}

	if len(res.OpponentGrid[1]) != 1 {
		t.Fatalf("Expected 1 surviving die, got %d", len(res.OpponentGrid[1]))
	}
	if res.OpponentGrid[1][0].Face != 2 {
		t.Errorf("Expected the 2 to survive, got face %d", res.OpponentGrid[1][0].Face)
	}
	if res.ScoreOpponent != 2 {
		t.Errorf("Expected opponent score 2, got %d", res.ScoreOpponent)
	}
}

func TestPlace_DoesNotMutateInputs(t *testing.T) {
	var grid, opp Grid
	opp[0] = dice(3, 3)

	if _, err := Place(grid, opp, 0, 3); err != nil {
		t.Fatalf("Place returned error: %v", err)
	}

	if len(grid[0]) != 0 {
		t.Error("Place mutated the mover's grid")
	}
	if len(opp[0]) != 2 {
		t.Error("Place mutated the opponent's grid")
	}
}

func TestPlace_RejectsFullColumn(t *testing.T) {
	var grid, opp Grid
	grid[2] = dice(1, 2, 3)

	if _, err := Place(grid, opp, 2, 5); err != ErrColumnFull {
		t.Errorf("Expected ErrColumnFull, got %v", err)
	}
}

func TestPlace_RejectsBadInput(t *testing.T) {
	var grid, opp Grid

	if _, err := Place(grid, opp, 3, 5); err != ErrBadColumn {
		t.Errorf("Expected ErrBadColumn, got %v", err)
	}
	if _, err := Place(grid, opp, 0, 7); err != ErrBadFace {
		t.Errorf("Expected ErrBadFace, got %v", err)
	}
	if _, err := Place(grid, opp, 0, 0); err != ErrBadFace {
		t.Errorf("Expected ErrBadFace for face 0, got %v", err)
	}
}

func TestGrid_FullOnlyAtCapacity(t *testing.T) {
	var grid Grid
	grid[0] = dice(1, 1, 1)
	grid[1] = dice(2, 2, 2)
	grid[2] = dice(3, 3)

	if grid.Full() {
		t.Fatal("Grid with 8 dice should not be full")
	}

	grid[2] = append(grid[2], Die{ID: "x", Face: 3})
	if !grid.Full() {
		t.Fatal("Grid with all columns at capacity should be full")
	}
}

func TestPlace_BoardFullFlag(t *testing.T) {
	var grid, opp Grid
	grid[0] = dice(1, 1, 1)
	grid[1] = dice(2, 2, 2)
	grid[2] = dice(3, 3)

	res, err := Place(grid, opp, 2, 6)
	if err != nil {
		t.Fatalf("Place returned error: %v", err)
	}
	if !res.BoardFull {
		t.Error("Expected BoardFull after ninth die")
	}
}

func TestCompare(t *testing.T) {
	if Compare(10, 5) != OutcomeMoverWins {
		t.Error("higher mover score should win")
	}
	if Compare(5, 10) != OutcomeOpponentWins {
		t.Error("higher opponent score should win")
	}
	if Compare(7, 7) != OutcomeDraw {
		t.Error("equal totals should draw")
	}
}
