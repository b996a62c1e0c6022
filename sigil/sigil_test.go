package sigil

import (
	"testing"

	"github.com/tavern-games/gamesync/protocol"
)

func boardOf(cells map[int]Symbol) Board {
	var b Board
	for i, s := range cells {
		b[i] = s
	}
	return b
}

func TestPlace_AllWinningLines(t *testing.T) {
	lines := [][3]int{
		{0, 1, 2}, {3, 4, 5}, {6, 7, 8},
		{0, 3, 6}, {1, 4, 7}, {2, 5, 8},
		{0, 4, 8}, {2, 4, 6},
	}

	for _, line := range lines {
		b := boardOf(map[int]Symbol{line[0]: SymbolX, line[1]: SymbolX})
		res, err := Place(b, line[2], SymbolX)
		if err != nil {
			t.Fatalf("line %v: Place returned error: %v", line, err)
		}
		if !res.Won {
			t.Errorf("line %v: expected a win", line)
		}
		if res.Winner != protocol.SeatHost {
			t.Errorf("line %v: expected host to win with X, got %s", line, res.Winner)
		}
	}
}

func TestPlace_GuestWinsWithO(t *testing.T) {
	b := boardOf(map[int]Symbol{0: SymbolO, 4: SymbolO})
	res, err := Place(b, 8, SymbolO)
	if err != nil {
		t.Fatalf("Place returned error: %v", err)
	}
	if !res.Won || res.Winner != protocol.SeatGuest {
		t.Errorf("Expected guest win, got won=%v winner=%s", res.Won, res.Winner)
	}
}

func TestPlace_Draw(t *testing.T) {
	// X O X
	// X O O
	// O X _  <- X plays 8, no line owned
	b := Board{
		SymbolX, SymbolO, SymbolX,
		SymbolX, SymbolO, SymbolO,
		SymbolO, SymbolX, SymbolNone,
	}
	res, err := Place(b, 8, SymbolX)
	if err != nil {
		t.Fatalf("Place returned error: %v", err)
	}
	if res.Won {
		t.Fatalf("Expected no winner, got %s", res.Winner)
	}
	if !res.Draw {
		t.Error("Full board with no winning line should be a draw")
	}
}

func TestPlace_NotDrawWhileCellsRemain(t *testing.T) {
	var b Board
	res, err := Place(b, 0, SymbolX)
	if err != nil {
		t.Fatalf("Place returned error: %v", err)
	}
	if res.Draw || res.Won {
		t.Error("Single move should neither win nor draw")
	}
}

func TestPlace_RejectsOccupiedCell(t *testing.T) {
	b := boardOf(map[int]Symbol{4: SymbolX})
	if _, err := Place(b, 4, SymbolO); err != ErrCellOccupied {
		t.Errorf("Expected ErrCellOccupied, got %v", err)
	}
}

func TestPlace_RejectsBadInput(t *testing.T) {
	var b Board
	if _, err := Place(b, 9, SymbolX); err != ErrBadCell {
		t.Errorf("Expected ErrBadCell, got %v", err)
	}
	if _, err := Place(b, -1, SymbolX); err != ErrBadCell {
		t.Errorf("Expected ErrBadCell, got %v", err)
	}
	if _, err := Place(b, 0, Symbol("Z")); err != ErrBadSymbol {
		t.Errorf("Expected ErrBadSymbol, got %v", err)
	}
}

func TestSymbolSeatMapping(t *testing.T) {
	if SymbolFor(protocol.SeatHost) != SymbolX {
		t.Error("host should play X")
	}
	if SymbolFor(protocol.SeatGuest) != SymbolO {
		t.Error("guest should play O")
	}
	if seat, ok := SeatFor(SymbolX); !ok || seat != protocol.SeatHost {
		t.Error("X should map back to host")
	}
	if _, ok := SeatFor(SymbolNone); ok {
		t.Error("empty symbol should not map to a seat")
	}
}
