// Package sigil implements the Sigil Duel rules engine, a tic-tac-toe variant
// played on a 3×3 board of arcane symbols. Pure functions only; both peers
// replay the same move and must reach the same board.
package sigil

import (
	"errors"

	"github.com/tavern-games/gamesync/protocol"
)

const Cells = 9

type Symbol string

const (
	SymbolNone Symbol = ""
	SymbolX    Symbol = "X" // host
	SymbolO    Symbol = "O" // guest
)

// SymbolFor maps a seat to its fixed symbol.
func SymbolFor(seat protocol.Seat) Symbol {
	if seat == protocol.SeatHost {
		return SymbolX
	}
	return SymbolO
}

// SeatFor maps a symbol back to the owning seat.
func SeatFor(s Symbol) (protocol.Seat, bool) {
	switch s {
	case SymbolX:
		return protocol.SeatHost, true
	case SymbolO:
		return protocol.SeatGuest, true
	}
	return "", false
}

type Board [Cells]Symbol

var (
	ErrCellOccupied = errors.New("sigil: cell already occupied")
	ErrBadCell      = errors.New("sigil: cell index out of range")
	ErrBadSymbol    = errors.New("sigil: unknown symbol")
)

// The 8 canonical lines: 3 rows, 3 columns, 2 diagonals.
var lines = [8][3]int{
	{0, 1, 2}, {3, 4, 5}, {6, 7, 8},
	{0, 3, 6}, {1, 4, 7}, {2, 5, 8},
	{0, 4, 8}, {2, 4, 6},
}

// Result of a single placement.
type Result struct {
	Board  Board
	Winner protocol.Seat // empty if no winner
	Won    bool
	Draw   bool
}

// Place writes a symbol into a free cell and resolves the board.
func Place(board Board, cell int, symbol Symbol) (*Result, error) {
	if cell < 0 || cell >= Cells {
		return nil, ErrBadCell
	}
	if symbol != SymbolX && symbol != SymbolO {
		return nil, ErrBadSymbol
	}
	if board[cell] != SymbolNone {
		return nil, ErrCellOccupied
	}

	board[cell] = symbol

	res := &Result{Board: board}
	if winner, ok := winningSeat(board); ok {
		res.Winner = winner
		res.Won = true
		return res, nil
	}
	res.Draw = full(board)
	return res, nil
}

func winningSeat(board Board) (protocol.Seat, bool) {
	for _, line := range lines {
		a, b, c := board[line[0]], board[line[1]], board[line[2]]
		if a != SymbolNone && a == b && b == c {
			return SeatFor(a)
		}
	}
	return "", false
}

func full(board Board) bool {
	for _, s := range board {
		if s == SymbolNone {
			return false
		}
	}
	return true
}
