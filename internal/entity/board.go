package entity

import (
	"fmt"
	"strings"

	"github.com/rocketscienceinc/tictactoe-session/internal/apperror"
)

// Player is the symbol a participant marks the board with.
type Player string

const (
	PlayerO Player = "O"
	PlayerX Player = "X"

	// EmptyCell is the zero Player, used for unoccupied board cells.
	EmptyCell Player = ""
)

// Opponent - returns the other symbol. EmptyCell has no opponent.
func (that Player) Opponent() Player {
	switch that {
	case PlayerO:
		return PlayerX
	case PlayerX:
		return PlayerO
	default:
		return EmptyCell
	}
}

func (that Player) Valid() bool {
	return that == PlayerO || that == PlayerX
}

func (that Player) String() string {
	if that == EmptyCell {
		return "-"
	}
	return string(that)
}

func (that Player) MarshalText() ([]byte, error) {
	return []byte(that), nil
}

// UnmarshalText accepts "O", "X" (any case) and "" for an empty cell.
func (that *Player) UnmarshalText(text []byte) error {
	switch p := Player(strings.ToUpper(string(text))); p {
	case PlayerO, PlayerX, EmptyCell:
		*that = p
		return nil
	default:
		return fmt.Errorf("%w: %q", apperror.ErrInvalidPlayer, text)
	}
}

// TileID is the linear index of a board cell: (rank-1)*3 + file.
//
//	3: 6 7 8
//	2: 3 4 5
//	1: 0 1 2
//	   A B C
type TileID uint8

const (
	A1 TileID = iota
	B1
	C1
	A2
	B2
	C2
	A3
	B3
	C3
)

const boardSize = 9

// ParseTile - parses a coordinate such as "b2" or "C3".
func ParseTile(text string) (TileID, error) {
	if len(text) != 2 {
		return 0, fmt.Errorf("%w: %q", apperror.ErrInvalidTile, text)
	}

	file := strings.ToUpper(text[:1])[0]
	rank := text[1]

	if file < 'A' || file > 'C' || rank < '1' || rank > '3' {
		return 0, fmt.Errorf("%w: %q", apperror.ErrInvalidTile, text)
	}

	return TileID(int(rank-'1')*3 + int(file-'A')), nil
}

func (that TileID) Valid() bool {
	return that < boardSize
}

func (that TileID) String() string {
	if !that.Valid() {
		return fmt.Sprintf("TileID(%d)", uint8(that))
	}
	return fmt.Sprintf("%c%c", 'A'+byte(that%3), '1'+byte(that/3))
}

var winLines = [8][3]TileID{
	{A1, B1, C1},
	{A2, B2, C2},
	{A3, B3, C3},
	{A1, A2, A3},
	{B1, B2, B3},
	{C1, C2, C3},
	{A1, B2, C3},
	{C1, B2, A3},
}

// Board is the 3x3 grid. Cells only ever go from EmptyCell to a Player.
type Board [boardSize]Player

// Mark - writes player into tile. It does not check whose turn it is, but it never overwrites an
// occupied cell.
func (that *Board) Mark(tile TileID, player Player) error {
	if !tile.Valid() {
		return fmt.Errorf("%w: %d", apperror.ErrInvalidTile, tile)
	}

	if !that.IsValidMark(tile) {
		return fmt.Errorf("%w: %s", apperror.ErrCellOccupied, tile)
	}

	that[tile] = player

	return nil
}

// IsValidMark - reports whether tile exists and is unoccupied.
func (that *Board) IsValidMark(tile TileID) bool {
	return tile.Valid() && that[tile] == EmptyCell
}

func (that *Board) MarkCount() int {
	count := 0
	for _, cell := range that {
		if cell != EmptyCell {
			count++
		}
	}
	return count
}

// HasConcluded - derives the conclusion from the board alone.
func (that *Board) HasConcluded() (Conclusion, bool) {
	marks := that.MarkCount()
	if marks < 3 {
		return Conclusion{}, false
	}

	for _, line := range winLines {
		a, b, c := that[line[0]], that[line[1]], that[line[2]]
		if a != EmptyCell && a == b && b == c {
			return Win(a), true
		}
	}

	if marks == boardSize {
		return Draw(), true
	}

	return Conclusion{}, false
}

// String renders rank 3 first, one rank per line, "-" for empty cells.
func (that *Board) String() string {
	var sb strings.Builder
	for rank := 2; rank >= 0; rank-- {
		for file := 0; file < 3; file++ {
			sb.WriteString(that[rank*3+file].String())
		}
		sb.WriteByte('\n')
	}
	return sb.String()
}
