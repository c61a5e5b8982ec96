package entity

import (
	"fmt"

	"github.com/rocketscienceinc/tictactoe-session/internal/apperror"
)

const (
	OutcomeWin  = "win"
	OutcomeDraw = "draw"
)

const (
	StatusPlaying   = "playing"
	StatusConcluded = "concluded"
)

// Conclusion is either a win for Winner or a draw.
type Conclusion struct {
	Outcome string `json:"outcome"`
	Winner  Player `json:"winner,omitempty"`
}

func Win(player Player) Conclusion {
	return Conclusion{Outcome: OutcomeWin, Winner: player}
}

func Draw() Conclusion {
	return Conclusion{Outcome: OutcomeDraw}
}

func (that Conclusion) IsDraw() bool {
	return that.Outcome == OutcomeDraw
}

func (that Conclusion) String() string {
	if that.IsDraw() {
		return "draw"
	}
	return fmt.Sprintf("%s won", that.Winner)
}

// GameState is Playing(Turn) or Concluded(Conclusion).
type GameState struct {
	Status     string      `json:"status"`
	Turn       Player      `json:"turn,omitempty"`
	Conclusion *Conclusion `json:"conclusion,omitempty"`
}

type Game struct {
	Board Board     `json:"board"`
	State GameState `json:"state"`
}

func NewGame(firstTurn Player) *Game {
	return &Game{
		State: GameState{
			Status: StatusPlaying,
			Turn:   firstTurn,
		},
	}
}

func (that *Game) IsConcluded() bool {
	return that.State.Status == StatusConcluded
}

// Turn - returns whose turn it is while the game is being played.
func (that *Game) Turn() (Player, bool) {
	if that.IsConcluded() {
		return EmptyCell, false
	}
	return that.State.Turn, true
}

func (that *Game) Conclusion() (Conclusion, bool) {
	if !that.IsConcluded() || that.State.Conclusion == nil {
		return Conclusion{}, false
	}
	return *that.State.Conclusion, true
}

// TryMarkTile - marks tile for the player to move. Returns false when the tile is occupied or the
// game has concluded; the board is left untouched in that case.
func (that *Game) TryMarkTile(tile TileID) bool {
	turn, ok := that.Turn()
	if !ok {
		return false
	}

	return that.Board.Mark(tile, turn) == nil
}

// NextTurn - concludes the game if the board says so, otherwise hands the turn to the opponent.
func (that *Game) NextTurn() {
	turn, ok := that.Turn()
	if !ok {
		return
	}

	if conclusion, done := that.Board.HasConcluded(); done {
		that.conclude(conclusion)
		return
	}

	that.State.Turn = turn.Opponent()
}

// MakeTurn - validated move for player, followed by NextTurn.
func (that *Game) MakeTurn(player Player, tile TileID) error {
	if that.IsConcluded() {
		return apperror.ErrGameFinished
	}

	if !tile.Valid() {
		return fmt.Errorf("%w: %d", apperror.ErrInvalidTile, tile)
	}

	if that.State.Turn != player {
		return apperror.ErrNotYourTurn
	}

	if err := that.Board.Mark(tile, player); err != nil {
		return err
	}

	that.NextTurn()

	return nil
}

// Forfeit - ends a running game as a win for the opponent of loser.
func (that *Game) Forfeit(loser Player) {
	if that.IsConcluded() || !loser.Valid() {
		return
	}

	that.conclude(Win(loser.Opponent()))
}

func (that *Game) conclude(conclusion Conclusion) {
	that.State = GameState{
		Status:     StatusConcluded,
		Conclusion: &conclusion,
	}
}
