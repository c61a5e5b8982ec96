package apperror

import "errors"

var (
	ErrGameFinished  = errors.New("game is already finished")
	ErrNotYourTurn   = errors.New("it's not your turn")
	ErrCellOccupied  = errors.New("cell is already occupied")
	ErrInvalidTile   = errors.New("invalid tile")
	ErrInvalidPlayer = errors.New("invalid player")
	ErrAlreadyJoined = errors.New("connection already joined the match")
	ErrNotFound      = errors.New("not found")
	ErrInvalidRecord = errors.New("invalid match record")
	ErrQueueFull     = errors.New("queue is full")
)
