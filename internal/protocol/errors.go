package protocol

import (
	"fmt"

	"github.com/rocketscienceinc/tictactoe-session/internal/entity"
)

// ErrorCode names a failed request on the wire.
type ErrorCode string

const (
	CodeWaitingForHost  ErrorCode = "waiting_for_host"
	CodeInvalidTile     ErrorCode = "invalid_tile"
	CodeNotYourTurn     ErrorCode = "not_your_turn"
	CodeNotAllowed      ErrorCode = "not_allowed"
	CodeMatchInProgress ErrorCode = "match_in_progress"
	CodeGameConcluded   ErrorCode = "game_concluded"
	CodeInvalidParam    ErrorCode = "invalid_param"
	CodeInvalidMessage  ErrorCode = "invalid_message"
	CodeServerError     ErrorCode = "server_error"
)

var knownCodes = map[ErrorCode]bool{
	CodeWaitingForHost:  true,
	CodeInvalidTile:     true,
	CodeNotYourTurn:     true,
	CodeNotAllowed:      true,
	CodeMatchInProgress: true,
	CodeGameConcluded:   true,
	CodeInvalidParam:    true,
	CodeInvalidMessage:  true,
	CodeServerError:     true,
}

// Error is the failed outcome of a request. It is both a wire message and a Go error.
type Error struct {
	Code       ErrorCode          `json:"-"`
	Conclusion *entity.Conclusion `json:"conclusion,omitempty"`
	Text       string             `json:"text,omitempty"`
}

var (
	ErrWaitingForHost  = &Error{Code: CodeWaitingForHost}
	ErrInvalidTile     = &Error{Code: CodeInvalidTile}
	ErrNotYourTurn     = &Error{Code: CodeNotYourTurn}
	ErrNotAllowed      = &Error{Code: CodeNotAllowed}
	ErrMatchInProgress = &Error{Code: CodeMatchInProgress}
)

func GameConcludedError(conclusion entity.Conclusion) *Error {
	return &Error{Code: CodeGameConcluded, Conclusion: &conclusion}
}

func InvalidParam(text string) *Error {
	return &Error{Code: CodeInvalidParam, Text: text}
}

func InvalidMessage(text string) *Error {
	return &Error{Code: CodeInvalidMessage, Text: text}
}

func ServerError(text string) *Error {
	return &Error{Code: CodeServerError, Text: text}
}

func (that *Error) Type() Type {
	return TypeError
}

func (that *Error) Action() string {
	return string(that.Code)
}

func (that *Error) Error() string {
	switch {
	case that.Conclusion != nil:
		return fmt.Sprintf("%s: %s", that.Code, that.Conclusion)
	case that.Text != "":
		return fmt.Sprintf("%s: %s", that.Code, that.Text)
	default:
		return string(that.Code)
	}
}

// Is matches on the code only, so errors.Is(err, ErrNotAllowed) works for any NotAllowed error.
func (that *Error) Is(target error) bool {
	other, ok := target.(*Error)
	return ok && other.Code == that.Code
}
