package nimmt

import "errors"

// Validation errors: the action is rejected and the state is left untouched.
var (
	ErrWrongPhase       = errors.New("action not allowed in the current phase")
	ErrGameInProgress   = errors.New("game already started")
	ErrNotJoined        = errors.New("player not in room")
	ErrRoomFull         = errors.New("room is full")
	ErrNotHost          = errors.New("only the host can do that")
	ErrNotEnoughPlayers = errors.New("not enough players")
	ErrPlayersNotReady  = errors.New("not every player is ready")
	ErrCardNotInHand    = errors.New("card not in hand")
	ErrNotRowChooser    = errors.New("not your row choice")
	ErrInvalidRowIndex  = errors.New("row index must be between 0 and 3")
	ErrEmptySessionID   = errors.New("session id required")
)

// Invariant violations: unreachable when the state machine enforces its
// preconditions. Reported to the sender like validation errors.
var (
	ErrMissingRowChoice = errors.New("lowest card needs a row choice")
	ErrInvalidRowChoice = errors.New("invalid row choice")
)

// ErrStaleTask marks a scheduled bot action whose preconditions no longer hold.
var ErrStaleTask = errors.New("stale bot task")

func IsInvariantViolation(err error) bool {
	return errors.Is(err, ErrMissingRowChoice) || errors.Is(err, ErrInvalidRowChoice)
}

type InvalidStateError string

func (e InvalidStateError) Error() string { return "invalid state: " + string(e) }

func ErrInvalidState(msg string) error { return InvalidStateError(msg) }
