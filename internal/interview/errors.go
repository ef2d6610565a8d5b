package interview

import "errors"

var (
	// ErrAlreadyStarted is returned by Start when the opening turn was
	// already requested.
	ErrAlreadyStarted = errors.New("interview already started")
	// ErrNotAcceptingTurns is returned for candidate input outside of
	// awaiting-user-turn.
	ErrNotAcceptingTurns = errors.New("interview is not waiting for the candidate")
	ErrEmptyTurn         = errors.New("candidate turn is empty")
)
