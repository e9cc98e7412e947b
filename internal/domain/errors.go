package domain

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidInput    = errors.New("invalid input")
	ErrSessionNotFound = errors.New("session not found")
	ErrInvalidState    = errors.New("invalid session state")
	ErrConflict        = errors.New("concurrent session mutation")
	ErrEmptyRange      = errors.New("no completed sessions in range")
)

// TransitionError reports an operation refused by the session state machine.
type TransitionError struct {
	SessionID SessionID
	Op        string
	Status    Status
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("session %s: cannot %s in status %q", e.SessionID, e.Op, e.Status)
}

func (e *TransitionError) Unwrap() error {
	return ErrInvalidState
}
