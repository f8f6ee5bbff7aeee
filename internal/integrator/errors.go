package integrator

import (
	"errors"
	"fmt"
)

var (
	ErrNoAtoms       = errors.New("integrator: state has no atoms")
	ErrInvalidBounds = errors.New("integrator: state bounds are not valid")
	ErrBadTimestep   = errors.New("integrator: timestep must be positive")
	ErrUnstable      = errors.New("integrator: non-finite position (simulation diverged)")
	ErrRunning       = errors.New("integrator: a run is already in progress")
)

// TurnError records the turn and fix at which a run aborted.
type TurnError struct {
	Turn int64
	Fix  string
	Err  error
}

func (e *TurnError) Error() string {
	if e.Fix == "" {
		return fmt.Sprintf("integrator: turn %d: %v", e.Turn, e.Err)
	}
	return fmt.Sprintf("integrator: turn %d: fix %s: %v", e.Turn, e.Fix, e.Err)
}

func (e *TurnError) Unwrap() error { return e.Err }
