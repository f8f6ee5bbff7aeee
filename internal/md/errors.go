package md

import (
	"errors"
	"fmt"
)

var (
	ErrUnknownType    = errors.New("md: unknown atom type")
	ErrDuplicateType  = errors.New("md: atom type already defined")
	ErrUnknownGroup   = errors.New("md: unknown group")
	ErrDuplicateGroup = errors.New("md: group already defined")
	ErrTooManyGroups  = errors.New("md: group tag space exhausted")
	ErrInvalidAtom    = errors.New("md: atom not present in state")
	ErrDuplicateID    = errors.New("md: duplicate atom id")
	ErrInvalidBounds  = errors.New("md: invalid bounds")
	ErrNoDeviceData   = errors.New("md: device data not prepared")
)

// UnknownTypeError reports a failed atom type lookup.
type UnknownTypeError struct {
	Handle string
}

func (e *UnknownTypeError) Error() string {
	return fmt.Sprintf("md: atom type %q is not defined", e.Handle)
}

func (e *UnknownTypeError) Unwrap() error { return ErrUnknownType }

// InvalidAtomError reports a reference to an atom id absent from the state.
type InvalidAtomError struct {
	Owner string
	ID    int
	Slot  int
}

func (e *InvalidAtomError) Error() string {
	return fmt.Sprintf("md: %s references atom id %d (slot %d) which is not in the state", e.Owner, e.ID, e.Slot)
}

func (e *InvalidAtomError) Unwrap() error { return ErrInvalidAtom }
