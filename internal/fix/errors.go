package fix

import (
	"errors"
	"fmt"
)

var (
	ErrUnknownFixType = errors.New("fix: unknown fix type")
	ErrBadConfig      = errors.New("fix: invalid fix configuration")
	ErrNotPrepared    = errors.New("fix: fix has not been prepared for a run")
	ErrRecordMismatch = errors.New("fix: restart record belongs to another fix")
)

// ConfigError reports a configuration problem in a named fix.
type ConfigError struct {
	Type   string
	Handle string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("fix: %s %q: %s", e.Type, e.Handle, e.Reason)
}

func (e *ConfigError) Unwrap() error { return ErrBadConfig }
