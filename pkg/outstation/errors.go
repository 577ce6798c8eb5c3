package outstation

import (
	"errors"
	"fmt"
)

var (
	ErrIndexOutOfRange   = errors.New("point index out of range")
	ErrInvalidPointClass = errors.New("invalid point class")
	ErrInvalidValue      = errors.New("invalid point value")
	ErrNotRunning        = errors.New("outstation is not running")
	ErrAlreadyStarted    = errors.New("outstation already started")
)

// ConfigError reports one invalid configuration field
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config %s: %s", e.Field, e.Reason)
}

// BindError reports that the listening resource could not be acquired
type BindError struct {
	Addr string
	Err  error
}

func (e *BindError) Error() string {
	return fmt.Sprintf("bind %s: %v", e.Addr, e.Err)
}

func (e *BindError) Unwrap() error {
	return e.Err
}
