package thermostat

import (
	"errors"
	"fmt"
)

var (
	ErrUnknownDevice = errors.New("unknown thermostat")
	ErrNoState       = errors.New("no state received yet")
	ErrInvalidValue  = errors.New("invalid value")
)

// CommandError is returned when the API rejects a command.
type CommandError struct {
	DeviceID   string
	Command    string
	StatusCode int
	Status     string
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("%s %s: rejected: %s", e.Command, e.DeviceID, e.Status)
}
