package device

import (
	"errors"
	"fmt"
)

// ConfigError marks a configuration fault: the operation was asked to do
// something the device entry does not describe, such as targeting a
// secondary controller on a unit that has none. It is the only error
// public operations return; everything operational stays in the boolean.
type ConfigError struct {
	// Device is the unit the operation ran against.
	Device string

	// Op is the public operation that rejected the request.
	Op string

	// Detail describes what is missing or malformed.
	Detail string
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	return fmt.Sprintf("device %s: %s: %s", e.Device, e.Op, e.Detail)
}

// IsConfigError reports whether err is a configuration fault.
func IsConfigError(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}

func configErr(device, op, format string, args ...any) *ConfigError {
	return &ConfigError{Device: device, Op: op, Detail: fmt.Sprintf(format, args...)}
}
