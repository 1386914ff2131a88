package cliargs

import (
	"errors"
	"fmt"
)

// ErrCliArgumentType is matched by *CliArgumentTypeError.
var ErrCliArgumentType = errors.New("invalid argument type")

// CliArgumentTypeError reports a CLI value that failed coercion or validation.
type CliArgumentTypeError struct {
	Flag        string
	Value       string
	Explanation string
}

func (e *CliArgumentTypeError) Error() string {
	if e.Flag == "" {
		return fmt.Sprintf("invalid value %q: %s", e.Value, e.Explanation)
	}
	return fmt.Sprintf("invalid value %q for %s: %s", e.Value, e.Flag, e.Explanation)
}

func (e *CliArgumentTypeError) Is(target error) bool {
	return target == ErrCliArgumentType
}
