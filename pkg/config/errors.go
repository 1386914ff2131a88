package config

import (
	"errors"
	"fmt"
)

var (
	// ErrConfigFileNotFound is matched by *FileNotFoundError.
	ErrConfigFileNotFound = errors.New("config file not found")
	// ErrConfigFileSyntax is matched by *FileSyntaxError.
	ErrConfigFileSyntax = errors.New("config file is invalid")
)

// FileNotFoundError is returned when an explicitly given config file is missing.
type FileNotFoundError struct {
	Path  string
	Cause error
}

func (e *FileNotFoundError) Error() string {
	return fmt.Sprintf("Config file not found at user-provided path: %s", e.Path)
}

func (e *FileNotFoundError) Is(target error) bool {
	return target == ErrConfigFileNotFound
}

func (e *FileNotFoundError) Unwrap() error {
	return e.Cause
}

// FileSyntaxError is returned when a config file cannot be parsed.
type FileSyntaxError struct {
	Path  string
	Cause error
}

func (e *FileSyntaxError) Error() string {
	return fmt.Sprintf("Config file at user-provided path %s is invalid:\n%v", e.Path, e.Cause)
}

func (e *FileSyntaxError) Is(target error) bool {
	return target == ErrConfigFileSyntax
}

func (e *FileSyntaxError) Unwrap() error {
	return e.Cause
}
