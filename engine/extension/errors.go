package extension

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNotInstalled     = errors.New("extension not installed")
	ErrAlreadyInstalled = errors.New("extension already installed")
	ErrMissingFields    = errors.New("extension metadata incomplete")
	ErrNoUpdate         = errors.New("no update available")
	ErrUnknownScript    = errors.New("unknown extension script")
)

// NotInstalledError reports an operation on an extension missing from the manifest.
type NotInstalledError struct {
	Type Type
	Name string
}

func (e *NotInstalledError) Error() string {
	return fmt.Sprintf("%s %q is not installed", e.Type.Title(), e.Name)
}

func (e *NotInstalledError) Is(target error) bool {
	return target == ErrNotInstalled
}

// AlreadyInstalledError is returned when an install would shadow an existing entry.
type AlreadyInstalledError struct {
	Type Type
	Name string
}

func (e *AlreadyInstalledError) Error() string {
	return fmt.Sprintf(
		"a %s named %q is already installed. Did you mean to update? Run `devicehub %s update`",
		e.Type, e.Name, e.Type,
	)
}

func (e *AlreadyInstalledError) Is(target error) bool {
	return target == ErrAlreadyInstalled
}

// MissingFieldsError lists the package metadata fields an extension failed to declare.
type MissingFieldsError struct {
	Type        Type
	InstallSpec string
	Fields      []string
}

func (e *MissingFieldsError) Error() string {
	return fmt.Sprintf(
		"%s %q did not expose correct fields for compatibility with devicehub. Missing fields: [%s]",
		e.Type.Title(), e.InstallSpec, strings.Join(e.Fields, ", "),
	)
}

func (e *MissingFieldsError) Is(target error) bool {
	return target == ErrMissingFields
}

// UpdateError describes why one extension could not be updated.
type UpdateError struct {
	Name   string
	Reason string
	Cause  error
}

func (e *UpdateError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("could not update %q: %s: %v", e.Name, e.Reason, e.Cause)
	}
	return fmt.Sprintf("could not update %q: %s", e.Name, e.Reason)
}

func (e *UpdateError) Is(target error) bool {
	return target == ErrNoUpdate && e.Cause == nil
}

func (e *UpdateError) Unwrap() error {
	return e.Cause
}
