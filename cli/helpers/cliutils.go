package helpers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"
)

// CliError is a command failure with a stable code and optional details.
type CliError struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details string         `json:"details,omitempty"`
	Context map[string]any `json:"context,omitempty"`
	Cause   error          `json:"-"`
}

func (e *CliError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *CliError) Unwrap() error {
	return e.Cause
}

// NewCliError creates a new CLI error with context
func NewCliError(code, message string, details ...string) *CliError {
	err := &CliError{
		Code:    code,
		Message: message,
		Context: make(map[string]any),
	}
	if len(details) > 0 {
		err.Details = details[0]
	}
	return err
}

// WrapCliError attaches a code and message to an underlying error.
func WrapCliError(code, message string, cause error) *CliError {
	err := NewCliError(code, message)
	err.Cause = cause
	if cause != nil {
		err.Details = cause.Error()
	}
	return err
}

// WithContext adds context to the error
func (e *CliError) WithContext(key string, value any) *CliError {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}

// FormatError renders err for the given output mode.
func FormatError(err error, mode Mode, color bool) string {
	if err == nil {
		return ""
	}
	if mode == ModeJSON {
		return formatErrorJSON(err)
	}
	return formatErrorText(err, color)
}

func formatErrorJSON(err error) string {
	response := map[string]any{"error": err.Error(), "details": ""}
	var cliErr *CliError
	if errors.As(err, &cliErr) {
		response = map[string]any{"error": cliErr.Message, "code": cliErr.Code, "details": cliErr.Details}
	}
	out, mErr := json.MarshalIndent(response, "", "  ")
	if mErr != nil {
		return `{"error": "JSON marshaling failed", "details": ""}`
	}
	return string(out)
}

func formatErrorText(err error, color bool) string {
	message, details := err.Error(), ""
	var cliErr *CliError
	if errors.As(err, &cliErr) {
		message, details = cliErr.Message, cliErr.Details
	}
	if !color {
		if details != "" {
			return message + "\n" + details
		}
		return message
	}
	result := lipgloss.NewStyle().Foreground(lipgloss.Color("#FF6B6B")).Bold(true).Render(message)
	if details != "" {
		result += "\n" + lipgloss.NewStyle().Foreground(lipgloss.Color("#888888")).Render(details)
	}
	return result
}

// OutputError writes err to w in the appropriate format
func OutputError(w io.Writer, err error, mode Mode) {
	if err == nil {
		return
	}
	fmt.Fprintln(w, FormatError(err, mode, ShouldUseColor(w)))
}
