package helpers

import (
	"encoding/json"
	"fmt"
	"io"
)

// OutputWriter prints command results as JSON or text.
type OutputWriter struct {
	writer io.Writer
	mode   Mode
}

// NewOutputWriter creates a new output writer
func NewOutputWriter(writer io.Writer, mode Mode) *OutputWriter {
	return &OutputWriter{writer: writer, mode: mode}
}

// Mode returns the output mode.
func (ow *OutputWriter) Mode() Mode {
	return ow.mode
}

// Color reports whether text output may be styled.
func (ow *OutputWriter) Color() bool {
	return ow.mode == ModeText && ShouldUseColor(ow.writer)
}

// Write prints data as indented JSON in JSON mode, else the text produced
// by render. A nil render prints nothing in text mode.
func (ow *OutputWriter) Write(data any, render func() string) error {
	if ow.mode == ModeJSON {
		encoder := json.NewEncoder(ow.writer)
		encoder.SetIndent("", "  ")
		return encoder.Encode(data)
	}
	if render == nil {
		return nil
	}
	_, err := fmt.Fprintln(ow.writer, render())
	return err
}
