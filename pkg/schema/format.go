package schema

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/tidwall/gjson"
	"github.com/tidwall/pretty"
)

// ErrNoValidationErrors is returned by FormatErrors for an empty list.
var ErrNoValidationErrors = errors.New("array of errors must be non-empty")

// FormatOptions controls FormatErrors output.
type FormatOptions struct {
	// SchemaID names the property when validating a single value.
	SchemaID string
	// JSON is the original text of the validated document. When set, each
	// error is followed by the lines of the document around the offending value.
	JSON string
	// Pretty enables colors.
	Pretty bool
}

type formatStyles struct {
	header lipgloss.Style
	path   lipgloss.Style
	dim    lipgloss.Style
	marker lipgloss.Style
}

func newFormatStyles(colors bool) formatStyles {
	if !colors {
		plain := lipgloss.NewStyle()
		return formatStyles{header: plain, path: plain, dim: plain, marker: plain}
	}
	return formatStyles{
		header: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("9")),
		path:   lipgloss.NewStyle().Foreground(lipgloss.Color("11")),
		dim:    lipgloss.NewStyle().Foreground(lipgloss.Color("8")),
		marker: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("9")),
	}
}

// FormatErrors renders validation errors as human-readable text.
func FormatErrors(errs []ValidationError, data any, opts FormatOptions) (string, error) {
	if len(errs) == 0 {
		return "", ErrNoValidationErrors
	}
	st := newFormatStyles(opts.Pretty)
	var b strings.Builder
	if opts.SchemaID != "" {
		b.WriteString(st.header.Render(fmt.Sprintf("Invalid value for %q:", opts.SchemaID)))
	} else {
		b.WriteString(st.header.Render("Configuration is invalid:"))
	}
	b.WriteString("\n")
	for i, e := range errs {
		location := e.InstancePath
		if location == "" {
			location = "(root)"
		}
		fmt.Fprintf(&b, "  %d. %s %s\n", i+1, st.path.Render(location), e.Message)
		value := e.Data
		if value == nil && e.InstancePath == "" {
			value = data
		}
		if value != nil {
			fmt.Fprintf(&b, "     %s %s\n", st.dim.Render("value:"), renderValue(value, opts.Pretty))
		}
		fmt.Fprintf(&b, "     %s %s\n", st.dim.Render("schema:"), e.SchemaPath)
		if opts.JSON != "" {
			if frame := codeFrame(opts.JSON, e.InstancePath, st); frame != "" {
				b.WriteString(frame)
			}
		}
	}
	return strings.TrimRight(b.String(), "\n"), nil
}

func renderValue(value any, colors bool) string {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Sprintf("%v", value)
	}
	if colors {
		return strings.TrimSpace(string(pretty.Color(raw, nil)))
	}
	return string(raw)
}

// codeFrame shows the document lines surrounding the value at pointer.
func codeFrame(doc, pointer string, st formatStyles) string {
	path := pointerToGJSON(pointer)
	if path == "" {
		return ""
	}
	res := gjson.Get(doc, path)
	if !res.Exists() || res.Index <= 0 {
		return ""
	}
	line := strings.Count(doc[:res.Index], "\n")
	lines := strings.Split(doc, "\n")
	first := max(line-1, 0)
	last := min(line+1, len(lines)-1)
	width := len(fmt.Sprint(last + 1))
	var b strings.Builder
	for i := first; i <= last; i++ {
		marker := " "
		if i == line {
			marker = st.marker.Render(">")
		}
		fmt.Fprintf(&b, "     %s %*d | %s\n", marker, width, i+1, lines[i])
	}
	return b.String()
}

// pointerToGJSON converts "/server/port" into the gjson path "server.port".
func pointerToGJSON(pointer string) string {
	trimmed := strings.TrimPrefix(pointer, "/")
	if trimmed == "" {
		return ""
	}
	segments := strings.Split(trimmed, "/")
	for i, seg := range segments {
		segments[i] = escapeGJSON(unescapePointer(seg))
	}
	return strings.Join(segments, ".")
}

func escapeGJSON(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '.', '*', '?', '|', '#', '@', '\\', '!', '=', '<', '>', '%':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
