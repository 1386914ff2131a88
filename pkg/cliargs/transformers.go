package cliargs

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/afero"
)

// Transformer post-processes a coerced CLI value.
type Transformer func(value any) (any, error)

const maxEchoLength = 100

// DefaultTransformers returns the named transformers schemas may reference
// through their CLI transformer annotation. Both accept either inline text
// or a path to a file holding it.
func DefaultTransformers(fs afero.Fs) map[string]Transformer {
	return map[string]Transformer{
		"csv":  csvTransformer(fs),
		"json": jsonTransformer(fs),
	}
}

func csvTransformer(fs afero.Fs) Transformer {
	return func(value any) (any, error) {
		text := fmt.Sprint(value)
		content, fromFile, err := readIfFile(fs, text)
		if err != nil {
			return nil, err
		}
		if fromFile {
			return parseCSVFile(content), nil
		}
		return parseCSVLine(content), nil
	}
}

func jsonTransformer(fs afero.Fs) Transformer {
	return func(value any) (any, error) {
		text := fmt.Sprint(value)
		content, _, err := readIfFile(fs, text)
		if err != nil {
			return nil, err
		}
		var out any
		if err := json.Unmarshal([]byte(content), &out); err != nil {
			return nil, &CliArgumentTypeError{
				Value:       truncate(text, maxEchoLength),
				Explanation: "not a valid JSON string",
			}
		}
		return out, nil
	}
}

func readIfFile(fs afero.Fs, pathOrText string) (string, bool, error) {
	if fs == nil || strings.TrimSpace(pathOrText) == "" {
		return pathOrText, false, nil
	}
	info, err := fs.Stat(pathOrText)
	if err != nil || info.IsDir() {
		return pathOrText, false, nil
	}
	data, err := afero.ReadFile(fs, pathOrText)
	if err != nil {
		return "", false, &CliArgumentTypeError{
			Value:       pathOrText,
			Explanation: fmt.Sprintf("is a file, but could not read it: %v", err),
		}
	}
	return string(data), true, nil
}

func parseCSVLine(line string) []string {
	out := []string{}
	for _, part := range strings.Split(line, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// parseCSVFile reads one or more comma-separated values per line, skipping
// blank lines and "#" comments.
func parseCSVFile(content string) []string {
	out := []string{}
	for _, line := range strings.Split(strings.ReplaceAll(content, "\r\n", "\n"), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		out = append(out, parseCSVLine(line)...)
	}
	return out
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
