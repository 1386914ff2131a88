package config

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/devicehub/devicehub/pkg/logger"
	"github.com/devicehub/devicehub/pkg/schema"
	"github.com/goccy/go-yaml"
	"github.com/spf13/afero"
)

// PackageJSONKey is the package.json property that may hold the configuration.
const PackageJSONKey = "devicehubConfig"

// SearchPlaces lists the file names looked up in each directory, in order.
var SearchPlaces = []string{
	"package.json",
	".devicehubrc",
	".devicehubrc.json",
	".devicehubrc.yaml",
	".devicehubrc.yml",
	"devicehub.config.json",
	"devicehub.config.yaml",
	"devicehub.config.yml",
}

// ReadOptions controls how a config file is located and reported.
type ReadOptions struct {
	// SearchFrom is the first directory searched when no path is given.
	// Defaults to the working directory.
	SearchFrom string
	// StopDir ends the upward search. Defaults to the user's home directory.
	StopDir string
	// Pretty colors the validation reason.
	Pretty bool
}

// FileResult is the outcome of reading a config file.
type FileResult struct {
	// Config is the normalized configuration. Nil when nothing was found or
	// the file was empty.
	Config   map[string]any
	Filepath string
	IsEmpty  bool
	// Errors lists schema violations; Reason renders them for humans.
	Errors []schema.ValidationError
	Reason string
}

// Found reports whether a config file was located.
func (r *FileResult) Found() bool {
	return r != nil && r.Filepath != ""
}

// rawTextCache keeps the source text of JSON files so validation errors can
// show the offending lines. Its lifetime is one ReadConfigFile call.
type rawTextCache map[string]string

// ReadConfigFile loads the config file at path, or searches for one when path
// is empty, then validates and normalizes it. Validation failures are
// returned in the result, not as an error.
func ReadConfigFile(
	ctx context.Context,
	fs afero.Fs,
	reg *schema.Registry,
	path string,
	opts ReadOptions,
) (*FileResult, error) {
	log := logger.FromContext(ctx)
	raw := make(rawTextCache)
	defer clear(raw)

	var (
		res *FileResult
		err error
	)
	if path != "" {
		res, err = loadConfigFile(fs, path, raw)
	} else {
		res, err = searchConfigFile(fs, opts, raw)
	}
	if err != nil {
		return nil, err
	}
	if res == nil {
		log.Debug("No config file found")
		return &FileResult{}, nil
	}
	if res.IsEmpty {
		log.Debug("Config file is empty", "path", res.Filepath)
		return res, nil
	}

	res.Errors = reg.Validate(res.Config)
	if len(res.Errors) > 0 {
		reason, err := schema.FormatErrors(res.Errors, res.Config, schema.FormatOptions{
			JSON:   raw[res.Filepath],
			Pretty: opts.Pretty,
		})
		if err != nil {
			return nil, err
		}
		res.Reason = reason
	}
	res.Config = Normalize(reg, res.Config)
	log.Debug("Loaded config file", "path", res.Filepath, "errors", len(res.Errors))
	return res, nil
}

func loadConfigFile(fs afero.Fs, path string, raw rawTextCache) (*FileResult, error) {
	path = filepath.Clean(path)
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, &FileNotFoundError{Path: path, Cause: err}
		}
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	res, err := parseConfig(path, data, raw)
	if err != nil {
		return nil, &FileSyntaxError{Path: path, Cause: err}
	}
	if res == nil {
		return &FileResult{Filepath: path, IsEmpty: true}, nil
	}
	return res, nil
}

func searchConfigFile(fs afero.Fs, opts ReadOptions, raw rawTextCache) (*FileResult, error) {
	dir := opts.SearchFrom
	if dir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to resolve working directory: %w", err)
		}
		dir = wd
	}
	stop := opts.StopDir
	if stop == "" {
		stop, _ = os.UserHomeDir()
	}
	dir, stop = filepath.Clean(dir), filepath.Clean(stop)
	for {
		for _, place := range SearchPlaces {
			candidate := filepath.Join(dir, place)
			info, err := fs.Stat(candidate)
			if err != nil || info.IsDir() {
				continue
			}
			data, err := afero.ReadFile(fs, candidate)
			if err != nil {
				return nil, fmt.Errorf("failed to read config file %s: %w", candidate, err)
			}
			res, err := parseConfig(candidate, data, raw)
			if err != nil {
				return nil, &FileSyntaxError{Path: candidate, Cause: err}
			}
			if res != nil {
				return res, nil
			}
		}
		if dir == stop {
			return nil, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return nil, nil
		}
		dir = parent
	}
}

// parseConfig decodes a candidate file. It returns nil for a package.json
// without a configuration property.
func parseConfig(path string, data []byte, raw rawTextCache) (*FileResult, error) {
	base := filepath.Base(path)
	if base == "package.json" {
		return parsePackageJSON(path, data, raw)
	}
	if strings.TrimSpace(string(data)) == "" {
		return &FileResult{Filepath: path, IsEmpty: true}, nil
	}

	// YAML is decoded through its JSON form so numbers match what the
	// schema validator expects. A dotfile without extension may hold either.
	ext := fileExt(base)
	if ext == ".yaml" || ext == ".yml" || (ext == "" && !json.Valid(data)) {
		converted, err := yaml.YAMLToJSON(data)
		if err != nil {
			return nil, err
		}
		data = converted
	} else {
		raw[path] = string(data)
	}
	var decoded any
	if err := json.Unmarshal(data, &decoded); err != nil {
		return nil, describeJSONError(data, err)
	}
	if decoded == nil {
		return &FileResult{Filepath: path, IsEmpty: true}, nil
	}
	config, ok := decoded.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("expected an object at the top level, got %T", decoded)
	}
	return &FileResult{Filepath: path, Config: config}, nil
}

func parsePackageJSON(path string, data []byte, raw rawTextCache) (*FileResult, error) {
	var pkg map[string]json.RawMessage
	if err := json.Unmarshal(data, &pkg); err != nil {
		return nil, describeJSONError(data, err)
	}
	section, ok := pkg[PackageJSONKey]
	if !ok {
		return nil, nil
	}
	var config map[string]any
	if err := json.Unmarshal(section, &config); err != nil {
		return nil, fmt.Errorf("%q must be an object: %w", PackageJSONKey, err)
	}
	if config == nil {
		return &FileResult{Filepath: path, IsEmpty: true}, nil
	}
	raw[path] = string(section)
	return &FileResult{Filepath: path, Config: config}, nil
}

// fileExt is filepath.Ext except that a dotfile such as ".devicehubrc" has
// no extension.
func fileExt(base string) string {
	ext := filepath.Ext(base)
	if ext == base {
		return ""
	}
	return ext
}

func describeJSONError(data []byte, err error) error {
	var syntaxErr *json.SyntaxError
	if !errors.As(err, &syntaxErr) {
		return err
	}
	offset := min(int(syntaxErr.Offset), len(data))
	line := strings.Count(string(data[:offset]), "\n") + 1
	return fmt.Errorf("%w (line %d)", err, line)
}
