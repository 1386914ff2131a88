package config

import (
	"github.com/devicehub/devicehub/pkg/cliargs"
	"github.com/devicehub/devicehub/pkg/schema"
)

// schemaProvider supplies the defaults declared by the schema.
type schemaProvider struct {
	reg *schema.Registry
}

// NewSchemaProvider creates a source holding the schema's default values.
func NewSchemaProvider(reg *schema.Registry) Source {
	return &schemaProvider{reg: reg}
}

// Load returns the schema defaults keyed by canonical names.
func (s *schemaProvider) Load() (map[string]any, error) {
	if s.reg == nil {
		return make(map[string]any), nil
	}
	return s.reg.Defaults(), nil
}

// Type returns the source type identifier.
func (s *schemaProvider) Type() SourceType {
	return SourceSchema
}

// Close releases any resources held by the source.
func (s *schemaProvider) Close() error {
	return nil
}

// fileProvider adapts a config file that was already read and normalized.
type fileProvider struct {
	result *FileResult
}

// NewFileProvider creates a source from the result of ReadConfigFile.
func NewFileProvider(result *FileResult) Source {
	return &fileProvider{result: result}
}

// Load returns the normalized file configuration.
func (f *fileProvider) Load() (map[string]any, error) {
	if f.result == nil || f.result.Config == nil {
		return make(map[string]any), nil
	}
	return f.result.Config, nil
}

// Type returns the source type identifier.
func (f *fileProvider) Type() SourceType {
	return SourceFile
}

// Close releases any resources held by the source.
func (f *fileProvider) Close() error {
	return nil
}

// cliProvider implements Source interface for CLI flags.
type cliProvider struct {
	flags map[string]any
}

// NewCLIProvider creates a source from collected CLI flags keyed by their
// dotted destination path.
func NewCLIProvider(flags map[string]any) Source {
	return &cliProvider{
		flags: flags,
	}
}

// Load returns the CLI flags as nested configuration data.
func (c *cliProvider) Load() (map[string]any, error) {
	if c.flags == nil {
		return make(map[string]any), nil
	}
	return cliargs.Nest(c.flags), nil
}

// Type returns the source type identifier.
func (c *cliProvider) Type() SourceType {
	return SourceCLI
}

// Close releases any resources held by the source.
func (c *cliProvider) Close() error {
	return nil
}
