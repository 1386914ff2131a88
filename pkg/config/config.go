package config

import (
	"context"
	"time"
)

// Config is the resolved configuration of a devicehub process.
type Config struct {
	Server ServerArgs                `koanf:"server" json:"server"           validate:"required"`
	Driver map[string]map[string]any `koanf:"driver" json:"driver,omitempty"`
	Plugin map[string]map[string]any `koanf:"plugin" json:"plugin,omitempty"`
}

// ServerArgs holds the server section. Keys are the normalized property names.
type ServerArgs struct {
	Address                string            `koanf:"address"                json:"address"                validate:"required"`
	Port                   int               `koanf:"port"                   json:"port"                   validate:"min=1,max=65535"`
	BasePath               string            `koanf:"basePath"               json:"basePath"               validate:"omitempty,startswith=/"`
	AllowCORS              bool              `koanf:"allowCors"              json:"allowCors"`
	AllowInsecure          []string          `koanf:"allowInsecure"          json:"allowInsecure"`
	DenyInsecure           []string          `koanf:"denyInsecure"           json:"denyInsecure"`
	CallbackAddress        string            `koanf:"callbackAddress"        json:"callbackAddress,omitempty"`
	CallbackPort           int               `koanf:"callbackPort"           json:"callbackPort,omitempty" validate:"omitempty,min=1,max=65535"`
	DefaultCapabilities    map[string]any    `koanf:"defaultCapabilities"    json:"defaultCapabilities,omitempty"`
	KeepAliveTimeout       int               `koanf:"keepAliveTimeout"       json:"keepAliveTimeout"       validate:"min=0"`
	LocalTimezone          bool              `koanf:"localTimezone"          json:"localTimezone"`
	LogFile                string            `koanf:"logFile"                json:"logFile,omitempty"`
	LogLevel               string            `koanf:"logLevel"               json:"logLevel"               validate:"loglevel"`
	LogNoColors            bool              `koanf:"logNoColors"            json:"logNoColors"`
	LogTimestamp           bool              `koanf:"logTimestamp"           json:"logTimestamp"`
	LongStacktrace         bool              `koanf:"longStacktrace"         json:"longStacktrace"`
	RelaxedSecurityEnabled bool              `koanf:"relaxedSecurityEnabled" json:"relaxedSecurityEnabled"`
	SessionOverride        bool              `koanf:"sessionOverride"        json:"sessionOverride"`
	StrictCaps             bool              `koanf:"strictCaps"             json:"strictCaps"`
	TmpDir                 string            `koanf:"tmpDir"                 json:"tmpDir,omitempty"`
	UseDrivers             []string          `koanf:"useDrivers"             json:"useDrivers"`
	UsePlugins             []string          `koanf:"usePlugins"             json:"usePlugins"`
	Webhook                string            `koanf:"webhook"                json:"webhook,omitempty"      validate:"omitempty,webhook"`
	ExtraHeaders           map[string]string `koanf:"extraHeaders"           json:"extraHeaders,omitempty"`
}

// Service loads and validates configuration.
type Service interface {
	// Load merges the sources over built-in defaults. Environment variables
	// override every source except the CLI.
	Load(ctx context.Context, sources ...Source) (*Config, error)
	// Validate checks a configuration against its struct constraints.
	Validate(config *Config) error
	// GetSource reports which source provided a dotted key.
	GetSource(key string) SourceType
	// Raw returns the merged configuration as a nested map.
	Raw() map[string]any
}

// Source provides one layer of configuration data.
type Source interface {
	// Load reads configuration from the source.
	Load() (map[string]any, error)
	// Type returns the source type identifier.
	Type() SourceType
	// Close releases any resources held by the source.
	Close() error
}

// SourceType identifies the type of configuration source.
type SourceType string

const (
	SourceCLI     SourceType = "cli"
	SourceFile    SourceType = "file"
	SourceEnv     SourceType = "env"
	SourceSchema  SourceType = "schema"
	SourceDefault SourceType = "default"
)

// Metadata records where each configuration key came from.
type Metadata struct {
	Sources  map[string]SourceType `json:"sources"`
	LoadedAt time.Time             `json:"loaded_at"`
}

// Default returns the built-in configuration used when neither the schema
// nor any source provides a value.
func Default() *Config {
	return &Config{
		Server: ServerArgs{
			Address:          "0.0.0.0",
			Port:             4723,
			KeepAliveTimeout: 600,
			LogLevel:         "debug",
			AllowInsecure:    []string{},
			DenyInsecure:     []string{},
			UseDrivers:       []string{},
			UsePlugins:       []string{},
		},
	}
}
