package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/devicehub/devicehub/pkg/cliargs"
	"github.com/devicehub/devicehub/pkg/logger"
	"github.com/go-playground/validator/v10"
	"github.com/go-viper/mapstructure/v2"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// keyDelim separates koanf key segments. Free-form values such as
// capabilities or headers may use dots in their own keys, so the delimiter
// is a control character that never appears in configuration keys. Source
// metadata is still keyed by dotted paths.
const keyDelim = "\x1f"

// loader implements the Service interface for configuration management.
type loader struct {
	koanf      *koanf.Koanf
	validator  *validator.Validate
	envs       map[string]*cliargs.ArgDefinition
	envFile    map[string]string
	metadata   Metadata
	metadataMu sync.RWMutex
}

// ServiceOption customizes a configuration service.
type ServiceOption func(*loader)

// WithEnvFile adds variables read from a dotenv file. Variables set in the
// process environment take precedence over the file.
func WithEnvFile(vars map[string]string) ServiceOption {
	return func(l *loader) {
		l.envFile = vars
	}
}

// NewService creates a configuration service. defs are the derived CLI
// flags; each one can also be set through its DEVICEHUB_ variable.
func NewService(defs []cliargs.ArgDefinition, opts ...ServiceOption) Service {
	v := validator.New()
	if err := RegisterCustomValidators(v); err != nil {
		panic(fmt.Sprintf("config: failed to register validators: %v", err))
	}
	l := &loader{
		koanf:     koanf.New(keyDelim),
		validator: v,
		envs:      cliargs.EnvMappings(defs, EnvPrefix),
		metadata: Metadata{
			Sources: make(map[string]SourceType),
		},
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load loads configuration from the specified sources with precedence order.
// Later sources win; environment variables are applied after every source
// except CLI sources, which always come last.
func (l *loader) Load(ctx context.Context, sources ...Source) (*Config, error) {
	log := logger.FromContext(ctx)
	l.reset()

	if err := l.loadDefaults(); err != nil {
		return nil, err
	}

	var cli []Source
	for _, source := range sources {
		if source == nil {
			continue
		}
		if source.Type() == SourceCLI {
			cli = append(cli, source)
			continue
		}
		if err := l.loadSource(source); err != nil {
			return nil, err
		}
	}

	if err := l.loadEnvironment(); err != nil {
		return nil, err
	}

	for _, source := range cli {
		if err := l.loadSource(source); err != nil {
			return nil, err
		}
	}

	config, err := l.unmarshalAndValidate()
	if err != nil {
		return nil, err
	}
	log.Debug("Configuration loaded", "keys", len(l.koanf.Keys()))
	return config, nil
}

// reset clears the configuration and metadata.
func (l *loader) reset() {
	l.koanf = koanf.New(keyDelim)

	l.metadataMu.Lock()
	l.metadata.Sources = make(map[string]SourceType)
	l.metadata.LoadedAt = time.Now()
	l.metadataMu.Unlock()
}

// loadDefaults loads the built-in fallback configuration.
func (l *loader) loadDefaults() error {
	if err := l.koanf.Load(structs.Provider(Default(), "koanf"), nil); err != nil {
		return fmt.Errorf("failed to load defaults: %w", err)
	}
	for _, key := range l.koanf.Keys() {
		l.trackSource(key, SourceDefault)
	}
	return nil
}

// loadEnvironment applies DEVICEHUB_ variables. Values are coerced the same
// way as the matching CLI flag; every failure is reported at once.
func (l *loader) loadEnvironment() error {
	var errs []error
	transform := func(key, value string) (string, any) {
		def, ok := l.envs[key]
		if !ok {
			return "", nil
		}
		v, err := def.Coerce(value)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", key, err))
			return "", nil
		}
		return strings.ReplaceAll(def.Spec.Dest, ".", keyDelim), v
	}
	return l.track(SourceEnv, func() error {
		if err := l.koanf.Load(env.Provider(keyDelim, env.Opt{
			Prefix:        EnvPrefix + "_",
			TransformFunc: transform,
			EnvironFunc:   l.environ,
		}), nil); err != nil {
			return fmt.Errorf("failed to load environment variables: %w", err)
		}
		if len(errs) > 0 {
			return fmt.Errorf("invalid environment configuration: %w", errors.Join(errs...))
		}
		return nil
	})
}

// environ lists the env file variables followed by the process environment,
// so the process wins on duplicate names.
func (l *loader) environ() []string {
	vars := make([]string, 0, len(l.envFile))
	for k, v := range l.envFile {
		vars = append(vars, k+"="+v)
	}
	return append(vars, os.Environ()...)
}

// loadSource loads configuration from a single source.
func (l *loader) loadSource(source Source) error {
	data, err := source.Load()
	if err != nil {
		return fmt.Errorf("failed to load from source %s: %w", source.Type(), err)
	}
	if len(data) == 0 {
		return nil
	}
	return l.track(source.Type(), func() error {
		if err := l.koanf.Load(rawMap(data), nil); err != nil {
			return fmt.Errorf("failed to apply source %s: %w", source.Type(), err)
		}
		return nil
	})
}

// track runs load and attributes every added or changed key to source.
func (l *loader) track(source SourceType, load func() error) error {
	before := make(map[string]any)
	for _, key := range l.koanf.Keys() {
		before[key] = l.koanf.Get(key)
	}
	if err := load(); err != nil {
		return err
	}
	for _, key := range l.koanf.Keys() {
		prev, existed := before[key]
		if !existed || !reflect.DeepEqual(prev, l.koanf.Get(key)) {
			l.trackSource(key, source)
		}
	}
	return nil
}

// unmarshalAndValidate unmarshals the configuration and validates it.
func (l *loader) unmarshalAndValidate() (*Config, error) {
	var config Config
	if err := l.koanf.UnmarshalWithConf("", &config, koanf.UnmarshalConf{
		Tag: "koanf",
		DecoderConfig: &mapstructure.DecoderConfig{
			WeaklyTypedInput: true,
			Result:           &config,
			TagName:          "koanf",
			DecodeHook: mapstructure.ComposeDecodeHookFunc(
				mapstructure.StringToSliceHookFunc(","),
			),
		},
	}); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}
	if err := l.Validate(&config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &config, nil
}

// Validate checks if the configuration meets all validation requirements.
func (l *loader) Validate(config *Config) error {
	if config == nil {
		return fmt.Errorf("configuration cannot be nil")
	}
	if err := l.validator.Struct(config); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	return nil
}

// GetSource returns the source type for a specific configuration key.
func (l *loader) GetSource(key string) SourceType {
	l.metadataMu.RLock()
	defer l.metadataMu.RUnlock()

	if source, ok := l.metadata.Sources[key]; ok {
		return source
	}
	return SourceDefault
}

// Raw returns the merged configuration as a nested map.
func (l *loader) Raw() map[string]any {
	return l.koanf.Raw()
}

// trackSource records which source provided a specific configuration key.
func (l *loader) trackSource(key string, source SourceType) {
	l.metadataMu.Lock()
	defer l.metadataMu.Unlock()
	l.metadata.Sources[strings.ReplaceAll(key, keyDelim, ".")] = source
}

// rawMap is a koanf.Provider adapter for map[string]any data.
type rawMap map[string]any

func (r rawMap) Read() (map[string]any, error) {
	return r, nil
}

func (r rawMap) ReadBytes() ([]byte, error) {
	return nil, fmt.Errorf("ReadBytes not implemented")
}
