package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"

	"github.com/devicehub/devicehub/cli/helpers"
	"github.com/devicehub/devicehub/pkg/cliargs"
	"github.com/devicehub/devicehub/pkg/config"
	"github.com/devicehub/devicehub/pkg/logger"
)

const (
	// ConfigFlag names the flag that points at an explicit config file.
	ConfigFlag = "config"
	// EnvFileFlag names the flag that points at a dotenv file.
	EnvFileFlag = "env-file"
)

// ResolveOptions selects the config file and CLI flags merged by LoadFunc.
type ResolveOptions struct {
	// ConfigPath is an explicit config file; empty searches for one.
	ConfigPath string
	// Flags holds the bound server flags. Only changed flags are merged.
	Flags *pflag.FlagSet
	// SearchFrom overrides the directory where the config search starts.
	SearchFrom string
	// OnFile is called with the path of the config file each time one is read.
	OnFile func(path string)
	// EnvFile is a dotenv file whose DEVICEHUB_ variables apply beneath the
	// process environment.
	EnvFile string
}

// LoadFunc returns a config.LoadFunc that reads the config file on every
// call. A file with schema violations fails with an INVALID_CONFIG error
// carrying the formatted reason.
func (rt *Runtime) LoadFunc(opts ResolveOptions) config.LoadFunc {
	return func(ctx context.Context) ([]config.Source, error) {
		log := logger.FromContext(ctx)
		res, err := config.ReadConfigFile(ctx, rt.Fs, rt.Registry, opts.ConfigPath, config.ReadOptions{
			SearchFrom: opts.SearchFrom,
			Pretty:     helpers.ShouldUseColor(rt.Stderr),
		})
		if err != nil {
			return nil, err
		}
		if res.Found() && opts.OnFile != nil {
			opts.OnFile(res.Filepath)
		}
		if len(res.Errors) > 0 {
			return nil, helpers.NewCliError(
				"INVALID_CONFIG",
				"Config file at "+res.Filepath+" is invalid",
				res.Reason,
			).WithContext("path", res.Filepath)
		}
		sources := []config.Source{config.NewSchemaProvider(rt.Registry)}
		if res.Found() && !res.IsEmpty {
			log.Debug("Using config file", "path", res.Filepath)
			sources = append(sources, config.NewFileProvider(res))
		}
		if opts.Flags != nil {
			sources = append(sources, config.NewCLIProvider(cliargs.Collect(opts.Flags)))
		}
		return sources, nil
	}
}

// NewConfigManager returns a manager that resolves configuration with opts.
func (rt *Runtime) NewConfigManager(opts ResolveOptions) (*config.Manager, error) {
	var serviceOpts []config.ServiceOption
	if opts.EnvFile != "" {
		vars, err := rt.ReadEnvFile(opts.EnvFile)
		if err != nil {
			return nil, err
		}
		serviceOpts = append(serviceOpts, config.WithEnvFile(vars))
	}
	return config.NewManager(rt.NewConfigService(serviceOpts...), rt.LoadFunc(opts)), nil
}

// ReadEnvFile parses the dotenv file at path.
func (rt *Runtime) ReadEnvFile(path string) (map[string]string, error) {
	f, err := rt.Fs.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, helpers.NewCliError("ENV_FILE_NOT_FOUND", "Env file not found", path)
		}
		return nil, fmt.Errorf("failed to open env file %s: %w", path, err)
	}
	defer f.Close()
	vars, err := godotenv.Parse(f)
	if err != nil {
		return nil, helpers.WrapCliError("INVALID_ENV_FILE", "Env file at "+path+" is invalid", err)
	}
	return vars, nil
}
