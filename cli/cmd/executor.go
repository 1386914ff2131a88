package cmd

import (
	"context"
	"errors"
	"io"
	"os"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/devicehub/devicehub/cli/helpers"
	"github.com/devicehub/devicehub/engine/extension"
	"github.com/devicehub/devicehub/pkg/cliargs"
	"github.com/devicehub/devicehub/pkg/config"
	"github.com/devicehub/devicehub/pkg/logger"
	"github.com/devicehub/devicehub/pkg/schema"
)

// Runtime is the state every command shares: the extension manifest, the
// finalized schema registry and the CLI definitions derived from it.
type Runtime struct {
	Fs       afero.Fs
	Manifest *extension.Manifest
	Registry *schema.Registry
	Defs     []cliargs.ArgDefinition
	Stdout   io.Writer
	Stderr   io.Writer
	// Installer builds the package installer for extension commands.
	Installer func() extension.Installer
}

// RuntimeOptions customizes NewRuntime. Zero values use the real OS.
type RuntimeOptions struct {
	Fs     afero.Fs
	Home   string
	Getenv func(string) string
	Stdout io.Writer
	Stderr io.Writer
	// NewInstaller defaults to an npm installer rooted at the home directory.
	NewInstaller func(fs afero.Fs, home string) extension.Installer
}

// NewRuntime loads the manifest, registers installed extension schemas and
// derives the CLI definitions. A broken extension schema is logged and
// skipped; a defect in the resulting schema is fatal.
func NewRuntime(ctx context.Context, opts RuntimeOptions) (*Runtime, error) {
	log := logger.FromContext(ctx)
	if opts.Fs == nil {
		opts.Fs = afero.NewOsFs()
	}
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	home := opts.Home
	if home == "" {
		resolved, err := extension.ResolveHome(opts.Getenv)
		if err != nil {
			return nil, err
		}
		home = resolved
	}
	manifest, err := extension.LoadManifest(opts.Fs, home)
	if err != nil {
		return nil, err
	}
	builder := schema.NewBuilder(nil)
	if err := extension.RegisterSchemas(ctx, builder, opts.Fs, manifest); err != nil {
		log.Warn("Some extension schemas were not registered", "error", err)
	}
	reg, err := builder.Finalize()
	if err != nil {
		return nil, err
	}
	defs, err := cliargs.ToParserArgs(reg, cliargs.Options{Fs: opts.Fs})
	if err != nil {
		return nil, err
	}
	fs := opts.Fs
	newInstaller := opts.NewInstaller
	if newInstaller == nil {
		newInstaller = func(fs afero.Fs, home string) extension.Installer {
			return extension.NewNPMInstaller(fs, home)
		}
	}
	return &Runtime{
		Fs:       fs,
		Manifest: manifest,
		Registry: reg,
		Defs:     defs,
		Stdout:   opts.Stdout,
		Stderr:   opts.Stderr,
		Installer: func() extension.Installer {
			return newInstaller(fs, home)
		},
	}, nil
}

// NewConfigService returns a configuration service bound to the runtime's
// CLI definitions.
func (rt *Runtime) NewConfigService(opts ...config.ServiceOption) config.Service {
	return config.NewService(rt.Defs, opts...)
}

// HandlerFunc defines the signature for command handlers.
type HandlerFunc func(ctx context.Context, cmd *cobra.Command, out *helpers.OutputWriter, args []string) error

// ExecuteCommand runs handler with an output writer matching the command's
// --json flag and reports any failure in the same format.
func ExecuteCommand(cmd *cobra.Command, rt *Runtime, handler HandlerFunc, args []string) error {
	mode := helpers.DetectMode(cmd)
	out := helpers.NewOutputWriter(rt.Stdout, mode)
	return HandleCommonErrors(rt.Stderr, handler(cmd.Context(), cmd, out, args), mode)
}

// HandleCommonErrors provides consistent error handling across all commands.
func HandleCommonErrors(w io.Writer, err error, mode helpers.Mode) error {
	if err == nil {
		return nil
	}
	if cliErr := categorizeError(err); cliErr != nil {
		err = cliErr
	}
	helpers.OutputError(w, err, mode)
	return &reportedError{err: err}
}

// reportedError marks an error that was already written to the user.
type reportedError struct {
	err error
}

func (e *reportedError) Error() string { return e.err.Error() }

func (e *reportedError) Unwrap() error { return e.err }

// IsReported reports whether err was already printed by a command handler.
func IsReported(err error) bool {
	var r *reportedError
	return errors.As(err, &r)
}

// categorizeError converts errors to structured CLI errors
func categorizeError(err error) *helpers.CliError {
	var (
		cliErr   *helpers.CliError
		fileErr  *config.FileNotFoundError
		argErr   *cliargs.CliArgumentTypeError
		notFound *extension.NotInstalledError
	)
	switch {
	case errors.As(err, &cliErr):
		return nil
	case errors.Is(err, context.Canceled):
		return helpers.NewCliError("OPERATION_CANCELED", "Operation was canceled by user")
	case errors.Is(err, context.DeadlineExceeded):
		return helpers.NewCliError("OPERATION_TIMEOUT", "Operation timed out")
	case errors.As(err, &fileErr):
		return helpers.WrapCliError("CONFIG_NOT_FOUND", "Config file not found", err)
	case errors.Is(err, config.ErrConfigFileSyntax):
		return helpers.WrapCliError("CONFIG_SYNTAX", "Config file could not be parsed", err)
	case errors.As(err, &argErr):
		return helpers.WrapCliError("INVALID_ARGUMENT", "Invalid value for "+argErr.Flag, err)
	case errors.As(err, &notFound):
		return helpers.WrapCliError("NOT_INSTALLED", notFound.Error(), nil)
	case errors.Is(err, extension.ErrMissingFields), errors.Is(err, extension.ErrAlreadyInstalled):
		return helpers.WrapCliError("INSTALL_REJECTED", "Extension was not installed", err)
	default:
		return nil
	}
}
