package server

import (
	"context"
	"fmt"
	"sort"

	"github.com/knadh/koanf/maps"
	"github.com/spf13/cobra"

	"github.com/devicehub/devicehub/cli/cmd"
	"github.com/devicehub/devicehub/cli/helpers"
	"github.com/devicehub/devicehub/pkg/cliargs"
	"github.com/devicehub/devicehub/pkg/config"
	"github.com/devicehub/devicehub/pkg/logger"
)

const (
	showConfigFlag  = "show-config"
	watchConfigFlag = "watch-config"
)

// NewServerCommand creates the server command. Its flags are derived from
// the finalized schema, so installed extensions contribute their own.
func NewServerCommand(rt *cmd.Runtime) (*cobra.Command, error) {
	command := &cobra.Command{
		Use:   "server",
		Short: "Start the devicehub server",
		Long: `Resolve the server configuration from schema defaults, the config file,
DEVICEHUB_ environment variables and command line flags, then start the server.`,
		Args: cobra.NoArgs,
		RunE: func(c *cobra.Command, args []string) error {
			return cmd.ExecuteCommand(c, rt, runHandler(rt), args)
		},
	}
	flags := command.Flags()
	if err := cliargs.Bind(flags, rt.Defs); err != nil {
		return nil, fmt.Errorf("failed to bind server flags: %w", err)
	}
	flags.String(cmd.ConfigFlag, "", "Path to a config file")
	flags.Bool(showConfigFlag, false, "Print the resolved configuration as JSON and exit")
	flags.Bool(watchConfigFlag, false, "Keep running and reload when the config file changes")
	flags.String(cmd.EnvFileFlag, "", "Path to a dotenv file with DEVICEHUB_ variables")
	return command, nil
}

func runHandler(rt *cmd.Runtime) cmd.HandlerFunc {
	return func(ctx context.Context, c *cobra.Command, _ *helpers.OutputWriter, _ []string) error {
		flags := c.Flags()
		path, err := flags.GetString(cmd.ConfigFlag)
		if err != nil {
			return fmt.Errorf("failed to get config flag: %w", err)
		}
		showConfig, err := flags.GetBool(showConfigFlag)
		if err != nil {
			return fmt.Errorf("failed to get show-config flag: %w", err)
		}
		watch, err := flags.GetBool(watchConfigFlag)
		if err != nil {
			return fmt.Errorf("failed to get watch-config flag: %w", err)
		}
		envFile, err := flags.GetString(cmd.EnvFileFlag)
		if err != nil {
			return fmt.Errorf("failed to get env-file flag: %w", err)
		}

		var filePath string
		mgr, err := rt.NewConfigManager(cmd.ResolveOptions{
			ConfigPath: path,
			Flags:      flags,
			OnFile:     func(p string) { filePath = p },
			EnvFile:    envFile,
		})
		if err != nil {
			return err
		}
		defer mgr.Close()
		cfg, err := mgr.Load(ctx)
		if err != nil {
			return err
		}
		if showConfig {
			return helpers.NewOutputWriter(rt.Stdout, helpers.ModeJSON).Write(map[string]any{
				"config":  mgr.Service().Raw(),
				"file":    filePath,
				"sources": nonDefaultSources(mgr.Service()),
			}, nil)
		}

		sink, err := logger.InitSink(sinkOptions(rt, cfg.Server))
		if err != nil {
			return err
		}
		defer logger.ClearSink()
		ctx = logger.ContextWithLogger(ctx, sink)
		ctx = config.ContextWithConfig(ctx, cfg)
		logStartup(ctx, mgr.Service(), filePath)

		checkPort(ctx)
		sink.Warn("Session handling is not part of this build; no requests will be served")
		if !watch {
			return nil
		}
		watched := filePath
		if watched == "" {
			return helpers.NewCliError("CONFIG_NOT_FOUND", "Nothing to watch", "no config file was found")
		}

		mgr.OnChange(func(next *config.Config) {
			reloaded, err := logger.InitSink(sinkOptions(rt, next.Server))
			if err != nil {
				logger.FromContext(ctx).Error("Failed to reinitialize logging", "error", err)
				return
			}
			reloaded.Info("Configuration reloaded", "path", watched)
			reloadCtx := config.ContextWithConfig(logger.ContextWithLogger(ctx, reloaded), next)
			logStartup(reloadCtx, mgr.Service(), watched)
			checkPort(reloadCtx)
		})
		if err := mgr.Watch(ctx, watched); err != nil {
			return err
		}
		sink.Info("Watching config file", "path", watched)
		<-ctx.Done()
		logger.Info("Shutting down")
		return nil
	}
}

// checkPort warns when the configured listen address is already taken.
func checkPort(ctx context.Context) {
	args := config.FromContext(ctx).Server
	if err := helpers.EnsurePortAvailable(ctx, args.Address, args.Port); err != nil {
		logger.FromContext(ctx).Warn("Server port is not available", "address", args.Address, "port", args.Port, "error", err)
	}
}

func sinkOptions(rt *cmd.Runtime, args config.ServerArgs) logger.SinkOptions {
	return logger.SinkOptions{
		LogLevel:      args.LogLevel,
		LogFile:       args.LogFile,
		Webhook:       args.Webhook,
		NoColors:      args.LogNoColors || !helpers.ShouldUseColor(rt.Stdout),
		Timestamp:     args.LogTimestamp,
		LocalTimezone: args.LocalTimezone,
		Console:       rt.Stdout,
		Fs:            rt.Fs,
	}
}

// nonDefaultSources lists the keys set by the config file, the environment
// or the command line.
func nonDefaultSources(service config.Service) map[string]config.SourceType {
	flat, _ := maps.Flatten(service.Raw(), nil, ".")
	out := make(map[string]config.SourceType)
	for key := range flat {
		switch src := service.GetSource(key); src {
		case config.SourceFile, config.SourceEnv, config.SourceCLI:
			out[key] = src
		}
	}
	return out
}

func logStartup(ctx context.Context, service config.Service, filePath string) {
	log := logger.FromContext(ctx)
	if filePath != "" {
		log.Info("Loaded config file", "path", filePath)
	}
	sources := nonDefaultSources(service)
	if len(sources) == 0 {
		log.Info("No non-default server args")
		return
	}
	flat, _ := maps.Flatten(service.Raw(), nil, ".")
	keys := make([]string, 0, len(sources))
	for key := range sources {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	keyvals := make([]any, 0, len(keys)*2)
	for _, key := range keys {
		keyvals = append(keyvals, key, flat[key])
	}
	log.Info("Non-default server args", keyvals...)
}
