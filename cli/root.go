package cli

import (
	"context"
	"os"
	"slices"

	"github.com/spf13/cobra"

	"github.com/devicehub/devicehub/cli/cmd"
	configcmd "github.com/devicehub/devicehub/cli/cmd/config"
	extensioncmd "github.com/devicehub/devicehub/cli/cmd/extension"
	servercmd "github.com/devicehub/devicehub/cli/cmd/server"
	"github.com/devicehub/devicehub/cli/helpers"
	"github.com/devicehub/devicehub/engine/extension"
	"github.com/devicehub/devicehub/pkg/cliargs"
	"github.com/devicehub/devicehub/pkg/version"
)

// ServerCommand is run when no subcommand is named.
const ServerCommand = "server"

// RootCmd builds the command tree for rt.
func RootCmd(rt *cmd.Runtime) (*cobra.Command, error) {
	root := &cobra.Command{
		Use:           "devicehub",
		Short:         "Devicehub automation server",
		Version:       version.Get().String(),
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	root.SetOut(rt.Stdout)
	root.SetErr(rt.Stderr)
	server, err := servercmd.NewServerCommand(rt)
	if err != nil {
		return nil, err
	}
	root.AddCommand(
		server,
		extensioncmd.NewExtensionCommand(rt, extension.DriverType),
		extensioncmd.NewExtensionCommand(rt, extension.PluginType),
		configcmd.NewConfigCommand(rt),
	)
	return root, nil
}

// Execute runs the CLI with args and returns the process exit code.
func Execute(ctx context.Context, args []string, opts cmd.RuntimeOptions) int {
	rt, err := cmd.NewRuntime(ctx, opts)
	if err != nil {
		return fail(opts, err)
	}
	root, err := RootCmd(rt)
	if err != nil {
		return fail(opts, err)
	}
	args = withDefaultCommand(root, args)
	if args[0] == ServerCommand {
		args = cliargs.RewriteArgs(args, rt.Defs)
	}
	root.SetArgs(args)
	if err := root.ExecuteContext(ctx); err != nil {
		if !cmd.IsReported(err) {
			helpers.OutputError(rt.Stderr, err, helpers.ModeText)
		}
		return 1
	}
	return 0
}

// withDefaultCommand prepends the server command unless args already name a
// subcommand or ask for help or the version.
func withDefaultCommand(root *cobra.Command, args []string) []string {
	if len(args) > 0 {
		first := args[0]
		if slices.Contains([]string{"-h", "--help", "-v", "--version", "help", "completion"}, first) {
			return args
		}
		for _, c := range root.Commands() {
			if c.Name() == first || c.HasAlias(first) {
				return args
			}
		}
	}
	return append([]string{ServerCommand}, args...)
}

func fail(opts cmd.RuntimeOptions, err error) int {
	w := opts.Stderr
	if w == nil {
		w = os.Stderr
	}
	helpers.OutputError(w, err, helpers.ModeText)
	return 1
}
