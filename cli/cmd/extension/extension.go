package extension

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/devicehub/devicehub/cli/cmd"
	"github.com/devicehub/devicehub/cli/helpers"
	"github.com/devicehub/devicehub/engine/extension"
	"github.com/devicehub/devicehub/pkg/logger"
)

var (
	nameStyle    = lipgloss.NewStyle().Bold(true)
	okStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	mutedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#888888"))
	warningStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
)

// NewExtensionCommand creates the command group that manages extensions of
// type t, e.g. "devicehub driver install uiautomator2".
func NewExtensionCommand(rt *cmd.Runtime, t extension.Type) *cobra.Command {
	command := &cobra.Command{
		Use:   string(t),
		Short: fmt.Sprintf("Manage %ss", t),
		Long:  fmt.Sprintf("Install, update, list, run scripts of and uninstall devicehub %ss.", t),
	}
	command.PersistentFlags().Bool(helpers.JSONFlag, false, "Output in JSON format")
	command.AddCommand(
		newInstallCommand(rt, t),
		newUninstallCommand(rt, t),
		newUpdateCommand(rt, t),
		newListCommand(rt, t),
		newRunCommand(rt, t),
	)
	return command
}

func newCommand(rt *cmd.Runtime, t extension.Type) *extension.Command {
	return extension.NewCommand(t, rt.Manifest, rt.Installer())
}

func newInstallCommand(rt *cmd.Runtime, t extension.Type) *cobra.Command {
	command := &cobra.Command{
		Use:   "install <spec>",
		Short: fmt.Sprintf("Install a %s", t),
		Long: fmt.Sprintf(`Install a %[1]s by its well-known name, an npm package spec, a GitHub
repository, a git URL or a local path. Sources other than npm need --package
to name the installed npm package.`, t),
		Args: cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			return cmd.ExecuteCommand(c, rt, func(ctx context.Context, c *cobra.Command, out *helpers.OutputWriter, args []string) error {
				source, err := c.Flags().GetString("source")
				if err != nil {
					return fmt.Errorf("failed to get source flag: %w", err)
				}
				installType, err := extension.ParseInstallType(source)
				if err != nil {
					return helpers.WrapCliError("INVALID_ARGUMENT", "Invalid install source", err)
				}
				pkgName, err := c.Flags().GetString("package")
				if err != nil {
					return fmt.Errorf("failed to get package flag: %w", err)
				}
				before := rt.Manifest.Names(t)
				installed, err := newCommand(rt, t).Install(ctx, extension.InstallOptions{
					Spec:        args[0],
					InstallType: installType,
					PackageName: pkgName,
				})
				if err != nil {
					return err
				}
				return out.Write(installed, func() string {
					var added []string
					for _, name := range rt.Manifest.Names(t) {
						if !slices.Contains(before, name) {
							added = append(added, name)
						}
					}
					return fmt.Sprintf("Installed %ss: %s", t, strings.Join(added, ", "))
				})
			}, args)
		},
	}
	command.Flags().String("source", string(extension.InstallTypeNPM), "Install source (npm, github, git, local)")
	command.Flags().String("package", "", "npm package name, required for github and git sources")
	return command
}

func newUninstallCommand(rt *cmd.Runtime, t extension.Type) *cobra.Command {
	return &cobra.Command{
		Use:   "uninstall <name>",
		Short: fmt.Sprintf("Uninstall a %s", t),
		Args:  cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			return cmd.ExecuteCommand(c, rt, func(ctx context.Context, _ *cobra.Command, out *helpers.OutputWriter, args []string) error {
				remaining, err := newCommand(rt, t).Uninstall(ctx, args[0])
				if err != nil {
					return err
				}
				return out.Write(remaining, func() string {
					return render(out.Color(), okStyle, fmt.Sprintf("Successfully uninstalled %s %s", t, args[0]))
				})
			}, args)
		},
	}
}

func newUpdateCommand(rt *cmd.Runtime, t extension.Type) *cobra.Command {
	command := &cobra.Command{
		Use:   fmt.Sprintf("update <name|%s>", extension.UpdateAll),
		Short: fmt.Sprintf("Update one %[1]s, or every installed %[1]s", t),
		Long: `Update to the newest version with the same major version. Use --unsafe to
allow updates across major versions.`,
		Args: cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			return cmd.ExecuteCommand(c, rt, func(ctx context.Context, c *cobra.Command, out *helpers.OutputWriter, args []string) error {
				unsafe, err := c.Flags().GetBool("unsafe")
				if err != nil {
					return fmt.Errorf("failed to get unsafe flag: %w", err)
				}
				result, err := newCommand(rt, t).Update(ctx, args[0], unsafe)
				if err != nil {
					return err
				}
				return out.Write(result, func() string { return renderUpdate(result, unsafe, out.Color()) })
			}, args)
		},
	}
	command.Flags().Bool("unsafe", false, "Allow updates across major versions")
	return command
}

func renderUpdate(result *extension.UpdateResult, unsafe bool, color bool) string {
	var lines []string
	for _, name := range sortedNames(result.Updates) {
		info := result.Updates[name]
		to := info.SafeUpdate
		if unsafe && info.UnsafeUpdate != "" {
			to = info.UnsafeUpdate
		}
		lines = append(lines, render(color, okStyle, fmt.Sprintf("Updated %s from %s to %s", name, info.Current, to)))
	}
	for _, name := range sortedNames(result.Errors) {
		lines = append(lines, render(color, warningStyle, fmt.Sprintf("%s was not updated: %s", name, result.Errors[name])))
	}
	if len(lines) == 0 {
		return "Nothing to update"
	}
	return strings.Join(lines, "\n")
}

func newListCommand(rt *cmd.Runtime, t extension.Type) *cobra.Command {
	command := &cobra.Command{
		Use:   "list",
		Short: fmt.Sprintf("List available and installed %ss", t),
		Args:  cobra.NoArgs,
		RunE: func(c *cobra.Command, args []string) error {
			return cmd.ExecuteCommand(c, rt, func(ctx context.Context, c *cobra.Command, out *helpers.OutputWriter, _ []string) error {
				installedOnly, err := c.Flags().GetBool("installed")
				if err != nil {
					return fmt.Errorf("failed to get installed flag: %w", err)
				}
				showUpdates, err := c.Flags().GetBool("updates")
				if err != nil {
					return fmt.Errorf("failed to get updates flag: %w", err)
				}
				entries := newCommand(rt, t).List(ctx, extension.ListOptions{
					InstalledOnly: installedOnly,
					ShowUpdates:   showUpdates,
				})
				return out.Write(entries, func() string { return renderList(t, entries, out.Color()) })
			}, args)
		},
	}
	command.Flags().Bool("installed", false, "Only list installed extensions")
	command.Flags().Bool("updates", false, "Check npm for available updates")
	return command
}

func renderList(t extension.Type, entries map[string]extension.ListEntry, color bool) string {
	if len(entries) == 0 {
		return fmt.Sprintf("No %ss installed", t)
	}
	lines := []string{fmt.Sprintf("Listing %ss:", t)}
	for _, name := range sortedNames(entries) {
		entry := entries[name]
		line := "- " + render(color, nameStyle, name)
		if !entry.Installed {
			lines = append(lines, line+render(color, mutedStyle, " [not installed]"))
			continue
		}
		meta := entry.Metadata
		line += "@" + meta.Version + render(color, okStyle, " [installed ("+string(meta.InstallType)+")]")
		if u := entry.Updates; u != nil {
			if u.SafeUpdate != "" {
				line += render(color, warningStyle, " ["+u.SafeUpdate+" available]")
			}
			if u.UnsafeUpdate != "" {
				line += render(color, warningStyle, " ["+u.UnsafeUpdate+" available (unsafe)]")
			}
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}

func newRunCommand(rt *cmd.Runtime, t extension.Type) *cobra.Command {
	command := &cobra.Command{
		Use:   "run <name> <script> [args...]",
		Short: fmt.Sprintf("Run a script declared by an installed %s", t),
		Args:  cobra.MinimumNArgs(2),
		RunE: func(c *cobra.Command, args []string) error {
			return cmd.ExecuteCommand(c, rt, func(ctx context.Context, c *cobra.Command, out *helpers.OutputWriter, args []string) error {
				rawArgs, err := c.Flags().GetString("args")
				if err != nil {
					return fmt.Errorf("failed to get args flag: %w", err)
				}
				result, err := newCommand(rt, t).Run(ctx, args[0], args[1], args[2:], rawArgs)
				if result != nil {
					if wErr := out.Write(result, func() string { return strings.Join(result.Output, "\n") }); wErr != nil {
						return wErr
					}
				}
				if err != nil {
					logger.FromContext(ctx).Debug("Extension script failed", "name", args[0], "script", args[1])
					return err
				}
				return nil
			}, args)
		},
	}
	command.Flags().String("args", "", "Extra script arguments as a single shell-quoted string")
	return command
}

func sortedNames[V any](m map[string]V) []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

func render(color bool, style lipgloss.Style, text string) string {
	if color {
		return style.Render(text)
	}
	return text
}
