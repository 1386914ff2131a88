package config

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/charmbracelet/lipgloss"
	"github.com/goccy/go-yaml"
	"github.com/knadh/koanf/maps"
	"github.com/spf13/cobra"

	"github.com/devicehub/devicehub/cli/cmd"
	"github.com/devicehub/devicehub/cli/helpers"
	pkgconfig "github.com/devicehub/devicehub/pkg/config"
	"github.com/devicehub/devicehub/pkg/logger"
	"github.com/devicehub/devicehub/pkg/schema"
)

var validStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#4CAF50")).Bold(true)

// NewConfigCommand creates the config command group.
func NewConfigCommand(rt *cmd.Runtime) *cobra.Command {
	command := &cobra.Command{
		Use:   "config",
		Short: "Configuration management and diagnostics",
		Long:  `Inspect and validate devicehub configuration files and the schema they are checked against.`,
	}
	command.PersistentFlags().Bool(helpers.JSONFlag, false, "Output in JSON format")
	command.AddCommand(
		NewConfigShowCommand(rt),
		NewConfigValidateCommand(rt),
		NewConfigSchemaCommand(rt),
		NewConfigEnvCommand(rt),
	)
	return command
}

// NewConfigShowCommand creates the config show subcommand
func NewConfigShowCommand(rt *cmd.Runtime) *cobra.Command {
	command := &cobra.Command{
		Use:   "show",
		Short: "Show effective configuration values",
		Long: `Display the configuration resolved from schema defaults, the config file
and DEVICEHUB_ environment variables. Supports json, yaml and table formats.`,
		Args: cobra.NoArgs,
		RunE: func(c *cobra.Command, args []string) error {
			return cmd.ExecuteCommand(c, rt, showHandler(rt), args)
		},
	}
	command.Flags().StringP("format", "f", "table", "Output format (json, yaml, table)")
	command.Flags().Bool("sources", false, "Show which source provided each value")
	command.Flags().String(cmd.ConfigFlag, "", "Path to a config file")
	command.Flags().String(cmd.EnvFileFlag, "", "Path to a dotenv file with DEVICEHUB_ variables")
	return command
}

func showHandler(rt *cmd.Runtime) cmd.HandlerFunc {
	return func(ctx context.Context, c *cobra.Command, out *helpers.OutputWriter, _ []string) error {
		log := logger.FromContext(ctx)
		log.Debug("executing config show command")
		format, err := c.Flags().GetString("format")
		if err != nil {
			return fmt.Errorf("failed to get format flag: %w", err)
		}
		showSources, err := c.Flags().GetBool("sources")
		if err != nil {
			return fmt.Errorf("failed to get sources flag: %w", err)
		}
		path, err := c.Flags().GetString(cmd.ConfigFlag)
		if err != nil {
			return fmt.Errorf("failed to get config flag: %w", err)
		}
		envFile, err := c.Flags().GetString(cmd.EnvFileFlag)
		if err != nil {
			return fmt.Errorf("failed to get env-file flag: %w", err)
		}
		mgr, err := rt.NewConfigManager(cmd.ResolveOptions{ConfigPath: path, EnvFile: envFile})
		if err != nil {
			return err
		}
		defer mgr.Close()
		if _, err := mgr.Load(ctx); err != nil {
			return err
		}
		var sources map[string]pkgconfig.SourceType
		if showSources {
			sources = sourcesOf(mgr.Service())
		}
		if out.Mode() == helpers.ModeJSON {
			format = "json"
		}
		return formatConfigOutput(rt.Stdout, mgr.Service().Raw(), sources, format)
	}
}

// sourcesOf maps every flattened key to the source that set it.
func sourcesOf(service pkgconfig.Service) map[string]pkgconfig.SourceType {
	flat, _ := maps.Flatten(service.Raw(), nil, ".")
	sources := make(map[string]pkgconfig.SourceType, len(flat))
	for key := range flat {
		sources[key] = service.GetSource(key)
	}
	return sources
}

// formatConfigOutput formats and outputs configuration based on requested format
func formatConfigOutput(w io.Writer, raw map[string]any, sources map[string]pkgconfig.SourceType, format string) error {
	output := map[string]any{"config": raw}
	if len(sources) > 0 {
		output["sources"] = sources
	}
	switch format {
	case "json":
		return helpers.NewOutputWriter(w, helpers.ModeJSON).Write(output, nil)
	case "yaml":
		data, err := yaml.MarshalWithOptions(output, yaml.Indent(2))
		if err != nil {
			return fmt.Errorf("failed to encode configuration: %w", err)
		}
		_, err = w.Write(data)
		return err
	case "table":
		return outputTable(w, raw, sources)
	default:
		return helpers.NewCliError("INVALID_FORMAT", "unsupported format: "+format, "use json, yaml or table")
	}
}

// outputTable outputs configuration as a table
func outputTable(w io.Writer, raw map[string]any, sources map[string]pkgconfig.SourceType) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	flat, _ := maps.Flatten(raw, nil, ".")
	keys := make([]string, 0, len(flat))
	for k := range flat {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	if sources != nil {
		fmt.Fprintln(tw, "KEY\tVALUE\tSOURCE")
		fmt.Fprintln(tw, "---\t-----\t------")
	} else {
		fmt.Fprintln(tw, "KEY\tVALUE")
		fmt.Fprintln(tw, "---\t-----")
	}
	for _, key := range keys {
		value := formatValue(flat[key])
		if sources != nil {
			fmt.Fprintf(tw, "%s\t%s\t%s\n", key, value, sources[key])
			continue
		}
		fmt.Fprintf(tw, "%s\t%s\n", key, value)
	}
	return tw.Flush()
}

func formatValue(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case []any:
		parts := make([]string, len(val))
		for i, item := range val {
			parts[i] = fmt.Sprint(item)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case []string:
		return "[" + strings.Join(val, ", ") + "]"
	default:
		return fmt.Sprint(val)
	}
}

// ValidateResult is the outcome of config validate.
type ValidateResult struct {
	Valid  bool                     `json:"valid"`
	Path   string                   `json:"path,omitempty"`
	Empty  bool                     `json:"empty,omitempty"`
	Errors []schema.ValidationError `json:"errors,omitempty"`
	Reason string                   `json:"reason,omitempty"`
}

// NewConfigValidateCommand creates the config validate subcommand
func NewConfigValidateCommand(rt *cmd.Runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "validate [file]",
		Short: "Validate a configuration file",
		Long: `Validate a configuration file against the schema, including the schemas of
installed extensions. Without an argument the config file is searched for
starting from the working directory.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			return cmd.ExecuteCommand(c, rt, validateHandler(rt), args)
		},
	}
}

func validateHandler(rt *cmd.Runtime) cmd.HandlerFunc {
	return func(ctx context.Context, _ *cobra.Command, out *helpers.OutputWriter, args []string) error {
		log := logger.FromContext(ctx)
		log.Debug("executing config validate command")
		var path string
		if len(args) > 0 {
			path = args[0]
		}
		res, err := pkgconfig.ReadConfigFile(ctx, rt.Fs, rt.Registry, path, pkgconfig.ReadOptions{
			Pretty: out.Color(),
		})
		if err != nil {
			return err
		}
		if !res.Found() {
			return helpers.NewCliError("CONFIG_NOT_FOUND", "No config file found")
		}
		result := ValidateResult{
			Valid:  len(res.Errors) == 0,
			Path:   res.Filepath,
			Empty:  res.IsEmpty,
			Errors: res.Errors,
			Reason: res.Reason,
		}
		if err := out.Write(result, func() string { return renderValidate(result, out.Color()) }); err != nil {
			return err
		}
		if !result.Valid {
			return helpers.NewCliError("INVALID_CONFIG", "Config file at "+res.Filepath+" is invalid")
		}
		return nil
	}
}

func renderValidate(result ValidateResult, color bool) string {
	if !result.Valid {
		return result.Reason
	}
	msg := "Config file at " + result.Path + " is valid"
	if result.Empty {
		msg += " (empty)"
	}
	if color {
		return validStyle.Render(msg)
	}
	return msg
}

// NewConfigSchemaCommand creates the config schema subcommand
func NewConfigSchemaCommand(rt *cmd.Runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "schema",
		Short: "Print the configuration schema",
		Long:  `Print the finalized JSON schema, including the schemas of installed extensions.`,
		Args:  cobra.NoArgs,
		RunE: func(c *cobra.Command, args []string) error {
			return cmd.ExecuteCommand(c, rt, func(ctx context.Context, _ *cobra.Command, _ *helpers.OutputWriter, _ []string) error {
				logger.FromContext(ctx).Debug("executing config schema command")
				_, err := fmt.Fprintln(rt.Stdout, string(rt.Registry.Document()))
				return err
			}, args)
		},
	}
}

// NewConfigEnvCommand creates the config env subcommand
func NewConfigEnvCommand(rt *cmd.Runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "env",
		Short: "List the DEVICEHUB_ environment variables",
		Long: `List every environment variable the server reads, the configuration key it
sets and the matching command line flag. Installed extensions add their own.`,
		Args: cobra.NoArgs,
		RunE: func(c *cobra.Command, args []string) error {
			return cmd.ExecuteCommand(c, rt, func(_ context.Context, _ *cobra.Command, out *helpers.OutputWriter, _ []string) error {
				mappings := pkgconfig.GenerateEnvMappings(rt.Defs)
				return out.Write(mappings, func() string { return renderEnvMappings(mappings) })
			}, args)
		},
	}
}

func renderEnvMappings(mappings []pkgconfig.EnvMapping) string {
	var b strings.Builder
	tw := tabwriter.NewWriter(&b, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "VARIABLE\tKEY\tFLAG")
	fmt.Fprintln(tw, "--------\t---\t----")
	for _, m := range mappings {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", m.EnvVar, m.ConfigPath, m.Flag)
	}
	_ = tw.Flush()
	return strings.TrimRight(b.String(), "\n")
}
