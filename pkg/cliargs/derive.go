// Package cliargs derives command-line flag definitions from the config
// schema and binds them to pflag flag sets.
package cliargs

import (
	"errors"
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"

	"github.com/devicehub/devicehub/pkg/schema"
	"github.com/spf13/afero"
)

// Action tells the parser how a flag consumes its value.
type Action int

const (
	// ActionStore consumes one value.
	ActionStore Action = iota
	// ActionStoreTrue takes no value; presence sets true.
	ActionStoreTrue
)

// ArgDefinition describes one CLI flag derived from a leaf property.
type ArgDefinition struct {
	// Aliases holds the rendered flags, the primary flag first.
	Aliases  []string
	Spec     schema.ArgSpec
	Type     schema.Type
	Required bool
	Help     string
	// Metavar is empty for boolean flags.
	Metavar string
	// Choices is set for string enums.
	Choices []string
	Action  Action
	// Parse coerces and validates a raw value. Nil for boolean flags.
	Parse func(raw string) (any, error)
}

// Primary returns the canonical flag, e.g. "--base-path".
func (d *ArgDefinition) Primary() string {
	return d.Aliases[0]
}

// Coerce turns a raw string into the flag's typed value, checking choices.
func (d *ArgDefinition) Coerce(raw string) (any, error) {
	if d.Action == ActionStoreTrue {
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return nil, &CliArgumentTypeError{Flag: d.Primary(), Value: raw, Explanation: "must be a boolean"}
		}
		return b, nil
	}
	if len(d.Choices) > 0 && !slices.Contains(d.Choices, raw) {
		return nil, &CliArgumentTypeError{
			Flag:        d.Primary(),
			Value:       raw,
			Explanation: fmt.Sprintf("invalid choice (choose from %s)", strings.Join(d.Choices, ", ")),
		}
	}
	if d.Parse == nil {
		return raw, nil
	}
	v, err := d.Parse(raw)
	if err != nil {
		var typeErr *CliArgumentTypeError
		if errors.As(err, &typeErr) && typeErr.Flag == "" {
			typeErr.Flag = d.Primary()
		}
		return nil, err
	}
	return v, nil
}

// Options configures ToParserArgs.
type Options struct {
	// Fs is used by transformers that accept a file path. Defaults to the OS.
	Fs afero.Fs
	// Transformers overrides DefaultTransformers.
	Transformers map[string]Transformer
}

// ToParserArgs derives one ArgDefinition per leaf property of reg, skipping
// properties marked as ignored by the CLI.
func ToParserArgs(reg *schema.Registry, opts Options) ([]ArgDefinition, error) {
	if opts.Fs == nil {
		opts.Fs = afero.NewOsFs()
	}
	if opts.Transformers == nil {
		opts.Transformers = DefaultTransformers(opts.Fs)
	}
	entries := reg.Flatten()
	defs := make([]ArgDefinition, 0, len(entries))
	for _, entry := range entries {
		if entry.Leaf.CLIIgnored {
			continue
		}
		def, err := subSchemaToArgDef(reg, entry, opts.Transformers)
		if err != nil {
			return nil, err
		}
		defs = append(defs, def)
	}
	return defs, nil
}

func subSchemaToArgDef(reg *schema.Registry, entry schema.FlatEntry, transformers map[string]Transformer) (ArgDefinition, error) {
	leaf, spec := entry.Leaf, entry.Spec
	def := ArgDefinition{
		Aliases: aliasesFor(spec, leaf.CLIAliases),
		Spec:    spec,
		Type:    leaf.Type,
		Help:    helpFor(leaf),
	}

	var parse func(string) (any, error)
	switch leaf.Type {
	case schema.TypeBoolean:
		def.Action = ActionStoreTrue
	case schema.TypeObject:
		parse = fromTransformer(transformers["json"])
	case schema.TypeArray:
		parse = fromTransformer(transformers["csv"])
	case schema.TypeNumber:
		parse = validated(reg, spec.ID, parseFiniteFloat, "must be a number")
	case schema.TypeInteger:
		parse = validated(reg, spec.ID, func(raw string) (any, error) {
			return strconv.Atoi(strings.TrimSpace(raw))
		}, "must be an integer")
	case schema.TypeString:
		parse = validated(reg, spec.ID, func(raw string) (any, error) {
			return raw, nil
		}, "")
	default:
		return ArgDefinition{}, &schema.UnsupportedSchemaTypeError{ID: spec.ID, Type: leaf.Type}
	}

	if len(leaf.Enum) > 0 {
		if leaf.Type != schema.TypeString {
			return ArgDefinition{}, &schema.UnsupportedSchemaTypeError{
				ID:     spec.ID,
				Type:   leaf.Type,
				Reason: "`enum` is only supported for `type: 'string'`",
			}
		}
		for _, v := range leaf.Enum {
			def.Choices = append(def.Choices, fmt.Sprint(v))
		}
	}

	// Arrays and objects already run through a transformer of their own.
	if leaf.CLITransformer != "" && leaf.Type != schema.TypeArray && leaf.Type != schema.TypeObject {
		t, ok := transformers[leaf.CLITransformer]
		if !ok {
			return ArgDefinition{}, &schema.UnsupportedSchemaTypeError{
				ID:     spec.ID,
				Type:   leaf.Type,
				Reason: fmt.Sprintf("unknown transformer %q", leaf.CLITransformer),
			}
		}
		if parse != nil {
			parse = chain(parse, t)
		}
	}

	def.Parse = parse
	if def.Action != ActionStoreTrue {
		def.Metavar = spec.Metavar()
	}
	return def, nil
}

// parseFiniteFloat rejects NaN and infinities, which JSON cannot carry.
func parseFiniteFloat(raw string) (any, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return nil, err
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil, fmt.Errorf("%q is not a finite number", raw)
	}
	return v, nil
}

func aliasesFor(spec schema.ArgSpec, aliases []string) []string {
	out := []string{spec.Flag("")}
	for _, alias := range aliases {
		flag := spec.Flag(alias)
		if !slices.Contains(out, flag) {
			out = append(out, flag)
		}
	}
	return out
}

func helpFor(leaf *schema.Leaf) string {
	help := leaf.CLIDescription
	if help == "" {
		help = leaf.Description
	}
	if leaf.Deprecated {
		help = "[DEPRECATED] " + help
	}
	return help
}

func validated(reg *schema.Registry, id string, coerce func(string) (any, error), typeHint string) func(string) (any, error) {
	return func(raw string) (any, error) {
		v, err := coerce(raw)
		if err != nil {
			return nil, &CliArgumentTypeError{Value: raw, Explanation: typeHint}
		}
		errs, err := reg.ValidateProperty(id, v)
		if err != nil {
			return nil, err
		}
		if len(errs) > 0 {
			reason, ferr := schema.FormatErrors(errs, v, schema.FormatOptions{SchemaID: id})
			if ferr != nil {
				reason = schema.Messages(errs)
			}
			return nil, &CliArgumentTypeError{Value: raw, Explanation: "\n\n" + reason}
		}
		return v, nil
	}
}

func fromTransformer(t Transformer) func(string) (any, error) {
	if t == nil {
		return nil
	}
	return func(raw string) (any, error) {
		return t(raw)
	}
}

func chain(parse func(string) (any, error), t Transformer) func(string) (any, error) {
	return func(raw string) (any, error) {
		v, err := parse(raw)
		if err != nil {
			return nil, err
		}
		return t(v)
	}
}
