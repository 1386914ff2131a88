package cliargs

import (
	"fmt"
	"strings"

	"github.com/spf13/pflag"
)

// flagValue adapts an ArgDefinition to pflag.Value.
type flagValue struct {
	def   *ArgDefinition
	value any
	raw   string
}

func (v *flagValue) String() string { return v.raw }

func (v *flagValue) Set(s string) error {
	parsed, err := v.def.Coerce(s)
	if err != nil {
		return err
	}
	v.value = parsed
	v.raw = s
	return nil
}

// Type is shown by pflag as the value placeholder; "bool" hides it.
func (v *flagValue) Type() string {
	if v.def.Action == ActionStoreTrue {
		return "bool"
	}
	return v.def.Metavar
}

// Bind registers defs on fs. A single-character alias becomes the flag's
// shorthand; every other alias is accepted as an alternate long name.
func Bind(fs *pflag.FlagSet, defs []ArgDefinition) error {
	alternates := make(map[string]string)
	for i := range defs {
		def := &defs[i]
		primary := flagName(def.Primary())
		if fs.Lookup(primary) != nil {
			return fmt.Errorf("flag %s is already defined", def.Primary())
		}
		var shorthand string
		if isShorthand(def.Primary()) {
			shorthand = primary
		}
		for _, alias := range def.Aliases[1:] {
			name := flagName(alias)
			if shorthand == "" && isShorthand(alias) {
				shorthand = name
				continue
			}
			if existing, ok := alternates[name]; ok && existing != primary {
				return fmt.Errorf("alias %s of %s is already used by --%s", alias, def.Primary(), existing)
			}
			alternates[name] = primary
		}
		if shorthand != "" && fs.ShorthandLookup(shorthand) != nil {
			return fmt.Errorf("shorthand -%s of %s is already defined", shorthand, def.Primary())
		}
		usage := def.Help
		if len(def.Choices) > 0 {
			usage = fmt.Sprintf("%s (choices: %s)", usage, strings.Join(def.Choices, ", "))
		}
		flag := fs.VarPF(&flagValue{def: def}, primary, shorthand, usage)
		if def.Action == ActionStoreTrue {
			flag.NoOptDefVal = "true"
		}
	}
	if len(alternates) == 0 {
		return nil
	}
	next := fs.GetNormalizeFunc()
	fs.SetNormalizeFunc(func(f *pflag.FlagSet, name string) pflag.NormalizedName {
		if primary, ok := alternates[name]; ok {
			return pflag.NormalizedName(primary)
		}
		return next(f, name)
	})
	return nil
}

// Collect returns the values of every derived flag set on the command line,
// keyed by the flag's dotted destination path.
func Collect(fs *pflag.FlagSet) map[string]any {
	out := make(map[string]any)
	fs.VisitAll(func(f *pflag.Flag) {
		v, ok := f.Value.(*flagValue)
		if !ok || !f.Changed {
			return
		}
		out[v.def.Spec.Dest] = v.value
	})
	return out
}

// Nest expands dotted keys into nested maps:
// {"driver.fake.port": 1} becomes {"driver": {"fake": {"port": 1}}}.
func Nest(flat map[string]any) map[string]any {
	out := make(map[string]any)
	for key, value := range flat {
		setNested(out, strings.Split(key, "."), value)
	}
	return out
}

func setNested(m map[string]any, path []string, value any) {
	for _, seg := range path[:len(path)-1] {
		next, ok := m[seg].(map[string]any)
		if !ok {
			next = make(map[string]any)
			m[seg] = next
		}
		m = next
	}
	m[path[len(path)-1]] = value
}

// RewriteArgs turns multi-character single-dash aliases such as "-pa" into
// their double-dash form, which pflag would otherwise read as a cluster of
// shorthands. Arguments after "--" are left alone.
func RewriteArgs(args []string, defs []ArgDefinition) []string {
	single := make(map[string]bool)
	for i := range defs {
		for _, alias := range defs[i].Aliases {
			if !strings.HasPrefix(alias, "--") && len(alias) > 2 {
				single[alias] = true
			}
		}
	}
	if len(single) == 0 {
		return args
	}
	out := make([]string, 0, len(args))
	for i, arg := range args {
		if arg == "--" {
			return append(out, args[i:]...)
		}
		name, _, _ := strings.Cut(arg, "=")
		if single[name] {
			arg = "-" + arg
		}
		out = append(out, arg)
	}
	return out
}

func flagName(flag string) string {
	return strings.TrimLeft(flag, "-")
}

func isShorthand(flag string) bool {
	return !strings.HasPrefix(flag, "--") && len(flag) == 2
}
