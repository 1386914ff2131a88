package schema

import (
	"fmt"
	"strings"
)

// ShortArgCutoff is the alias length below which a root property gets a
// single-dash flag.
const ShortArgCutoff = 3

// ArgSpec carries the naming context of one leaf property.
type ArgSpec struct {
	// ExtType and ExtName are empty for properties of the base schema.
	ExtType string
	ExtName string
	// Name is the base alias: the CLI destination if declared, else the
	// property name.
	Name string
	// ID is the dotted schema id used for validation lookups.
	ID string
	// Dest is the dotted path of the value in a normalized config.
	Dest string
}

func newArgSpec(leaf *Leaf, extType, extName string, dest []string) ArgSpec {
	name := leaf.CLIDest
	if name == "" {
		name = leaf.Name
	}
	return ArgSpec{
		ExtType: extType,
		ExtName: extName,
		Name:    name,
		ID:      leaf.ID,
		Dest:    strings.Join(dest, "."),
	}
}

// Flag renders a CLI flag for alias, or for the base alias when alias is
// empty. Root properties with short aliases get "-x", others "--kebab-name";
// extension properties are namespaced as "--{type}-{name}-{alias}".
func (s ArgSpec) Flag(alias string) string {
	arg := alias
	if arg == "" {
		arg = s.Name
	}
	short := len(arg) < ShortArgCutoff
	if s.ExtType != "" && s.ExtName != "" {
		if !short {
			arg = KebabCase(arg)
		}
		return fmt.Sprintf("--%s-%s-%s", s.ExtType, KebabCase(s.ExtName), arg)
	}
	if short {
		return "-" + arg
	}
	return "--" + KebabCase(arg)
}

// Metavar is the placeholder shown for the flag's value in help output.
func (s ArgSpec) Metavar() string {
	return ScreamingSnakeCase(s.Name)
}
