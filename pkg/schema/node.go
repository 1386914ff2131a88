package schema

// Type is the JSON-Schema primitive type of a property.
type Type string

const (
	TypeArray   Type = "array"
	TypeObject  Type = "object"
	TypeBoolean Type = "boolean"
	TypeInteger Type = "integer"
	TypeNumber  Type = "number"
	TypeNull    Type = "null"
	TypeString  Type = "string"
)

// Extension namespaces. Properties nested below one of these root sections
// belong to a named extension.
const (
	DriverType = "driver"
	PluginType = "plugin"
)

// Custom annotations read from the schema document.
const (
	KeywordCLIDescription = "appiumCliDescription"
	KeywordCLIAliases     = "appiumCliAliases"
	KeywordCLITransformer = "appiumCliTransformer"
	KeywordCLIDest        = "appiumCliDest"
	KeywordDeprecated     = "appiumDeprecated"
	KeywordCLIIgnored     = "appiumCliIgnored"
)

// Meta holds the attributes shared by every schema node.
type Meta struct {
	// Name is the key of the property in its parent's "properties".
	Name string
	// ID is the dotted path of schema names from the root ("server.port").
	ID             string
	Description    string
	CLIDescription string
	CLIAliases     []string
	CLITransformer string
	CLIDest        string
	Deprecated     bool
	CLIIgnored     bool
	Default        any
	HasDefault     bool
	// Raw is the JSON text of the node's sub-schema.
	Raw string
}

// Dest returns the canonical key of the property in a normalized config.
func (m *Meta) Dest() string {
	if m.CLIDest != "" {
		return m.CLIDest
	}
	return CamelCase(m.Name)
}

// Node is either a *Leaf or an *Object.
type Node interface {
	Info() *Meta
	sealed()
}

// Leaf is a property that is not a container of named properties.
// A free-form object (type object without "properties") is a Leaf.
type Leaf struct {
	Meta
	Type Type
	Enum []any
}

func (l *Leaf) Info() *Meta { return &l.Meta }
func (*Leaf) sealed()       {}

// Object is a property holding an ordered list of named child properties.
type Object struct {
	Meta
	Children []Node
	index    map[string]Node
}

func (o *Object) Info() *Meta { return &o.Meta }
func (*Object) sealed()       {}

// Child returns the child matching key by schema name, falling back to a
// match on the child's canonical destination name.
func (o *Object) Child(key string) Node {
	if o == nil {
		return nil
	}
	if n, ok := o.index[key]; ok {
		return n
	}
	for _, n := range o.Children {
		if n.Info().Dest() == key {
			return n
		}
	}
	return nil
}

func (o *Object) add(n Node) {
	if o.index == nil {
		o.index = make(map[string]Node)
	}
	o.Children = append(o.Children, n)
	o.index[n.Info().Name] = n
}
