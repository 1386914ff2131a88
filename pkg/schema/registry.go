package schema

import (
	"github.com/kaptinlin/jsonschema"
	"github.com/tidwall/pretty"
)

// Registry is the finalized, read-only schema. It is safe for concurrent use.
type Registry struct {
	root     *Object
	nodes    map[string]Node
	compiled map[string]*jsonschema.Schema
	document []byte
}

// Root returns the root schema node.
func (r *Registry) Root() *Object {
	return r.root
}

// GetSchema returns the node for a dotted property id. The empty id returns
// the root.
func (r *Registry) GetSchema(id string) (Node, error) {
	n, ok := r.nodes[id]
	if !ok {
		return nil, &SchemaLookupError{ID: id}
	}
	return n, nil
}

// Validate checks value against the whole schema.
func (r *Registry) Validate(value any) []ValidationError {
	return evaluate(r.compiled[""], value)
}

// ValidateProperty checks value against the sub-schema of a single property.
func (r *Registry) ValidateProperty(id string, value any) ([]ValidationError, error) {
	compiled, ok := r.compiled[id]
	if !ok {
		return nil, &SchemaLookupError{ID: id}
	}
	return evaluate(compiled, value), nil
}

// Document returns the assembled schema (base plus extensions) as indented JSON.
func (r *Registry) Document() []byte {
	return pretty.Pretty(r.document)
}

// FlatEntry pairs a leaf property with its CLI naming context.
type FlatEntry struct {
	Spec ArgSpec
	Leaf *Leaf
}

// Flatten lists every leaf property in schema document order. Extension
// properties appear where their driver or plugin section sits in the base
// schema, in registration order within the section.
func (r *Registry) Flatten() []FlatEntry {
	var out []FlatEntry
	for _, child := range r.root.Children {
		name := child.Info().Name
		section, isObject := child.(*Object)
		if !isObject || (name != DriverType && name != PluginType) {
			out = flattenNode(out, child, "", "", nil)
			continue
		}
		for _, ext := range section.Children {
			extObj, ok := ext.(*Object)
			if !ok {
				continue
			}
			dest := []string{section.Dest(), extObj.Dest()}
			out = flattenInto(out, extObj, name, extObj.Name, dest)
		}
	}
	return out
}

func flattenInto(out []FlatEntry, obj *Object, extType, extName string, dest []string) []FlatEntry {
	for _, child := range obj.Children {
		out = flattenNode(out, child, extType, extName, dest)
	}
	return out
}

func flattenNode(out []FlatEntry, n Node, extType, extName string, dest []string) []FlatEntry {
	path := append(append([]string(nil), dest...), n.Info().Dest())
	switch node := n.(type) {
	case *Object:
		return flattenInto(out, node, extType, extName, path)
	case *Leaf:
		return append(out, FlatEntry{Spec: newArgSpec(node, extType, extName, path), Leaf: node})
	}
	return out
}

// Defaults returns the schema's default values as a nested map keyed by
// canonical destination names.
func (r *Registry) Defaults() map[string]any {
	out := make(map[string]any)
	collectDefaults(out, r.root)
	return out
}

func collectDefaults(out map[string]any, obj *Object) {
	for _, child := range obj.Children {
		m := child.Info()
		switch node := child.(type) {
		case *Object:
			nested := make(map[string]any)
			collectDefaults(nested, node)
			if len(nested) > 0 {
				out[m.Dest()] = nested
			}
		case *Leaf:
			if m.HasDefault {
				out[m.Dest()] = m.Default
			}
		}
	}
}
