package schema

import (
	"fmt"

	"github.com/tidwall/gjson"
)

// parseNode walks a sub-schema in document order. gjson keeps the source
// ordering of "properties", which drives the order of derived CLI flags.
func parseNode(name, id string, r gjson.Result) (Node, error) {
	if !r.IsObject() {
		return nil, fmt.Errorf("schema for %q must be an object", id)
	}
	meta := Meta{
		Name:           name,
		ID:             id,
		Description:    r.Get("description").String(),
		CLIDescription: r.Get(KeywordCLIDescription).String(),
		CLITransformer: r.Get(KeywordCLITransformer).String(),
		CLIDest:        r.Get(KeywordCLIDest).String(),
		Deprecated:     r.Get(KeywordDeprecated).Bool(),
		CLIIgnored:     r.Get(KeywordCLIIgnored).Bool(),
		Raw:            r.Raw,
	}
	for _, alias := range r.Get(KeywordCLIAliases).Array() {
		if s := alias.String(); s != "" {
			meta.CLIAliases = append(meta.CLIAliases, s)
		}
	}
	if d := r.Get("default"); d.Exists() {
		meta.Default = d.Value()
		meta.HasDefault = true
	}

	if props := r.Get("properties"); props.IsObject() {
		obj := &Object{Meta: meta}
		var err error
		props.ForEach(func(key, value gjson.Result) bool {
			childName := key.String()
			var child Node
			child, err = parseNode(childName, joinID(id, childName), value)
			if err != nil {
				return false
			}
			obj.add(child)
			return true
		})
		if err != nil {
			return nil, err
		}
		return obj, nil
	}

	leaf := &Leaf{Meta: meta, Type: parseType(r.Get("type"))}
	if enum := r.Get("enum"); enum.IsArray() {
		for _, v := range enum.Array() {
			leaf.Enum = append(leaf.Enum, v.Value())
		}
	}
	return leaf, nil
}

// parseType resolves "type", which may be a string or a list of strings.
// For a list, the first non-null entry wins.
func parseType(r gjson.Result) Type {
	if !r.Exists() {
		return ""
	}
	if !r.IsArray() {
		return Type(r.String())
	}
	var t Type
	for _, v := range r.Array() {
		if Type(v.String()) != TypeNull {
			return Type(v.String())
		}
		t = TypeNull
	}
	return t
}

func joinID(parent, name string) string {
	if parent == "" {
		return name
	}
	return parent + "." + name
}
