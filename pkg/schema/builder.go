package schema

import (
	_ "embed"
	"encoding/json"
	"fmt"

	"github.com/kaptinlin/jsonschema"
	"github.com/tidwall/gjson"
)

//go:embed base.schema.json
var baseSchema []byte

// BaseSchema returns a copy of the embedded base configuration schema.
func BaseSchema() []byte {
	out := make([]byte, len(baseSchema))
	copy(out, baseSchema)
	return out
}

type extensionDoc struct {
	extType string
	extName string
	raw     []byte
}

// Builder collects the base schema and extension schemas. Finalize freezes
// the result into a read-only Registry; the Builder cannot be reused.
type Builder struct {
	base      []byte
	exts      []extensionDoc
	seen      map[string]bool
	finalized bool
}

// NewBuilder starts from the given base schema, or the embedded one when nil.
func NewBuilder(base []byte) *Builder {
	if base == nil {
		base = BaseSchema()
	}
	return &Builder{base: base, seen: make(map[string]bool)}
}

// RegisterExtension attaches an extension's schema under the driver or
// plugin section of the root schema.
func (b *Builder) RegisterExtension(extType, extName string, doc []byte) error {
	if b.finalized {
		return ErrFinalized
	}
	if extType != DriverType && extType != PluginType {
		return fmt.Errorf("unknown extension type %q", extType)
	}
	if extName == "" {
		return fmt.Errorf("%s schema requires a name", extType)
	}
	key := extType + "." + extName
	if b.seen[key] {
		return fmt.Errorf("schema for %s %q is already registered", extType, extName)
	}
	if !gjson.ValidBytes(doc) {
		return fmt.Errorf("schema for %s %q is not valid JSON", extType, extName)
	}
	r := gjson.ParseBytes(doc)
	if !r.IsObject() || !r.Get("properties").IsObject() {
		return fmt.Errorf("schema for %s %q must be an object declaring \"properties\"", extType, extName)
	}
	b.seen[key] = true
	b.exts = append(b.exts, extensionDoc{extType: extType, extName: extName, raw: doc})
	return nil
}

// Finalize parses and compiles every registered schema.
func (b *Builder) Finalize() (*Registry, error) {
	if b.finalized {
		return nil, ErrFinalized
	}
	b.finalized = true

	if !gjson.ValidBytes(b.base) {
		return nil, fmt.Errorf("base schema is not valid JSON")
	}
	rootNode, err := parseNode("", "", gjson.ParseBytes(b.base))
	if err != nil {
		return nil, err
	}
	root, ok := rootNode.(*Object)
	if !ok {
		return nil, fmt.Errorf("base schema must declare \"properties\"")
	}

	var document map[string]any
	if err := json.Unmarshal(b.base, &document); err != nil {
		return nil, fmt.Errorf("failed to decode base schema: %w", err)
	}
	for _, ext := range b.exts {
		if err := attachExtension(root, document, ext); err != nil {
			return nil, err
		}
	}

	reg := &Registry{
		root:     root,
		nodes:    make(map[string]Node),
		compiled: make(map[string]*jsonschema.Schema),
	}
	reg.document, err = json.Marshal(document)
	if err != nil {
		return nil, fmt.Errorf("failed to encode schema: %w", err)
	}
	if err := reg.compile(root, document); err != nil {
		return nil, err
	}
	return reg, nil
}

func attachExtension(root *Object, document map[string]any, ext extensionDoc) error {
	section, ok := root.index[ext.extType].(*Object)
	if !ok {
		return fmt.Errorf("base schema has no %q section", ext.extType)
	}
	if _, exists := section.index[ext.extName]; exists {
		return fmt.Errorf("schema for %s %q collides with an existing property", ext.extType, ext.extName)
	}
	node, err := parseNode(ext.extName, joinID(ext.extType, ext.extName), gjson.ParseBytes(ext.raw))
	if err != nil {
		return err
	}
	section.add(node)

	var extDoc map[string]any
	if err := json.Unmarshal(ext.raw, &extDoc); err != nil {
		return fmt.Errorf("failed to decode schema for %s %q: %w", ext.extType, ext.extName, err)
	}
	sectionDoc := propertyDoc(document, ext.extType)
	if sectionDoc == nil {
		return fmt.Errorf("base schema has no %q section", ext.extType)
	}
	props, _ := sectionDoc["properties"].(map[string]any)
	if props == nil {
		props = make(map[string]any)
		sectionDoc["properties"] = props
	}
	props[ext.extName] = extDoc
	return nil
}

func propertyDoc(parent map[string]any, name string) map[string]any {
	props, _ := parent["properties"].(map[string]any)
	child, _ := props[name].(map[string]any)
	return child
}

// compile registers n and compiles its sub-schema, then recurses.
func (r *Registry) compile(n Node, doc map[string]any) error {
	id := n.Info().ID
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to encode schema for %q: %w", id, err)
	}
	compiled, err := jsonschema.NewCompiler().Compile(raw)
	if err != nil {
		return fmt.Errorf("failed to compile schema for %q: %w", id, err)
	}
	r.nodes[id] = n
	r.compiled[id] = compiled

	obj, ok := n.(*Object)
	if !ok {
		return nil
	}
	for _, child := range obj.Children {
		childDoc := propertyDoc(doc, child.Info().Name)
		if childDoc == nil {
			return fmt.Errorf("schema for %q is missing", child.Info().ID)
		}
		if err := r.compile(child, childDoc); err != nil {
			return err
		}
	}
	return nil
}
