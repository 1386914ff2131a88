package config

import "github.com/devicehub/devicehub/pkg/schema"

// Normalize renames the keys of a raw configuration to their canonical
// destination names, recursing into sections declared by the schema.
// Unknown keys are camel-cased. Normalize is idempotent.
func Normalize(reg *schema.Registry, raw map[string]any) map[string]any {
	if raw == nil {
		return nil
	}
	return normalizeSection(reg.Root(), raw)
}

func normalizeSection(section *schema.Object, raw map[string]any) map[string]any {
	out := make(map[string]any, len(raw))
	for key, value := range raw {
		child := section.Child(key)
		if child == nil {
			out[schema.CamelCase(key)] = value
			continue
		}
		if nested, ok := child.(*schema.Object); ok {
			if m, ok := value.(map[string]any); ok {
				value = normalizeSection(nested, m)
			}
		}
		out[child.Info().Dest()] = value
	}
	return out
}
