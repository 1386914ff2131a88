package schema

import (
	"sort"
	"strconv"
	"strings"

	"github.com/kaptinlin/jsonschema"
)

// evaluate runs compiled against value and flattens the evaluation tree into
// the innermost failing keywords.
func evaluate(compiled *jsonschema.Schema, value any) []ValidationError {
	if compiled == nil {
		return nil
	}
	result := compiled.Validate(value)
	if result == nil || result.Valid {
		return nil
	}
	var out []ValidationError
	collectFailures(&out, result, value, "", "")
	if len(out) == 0 {
		out = append(out, ValidationError{
			SchemaPath: "#",
			Message:    "value does not match the schema",
			Data:       value,
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].InstancePath != out[j].InstancePath {
			return out[i].InstancePath < out[j].InstancePath
		}
		return out[i].SchemaPath < out[j].SchemaPath
	})
	return out
}

// collectFailures walks the evaluation tree. Each result carries its
// instance and evaluation locations relative to its parent, so the absolute
// pointers are accumulated on the way down.
func collectFailures(out *[]ValidationError, r *jsonschema.EvaluationResult, instance any, instanceBase, evalBase string) {
	location := joinPointer(instanceBase, r.InstanceLocation)
	evalPath := joinPointer(evalBase, r.EvaluationPath)
	descended := false
	for _, detail := range r.Details {
		if detail != nil && !detail.Valid {
			collectFailures(out, detail, instance, location, evalPath)
			descended = true
		}
	}
	keywords := make([]string, 0, len(r.Errors))
	for kw := range r.Errors {
		// Applicator keywords only summarize failures already reported by
		// their details.
		if descended && applicatorKeywords[kw] {
			continue
		}
		keywords = append(keywords, kw)
	}
	sort.Strings(keywords)
	for _, kw := range keywords {
		e := r.Errors[kw]
		instancePath := location
		// A missing required property is reported at its own location.
		if prop, ok := e.Params["property"].(string); ok && kw == "required" {
			instancePath = instancePath + "/" + escapePointer(prop)
		}
		*out = append(*out, ValidationError{
			SchemaPath:   schemaPointer(evalPath, kw),
			InstancePath: instancePath,
			Keyword:      kw,
			Message:      e.Error(),
			Data:         lookupPointer(instance, location),
		})
	}
}

var applicatorKeywords = map[string]bool{
	"properties":        true,
	"patternProperties": true,
	"items":             true,
	"prefixItems":       true,
	"contains":          true,
	"allOf":             true,
	"anyOf":             true,
	"oneOf":             true,
	"not":               true,
	"if":                true,
	"then":              true,
	"else":              true,
	"dependentSchemas":  true,
	"propertyNames":     true,
}

func joinPointer(base, rel string) string {
	rel = strings.TrimPrefix(rel, "#")
	if rel == "" || rel == "/" {
		return base
	}
	if !strings.HasPrefix(rel, "/") {
		rel = "/" + rel
	}
	return base + rel
}

func schemaPointer(evaluationPath, keyword string) string {
	path := strings.TrimSuffix(strings.TrimPrefix(evaluationPath, "#"), "/")
	if strings.HasSuffix(path, "/"+keyword) {
		return "#" + path
	}
	return "#" + path + "/" + keyword
}

func escapePointer(s string) string {
	return strings.ReplaceAll(strings.ReplaceAll(s, "~", "~0"), "/", "~1")
}

func unescapePointer(s string) string {
	return strings.ReplaceAll(strings.ReplaceAll(s, "~1", "/"), "~0", "~")
}

// lookupPointer resolves a JSON pointer against a decoded JSON value.
func lookupPointer(value any, pointer string) any {
	if pointer == "" || pointer == "/" {
		return value
	}
	current := value
	for _, seg := range strings.Split(strings.TrimPrefix(pointer, "/"), "/") {
		seg = unescapePointer(seg)
		switch v := current.(type) {
		case map[string]any:
			next, ok := v[seg]
			if !ok {
				return nil
			}
			current = next
		case []any:
			idx, err := strconv.Atoi(seg)
			if err != nil || idx < 0 || idx >= len(v) {
				return nil
			}
			current = v[idx]
		default:
			return nil
		}
	}
	return current
}
