package cliargs

import (
	"strings"

	"github.com/devicehub/devicehub/pkg/schema"
)

// EnvMappings maps environment variable names to the definitions they set.
// The name is prefix, an underscore, then the primary flag in screaming
// snake case: --base-path becomes DEVICEHUB_BASE_PATH.
func EnvMappings(defs []ArgDefinition, prefix string) map[string]*ArgDefinition {
	out := make(map[string]*ArgDefinition, len(defs))
	for i := range defs {
		out[EnvName(prefix, &defs[i])] = &defs[i]
	}
	return out
}

// EnvName returns the environment variable that sets def.
func EnvName(prefix string, def *ArgDefinition) string {
	name := schema.ScreamingSnakeCase(flagName(def.Primary()))
	if prefix == "" {
		return name
	}
	return strings.TrimSuffix(prefix, "_") + "_" + name
}
