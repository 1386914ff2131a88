package config

import "github.com/devicehub/devicehub/pkg/cliargs"

// EnvPrefix prefixes every environment variable read by the loader.
const EnvPrefix = "DEVICEHUB"

// EnvMapping pairs an environment variable with the key it sets.
type EnvMapping struct {
	EnvVar     string `json:"envVar"`
	ConfigPath string `json:"configPath"`
	Flag       string `json:"flag"`
}

// GenerateEnvMappings lists the environment variables understood for defs,
// in flag order.
func GenerateEnvMappings(defs []cliargs.ArgDefinition) []EnvMapping {
	out := make([]EnvMapping, 0, len(defs))
	for i := range defs {
		out = append(out, EnvMapping{
			EnvVar:     cliargs.EnvName(EnvPrefix, &defs[i]),
			ConfigPath: defs[i].Spec.Dest,
			Flag:       defs[i].Primary(),
		})
	}
	return out
}
