package main

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"runtime"

	"github.com/invopop/jsonschema"
	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"

	"github.com/devicehub/devicehub/engine/extension"
	"github.com/devicehub/devicehub/pkg/config"
	"github.com/devicehub/devicehub/pkg/logger"
	"github.com/devicehub/devicehub/pkg/schema"
)

const draft07 = "http://json-schema.org/draft-07/schema#"

// schemaDefinition names one generated file. Either source is reflected or
// document returns the finished schema.
type schemaDefinition struct {
	name     string
	title    string
	source   any
	document func() ([]byte, error)
}

func (d schemaDefinition) fileName() string {
	return d.name + ".json"
}

var schemaDefinitions = []schemaDefinition{
	{
		name:     "config",
		title:    "Devicehub config file",
		document: baseDocument,
	},
	{
		name:   "resolved-config",
		title:  "Devicehub resolved configuration",
		source: &config.Config{},
	},
	{
		name:   "extensions",
		title:  "Devicehub extensions manifest",
		source: &extension.ManifestFile{},
	},
}

// SchemaGenerator writes editor schemas for the config file, the resolved
// configuration and the extensions manifest.
type SchemaGenerator struct {
	fs          afero.Fs
	definitions []schemaDefinition
}

func NewSchemaGenerator(fs afero.Fs) *SchemaGenerator {
	return &SchemaGenerator{fs: fs, definitions: schemaDefinitions}
}

func (g *SchemaGenerator) Generate(ctx context.Context, outDir string) error {
	log := logger.FromContext(ctx)
	log.Info("Generating JSON schemas", "out", outDir)
	if err := g.fs.MkdirAll(outDir, 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	group, _ := errgroup.WithContext(ctx)
	group.SetLimit(runtime.GOMAXPROCS(0))
	for _, definition := range g.definitions {
		group.Go(func() error {
			schemaJSON, err := buildSchema(definition)
			if err != nil {
				return fmt.Errorf("failed to build schema for %s: %w", definition.name, err)
			}
			filePath := filepath.Join(outDir, definition.fileName())
			if err := afero.WriteFile(g.fs, filePath, schemaJSON, 0o644); err != nil {
				return fmt.Errorf("failed to write schema to %s: %w", filePath, err)
			}
			log.Info("Generated schema", "file", filePath)
			return nil
		})
	}
	return group.Wait()
}

func buildSchema(definition schemaDefinition) ([]byte, error) {
	var raw []byte
	if definition.document != nil {
		doc, err := definition.document()
		if err != nil {
			return nil, err
		}
		raw = doc
	} else {
		reflected := newReflector().Reflect(definition.source)
		reflected.ID = jsonschema.ID(definition.fileName())
		reflected.Version = draft07
		reflected.Extras = map[string]any{"yamlCompatible": true}
		doc, err := json.Marshal(reflected)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal schema: %w", err)
		}
		raw = doc
	}
	var schemaMap map[string]any
	if err := json.Unmarshal(raw, &schemaMap); err != nil {
		return nil, fmt.Errorf("failed to unmarshal schema map: %w", err)
	}
	schemaMap["title"] = definition.title
	return json.MarshalIndent(schemaMap, "", "  ")
}

func newReflector() *jsonschema.Reflector {
	return &jsonschema.Reflector{
		ExpandedStruct:            true,
		AllowAdditionalProperties: false,
	}
}

// baseDocument is the finalized built-in schema with no extensions, the
// schema a config file is validated against.
func baseDocument() ([]byte, error) {
	reg, err := schema.NewBuilder(nil).Finalize()
	if err != nil {
		return nil, fmt.Errorf("failed to finalize base schema: %w", err)
	}
	return reg.Document(), nil
}
