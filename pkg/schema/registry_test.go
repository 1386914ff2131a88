package schema

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const fakeDriverSchema = `{
  "type": "object",
  "title": "fake driver config",
  "properties": {
    "sillyWebServerPort": {
      "type": "integer",
      "minimum": 1,
      "maximum": 65535,
      "description": "The port to use for the fake web server"
    },
    "sillyWebServerHost": {
      "type": "string",
      "description": "The host to use for the fake web server"
    }
  }
}`

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	b := NewBuilder(nil)
	require.NoError(t, b.RegisterExtension(DriverType, "fake", []byte(fakeDriverSchema)))
	reg, err := b.Finalize()
	require.NoError(t, err)
	return reg
}

func TestBuilder_Finalize(t *testing.T) {
	t.Run("Should finalize the embedded base schema", func(t *testing.T) {
		reg, err := NewBuilder(nil).Finalize()
		require.NoError(t, err)
		require.NotNil(t, reg.Root())
		assert.NotNil(t, reg.Root().Child("server"))
		assert.NotNil(t, reg.Root().Child(DriverType))
		assert.NotNil(t, reg.Root().Child(PluginType))
	})

	t.Run("Should reject registrations after finalize", func(t *testing.T) {
		b := NewBuilder(nil)
		_, err := b.Finalize()
		require.NoError(t, err)
		err = b.RegisterExtension(DriverType, "fake", []byte(fakeDriverSchema))
		assert.ErrorIs(t, err, ErrFinalized)
		_, err = b.Finalize()
		assert.ErrorIs(t, err, ErrFinalized)
	})

	t.Run("Should reject duplicate extension schemas", func(t *testing.T) {
		b := NewBuilder(nil)
		require.NoError(t, b.RegisterExtension(DriverType, "fake", []byte(fakeDriverSchema)))
		err := b.RegisterExtension(DriverType, "fake", []byte(fakeDriverSchema))
		assert.Error(t, err)
	})

	t.Run("Should reject unknown extension types", func(t *testing.T) {
		err := NewBuilder(nil).RegisterExtension("widget", "fake", []byte(fakeDriverSchema))
		assert.Error(t, err)
	})

	t.Run("Should reject extension schemas without properties", func(t *testing.T) {
		err := NewBuilder(nil).RegisterExtension(PluginType, "bare", []byte(`{"type":"object"}`))
		assert.Error(t, err)
		err = NewBuilder(nil).RegisterExtension(PluginType, "broken", []byte(`{"type":`))
		assert.Error(t, err)
	})
}

func TestRegistry_GetSchema(t *testing.T) {
	reg := newTestRegistry(t)

	t.Run("Should return the root schema for an empty id", func(t *testing.T) {
		node, err := reg.GetSchema("")
		require.NoError(t, err)
		assert.Same(t, reg.Root(), node)
	})

	t.Run("Should return a leaf with its annotations", func(t *testing.T) {
		node, err := reg.GetSchema("server.port")
		require.NoError(t, err)
		leaf, ok := node.(*Leaf)
		require.True(t, ok)
		assert.Equal(t, TypeInteger, leaf.Type)
		assert.Equal(t, []string{"p"}, leaf.CLIAliases)
		assert.Equal(t, "port", leaf.Dest())
	})

	t.Run("Should resolve the canonical destination of annotated properties", func(t *testing.T) {
		node, err := reg.GetSchema("server.base-path")
		require.NoError(t, err)
		assert.Equal(t, "basePath", node.Info().Dest())
		node, err = reg.GetSchema("server.log-level")
		require.NoError(t, err)
		assert.Equal(t, "logLevel", node.Info().Dest())
	})

	t.Run("Should return extension schemas", func(t *testing.T) {
		node, err := reg.GetSchema("driver.fake")
		require.NoError(t, err)
		_, ok := node.(*Object)
		assert.True(t, ok)
	})

	t.Run("Should fail with a lookup error for unknown ids", func(t *testing.T) {
		_, err := reg.GetSchema("server.nope")
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrSchemaLookup))
		var lookupErr *SchemaLookupError
		require.ErrorAs(t, err, &lookupErr)
		assert.Equal(t, "server.nope", lookupErr.ID)
	})
}

func TestRegistry_Validate(t *testing.T) {
	reg := newTestRegistry(t)

	t.Run("Should accept a valid configuration", func(t *testing.T) {
		errs := reg.Validate(map[string]any{
			"server": map[string]any{
				"port":      float64(4724),
				"log-level": "debug:info",
			},
			"driver": map[string]any{
				"fake": map[string]any{"sillyWebServerPort": float64(1234)},
			},
		})
		assert.Empty(t, errs)
	})

	t.Run("Should report a type mismatch referencing the property", func(t *testing.T) {
		errs := reg.Validate(map[string]any{
			"server": map[string]any{"port": "not-a-number"},
		})
		require.NotEmpty(t, errs)
		assert.Equal(t, "#/properties/server/properties/port/type", errs[0].SchemaPath)
		assert.Equal(t, "/server/port", errs[0].InstancePath)
		assert.Equal(t, "not-a-number", errs[0].Data)
	})

	t.Run("Should report nested extension failures at their absolute location", func(t *testing.T) {
		errs := reg.Validate(map[string]any{
			"driver": map[string]any{
				"fake": map[string]any{"sillyWebServerPort": "high"},
			},
		})
		require.NotEmpty(t, errs)
		assert.Equal(t, "/driver/fake/sillyWebServerPort", errs[0].InstancePath)
		assert.Equal(t, "high", errs[0].Data)
	})

	t.Run("Should validate extension sections", func(t *testing.T) {
		errs := reg.Validate(map[string]any{
			"driver": map[string]any{
				"fake": map[string]any{"sillyWebServerPort": float64(70000)},
			},
		})
		require.NotEmpty(t, errs)
		assert.Contains(t, errs[0].SchemaPath, "sillyWebServerPort")
	})

	t.Run("Should validate a single property", func(t *testing.T) {
		errs, err := reg.ValidateProperty("server.port", 70000)
		require.NoError(t, err)
		assert.NotEmpty(t, errs)

		errs, err = reg.ValidateProperty("server.port", 8080)
		require.NoError(t, err)
		assert.Empty(t, errs)

		_, err = reg.ValidateProperty("server.nope", 1)
		assert.ErrorIs(t, err, ErrSchemaLookup)
	})
}

func TestRegistry_Flatten(t *testing.T) {
	reg := newTestRegistry(t)
	entries := reg.Flatten()

	t.Run("Should list base properties in document order", func(t *testing.T) {
		require.NotEmpty(t, entries)
		assert.Equal(t, "server.address", entries[0].Spec.ID)
		assert.Equal(t, "server.port", entries[1].Spec.ID)
		last := entries[len(entries)-1]
		assert.Equal(t, DriverType, last.Spec.ExtType)
		assert.Equal(t, "fake", last.Spec.ExtName)
		assert.Equal(t, "driver.fake.sillyWebServerHost", last.Spec.ID)
	})

	t.Run("Should keep sections that follow the extension sections in place", func(t *testing.T) {
		b := NewBuilder([]byte(`{"type":"object","properties":{
			"server":{"type":"object","properties":{"address":{"type":"string"}}},
			"driver":{"type":"object","properties":{}},
			"plugin":{"type":"object","properties":{}},
			"tuning":{"type":"object","properties":{"depth":{"type":"integer"}}}}}`))
		require.NoError(t, b.RegisterExtension(DriverType, "fake", []byte(fakeDriverSchema)))
		custom, err := b.Finalize()
		require.NoError(t, err)
		var ids []string
		for _, e := range custom.Flatten() {
			ids = append(ids, e.Spec.ID)
		}
		assert.Equal(t, []string{
			"server.address",
			"driver.fake.sillyWebServerPort",
			"driver.fake.sillyWebServerHost",
			"tuning.depth",
		}, ids)
	})

	t.Run("Should compute destination paths from canonical names", func(t *testing.T) {
		byID := make(map[string]ArgSpec, len(entries))
		for _, e := range entries {
			byID[e.Spec.ID] = e.Spec
		}
		assert.Equal(t, "server.basePath", byID["server.base-path"].Dest)
		assert.Equal(t, "basePath", byID["server.base-path"].Name)
		assert.Equal(t, "server.logFile", byID["server.log"].Dest)
		assert.Equal(t, "driver.fake.sillyWebServerPort", byID["driver.fake.sillyWebServerPort"].Dest)
	})

	t.Run("Should treat free-form objects as leaves", func(t *testing.T) {
		var found bool
		for _, e := range entries {
			if e.Spec.ID == "server.default-capabilities" {
				found = true
				assert.Equal(t, TypeObject, e.Leaf.Type)
			}
		}
		assert.True(t, found)
	})
}

func TestRegistry_Defaults(t *testing.T) {
	t.Run("Should collect defaults keyed by canonical names", func(t *testing.T) {
		reg := newTestRegistry(t)
		defaults := reg.Defaults()
		server, ok := defaults["server"].(map[string]any)
		require.True(t, ok)
		assert.Equal(t, float64(4723), server["port"])
		assert.Equal(t, "", server["basePath"])
		assert.Equal(t, "debug", server["logLevel"])
		_, hasLog := server["logFile"]
		assert.False(t, hasLog)
	})
}
