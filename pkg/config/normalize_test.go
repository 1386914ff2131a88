package config

import (
	"testing"

	"github.com/devicehub/devicehub/pkg/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const fakeDriverSchema = `{
  "type": "object",
  "properties": {
    "sillyWebServerPort": {"type": "integer", "minimum": 1, "maximum": 65535},
    "sillyWebServerHost": {"type": "string"}
  }
}`

func newTestRegistry(t *testing.T) *schema.Registry {
	t.Helper()
	b := schema.NewBuilder(nil)
	require.NoError(t, b.RegisterExtension(schema.DriverType, "fake", []byte(fakeDriverSchema)))
	reg, err := b.Finalize()
	require.NoError(t, err)
	return reg
}

func TestNormalize(t *testing.T) {
	reg := newTestRegistry(t)

	t.Run("Should rename keys to their canonical names", func(t *testing.T) {
		out := Normalize(reg, map[string]any{
			"server": map[string]any{
				"base-path": "/wd/hub",
				"log-level": "debug:info",
				"log":       "/tmp/devicehub.log",
				"port":      float64(4724),
			},
		})
		assert.Equal(t, map[string]any{
			"server": map[string]any{
				"basePath": "/wd/hub",
				"logLevel": "debug:info",
				"logFile":  "/tmp/devicehub.log",
				"port":     float64(4724),
			},
		}, out)
	})

	t.Run("Should camel-case keys unknown to the schema", func(t *testing.T) {
		out := Normalize(reg, map[string]any{"appium-base-path": "/wd"})
		assert.Equal(t, map[string]any{"appiumBasePath": "/wd"}, out)
	})

	t.Run("Should recurse into extension sections", func(t *testing.T) {
		out := Normalize(reg, map[string]any{
			"driver": map[string]any{
				"fake": map[string]any{"sillyWebServerPort": float64(1234)},
			},
		})
		assert.Equal(t, map[string]any{
			"driver": map[string]any{
				"fake": map[string]any{"sillyWebServerPort": float64(1234)},
			},
		}, out)
	})

	t.Run("Should keep the keys of free-form objects", func(t *testing.T) {
		caps := map[string]any{"appium:deviceName": "Pixel", "platform-name": "Android"}
		out := Normalize(reg, map[string]any{
			"server": map[string]any{"default-capabilities": caps},
		})
		server := out["server"].(map[string]any)
		assert.Equal(t, caps, server["defaultCapabilities"])
	})

	t.Run("Should be idempotent", func(t *testing.T) {
		raw := map[string]any{
			"server": map[string]any{
				"base-path":        "/wd/hub",
				"relaxed-security": true,
				"tmp":              "/tmp",
			},
			"some_other-key": 1,
		}
		once := Normalize(reg, raw)
		twice := Normalize(reg, once)
		assert.Equal(t, once, twice)
		assert.Equal(t, true, once["server"].(map[string]any)["relaxedSecurityEnabled"])
	})

	t.Run("Should return nil for a nil config", func(t *testing.T) {
		assert.Nil(t, Normalize(reg, nil))
	})
}
