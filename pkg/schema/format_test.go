package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatErrors(t *testing.T) {
	t.Run("Should fail for an empty list", func(t *testing.T) {
		_, err := FormatErrors(nil, nil, FormatOptions{})
		assert.ErrorIs(t, err, ErrNoValidationErrors)
	})

	t.Run("Should reference the instance path and schema keyword", func(t *testing.T) {
		errs := []ValidationError{{
			SchemaPath:   "#/properties/server/properties/port/type",
			InstancePath: "/server/port",
			Keyword:      "type",
			Message:      "Value is string but should be integer",
			Data:         "nope",
		}}
		out, err := FormatErrors(errs, nil, FormatOptions{})
		require.NoError(t, err)
		assert.Contains(t, out, "Configuration is invalid:")
		assert.Contains(t, out, "/server/port")
		assert.Contains(t, out, "#/properties/server/properties/port/type")
		assert.Contains(t, out, `"nope"`)
	})

	t.Run("Should name the property when a schema id is given", func(t *testing.T) {
		errs := []ValidationError{{SchemaPath: "#/maximum", Keyword: "maximum", Message: "too big"}}
		out, err := FormatErrors(errs, 70000, FormatOptions{SchemaID: "server.port"})
		require.NoError(t, err)
		assert.Contains(t, out, `Invalid value for "server.port":`)
		assert.Contains(t, out, "70000")
	})

	t.Run("Should include a code frame when the raw document is known", func(t *testing.T) {
		doc := "{\n  \"server\": {\n    \"port\": \"nope\"\n  }\n}"
		errs := []ValidationError{{
			SchemaPath:   "#/properties/server/properties/port/type",
			InstancePath: "/server/port",
			Keyword:      "type",
			Message:      "wrong type",
		}}
		out, err := FormatErrors(errs, nil, FormatOptions{JSON: doc})
		require.NoError(t, err)
		assert.Contains(t, out, `3 |     "port": "nope"`)
		assert.Contains(t, out, "> 3")
	})
}

func TestPointerToGJSON(t *testing.T) {
	t.Run("Should escape special characters", func(t *testing.T) {
		assert.Equal(t, "server.port", pointerToGJSON("/server/port"))
		assert.Equal(t, `caps.appium:app\.name`, pointerToGJSON("/caps/appium:app.name"))
		assert.Equal(t, "a/b", pointerToGJSON("/a~1b"))
		assert.Equal(t, "", pointerToGJSON(""))
	})
}
