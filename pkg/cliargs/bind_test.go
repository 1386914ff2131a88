package cliargs

import (
	"testing"

	"github.com/spf13/afero"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBoundFlagSet(t *testing.T) (*pflag.FlagSet, []ArgDefinition) {
	t.Helper()
	defs, err := ToParserArgs(newRegistry(t, ""), Options{Fs: afero.NewMemMapFs()})
	require.NoError(t, err)
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	require.NoError(t, Bind(fs, defs))
	return fs, defs
}

func TestBind(t *testing.T) {
	t.Run("Should parse long names, shorthands and alternate aliases", func(t *testing.T) {
		fs, defs := newBoundFlagSet(t)
		args := RewriteArgs([]string{
			"-p", "8080",
			"-pa", "/wd/hub",
			"--allow-cors",
			"--driver-fake-to", "1234",
			"--log-level", "info:debug",
		}, defs)
		require.NoError(t, fs.Parse(args))

		flat := Collect(fs)
		assert.Equal(t, map[string]any{
			"server.port":                    8080,
			"server.basePath":                "/wd/hub",
			"server.allowCors":               true,
			"driver.fake.sillyWebServerPort": 1234,
			"server.logLevel":                "info:debug",
		}, flat)
	})

	t.Run("Should only collect flags that were set", func(t *testing.T) {
		fs, _ := newBoundFlagSet(t)
		require.NoError(t, fs.Parse([]string{"--address", "127.0.0.1"}))
		assert.Equal(t, map[string]any{"server.address": "127.0.0.1"}, Collect(fs))
	})

	t.Run("Should fail on invalid values", func(t *testing.T) {
		fs, _ := newBoundFlagSet(t)
		err := fs.Parse([]string{"--port", "70000"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "70000")
	})

	t.Run("Should reject duplicate registrations", func(t *testing.T) {
		fs, defs := newBoundFlagSet(t)
		assert.Error(t, Bind(fs, defs[:1]))
	})

	t.Run("Should render the metavar in usage", func(t *testing.T) {
		fs, _ := newBoundFlagSet(t)
		usage := fs.FlagUsages()
		assert.Contains(t, usage, "-p, --port PORT")
		assert.Contains(t, usage, "--base-path BASE_PATH")
		assert.Contains(t, usage, "[DEPRECATED]")
	})
}

func TestNest(t *testing.T) {
	t.Run("Should expand dotted destinations", func(t *testing.T) {
		nested := Nest(map[string]any{
			"server.port":                    8080,
			"server.basePath":                "/wd/hub",
			"driver.fake.sillyWebServerPort": 1234,
		})
		assert.Equal(t, map[string]any{
			"server": map[string]any{"port": 8080, "basePath": "/wd/hub"},
			"driver": map[string]any{
				"fake": map[string]any{"sillyWebServerPort": 1234},
			},
		}, nested)
	})
}

func TestRewriteArgs(t *testing.T) {
	defs := []ArgDefinition{{Aliases: []string{"--base-path", "-pa"}}}

	t.Run("Should rewrite multi-character single-dash aliases", func(t *testing.T) {
		assert.Equal(t, []string{"--pa", "/x", "-p", "1"}, RewriteArgs([]string{"-pa", "/x", "-p", "1"}, defs))
		assert.Equal(t, []string{"--pa=/x"}, RewriteArgs([]string{"-pa=/x"}, defs))
	})

	t.Run("Should leave arguments after the terminator untouched", func(t *testing.T) {
		assert.Equal(t, []string{"--", "-pa"}, RewriteArgs([]string{"--", "-pa"}, defs))
	})
}

func TestEnvMappings(t *testing.T) {
	t.Run("Should derive variable names from the primary flag", func(t *testing.T) {
		defs, err := ToParserArgs(newRegistry(t, ""), Options{Fs: afero.NewMemMapFs()})
		require.NoError(t, err)
		mappings := EnvMappings(defs, "DEVICEHUB")
		require.Contains(t, mappings, "DEVICEHUB_PORT")
		assert.Equal(t, "server.port", mappings["DEVICEHUB_PORT"].Spec.ID)
		require.Contains(t, mappings, "DEVICEHUB_BASE_PATH")
		require.Contains(t, mappings, "DEVICEHUB_DRIVER_FAKE_SILLY_WEB_SERVER_PORT")
	})
}
