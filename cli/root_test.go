package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devicehub/devicehub/cli/cmd"
	"github.com/devicehub/devicehub/engine/extension"
)

const testHome = "/home/tester/.devicehub"

type stubInstaller struct {
	installed   []string
	uninstalled []string
}

func (s *stubInstaller) Install(_ context.Context, req extension.InstallRequest) (*extension.PackageData, error) {
	s.installed = append(s.installed, req.Spec)
	return &extension.PackageData{
		Name:    "appium-fake-driver",
		Version: "1.2.0",
		Path:    testHome + "/node_modules/appium-fake-driver",
		Stanza: map[string]any{
			"driverName":     "fake",
			"automationName": "Fake",
			"platformNames":  []any{"Fake"},
			"mainClass":      "FakeDriver",
		},
	}, nil
}

func (s *stubInstaller) Uninstall(_ context.Context, pkgName string) error {
	s.uninstalled = append(s.uninstalled, pkgName)
	return nil
}

func (s *stubInstaller) Versions(context.Context, string) ([]string, error) {
	return []string{"1.2.0"}, nil
}

func (s *stubInstaller) RunScript(context.Context, string, string, []string) (*extension.RunResult, error) {
	return &extension.RunResult{Output: []string{"done"}}, nil
}

type harness struct {
	fs        afero.Fs
	stdout    bytes.Buffer
	stderr    bytes.Buffer
	installer *stubInstaller
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	t.Setenv("NO_COLOR", "1")
	return &harness{fs: afero.NewMemMapFs(), installer: &stubInstaller{}}
}

func (h *harness) run(t *testing.T, args ...string) int {
	t.Helper()
	h.stdout.Reset()
	h.stderr.Reset()
	return Execute(t.Context(), args, cmd.RuntimeOptions{
		Fs:     h.fs,
		Home:   testHome,
		Stdout: &h.stdout,
		Stderr: &h.stderr,
		NewInstaller: func(afero.Fs, string) extension.Installer {
			return h.installer
		},
	})
}

func (h *harness) showConfig(t *testing.T, args ...string) map[string]any {
	t.Helper()
	code := h.run(t, append(args, "--show-config")...)
	require.Equal(t, 0, code, h.stderr.String())
	var out map[string]any
	require.NoError(t, json.Unmarshal(h.stdout.Bytes(), &out))
	return out
}

func serverValue(t *testing.T, out map[string]any, key string) any {
	t.Helper()
	cfg, ok := out["config"].(map[string]any)
	require.True(t, ok)
	server, ok := cfg["server"].(map[string]any)
	require.True(t, ok)
	return server[key]
}

func TestExecute_Server(t *testing.T) {
	t.Run("Should run the server command when no subcommand is given", func(t *testing.T) {
		h := newHarness(t)
		out := h.showConfig(t, "--port", "4800", "-pa", "/wd/hub")
		assert.Equal(t, float64(4800), serverValue(t, out, "port"))
		assert.Equal(t, "/wd/hub", serverValue(t, out, "basePath"))
		sources := out["sources"].(map[string]any)
		assert.Equal(t, "cli", sources["server.port"])
	})

	t.Run("Should layer the config file under environment and flags", func(t *testing.T) {
		h := newHarness(t)
		require.NoError(t, afero.WriteFile(h.fs, "/etc/devicehub.yaml",
			[]byte("server:\n  port: 4801\n  base-path: /file\n  address: 10.0.0.1\n"), 0o644))
		t.Setenv("DEVICEHUB_PORT", "4802")
		out := h.showConfig(t, "server", "--config", "/etc/devicehub.yaml", "--address", "127.0.0.1")
		assert.Equal(t, float64(4802), serverValue(t, out, "port"))
		assert.Equal(t, "/file", serverValue(t, out, "basePath"))
		assert.Equal(t, "127.0.0.1", serverValue(t, out, "address"))
		assert.Equal(t, "/etc/devicehub.yaml", out["file"])
	})

	t.Run("Should reject a config file that fails validation", func(t *testing.T) {
		h := newHarness(t)
		require.NoError(t, afero.WriteFile(h.fs, "/etc/devicehub.json",
			[]byte(`{"server": {"port": "not-a-port"}}`), 0o644))
		code := h.run(t, "--config", "/etc/devicehub.json")
		assert.Equal(t, 1, code)
		assert.Contains(t, h.stderr.String(), "is invalid")
		assert.Contains(t, h.stderr.String(), "/server/port")
	})

	t.Run("Should report a missing explicit config file", func(t *testing.T) {
		h := newHarness(t)
		code := h.run(t, "--config", "/nope.json")
		assert.Equal(t, 1, code)
		assert.Contains(t, h.stderr.String(), "Config file not found")
	})

	t.Run("Should apply variables from an env file beneath the process environment", func(t *testing.T) {
		h := newHarness(t)
		require.NoError(t, afero.WriteFile(h.fs, "/srv/.env",
			[]byte("# local overrides\nDEVICEHUB_PORT=4803\nDEVICEHUB_BASE_PATH=/dotenv\n"), 0o644))
		t.Setenv("DEVICEHUB_BASE_PATH", "/process")
		out := h.showConfig(t, "--env-file", "/srv/.env")
		assert.Equal(t, float64(4803), serverValue(t, out, "port"))
		assert.Equal(t, "/process", serverValue(t, out, "basePath"))
		sources := out["sources"].(map[string]any)
		assert.Equal(t, "env", sources["server.port"])
	})

	t.Run("Should report a missing env file", func(t *testing.T) {
		h := newHarness(t)
		code := h.run(t, "--env-file", "/srv/missing.env")
		assert.Equal(t, 1, code)
		assert.Contains(t, h.stderr.String(), "Env file not found")
	})

	t.Run("Should reject unknown flags", func(t *testing.T) {
		h := newHarness(t)
		code := h.run(t, "--no-such-flag")
		assert.Equal(t, 1, code)
		assert.Contains(t, h.stderr.String(), "unknown flag")
	})

	t.Run("Should reject values that fail coercion", func(t *testing.T) {
		h := newHarness(t)
		code := h.run(t, "--port", "seventy")
		assert.Equal(t, 1, code)
		assert.Contains(t, h.stderr.String(), "seventy")
	})

	t.Run("Should log non-default args on startup", func(t *testing.T) {
		h := newHarness(t)
		code := h.run(t, "--port", "47231", "--log-level", "info", "--address", "127.0.0.1")
		require.Equal(t, 0, code, h.stderr.String())
		assert.Contains(t, h.stdout.String(), "Non-default server args")
		assert.Contains(t, h.stdout.String(), "server.port=47231")
	})
}

func TestExecute_Extensions(t *testing.T) {
	t.Run("Should install, list and uninstall a driver", func(t *testing.T) {
		h := newHarness(t)
		require.Equal(t, 0, h.run(t, "driver", "install", "appium-fake-driver"), h.stderr.String())
		assert.Equal(t, []string{"appium-fake-driver"}, h.installer.installed)
		assert.Contains(t, h.stdout.String(), "Installed drivers: fake")

		require.Equal(t, 0, h.run(t, "driver", "list", "--installed", "--json"), h.stderr.String())
		var listed map[string]extension.ListEntry
		require.NoError(t, json.Unmarshal(h.stdout.Bytes(), &listed))
		require.Contains(t, listed, "fake")
		assert.True(t, listed["fake"].Installed)
		assert.Equal(t, "1.2.0", listed["fake"].Metadata.Version)

		require.Equal(t, 0, h.run(t, "driver", "uninstall", "fake"), h.stderr.String())
		assert.Equal(t, []string{"appium-fake-driver"}, h.installer.uninstalled)
		assert.Contains(t, h.stdout.String(), "Successfully uninstalled driver fake")
	})

	t.Run("Should list well-known plugins that are not installed", func(t *testing.T) {
		h := newHarness(t)
		require.Equal(t, 0, h.run(t, "plugin", "list"), h.stderr.String())
		assert.Contains(t, h.stdout.String(), "images [not installed]")
	})

	t.Run("Should report uninstalling an unknown extension as JSON", func(t *testing.T) {
		h := newHarness(t)
		assert.Equal(t, 1, h.run(t, "plugin", "uninstall", "ghost", "--json"))
		var out map[string]any
		require.NoError(t, json.Unmarshal(h.stderr.Bytes(), &out))
		assert.Equal(t, "NOT_INSTALLED", out["code"])
	})

	t.Run("Should derive flags from installed extension schemas", func(t *testing.T) {
		h := newHarness(t)
		m, err := extension.LoadManifest(h.fs, testHome)
		require.NoError(t, err)
		m.Set(extension.DriverType, "fake", &extension.Metadata{
			PkgName:     "appium-fake-driver",
			InstallPath: testHome + "/node_modules/appium-fake-driver",
			Schema:      "schema.json",
		})
		require.NoError(t, m.Save())
		require.NoError(t, afero.WriteFile(h.fs, testHome+"/node_modules/appium-fake-driver/schema.json",
			[]byte(`{"type":"object","properties":{"sillyWebServerPort":{"type":"integer","default":1234}}}`), 0o644))

		out := h.showConfig(t, "--driver-fake-silly-web-server-port", "5678")
		cfg := out["config"].(map[string]any)
		fake := cfg["driver"].(map[string]any)["fake"].(map[string]any)
		assert.Equal(t, float64(5678), fake["sillyWebServerPort"])
	})
}

func TestExecute_Config(t *testing.T) {
	t.Run("Should validate a config file", func(t *testing.T) {
		h := newHarness(t)
		require.NoError(t, afero.WriteFile(h.fs, "/etc/devicehub.yaml", []byte("server:\n  port: 4800\n"), 0o644))
		require.Equal(t, 0, h.run(t, "config", "validate", "/etc/devicehub.yaml"), h.stderr.String())
		assert.Contains(t, h.stdout.String(), "/etc/devicehub.yaml is valid")
	})

	t.Run("Should print validation errors as JSON", func(t *testing.T) {
		h := newHarness(t)
		require.NoError(t, afero.WriteFile(h.fs, "/etc/devicehub.json", []byte(`{"server":{"port":0}}`), 0o644))
		assert.Equal(t, 1, h.run(t, "config", "validate", "/etc/devicehub.json", "--json"))
		var out map[string]any
		require.NoError(t, json.Unmarshal(h.stdout.Bytes(), &out))
		assert.Equal(t, false, out["valid"])
		assert.NotEmpty(t, out["errors"])
	})

	t.Run("Should print the finalized schema", func(t *testing.T) {
		h := newHarness(t)
		require.Equal(t, 0, h.run(t, "config", "schema"), h.stderr.String())
		var doc map[string]any
		require.NoError(t, json.Unmarshal(h.stdout.Bytes(), &doc))
		assert.Contains(t, doc["properties"], "server")
	})

	t.Run("Should show sources in a table", func(t *testing.T) {
		h := newHarness(t)
		t.Setenv("DEVICEHUB_KEEP_ALIVE_TIMEOUT", "30")
		require.Equal(t, 0, h.run(t, "config", "show", "--sources"), h.stderr.String())
		assert.Contains(t, h.stdout.String(), "KEY")
		assert.Regexp(t, `server\.keepAliveTimeout\s+30\s+env`, h.stdout.String())
	})
}

func TestExecute_ConfigEnv(t *testing.T) {
	t.Run("Should list environment variables with their keys and flags", func(t *testing.T) {
		h := newHarness(t)
		require.Equal(t, 0, h.run(t, "config", "env"), h.stderr.String())
		assert.Regexp(t, `DEVICEHUB_PORT\s+server\.port\s+--port`, h.stdout.String())
	})

	t.Run("Should print the mappings as JSON", func(t *testing.T) {
		h := newHarness(t)
		require.Equal(t, 0, h.run(t, "config", "env", "--json"), h.stderr.String())
		var mappings []map[string]string
		require.NoError(t, json.Unmarshal(h.stdout.Bytes(), &mappings))
		require.NotEmpty(t, mappings)
		assert.Contains(t, mappings, map[string]string{
			"envVar": "DEVICEHUB_BASE_PATH", "configPath": "server.basePath", "flag": "--base-path",
		})
	})
}

func TestWithDefaultCommand(t *testing.T) {
	h := newHarness(t)
	rt, err := cmd.NewRuntime(t.Context(), cmd.RuntimeOptions{Fs: h.fs, Home: testHome})
	require.NoError(t, err)
	root, err := RootCmd(rt)
	require.NoError(t, err)

	t.Run("Should prepend server for flags and empty args", func(t *testing.T) {
		assert.Equal(t, []string{"server"}, withDefaultCommand(root, nil))
		assert.Equal(t, []string{"server", "-p", "1"}, withDefaultCommand(root, []string{"-p", "1"}))
	})

	t.Run("Should keep subcommands and help untouched", func(t *testing.T) {
		assert.Equal(t, []string{"driver", "list"}, withDefaultCommand(root, []string{"driver", "list"}))
		assert.Equal(t, []string{"--help"}, withDefaultCommand(root, []string{"--help"}))
	})
}
