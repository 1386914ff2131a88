package extension

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/devicehub/devicehub/pkg/logger"
	"github.com/spf13/afero"
)

// ManifestStanza is the package.json property holding extension metadata.
const ManifestStanza = "appium"

// InstallRequest describes one package to fetch.
type InstallRequest struct {
	Spec        string
	Type        InstallType
	PackageName string
}

// PackageData is what an installer learned about the package it fetched.
type PackageData struct {
	Name    string
	Version string
	Path    string
	// Stanza is the extension metadata object from package.json.
	Stanza map[string]any
}

// RunResult is the outcome of an extension script.
type RunResult struct {
	Output []string `json:"output"`
	Error  string   `json:"error,omitempty"`
}

// Installer fetches and removes extension packages.
type Installer interface {
	Install(ctx context.Context, req InstallRequest) (*PackageData, error)
	Uninstall(ctx context.Context, pkgName string) error
	Versions(ctx context.Context, pkgName string) ([]string, error)
	RunScript(ctx context.Context, dir, script string, args []string) (*RunResult, error)
}

// Runner executes a program in dir and returns its combined output.
type Runner func(ctx context.Context, dir, name string, args ...string) ([]byte, error)

func execRunner(ctx context.Context, dir, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	err := cmd.Run()
	return out.Bytes(), err
}

// NPMInstaller installs packages into the devicehub home with npm.
type NPMInstaller struct {
	Home string
	Fs   afero.Fs
	Run  Runner
}

// NewNPMInstaller returns an installer rooted at home.
func NewNPMInstaller(fs afero.Fs, home string) *NPMInstaller {
	return &NPMInstaller{Home: home, Fs: fs, Run: execRunner}
}

func (n *NPMInstaller) npm(ctx context.Context, args ...string) ([]byte, error) {
	log := logger.FromContext(ctx)
	full := append([]string{"--prefix", n.Home}, args...)
	log.Debug("Running npm", "args", full)
	out, err := n.Run(ctx, n.Home, "npm", full...)
	if err != nil {
		return out, fmt.Errorf("npm %s failed: %w: %s", args[0], err, strings.TrimSpace(string(out)))
	}
	return out, nil
}

func (n *NPMInstaller) Install(ctx context.Context, req InstallRequest) (*PackageData, error) {
	if err := n.Fs.MkdirAll(n.Home, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", n.Home, err)
	}
	pkgName, target, err := n.resolveTarget(req)
	if err != nil {
		return nil, err
	}
	if _, err := n.npm(ctx, "install", "--save-dev", "--no-progress", "--no-audit", target); err != nil {
		return nil, err
	}
	return n.readPackage(filepath.Join(n.Home, "node_modules", pkgName))
}

func (n *NPMInstaller) resolveTarget(req InstallRequest) (pkgName, target string, err error) {
	switch req.Type {
	case InstallTypeNPM, "":
		return npmPackageName(req.Spec), req.Spec, nil
	case InstallTypeGitHub, InstallTypeGit:
		if req.PackageName == "" {
			return "", "", fmt.Errorf("when using --source=%s, --package must also be given", req.Type)
		}
		target = req.Spec
		if req.Type == InstallTypeGitHub && !strings.HasPrefix(target, "github:") {
			target = "github:" + target
		}
		return req.PackageName, target, nil
	case InstallTypeLocal:
		abs, err := filepath.Abs(req.Spec)
		if err != nil {
			return "", "", err
		}
		name := req.PackageName
		if name == "" {
			pkg, err := n.readPackage(abs)
			if err != nil {
				return "", "", err
			}
			name = pkg.Name
		}
		return name, abs, nil
	default:
		return "", "", fmt.Errorf("unsupported install type %q", req.Type)
	}
}

// npmPackageName strips a version suffix: "@scope/pkg@1.2" becomes "@scope/pkg".
func npmPackageName(spec string) string {
	at := strings.LastIndex(spec, "@")
	if at > 0 {
		return spec[:at]
	}
	return spec
}

func (n *NPMInstaller) readPackage(dir string) (*PackageData, error) {
	raw, err := afero.ReadFile(n.Fs, filepath.Join(dir, "package.json"))
	if err != nil {
		return nil, fmt.Errorf("could not read package.json in %s: %w", dir, err)
	}
	var pkg struct {
		Name    string         `json:"name"`
		Version string         `json:"version"`
		Stanza  map[string]any `json:"appium"`
	}
	if err := json.Unmarshal(raw, &pkg); err != nil {
		return nil, fmt.Errorf("package.json in %s is invalid: %w", dir, err)
	}
	return &PackageData{Name: pkg.Name, Version: pkg.Version, Path: dir, Stanza: pkg.Stanza}, nil
}

func (n *NPMInstaller) Uninstall(ctx context.Context, pkgName string) error {
	_, err := n.npm(ctx, "uninstall", pkgName)
	return err
}

func (n *NPMInstaller) Versions(ctx context.Context, pkgName string) ([]string, error) {
	out, err := n.npm(ctx, "view", pkgName, "versions", "--json")
	if err != nil {
		return nil, err
	}
	out = bytes.TrimSpace(out)
	var versions []string
	if err := json.Unmarshal(out, &versions); err == nil {
		return versions, nil
	}
	var single string
	if err := json.Unmarshal(out, &single); err != nil {
		return nil, fmt.Errorf("unexpected npm view output for %s: %w", pkgName, err)
	}
	return []string{single}, nil
}

func (n *NPMInstaller) RunScript(ctx context.Context, dir, script string, args []string) (*RunResult, error) {
	out, err := n.Run(ctx, dir, "node", append([]string{script}, args...)...)
	result := &RunResult{Output: splitLines(string(out))}
	if err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return nil, fmt.Errorf("failed to start %s: %w", script, err)
		}
		result.Error = fmt.Sprintf("script exited with code %d", exitErr.ExitCode())
	}
	return result, nil
}

func splitLines(s string) []string {
	s = strings.TrimRight(s, "\n")
	if s == "" {
		return []string{}
	}
	return strings.Split(s, "\n")
}
