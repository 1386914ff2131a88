package extension

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/charmbracelet/lipgloss"
	"github.com/google/shlex"

	"github.com/devicehub/devicehub/pkg/logger"
)

// UpdateAll is the name passed to Update to update every installed extension.
const UpdateAll = "installed"

var (
	requiredDriverFields = []string{"driverName", "automationName", "platformNames", "mainClass"}
	requiredPluginFields = []string{"pluginName", "mainClass"}

	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	valueStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("86"))
)

// Command carries out extension subcommands for one extension type.
type Command struct {
	Type      Type
	Manifest  *Manifest
	Installer Installer
	Known     map[string]string
}

// NewCommand returns a Command for t.
func NewCommand(t Type, manifest *Manifest, installer Installer) *Command {
	return &Command{Type: t, Manifest: manifest, Installer: installer, Known: knownExtensions(t)}
}

// InstallOptions are the inputs to Install.
type InstallOptions struct {
	Spec        string
	InstallType InstallType
	PackageName string
}

// Install fetches an extension and records it in the manifest. A package
// that does not declare the required metadata is removed again.
func (c *Command) Install(ctx context.Context, opts InstallOptions) (map[string]*Metadata, error) {
	log := logger.FromContext(ctx)
	req := InstallRequest{Spec: opts.Spec, Type: opts.InstallType, PackageName: opts.PackageName}
	if req.Type == "" {
		req.Type = InstallTypeNPM
	}
	if req.Type == InstallTypeNPM {
		if _, ok := c.Manifest.Get(c.Type, opts.Spec); ok {
			return nil, &AlreadyInstalledError{Type: c.Type, Name: opts.Spec}
		}
		if pkg, ok := c.Known[opts.Spec]; ok {
			req.Spec = pkg
		}
	}
	log.Info("Installing extension", "type", c.Type, "spec", req.Spec, "source", req.Type)
	pkg, err := c.Installer.Install(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("could not install %s %q: %w", c.Type, opts.Spec, err)
	}
	meta, name, err := c.metadataFrom(pkg, opts.Spec, req.Type)
	if err != nil {
		c.discard(ctx, pkg.Name)
		return nil, err
	}
	if existing, exists := c.Manifest.Get(c.Type, name); exists {
		if existing.PkgName != pkg.Name {
			c.discard(ctx, pkg.Name)
		}
		return nil, &AlreadyInstalledError{Type: c.Type, Name: name}
	}
	c.Manifest.Set(c.Type, name, meta)
	if err := c.Manifest.Save(); err != nil {
		return nil, err
	}
	log.Info(c.PostInstallText(name, meta))
	return c.Manifest.Extensions(c.Type), nil
}

func (c *Command) discard(ctx context.Context, pkgName string) {
	if err := c.Installer.Uninstall(ctx, pkgName); err != nil {
		logger.FromContext(ctx).Warn("Failed to remove rejected package", "package", pkgName, "error", err)
	}
}

func (c *Command) metadataFrom(pkg *PackageData, spec string, installType InstallType) (*Metadata, string, error) {
	if missing := c.missingFields(pkg.Stanza); len(missing) > 0 {
		return nil, "", &MissingFieldsError{Type: c.Type, InstallSpec: spec, Fields: missing}
	}
	meta := &Metadata{
		PkgName:     pkg.Name,
		Version:     pkg.Version,
		InstallSpec: spec,
		InstallType: installType,
		InstallPath: pkg.Path,
		MainClass:   stringField(pkg.Stanza, "mainClass"),
		Schema:      stringField(pkg.Stanza, "schema"),
		Scripts:     stringMap(pkg.Stanza["scripts"]),
	}
	nameField := "pluginName"
	if c.Type == DriverType {
		nameField = "driverName"
		meta.AutomationName = stringField(pkg.Stanza, "automationName")
		meta.PlatformNames = stringSlice(pkg.Stanza["platformNames"])
	}
	return meta, stringField(pkg.Stanza, nameField), nil
}

func (c *Command) missingFields(stanza map[string]any) []string {
	required := requiredPluginFields
	if c.Type == DriverType {
		required = requiredDriverFields
	}
	var missing []string
	for _, field := range required {
		if isEmptyField(stanza[field]) {
			missing = append(missing, field)
		}
	}
	return missing
}

func isEmptyField(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return t == ""
	case []any:
		return len(t) == 0
	default:
		return false
	}
}

func stringField(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}

func stringSlice(v any) []string {
	items, _ := v.([]any)
	out := make([]string, 0, len(items))
	for _, item := range items {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func stringMap(v any) map[string]string {
	m, _ := v.(map[string]any)
	if len(m) == 0 {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, val := range m {
		if s, ok := val.(string); ok {
			out[k] = s
		}
	}
	return out
}

// PostInstallText is the summary printed after a successful install.
func (c *Command) PostInstallText(name string, meta *Metadata) string {
	headline := successStyle.Render(fmt.Sprintf("%s %s@%s successfully installed", c.Type.Title(), name, meta.Version))
	if c.Type != DriverType {
		return headline
	}
	platforms := `["` + strings.Join(meta.PlatformNames, `","`) + `"]`
	return headline + "\n" +
		"- automationName: " + valueStyle.Render(meta.AutomationName) + "\n" +
		"- platformNames: " + valueStyle.Render(platforms)
}

// Uninstall removes an extension package and its manifest entry.
func (c *Command) Uninstall(ctx context.Context, name string) (map[string]*Metadata, error) {
	meta, ok := c.Manifest.Get(c.Type, name)
	if !ok {
		return nil, &NotInstalledError{Type: c.Type, Name: name}
	}
	logger.FromContext(ctx).Info("Uninstalling extension", "type", c.Type, "name", name)
	if err := c.Installer.Uninstall(ctx, meta.PkgName); err != nil {
		return nil, fmt.Errorf("could not uninstall %s %q: %w", c.Type, name, err)
	}
	c.Manifest.Remove(c.Type, name)
	if err := c.Manifest.Save(); err != nil {
		return nil, err
	}
	return c.Manifest.Extensions(c.Type), nil
}

// UpdateInfo compares an installed version with what the registry offers.
// SafeUpdate shares the installed major version; UnsafeUpdate is the newest
// release when it crosses a major version.
type UpdateInfo struct {
	Current      string `json:"current"`
	SafeUpdate   string `json:"safeUpdate,omitempty"`
	UnsafeUpdate string `json:"unsafeUpdate,omitempty"`
}

// UpdateResult holds per-extension outcomes of Update.
type UpdateResult struct {
	Updates map[string]UpdateInfo `json:"updates"`
	Errors  map[string]string     `json:"errors"`
}

// CheckUpdate reports the available updates for one npm-installed extension.
func (c *Command) CheckUpdate(ctx context.Context, meta *Metadata) (UpdateInfo, error) {
	info := UpdateInfo{Current: meta.Version}
	current, err := semver.NewVersion(meta.Version)
	if err != nil {
		return info, fmt.Errorf("installed version %q is not valid semver: %w", meta.Version, err)
	}
	versions, err := c.Installer.Versions(ctx, meta.PkgName)
	if err != nil {
		return info, err
	}
	var safe, latest *semver.Version
	for _, raw := range versions {
		v, err := semver.NewVersion(raw)
		if err != nil || v.Prerelease() != "" || !v.GreaterThan(current) {
			continue
		}
		if v.Major() == current.Major() && (safe == nil || v.GreaterThan(safe)) {
			safe = v
		}
		if latest == nil || v.GreaterThan(latest) {
			latest = v
		}
	}
	if safe != nil {
		info.SafeUpdate = safe.Original()
	}
	if latest != nil && latest.Major() != current.Major() {
		info.UnsafeUpdate = latest.Original()
	}
	return info, nil
}

// Update moves one extension, or every installed one when name is
// UpdateAll, to its newest version. Major version jumps need unsafe.
func (c *Command) Update(ctx context.Context, name string, unsafe bool) (*UpdateResult, error) {
	log := logger.FromContext(ctx)
	names := []string{name}
	if name == UpdateAll {
		names = c.Manifest.Names(c.Type)
	} else if _, ok := c.Manifest.Get(c.Type, name); !ok {
		return nil, &NotInstalledError{Type: c.Type, Name: name}
	}
	result := &UpdateResult{Updates: map[string]UpdateInfo{}, Errors: map[string]string{}}
	for _, n := range names {
		info, err := c.updateOne(ctx, n, unsafe)
		if err != nil {
			log.Warn("Extension not updated", "name", n, "error", err)
			result.Errors[n] = err.Error()
			continue
		}
		result.Updates[n] = info
	}
	if err := c.Manifest.Save(); err != nil {
		return nil, err
	}
	return result, nil
}

func (c *Command) updateOne(ctx context.Context, name string, unsafe bool) (UpdateInfo, error) {
	meta, _ := c.Manifest.Get(c.Type, name)
	if meta.InstallType != InstallTypeNPM {
		return UpdateInfo{}, &UpdateError{Name: name, Reason: "only extensions installed from npm can be updated"}
	}
	info, err := c.CheckUpdate(ctx, meta)
	if err != nil {
		return info, &UpdateError{Name: name, Reason: "could not check for updates", Cause: err}
	}
	target := info.SafeUpdate
	if unsafe && info.UnsafeUpdate != "" {
		target = info.UnsafeUpdate
	}
	if target == "" {
		reason := "no newer version is available"
		if info.UnsafeUpdate != "" {
			reason = fmt.Sprintf("version %s is a major version update; re-run with --unsafe to install it", info.UnsafeUpdate)
		}
		return info, &UpdateError{Name: name, Reason: reason}
	}
	pkg, err := c.Installer.Install(ctx, InstallRequest{Spec: meta.PkgName + "@" + target, Type: InstallTypeNPM})
	if err != nil {
		return info, &UpdateError{Name: name, Reason: "install failed", Cause: err}
	}
	updated := *meta
	updated.Version = pkg.Version
	c.Manifest.Set(c.Type, name, &updated)
	logger.FromContext(ctx).Info("Updated extension", "name", name, "from", info.Current, "to", pkg.Version)
	return info, nil
}

// Run executes a script that an installed extension declares in its
// package metadata. rawArgs is split with shell quoting rules and appended
// to extraArgs.
func (c *Command) Run(ctx context.Context, name, script string, extraArgs []string, rawArgs string) (*RunResult, error) {
	meta, ok := c.Manifest.Get(c.Type, name)
	if !ok {
		return nil, &NotInstalledError{Type: c.Type, Name: name}
	}
	if len(meta.Scripts) == 0 {
		return nil, fmt.Errorf("%w: %s %q does not declare any scripts", ErrUnknownScript, c.Type, name)
	}
	scriptPath, ok := meta.Scripts[script]
	if !ok {
		return nil, fmt.Errorf("%w: %s %q has no script named %q; available: %s",
			ErrUnknownScript, c.Type, name, script, strings.Join(sortedKeys(meta.Scripts), ", "))
	}
	args := slices.Clone(extraArgs)
	if strings.TrimSpace(rawArgs) != "" {
		parsed, err := shlex.Split(rawArgs)
		if err != nil {
			return nil, fmt.Errorf("failed to parse script arguments: %w", err)
		}
		args = append(args, parsed...)
	}
	if !filepath.IsAbs(scriptPath) {
		scriptPath = filepath.Join(meta.InstallPath, scriptPath)
	}
	logger.FromContext(ctx).Info("Running extension script", "name", name, "script", script, "args", args)
	result, err := c.Installer.RunScript(ctx, meta.InstallPath, scriptPath, args)
	if err != nil {
		return nil, err
	}
	if result.Error != "" {
		return result, errors.New(result.Error)
	}
	return result, nil
}

// ListEntry describes one extension in List output.
type ListEntry struct {
	Installed bool        `json:"installed"`
	PkgName   string      `json:"pkgName"`
	Metadata  *Metadata   `json:"metadata,omitempty"`
	Updates   *UpdateInfo `json:"updates,omitempty"`
}

// ListOptions filters List output.
type ListOptions struct {
	InstalledOnly bool
	ShowUpdates   bool
}

// List returns installed extensions plus, unless InstalledOnly, the known
// ones that are not installed yet.
func (c *Command) List(ctx context.Context, opts ListOptions) map[string]ListEntry {
	out := make(map[string]ListEntry)
	if !opts.InstalledOnly {
		for name, pkg := range c.Known {
			out[name] = ListEntry{PkgName: pkg}
		}
	}
	for name, meta := range c.Manifest.Extensions(c.Type) {
		entry := ListEntry{Installed: true, PkgName: meta.PkgName, Metadata: meta}
		if opts.ShowUpdates && meta.InstallType == InstallTypeNPM {
			if info, err := c.CheckUpdate(ctx, meta); err == nil {
				entry.Updates = &info
			} else {
				logger.FromContext(ctx).Debug("Update check failed", "name", name, "error", err)
			}
		}
		out[name] = entry
	}
	return out
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
