package extension

import (
	"fmt"
	"strings"

	"github.com/devicehub/devicehub/pkg/schema"
)

// Type is the kind of extension: driver or plugin.
type Type string

const (
	DriverType Type = schema.DriverType
	PluginType Type = schema.PluginType
)

func (t Type) String() string { return string(t) }

// Title returns the capitalized type name used in user-facing messages.
func (t Type) Title() string {
	if t == "" {
		return ""
	}
	return strings.ToUpper(string(t[:1])) + string(t[1:])
}

// ParseType validates an extension type name.
func ParseType(s string) (Type, error) {
	switch Type(strings.ToLower(strings.TrimSpace(s))) {
	case DriverType:
		return DriverType, nil
	case PluginType:
		return PluginType, nil
	default:
		return "", fmt.Errorf("unknown extension type %q: must be %q or %q", s, DriverType, PluginType)
	}
}

// InstallType says where an extension package comes from.
type InstallType string

const (
	InstallTypeNPM    InstallType = "npm"
	InstallTypeGitHub InstallType = "github"
	InstallTypeGit    InstallType = "git"
	InstallTypeLocal  InstallType = "local"
)

var installTypes = []InstallType{InstallTypeNPM, InstallTypeGitHub, InstallTypeGit, InstallTypeLocal}

// ParseInstallType validates an install type. Empty means npm.
func ParseInstallType(s string) (InstallType, error) {
	if strings.TrimSpace(s) == "" {
		return InstallTypeNPM, nil
	}
	for _, t := range installTypes {
		if string(t) == strings.ToLower(strings.TrimSpace(s)) {
			return t, nil
		}
	}
	return "", fmt.Errorf("invalid install type %q: must be one of %v", s, installTypes)
}

// Metadata is what the manifest records for one installed extension.
// AutomationName and PlatformNames are only set for drivers. Schema is a
// JSON schema file relative to InstallPath.
type Metadata struct {
	PkgName        string            `yaml:"pkgName" json:"pkgName"`
	Version        string            `yaml:"version" json:"version"`
	InstallSpec    string            `yaml:"installSpec" json:"installSpec"`
	InstallType    InstallType       `yaml:"installType" json:"installType"`
	InstallPath    string            `yaml:"installPath" json:"installPath"`
	MainClass      string            `yaml:"mainClass" json:"mainClass"`
	AutomationName string            `yaml:"automationName,omitempty" json:"automationName,omitempty"`
	PlatformNames  []string          `yaml:"platformNames,omitempty" json:"platformNames,omitempty"`
	Schema         string            `yaml:"schema,omitempty" json:"schema,omitempty"`
	Scripts        map[string]string `yaml:"scripts,omitempty" json:"scripts,omitempty"`
}

// KnownDrivers maps short names to the npm packages they install.
var KnownDrivers = map[string]string{
	"uiautomator2": "appium-uiautomator2-driver",
	"xcuitest":     "appium-xcuitest-driver",
	"mac2":         "appium-mac2-driver",
	"espresso":     "appium-espresso-driver",
	"safari":       "appium-safari-driver",
	"gecko":        "appium-geckodriver",
	"chromium":     "appium-chromium-driver",
}

// KnownPlugins maps short names to the npm packages they install.
var KnownPlugins = map[string]string{
	"images":         "@appium/images-plugin",
	"execute-driver": "@appium/execute-driver-plugin",
	"relaxed-caps":   "@appium/relaxed-caps-plugin",
	"universal-xml":  "@appium/universal-xml-plugin",
}

func knownExtensions(t Type) map[string]string {
	if t == DriverType {
		return KnownDrivers
	}
	return KnownPlugins
}
