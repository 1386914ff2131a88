package extension

import (
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/goccy/go-yaml"
	"github.com/gofrs/flock"
	"github.com/mohae/deepcopy"
	"github.com/spf13/afero"
)

const (
	// HomeEnvVar overrides the directory holding installed extensions.
	HomeEnvVar       = "DEVICEHUB_HOME"
	ManifestFileName = "extensions.yaml"
	manifestRevision = 1
)

// ManifestFile is the layout of extensions.yaml.
type ManifestFile struct {
	SchemaRev int                  `yaml:"schemaRev" json:"schemaRev"`
	Drivers   map[string]*Metadata `yaml:"drivers" json:"drivers"`
	Plugins   map[string]*Metadata `yaml:"plugins" json:"plugins"`
}

// Manifest is the on-disk record of installed extensions.
type Manifest struct {
	mu   sync.RWMutex
	fs   afero.Fs
	path string
	data ManifestFile
}

// ResolveHome returns the devicehub home directory: DEVICEHUB_HOME when set,
// else ~/.devicehub.
func ResolveHome(getenv func(string) string) (string, error) {
	if getenv == nil {
		getenv = os.Getenv
	}
	if home := strings.TrimSpace(getenv(HomeEnvVar)); home != "" {
		return filepath.Abs(home)
	}
	userHome, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to resolve user home directory: %w", err)
	}
	return filepath.Join(userHome, ".devicehub"), nil
}

// LoadManifest reads the manifest from home, returning an empty one when the
// file does not exist yet.
func LoadManifest(fs afero.Fs, home string) (*Manifest, error) {
	m := &Manifest{
		fs:   fs,
		path: filepath.Join(home, ManifestFileName),
		data: ManifestFile{SchemaRev: manifestRevision},
	}
	exists, err := afero.Exists(fs, m.path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat manifest %s: %w", m.path, err)
	}
	if exists {
		raw, err := afero.ReadFile(fs, m.path)
		if err != nil {
			return nil, fmt.Errorf("failed to read manifest %s: %w", m.path, err)
		}
		if err := yaml.Unmarshal(raw, &m.data); err != nil {
			return nil, fmt.Errorf("manifest %s is invalid: %w", m.path, err)
		}
	}
	if m.data.Drivers == nil {
		m.data.Drivers = make(map[string]*Metadata)
	}
	if m.data.Plugins == nil {
		m.data.Plugins = make(map[string]*Metadata)
	}
	return m, nil
}

// Path returns the manifest file location.
func (m *Manifest) Path() string {
	return m.path
}

// Home returns the directory that holds the manifest and installed packages.
func (m *Manifest) Home() string {
	return filepath.Dir(m.path)
}

func (m *Manifest) section(t Type) map[string]*Metadata {
	if t == DriverType {
		return m.data.Drivers
	}
	return m.data.Plugins
}

// Extensions returns a deep copy of the installed extensions of type t.
func (m *Manifest) Extensions(t Type) map[string]*Metadata {
	m.mu.RLock()
	defer m.mu.RUnlock()
	copied, ok := deepcopy.Copy(m.section(t)).(map[string]*Metadata)
	if !ok {
		return make(map[string]*Metadata)
	}
	return copied
}

// Names returns the installed extension names of type t, sorted.
func (m *Manifest) Names(t Type) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Sorted(maps.Keys(m.section(t)))
}

// Get returns the metadata for one extension.
func (m *Manifest) Get(t Type, name string) (*Metadata, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	meta, ok := m.section(t)[name]
	return meta, ok
}

// Set records or replaces an extension.
func (m *Manifest) Set(t Type, name string, meta *Metadata) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.section(t)[name] = meta
}

// Remove deletes an extension entry.
func (m *Manifest) Remove(t Type, name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.section(t), name)
}

// Save writes the manifest back to disk.
func (m *Manifest) Save() error {
	m.mu.RLock()
	raw, err := yaml.Marshal(&m.data)
	m.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("failed to encode manifest: %w", err)
	}
	if err := m.fs.MkdirAll(filepath.Dir(m.path), 0o755); err != nil {
		return fmt.Errorf("failed to create %s: %w", filepath.Dir(m.path), err)
	}
	unlock, err := m.lock()
	if err != nil {
		return err
	}
	defer unlock()
	if err := afero.WriteFile(m.fs, m.path, raw, 0o644); err != nil {
		return fmt.Errorf("failed to write manifest %s: %w", m.path, err)
	}
	return nil
}

// lock takes an exclusive file lock next to the manifest so concurrent
// processes do not interleave writes. Only the OS filesystem is locked.
func (m *Manifest) lock() (func(), error) {
	if _, ok := m.fs.(*afero.OsFs); !ok {
		return func() {}, nil
	}
	fileLock := flock.New(m.path + ".lock")
	if err := fileLock.Lock(); err != nil {
		return nil, fmt.Errorf("failed to lock manifest %s: %w", m.path, err)
	}
	return func() { _ = fileLock.Unlock() }, nil
}
