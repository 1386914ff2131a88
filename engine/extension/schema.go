package extension

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/spf13/afero"

	"github.com/devicehub/devicehub/pkg/logger"
	"github.com/devicehub/devicehub/pkg/schema"
)

// RegisterSchemas registers the schema of every installed extension that
// declares one. A broken schema is skipped and reported in the returned
// error while the others are still registered.
func RegisterSchemas(ctx context.Context, b *schema.Builder, fs afero.Fs, m *Manifest) error {
	log := logger.FromContext(ctx)
	var errs []error
	for _, t := range []Type{DriverType, PluginType} {
		for _, name := range m.Names(t) {
			meta, _ := m.Get(t, name)
			if meta.Schema == "" {
				continue
			}
			path := meta.Schema
			if !filepath.IsAbs(path) {
				path = filepath.Join(meta.InstallPath, path)
			}
			doc, err := afero.ReadFile(fs, path)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s %q: could not read schema %s: %w", t, name, path, err))
				continue
			}
			if err := b.RegisterExtension(string(t), name, doc); err != nil {
				errs = append(errs, fmt.Errorf("%s %q: %w", t, name, err))
				continue
			}
			log.Debug("Registered extension schema", "type", t, "name", name, "path", path)
		}
	}
	return errors.Join(errs...)
}
