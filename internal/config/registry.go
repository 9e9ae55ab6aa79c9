package config

import (
	"fmt"
	"log"

	"github.com/cdswerx/cdsync/internal/coord/reader"
	"github.com/cdswerx/cdsync/internal/coord/schema"
)

// Descriptors collects every component: inline definitions first, then
// manifests, then themes discovered under themes_dir. An inline or manifest
// component with the id of a discovered theme replaces the discovered one.
// Theme directories that cannot become components are logged to logger
// and skipped; invalid inline or manifest components are errors.
func (c *Config) Descriptors(logger *log.Logger) ([]schema.Descriptor, error) {
	specs := make([]ComponentSpec, 0, len(c.Components))
	for _, s := range c.Components {
		s.baseDir = c.BaseDir
		specs = append(specs, s)
	}

	if c.ManifestDir != "" {
		manifests, err := LoadManifests(c.Resolve(c.ManifestDir))
		if err != nil {
			return nil, err
		}
		specs = append(specs, manifests...)
	}

	var descs []schema.Descriptor
	explicit := make(map[string]bool, len(specs))
	for _, s := range specs {
		d, err := s.Descriptor()
		if err != nil {
			return nil, err
		}
		explicit[d.ID] = true
		descs = append(descs, d)
	}

	if c.ThemesDir != "" {
		themes, err := reader.DiscoverThemes(c.Resolve(c.ThemesDir), c.NativeThemes, logger)
		if err != nil {
			return nil, err
		}
		for _, t := range themes {
			if !explicit[t.ID] {
				descs = append(descs, t)
			}
		}
	}
	return descs, nil
}

// Registry builds the component registry.
func (c *Config) Registry(logger *log.Logger) (*schema.Registry, error) {
	descs, err := c.Descriptors(logger)
	if err != nil {
		return nil, err
	}
	reg, err := schema.NewRegistry(descs...)
	if err != nil {
		return nil, fmt.Errorf("failed to build component registry: %w", err)
	}
	return reg, nil
}
