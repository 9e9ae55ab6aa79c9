package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/cdswerx/cdsync/internal/coord/reader"
	"github.com/cdswerx/cdsync/internal/coord/schema"
)

// Source type names used in component definitions.
const (
	SourceConstant = "constant"
	SourceHeader   = "header"
	SourceJSON     = "json"
	SourceYAML     = "yaml"
)

// ComponentSpec is one component definition, inline or from a manifest.
type ComponentSpec struct {
	ID          string `mapstructure:"id" toml:"id" yaml:"id"`
	Name        string `mapstructure:"name" toml:"name" yaml:"name"`
	Kind        string `mapstructure:"kind" toml:"kind" yaml:"kind"`
	Required    bool   `mapstructure:"required" toml:"required" yaml:"required"`
	Native      bool   `mapstructure:"native" toml:"native" yaml:"native"`
	ParentTheme string `mapstructure:"parent_theme" toml:"parent_theme" yaml:"parent_theme"`
	CacheDir    string `mapstructure:"cache_dir" toml:"cache_dir" yaml:"cache_dir"`

	// Source is one of constant, header, json, yaml. Empty means constant.
	Source  string `mapstructure:"source" toml:"source" yaml:"source"`
	Version string `mapstructure:"version" toml:"version" yaml:"version"`
	File    string `mapstructure:"file" toml:"file" yaml:"file"`
	Field   string `mapstructure:"field" toml:"field" yaml:"field"`

	// baseDir resolves relative File and CacheDir.
	baseDir string
}

// manifest is the file layout shared by toml and yaml manifests.
type manifest struct {
	Components []ComponentSpec `toml:"components" yaml:"components"`
}

// Descriptor converts the spec. Relative paths are resolved against the
// directory of the file the spec came from.
func (s ComponentSpec) Descriptor() (schema.Descriptor, error) {
	d := schema.Descriptor{
		ID:          s.ID,
		Name:        s.Name,
		Kind:        schema.Kind(strings.ToLower(s.Kind)),
		Required:    s.Required,
		Native:      s.Native,
		ParentTheme: strings.ToLower(s.ParentTheme),
		CacheDir:    resolve(s.baseDir, s.CacheDir),
	}
	if d.Kind == "" {
		d.Kind = schema.KindPlugin
	}

	source := strings.ToLower(s.Source)
	if source != "" && source != SourceConstant && s.File == "" {
		return schema.Descriptor{}, fmt.Errorf("%w: %s source %s needs a file", schema.ErrInvalidDescriptor, s.ID, s.Source)
	}

	file := resolve(s.baseDir, s.File)
	switch source {
	case "", SourceConstant:
		d.Source = reader.Constant(s.Version)
	case SourceHeader:
		d.Source = reader.Header{File: file, Field: s.Field}
	case SourceJSON:
		d.Source = reader.JSONField{File: file, Field: s.Field}
	case SourceYAML:
		d.Source = reader.YAMLField{File: file, Field: s.Field}
	default:
		return schema.Descriptor{}, fmt.Errorf("%w: %s has unknown source %q", schema.ErrInvalidDescriptor, s.ID, s.Source)
	}

	if err := d.Validate(); err != nil {
		return schema.Descriptor{}, err
	}
	return d, nil
}

// LoadManifests reads every *.toml, *.yaml and *.yml file in dir in name
// order. A missing dir yields no components.
func LoadManifests(dir string) ([]ComponentSpec, error) {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest directory: %w", err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch filepath.Ext(e.Name()) {
		case ".toml", ".yaml", ".yml":
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	var specs []ComponentSpec
	for _, name := range names {
		path := filepath.Join(dir, name)
		m, err := readManifest(path)
		if err != nil {
			return nil, err
		}
		for _, s := range m.Components {
			s.baseDir = dir
			specs = append(specs, s)
		}
	}
	return specs, nil
}

func readManifest(path string) (manifest, error) {
	var m manifest

	if filepath.Ext(path) == ".toml" {
		md, err := toml.DecodeFile(path, &m)
		if err != nil {
			return manifest{}, fmt.Errorf("failed to parse manifest %s: %w", path, err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			return manifest{}, fmt.Errorf("manifest %s has unknown keys: %v", path, undecoded)
		}
		return m, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return manifest{}, fmt.Errorf("failed to read manifest %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &m); err != nil {
		return manifest{}, fmt.Errorf("failed to parse manifest %s: %w", path, err)
	}
	return m, nil
}
