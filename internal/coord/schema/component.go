package schema

import (
	"context"
	"fmt"
	"regexp"
	"sort"
)

// Kind classifies a tracked component. Built-in reactions are wired by kind.
type Kind string

const (
	KindPlugin    Kind = "plugin"
	KindTheme     Kind = "theme"
	KindFramework Kind = "framework" // CSS framework, e.g. UIkit
	KindBuilder   Kind = "builder"   // page builder with its own file cache
	KindOther     Kind = "other"
)

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	switch k {
	case KindPlugin, KindTheme, KindFramework, KindBuilder, KindOther:
		return true
	default:
		return false
	}
}

// VersionSource obtains the current version of one component.
//
// Implementations return ErrComponentAbsent (possibly wrapped) when the
// component is not installed. Any other error is also treated as absent by
// the reader, but logged.
type VersionSource interface {
	Version(ctx context.Context) (string, error)

	// Describe returns a short human-readable location, e.g. "header:themes/x/style.css".
	Describe() string
}

// PathSource is implemented by sources backed by a file on disk.
// The daemon watches the directories of these paths.
type PathSource interface {
	Path() string
}

// Descriptor is the static definition of a trackable component.
// It is created at startup and never modified.
type Descriptor struct {
	// ID is the stable component identifier (e.g. "cdswerx", "cdswerx-theme", "uikit")
	ID string `json:"id" yaml:"id" toml:"id"`

	// Name is the human-readable name
	Name string `json:"name" yaml:"name" toml:"name"`

	Kind Kind `json:"kind" yaml:"kind" toml:"kind"`

	// Required components are logged when absent; optional ones are omitted silently.
	// Absence is never an error either way.
	Required bool `json:"required" yaml:"required" toml:"required"`

	// Native marks a theme built to run with the core plugin.
	Native bool `json:"native,omitempty" yaml:"native,omitempty" toml:"native"`

	// ParentTheme is the template theme id for child themes.
	ParentTheme string `json:"parent_theme,omitempty" yaml:"parent_theme,omitempty" toml:"parent_theme"`

	// CacheDir is the page builder's own file cache directory.
	CacheDir string `json:"cache_dir,omitempty" yaml:"cache_dir,omitempty" toml:"cache_dir"`

	Source VersionSource `json:"-" yaml:"-" toml:"-"`
}

var idPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9._-]*$`)

// Validate checks if the Descriptor has valid field values.
func (d *Descriptor) Validate() error {
	if d.ID == "" {
		return fmt.Errorf("%w: id is required", ErrInvalidDescriptor)
	}
	if !idPattern.MatchString(d.ID) {
		return fmt.Errorf("%w: id %q must be lowercase alphanumeric with . _ -", ErrInvalidDescriptor, d.ID)
	}
	if !d.Kind.Valid() {
		return fmt.Errorf("%w: %s has unknown kind %q", ErrInvalidDescriptor, d.ID, d.Kind)
	}
	if d.Source == nil {
		return fmt.Errorf("%w: %s has no version source", ErrInvalidDescriptor, d.ID)
	}
	if d.Native && d.Kind != KindTheme {
		return fmt.Errorf("%w: %s is native but not a theme", ErrInvalidDescriptor, d.ID)
	}
	return nil
}

// DisplayName returns Name, falling back to ID.
func (d *Descriptor) DisplayName() string {
	if d.Name != "" {
		return d.Name
	}
	return d.ID
}

// Registry is an ordered, validated set of descriptors.
type Registry struct {
	byID  map[string]Descriptor
	order []string
}

// NewRegistry validates and indexes descriptors.
func NewRegistry(descriptors ...Descriptor) (*Registry, error) {
	r := &Registry{byID: make(map[string]Descriptor)}
	for _, d := range descriptors {
		if err := r.Add(d); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Add registers one more descriptor.
func (r *Registry) Add(d Descriptor) error {
	if err := d.Validate(); err != nil {
		return err
	}
	if _, exists := r.byID[d.ID]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateComponent, d.ID)
	}
	r.byID[d.ID] = d
	r.order = append(r.order, d.ID)
	return nil
}

// Get returns the descriptor for id.
func (r *Registry) Get(id string) (Descriptor, bool) {
	d, ok := r.byID[id]
	return d, ok
}

// All returns descriptors in registration order.
func (r *Registry) All() []Descriptor {
	out := make([]Descriptor, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.byID[id])
	}
	return out
}

// IDs returns component ids sorted ascending.
func (r *Registry) IDs() []string {
	ids := append([]string(nil), r.order...)
	sort.Strings(ids)
	return ids
}

// OfKind returns descriptors of kind k in registration order.
func (r *Registry) OfKind(k Kind) []Descriptor {
	var out []Descriptor
	for _, id := range r.order {
		if d := r.byID[id]; d.Kind == k {
			out = append(out, d)
		}
	}
	return out
}

// Len returns the number of registered components.
func (r *Registry) Len() int {
	return len(r.order)
}
