// Package compat derives compatibility status from the active theme and the
// set of present components, and keeps a discardable cache of the result for
// other parts of the site that only need a cheap read.
package compat

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cdswerx/cdsync/internal/coord/schema"
)

// Option keys.
const (
	// KeyActiveTheme holds the id of the active theme, as the host records it.
	KeyActiveTheme = "stylesheet"
	KeyCache       = "cdswerx_compat_cache"
)

// Options is the host options API.
type Options interface {
	GetOptionContext(ctx context.Context, name string) (string, bool, error)
	UpdateOptionContext(ctx context.Context, name, value string) error
	DeleteOptionContext(ctx context.Context, name string) error
}

// Result is one derivation.
type Result struct {
	Mode        schema.Mode                           `json:"mode"`
	ActiveTheme string                                `json:"active_theme,omitempty"`
	Components  map[string]schema.CompatibilityStatus `json:"components"`
	ComputedAt  time.Time                             `json:"computed_at"`
}

// Derive computes the site mode and per-component status.
//
// present is the live snapshot; only its membership is used. activeTheme is
// the id of the currently active theme ("" when unknown).
func Derive(reg *schema.Registry, present schema.Snapshot, activeTheme string, autoSync bool, now time.Time) Result {
	mode := ModeFor(reg, activeTheme)

	res := Result{
		Mode:        mode,
		ActiveTheme: activeTheme,
		Components:  make(map[string]schema.CompatibilityStatus, reg.Len()),
		ComputedAt:  now.UTC(),
	}

	for _, d := range reg.All() {
		var status schema.Compatibility
		_, isPresent := present.Version(d.ID)

		switch {
		case !isPresent:
			status = schema.CompatUnknown
		case d.Kind == schema.KindTheme && d.ID != activeTheme:
			status = schema.CompatUnknown
		case d.Kind == schema.KindTheme:
			status = themeStatus(mode)
		default:
			status = componentStatus(mode)
		}

		res.Components[d.ID] = schema.CompatibilityStatus{
			Status:      status,
			SyncEnabled: autoSync && (status == schema.CompatNative || status == schema.CompatCompatible),
			LastChecked: res.ComputedAt,
		}
	}
	return res
}

// ModeFor classifies the active theme.
func ModeFor(reg *schema.Registry, activeTheme string) schema.Mode {
	if activeTheme == "" {
		return schema.ModeUnknown
	}

	active, ok := reg.Get(activeTheme)
	if !ok || active.Kind != schema.KindTheme {
		return schema.ModeIndependent
	}
	if active.Native {
		return schema.ModeNative
	}
	if parent, ok := reg.Get(active.ParentTheme); ok && parent.Native {
		return schema.ModeCompatible
	}
	return schema.ModeIndependent
}

func themeStatus(mode schema.Mode) schema.Compatibility {
	switch mode {
	case schema.ModeNative:
		return schema.CompatNative
	case schema.ModeCompatible:
		return schema.CompatCompatible
	case schema.ModeIndependent:
		return schema.CompatIndependent
	default:
		return schema.CompatUnknown
	}
}

func componentStatus(mode schema.Mode) schema.Compatibility {
	switch mode {
	case schema.ModeNative, schema.ModeCompatible:
		return schema.CompatCompatible
	case schema.ModeIndependent:
		return schema.CompatIndependent
	default:
		return schema.CompatUnknown
	}
}

// ActiveTheme reads the active theme id from the options table.
func ActiveTheme(ctx context.Context, opts Options) (string, error) {
	v, _, err := opts.GetOptionContext(ctx, KeyActiveTheme)
	if err != nil {
		return "", fmt.Errorf("failed to read active theme: %w", err)
	}
	return v, nil
}

// SetActiveTheme records a theme switch.
func SetActiveTheme(ctx context.Context, opts Options, id string) error {
	if err := opts.UpdateOptionContext(ctx, KeyActiveTheme, id); err != nil {
		return fmt.Errorf("failed to switch theme: %w", err)
	}
	return nil
}

// Cache stores the last Derive result.
type Cache struct {
	opts Options
}

// NewCache creates a Cache over opts.
func NewCache(opts Options) *Cache {
	return &Cache{opts: opts}
}

// Get returns the cached result; ok is false when nothing is cached.
func (c *Cache) Get(ctx context.Context) (res Result, ok bool, err error) {
	raw, found, err := c.opts.GetOptionContext(ctx, KeyCache)
	if err != nil {
		return Result{}, false, fmt.Errorf("failed to read compatibility cache: %w", err)
	}
	if !found {
		return Result{}, false, nil
	}
	if err := json.Unmarshal([]byte(raw), &res); err != nil {
		// Derived data: a broken cache is the same as no cache.
		return Result{}, false, nil
	}
	return res, true, nil
}

// Put replaces the cached result.
func (c *Cache) Put(ctx context.Context, res Result) error {
	data, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("failed to encode compatibility cache: %w", err)
	}
	if err := c.opts.UpdateOptionContext(ctx, KeyCache, string(data)); err != nil {
		return fmt.Errorf("failed to write compatibility cache: %w", err)
	}
	return nil
}

// Invalidate drops the cached result.
func (c *Cache) Invalidate(ctx context.Context) error {
	if err := c.opts.DeleteOptionContext(ctx, KeyCache); err != nil {
		return fmt.Errorf("failed to invalidate compatibility cache: %w", err)
	}
	return nil
}
