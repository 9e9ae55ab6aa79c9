// Package assets keeps the cache-busting counter appended to emitted asset URLs.
//
// The counter is bumped whenever the CSS framework version changes so that
// browsers and CDNs fetch the rebuilt stylesheet instead of a cached copy.
package assets

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// KeyAssetVersion is the option that stores the counter.
const KeyAssetVersion = "cdswerx_asset_version"

// Options is the subset of the host options API the versioner needs.
type Options interface {
	GetOptionContext(ctx context.Context, name string) (string, bool, error)
	UpdateOptionContext(ctx context.Context, name, value string) error
}

// Versioner reads and bumps the counter.
type Versioner struct {
	opts Options
}

// New creates a Versioner.
func New(opts Options) *Versioner {
	return &Versioner{opts: opts}
}

// Current returns the counter, 0 when never bumped.
func (v *Versioner) Current(ctx context.Context) (int, error) {
	raw, found, err := v.opts.GetOptionContext(ctx, KeyAssetVersion)
	if err != nil {
		return 0, fmt.Errorf("failed to read asset version: %w", err)
	}
	if !found {
		return 0, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		// Reset garbage on the next bump.
		return 0, nil
	}
	return n, nil
}

// Bump increments the counter and returns the new value.
func (v *Versioner) Bump(ctx context.Context) (int, error) {
	n, err := v.Current(ctx)
	if err != nil {
		return 0, err
	}
	n++
	if err := v.opts.UpdateOptionContext(ctx, KeyAssetVersion, strconv.Itoa(n)); err != nil {
		return 0, fmt.Errorf("failed to bump asset version: %w", err)
	}
	return n, nil
}

// URL appends a "ver" query parameter built from base (usually the
// framework version) and the counter. Existing query parameters are kept.
func (v *Versioner) URL(ctx context.Context, assetURL, base string) (string, error) {
	n, err := v.Current(ctx)
	if err != nil {
		return "", err
	}

	u, err := url.Parse(assetURL)
	if err != nil {
		return "", fmt.Errorf("invalid asset url %q: %w", assetURL, err)
	}

	ver := strconv.Itoa(n)
	if base != "" {
		ver = base + "." + ver
	}

	q := u.Query()
	q.Set("ver", ver)
	u.RawQuery = q.Encode()
	return u.String(), nil
}
