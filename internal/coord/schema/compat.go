package schema

import "time"

// Compatibility is the derived judgement for one component.
type Compatibility string

const (
	CompatCompatible  Compatibility = "compatible"
	CompatIndependent Compatibility = "independent"
	CompatNative      Compatibility = "native"
	CompatUnknown     Compatibility = "unknown"
)

// Mode is the site-wide coordination mode derived from the active theme.
type Mode string

const (
	ModeNative      Mode = "native"      // active theme is a native theme
	ModeCompatible  Mode = "compatible"  // active theme is a child of a native theme
	ModeIndependent Mode = "independent" // active theme is not ours
	ModeUnknown     Mode = "unknown"     // no active theme recorded
)

// CompatibilityStatus is recomputed on every pass and on every status
// query. It is safe to discard and rebuild.
type CompatibilityStatus struct {
	Status      Compatibility `json:"status"`
	SyncEnabled bool          `json:"sync_enabled"`
	LastChecked time.Time     `json:"last_checked"`
}
