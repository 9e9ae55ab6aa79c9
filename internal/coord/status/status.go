// Package status answers "what is the coordination state right now".
//
// Reports are recomputed on every call from a live snapshot and the
// currently active theme, so a theme switch is reflected immediately
// without waiting for the next pass.
package status

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/cdswerx/cdsync/internal/coord/compat"
	"github.com/cdswerx/cdsync/internal/coord/schema"
)

// Source provides the live view. *syncer.Coordinator implements it.
type Source interface {
	Registry() *schema.Registry
	Capture(ctx context.Context) schema.Snapshot
	AutoSync() bool
}

// LastSyncer reports when the last successful pass finished.
// *store.Store implements it.
type LastSyncer interface {
	LastSync(ctx context.Context) (time.Time, error)
}

// Report is the status query result.
type Report struct {
	Mode            schema.Mode                           `json:"mode"`
	ActiveTheme     string                                `json:"active_theme,omitempty"`
	AutoSyncEnabled bool                                  `json:"auto_sync_enabled"`
	LastSync        *time.Time                            `json:"last_sync,omitempty"`
	Components      map[string]schema.CompatibilityStatus `json:"components"`
}

// IDs returns the reported component ids in ascending order.
func (r Report) IDs() []string {
	ids := make([]string, 0, len(r.Components))
	for id := range r.Components {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// SyncEnabledCount returns how many components currently have sync enabled.
func (r Report) SyncEnabledCount() int {
	n := 0
	for _, c := range r.Components {
		if c.SyncEnabled {
			n++
		}
	}
	return n
}

// Reporter builds Reports.
type Reporter struct {
	src  Source
	last LastSyncer
	opts compat.Options
	now  func() time.Time
}

// New creates a Reporter.
func New(src Source, last LastSyncer, opts compat.Options) *Reporter {
	return &Reporter{src: src, last: last, opts: opts, now: time.Now}
}

// WithClock overrides the clock used for LastChecked. Used by tests.
func (r *Reporter) WithClock(now func() time.Time) *Reporter {
	r.now = now
	return r
}

// Status recomputes the report.
func (r *Reporter) Status(ctx context.Context) (Report, error) {
	active, err := compat.ActiveTheme(ctx, r.opts)
	if err != nil {
		return Report{}, err
	}

	present := r.src.Capture(ctx)
	res := compat.Derive(r.src.Registry(), present, active, r.src.AutoSync(), r.now())

	report := Report{
		Mode:            res.Mode,
		ActiveTheme:     active,
		AutoSyncEnabled: r.src.AutoSync(),
		Components:      res.Components,
	}

	last, err := r.last.LastSync(ctx)
	if err != nil {
		return Report{}, fmt.Errorf("failed to build status: %w", err)
	}
	if !last.IsZero() {
		report.LastSync = &last
	}
	return report, nil
}
