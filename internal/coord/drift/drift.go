// Package drift implements the Drift Detector: a pure comparison of two
// snapshots that yields one ChangeEvent per component whose version differs.
package drift

import (
	"sort"
	"strings"
	"time"

	"golang.org/x/mod/semver"

	"github.com/cdswerx/cdsync/internal/coord/schema"
)

// Diff compares old against cur and returns a ChangeEvent for every
// component id present in either snapshot whose version differs, including
// components that appeared or disappeared. Events are ordered by component
// id ascending. Diff has no side effects.
func Diff(old, cur schema.Snapshot, at time.Time) []schema.ChangeEvent {
	ids := union(old, cur)

	var events []schema.ChangeEvent
	for _, id := range ids {
		ov, hadOld := old.Version(id)
		nv, hasNew := cur.Version(id)
		if hadOld && hasNew && ov == nv {
			continue
		}

		e := schema.ChangeEvent{
			ComponentID: id,
			DetectedAt:  at.UTC(),
		}
		if hadOld {
			e.Old = ptr(ov)
		}
		if hasNew {
			e.New = ptr(nv)
		}
		e.Direction = Classify(e.Old, e.New)
		events = append(events, e)
	}
	return events
}

// Classify returns how a version moved. Versions are compared as semver
// when both sides parse (a missing "v" prefix is tolerated); otherwise the
// move is reported as DirectionChanged.
func Classify(old, cur *string) schema.Direction {
	switch {
	case old == nil:
		return schema.DirectionAdded
	case cur == nil:
		return schema.DirectionRemoved
	}

	a, b := Canonical(*old), Canonical(*cur)
	if !semver.IsValid(a) || !semver.IsValid(b) {
		return schema.DirectionChanged
	}

	switch semver.Compare(a, b) {
	case -1:
		return schema.DirectionUpgrade
	case 1:
		return schema.DirectionDowngrade
	default:
		// Equal precedence but different strings, e.g. build metadata.
		return schema.DirectionChanged
	}
}

// Canonical adds the "v" prefix semver expects. "3.21" becomes "v3.21".
func Canonical(v string) string {
	v = strings.TrimSpace(v)
	if v == "" || strings.HasPrefix(v, "v") {
		return v
	}
	return "v" + v
}

func union(a, b schema.Snapshot) []string {
	seen := make(map[string]bool, a.Len()+b.Len())
	for _, id := range a.IDs() {
		seen[id] = true
	}
	for _, id := range b.IDs() {
		seen[id] = true
	}

	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func ptr(s string) *string {
	return &s
}
