package schema

import (
	"fmt"
	"time"
)

// Direction describes how a version moved between two snapshots.
type Direction string

const (
	DirectionAdded     Direction = "added"
	DirectionRemoved   Direction = "removed"
	DirectionUpgrade   Direction = "upgrade"
	DirectionDowngrade Direction = "downgrade"
	DirectionChanged   Direction = "changed" // at least one side is not semver
)

// ChangeEvent records that one component's version differs between the
// stored and the freshly captured snapshot. It is consumed once by the
// dispatcher and folded into history; it is not persisted on its own.
type ChangeEvent struct {
	ComponentID string    `json:"component_id"`
	Old         *string   `json:"old_version"`
	New         *string   `json:"new_version"`
	Direction   Direction `json:"direction"`
	DetectedAt  time.Time `json:"detected_at"`
}

// OldVersion returns the previous version or "" when the component just appeared.
func (e ChangeEvent) OldVersion() string {
	if e.Old == nil {
		return ""
	}
	return *e.Old
}

// NewVersion returns the current version or "" when the component disappeared.
func (e ChangeEvent) NewVersion() string {
	if e.New == nil {
		return ""
	}
	return *e.New
}

// IsDetection reports whether the component had no previous version.
func (e ChangeEvent) IsDetection() bool {
	return e.Old == nil && e.New != nil
}

// IsRemoval reports whether the component disappeared.
func (e ChangeEvent) IsRemoval() bool {
	return e.Old != nil && e.New == nil
}

// HistoryType maps the event to the history tag it is logged under.
func (e ChangeEvent) HistoryType() HistoryType {
	switch {
	case e.IsDetection():
		return HistoryComponentDetected
	case e.IsRemoval():
		return HistoryComponentRemoved
	default:
		return HistoryVersionChanged
	}
}

// String renders "id: old -> new" with "none" for missing sides.
func (e ChangeEvent) String() string {
	old, cur := "none", "none"
	if e.Old != nil {
		old = *e.Old
	}
	if e.New != nil {
		cur = *e.New
	}
	return fmt.Sprintf("%s: %s -> %s (%s)", e.ComponentID, old, cur, e.Direction)
}

// HistoryEntry converts the event into a log record.
func (e ChangeEvent) HistoryEntry() HistoryEntry {
	data := map[string]any{
		"component_id": e.ComponentID,
		"direction":    string(e.Direction),
	}
	if e.Old != nil {
		data["old_version"] = *e.Old
	}
	if e.New != nil {
		data["new_version"] = *e.New
	}
	return HistoryEntry{
		Type:      e.HistoryType(),
		Timestamp: e.DetectedAt,
		Data:      data,
	}
}
