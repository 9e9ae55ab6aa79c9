package schema

import "time"

// HistoryType tags what a history entry describes.
type HistoryType string

const (
	// HistoryComponentDetected is logged when a component appears with no
	// previously stored version, including the first pass after a reset.
	HistoryComponentDetected HistoryType = "component_detected"
	HistoryVersionChanged    HistoryType = "version_changed"
	HistoryComponentRemoved  HistoryType = "component_removed"
	HistorySyncReset         HistoryType = "sync_reset"
)

// HistoryEntry is one record of the bounded sync history log.
type HistoryEntry struct {
	Type      HistoryType    `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	Data      map[string]any `json:"data,omitempty"`
}

// ComponentID returns the component the entry refers to, if any.
func (h HistoryEntry) ComponentID() string {
	if h.Data == nil {
		return ""
	}
	id, _ := h.Data["component_id"].(string)
	return id
}
