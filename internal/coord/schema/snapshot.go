package schema

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"
)

// Snapshot maps component ids to the version observed at CapturedAt.
// Snapshots are immutable; build them with NewSnapshot.
type Snapshot struct {
	versions   map[string]string
	capturedAt time.Time
}

// NewSnapshot copies versions into a new snapshot.
func NewSnapshot(versions map[string]string, capturedAt time.Time) Snapshot {
	cp := make(map[string]string, len(versions))
	for id, v := range versions {
		cp[id] = v
	}
	return Snapshot{versions: cp, capturedAt: capturedAt.UTC()}
}

// EmptySnapshot is the baseline used on first run and after a reset.
func EmptySnapshot() Snapshot {
	return Snapshot{versions: map[string]string{}}
}

// Version returns the version for id and whether it was present.
func (s Snapshot) Version(id string) (string, bool) {
	v, ok := s.versions[id]
	return v, ok
}

// Versions returns a copy of the mapping.
func (s Snapshot) Versions() map[string]string {
	cp := make(map[string]string, len(s.versions))
	for id, v := range s.versions {
		cp[id] = v
	}
	return cp
}

// IDs returns the component ids in ascending order.
func (s Snapshot) IDs() []string {
	ids := make([]string, 0, len(s.versions))
	for id := range s.versions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// CapturedAt returns the capture time (zero for an empty baseline).
func (s Snapshot) CapturedAt() time.Time {
	return s.capturedAt
}

// Len returns the number of components present.
func (s Snapshot) Len() int {
	return len(s.versions)
}

// IsEmpty reports whether no component is recorded.
func (s Snapshot) IsEmpty() bool {
	return len(s.versions) == 0
}

// Equal reports whether both snapshots hold the same versions.
// Capture times are ignored.
func (s Snapshot) Equal(other Snapshot) bool {
	if len(s.versions) != len(other.versions) {
		return false
	}
	for id, v := range s.versions {
		if ov, ok := other.versions[id]; !ok || ov != v {
			return false
		}
	}
	return true
}

type snapshotJSON struct {
	Versions   map[string]string `json:"versions"`
	CapturedAt time.Time         `json:"captured_at"`
}

// MarshalJSON implements json.Marshaler.
func (s Snapshot) MarshalJSON() ([]byte, error) {
	versions := s.versions
	if versions == nil {
		versions = map[string]string{}
	}
	return json.Marshal(snapshotJSON{Versions: versions, CapturedAt: s.capturedAt})
}

// UnmarshalJSON implements json.Unmarshaler.
func (s *Snapshot) UnmarshalJSON(data []byte) error {
	var raw snapshotJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("failed to decode snapshot: %w", err)
	}
	*s = NewSnapshot(raw.Versions, raw.CapturedAt)
	return nil
}
