package schema

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"
)

type fixedSource string

func (f fixedSource) Version(ctx context.Context) (string, error) { return string(f), nil }
func (f fixedSource) Describe() string                            { return "fixed" }

func TestDescriptor_Validate(t *testing.T) {
	tests := []struct {
		name    string
		desc    Descriptor
		wantErr bool
		errMsg  string
	}{
		{
			name: "valid plugin",
			desc: Descriptor{ID: "cdswerx", Kind: KindPlugin, Source: fixedSource("1.0.0")},
		},
		{
			name: "valid native theme",
			desc: Descriptor{ID: "cdswerx-theme", Kind: KindTheme, Native: true, Source: fixedSource("1.0.0")},
		},
		{
			name:    "missing id",
			desc:    Descriptor{Kind: KindPlugin, Source: fixedSource("1.0.0")},
			wantErr: true,
			errMsg:  "id is required",
		},
		{
			name:    "uppercase id",
			desc:    Descriptor{ID: "CDS", Kind: KindPlugin, Source: fixedSource("1.0.0")},
			wantErr: true,
			errMsg:  "must be lowercase",
		},
		{
			name:    "unknown kind",
			desc:    Descriptor{ID: "x", Kind: "widget", Source: fixedSource("1.0.0")},
			wantErr: true,
			errMsg:  "unknown kind",
		},
		{
			name:    "no source",
			desc:    Descriptor{ID: "x", Kind: KindPlugin},
			wantErr: true,
			errMsg:  "no version source",
		},
		{
			name:    "native plugin",
			desc:    Descriptor{ID: "x", Kind: KindPlugin, Native: true, Source: fixedSource("1")},
			wantErr: true,
			errMsg:  "native but not a theme",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.desc.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil {
				return
			}
			if !errors.Is(err, ErrInvalidDescriptor) {
				t.Errorf("error %v is not ErrInvalidDescriptor", err)
			}
			if !strings.Contains(err.Error(), tt.errMsg) {
				t.Errorf("error = %q, want it to contain %q", err.Error(), tt.errMsg)
			}
		})
	}
}

func TestRegistry_DuplicateAndOrder(t *testing.T) {
	r, err := NewRegistry(
		Descriptor{ID: "zeta", Kind: KindPlugin, Source: fixedSource("1")},
		Descriptor{ID: "alpha", Kind: KindTheme, Source: fixedSource("1")},
	)
	if err != nil {
		t.Fatalf("NewRegistry() failed: %v", err)
	}

	if err := r.Add(Descriptor{ID: "alpha", Kind: KindPlugin, Source: fixedSource("2")}); !errors.Is(err, ErrDuplicateComponent) {
		t.Errorf("Add(duplicate) error = %v, want ErrDuplicateComponent", err)
	}

	all := r.All()
	if len(all) != 2 || all[0].ID != "zeta" || all[1].ID != "alpha" {
		t.Errorf("All() = %v, want registration order [zeta alpha]", all)
	}

	ids := r.IDs()
	if ids[0] != "alpha" || ids[1] != "zeta" {
		t.Errorf("IDs() = %v, want sorted", ids)
	}

	if themes := r.OfKind(KindTheme); len(themes) != 1 || themes[0].ID != "alpha" {
		t.Errorf("OfKind(theme) = %v", themes)
	}
}

func TestSnapshot_Immutable(t *testing.T) {
	src := map[string]string{"theme": "1.0.0"}
	s := NewSnapshot(src, time.Now())

	src["theme"] = "9.9.9"
	if v, _ := s.Version("theme"); v != "1.0.0" {
		t.Errorf("snapshot changed through source map: %q", v)
	}

	cp := s.Versions()
	cp["theme"] = "2.0.0"
	if v, _ := s.Version("theme"); v != "1.0.0" {
		t.Errorf("snapshot changed through Versions() copy: %q", v)
	}
}

func TestSnapshot_JSONRoundTrip(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s := NewSnapshot(map[string]string{"cdswerx": "2.1.0", "uikit": "3.21.0"}, at)

	data, err := json.Marshal(s)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}

	var got Snapshot
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}

	if !got.Equal(s) {
		t.Errorf("round trip = %v, want %v", got.Versions(), s.Versions())
	}
	if !got.CapturedAt().Equal(at) {
		t.Errorf("CapturedAt = %v, want %v", got.CapturedAt(), at)
	}
}

func TestEmptySnapshot_MarshalsEmptyObject(t *testing.T) {
	data, err := json.Marshal(EmptySnapshot())
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	if !strings.Contains(string(data), `"versions":{}`) {
		t.Errorf("empty snapshot JSON = %s", data)
	}
}

func TestChangeEvent_HistoryType(t *testing.T) {
	v1, v2 := "1.0.0", "1.1.0"

	tests := []struct {
		name  string
		event ChangeEvent
		want  HistoryType
	}{
		{"detected", ChangeEvent{ComponentID: "t", New: &v1}, HistoryComponentDetected},
		{"changed", ChangeEvent{ComponentID: "t", Old: &v1, New: &v2}, HistoryVersionChanged},
		{"removed", ChangeEvent{ComponentID: "t", Old: &v1}, HistoryComponentRemoved},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.event.HistoryType(); got != tt.want {
				t.Errorf("HistoryType() = %s, want %s", got, tt.want)
			}
			entry := tt.event.HistoryEntry()
			if entry.ComponentID() != "t" {
				t.Errorf("entry component = %q", entry.ComponentID())
			}
		})
	}
}
