package store

import (
	"context"
	"bytes"
	"errors"
	"fmt"
	"log"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/cdswerx/cdsync/internal/coord/db"
	"github.com/cdswerx/cdsync/internal/coord/schema"
)

// setupTestStore creates a store over a temporary options database.
func setupTestStore(t *testing.T, historyCap int) (*Store, *db.DB) {
	t.Helper()

	database, err := db.Open(filepath.Join(t.TempDir(), "options.db"))
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { _ = database.Close() })

	return New(database, historyCap), database
}

type brokenOptions struct{}

func (brokenOptions) GetOptionContext(ctx context.Context, name string) (string, bool, error) {
	return "", false, errors.New("disk I/O error")
}
func (brokenOptions) UpdateOptionContext(ctx context.Context, name, value string) error {
	return errors.New("disk I/O error")
}
func (brokenOptions) DeleteOptionContext(ctx context.Context, name string) error {
	return errors.New("disk I/O error")
}

func TestLoad_FirstRun(t *testing.T) {
	s, _ := setupTestStore(t, 0)

	snap, err := s.Load(context.Background())
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if !snap.IsEmpty() {
		t.Errorf("first-run snapshot has %d entries, want 0", snap.Len())
	}
}

func TestSave_ReplacesWholeSnapshot(t *testing.T) {
	s, _ := setupTestStore(t, 0)
	ctx := context.Background()

	first := schema.NewSnapshot(map[string]string{"cdswerx": "1.0.0", "uikit": "3.0.0"}, time.Now())
	if err := s.Save(ctx, first); err != nil {
		t.Fatalf("Save() failed: %v", err)
	}

	second := schema.NewSnapshot(map[string]string{"cdswerx": "1.1.0"}, time.Now())
	if err := s.Save(ctx, second); err != nil {
		t.Fatalf("second Save() failed: %v", err)
	}

	got, err := s.Load(ctx)
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if !got.Equal(second) {
		t.Errorf("Load() = %v, want %v (no merge)", got.Versions(), second.Versions())
	}
}

func TestLoad_CorruptValue(t *testing.T) {
	s, database := setupTestStore(t, 0)

	if err := database.UpdateOption(KeySnapshot, "{not json"); err != nil {
		t.Fatalf("UpdateOption() failed: %v", err)
	}

	snap, err := s.Load(context.Background())
	if !schema.IsPersistence(err) {
		t.Errorf("Load() error = %v, want persistence error", err)
	}
	if !snap.IsEmpty() {
		t.Error("corrupt value should load as empty snapshot")
	}
}

func TestAppendHistory_RecoversFromCorruptLog(t *testing.T) {
	s, database := setupTestStore(t, 0)
	ctx := context.Background()

	var logs bytes.Buffer
	s.WithLogger(log.New(&logs, "", 0))

	if err := database.UpdateOption(KeyHistory, "{not json"); err != nil {
		t.Fatalf("UpdateOption() failed: %v", err)
	}
	if _, err := s.ReadHistory(ctx, 0); !schema.IsPersistence(err) {
		t.Errorf("ReadHistory() over corrupt log error = %v, want persistence error", err)
	}

	for i := 0; i < 3; i++ {
		entry := schema.HistoryEntry{Type: schema.HistoryVersionChanged, Data: map[string]any{"component_id": fmt.Sprintf("c%d", i)}}
		if err := s.AppendHistory(ctx, entry); err != nil {
			t.Fatalf("AppendHistory() #%d failed: %v", i, err)
		}
	}

	got, err := s.ReadHistory(ctx, 0)
	if err != nil {
		t.Fatalf("ReadHistory() after rewrite failed: %v", err)
	}
	if len(got) != 3 || got[0].ComponentID() != "c2" {
		t.Errorf("history = %+v, want 3 entries newest c2", got)
	}
	if n := strings.Count(logs.String(), "discarding unreadable history"); n != 1 {
		t.Errorf("discard warnings = %d, want 1; logs %q", n, logs.String())
	}
}

func TestClear_KeepsHistory(t *testing.T) {
	s, _ := setupTestStore(t, 0)
	ctx := context.Background()

	if err := s.Save(ctx, schema.NewSnapshot(map[string]string{"theme": "1.0.0"}, time.Now())); err != nil {
		t.Fatalf("Save() failed: %v", err)
	}
	if err := s.AppendHistory(ctx, schema.HistoryEntry{Type: schema.HistoryVersionChanged}); err != nil {
		t.Fatalf("AppendHistory() failed: %v", err)
	}

	if err := s.Clear(ctx); err != nil {
		t.Fatalf("Clear() failed: %v", err)
	}

	snap, err := s.Load(ctx)
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if !snap.IsEmpty() {
		t.Error("snapshot not cleared")
	}

	hist, err := s.ReadHistory(ctx, 10)
	if err != nil {
		t.Fatalf("ReadHistory() failed: %v", err)
	}
	if len(hist) != 1 {
		t.Errorf("history length = %d, want 1", len(hist))
	}
}

func TestHistory_Bounded(t *testing.T) {
	s, _ := setupTestStore(t, 30)
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 45; i++ {
		entry := schema.HistoryEntry{
			Type:      schema.HistoryVersionChanged,
			Timestamp: base.Add(time.Duration(i) * time.Minute),
			Data:      map[string]any{"seq": fmt.Sprintf("%02d", i)},
		}
		if err := s.AppendHistory(ctx, entry); err != nil {
			t.Fatalf("AppendHistory(%d) failed: %v", i, err)
		}
	}

	hist, err := s.ReadHistory(ctx, 1000)
	if err != nil {
		t.Fatalf("ReadHistory() failed: %v", err)
	}
	if len(hist) != 30 {
		t.Fatalf("history length = %d, want 30", len(hist))
	}

	if got := hist[0].Data["seq"]; got != "44" {
		t.Errorf("newest entry seq = %v, want 44", got)
	}
	if got := hist[29].Data["seq"]; got != "15" {
		t.Errorf("oldest kept entry seq = %v, want 15", got)
	}
	for _, e := range hist {
		if e.Data["seq"] == "00" {
			t.Error("oldest inserted entry should have been evicted")
		}
	}
	for i := 1; i < len(hist); i++ {
		if hist[i].Timestamp.After(hist[i-1].Timestamp) {
			t.Fatalf("history not newest-first at %d", i)
		}
	}
}

func TestHistory_OrderedByTimestamp(t *testing.T) {
	s, _ := setupTestStore(t, 3)
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	// Out-of-order append: the late-arriving older entry is evicted first.
	entries := []schema.HistoryEntry{
		{Type: schema.HistoryVersionChanged, Timestamp: base.Add(2 * time.Hour), Data: map[string]any{"n": "b"}},
		{Type: schema.HistoryVersionChanged, Timestamp: base.Add(3 * time.Hour), Data: map[string]any{"n": "c"}},
		{Type: schema.HistoryVersionChanged, Timestamp: base.Add(1 * time.Hour), Data: map[string]any{"n": "a"}},
		{Type: schema.HistoryVersionChanged, Timestamp: base.Add(4 * time.Hour), Data: map[string]any{"n": "d"}},
	}
	if err := s.AppendHistory(ctx, entries...); err != nil {
		t.Fatalf("AppendHistory() failed: %v", err)
	}

	hist, err := s.ReadHistory(ctx, 0)
	if err != nil {
		t.Fatalf("ReadHistory() failed: %v", err)
	}

	var got []any
	for _, e := range hist {
		got = append(got, e.Data["n"])
	}
	want := []any{"d", "c", "b"}
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Errorf("history = %v, want %v", got, want)
	}
}

func TestReadHistory_Limit(t *testing.T) {
	s, _ := setupTestStore(t, 0)
	ctx := context.Background()
	base := time.Now().UTC()

	for i := 0; i < 5; i++ {
		if err := s.AppendHistory(ctx, schema.HistoryEntry{Type: schema.HistoryVersionChanged, Timestamp: base.Add(time.Duration(i) * time.Second)}); err != nil {
			t.Fatalf("AppendHistory() failed: %v", err)
		}
	}

	hist, err := s.ReadHistory(ctx, 2)
	if err != nil {
		t.Fatalf("ReadHistory() failed: %v", err)
	}
	if len(hist) != 2 {
		t.Errorf("ReadHistory(2) returned %d entries", len(hist))
	}
}

func TestHistorySince(t *testing.T) {
	s, _ := setupTestStore(t, 0)
	ctx := context.Background()
	base := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 4; i++ {
		if err := s.AppendHistory(ctx, schema.HistoryEntry{Type: schema.HistoryVersionChanged, Timestamp: base.AddDate(0, 0, i)}); err != nil {
			t.Fatalf("AppendHistory() failed: %v", err)
		}
	}

	hist, err := s.HistorySince(ctx, base.AddDate(0, 0, 2))
	if err != nil {
		t.Fatalf("HistorySince() failed: %v", err)
	}
	if len(hist) != 2 {
		t.Errorf("HistorySince() returned %d entries, want 2", len(hist))
	}
}

func TestLastSync_RoundTrip(t *testing.T) {
	s, _ := setupTestStore(t, 0)
	ctx := context.Background()

	zero, err := s.LastSync(ctx)
	if err != nil {
		t.Fatalf("LastSync() failed: %v", err)
	}
	if !zero.IsZero() {
		t.Errorf("LastSync() before any pass = %v, want zero", zero)
	}

	at := time.Date(2026, 10, 14, 9, 30, 0, 123, time.UTC)
	if err := s.SetLastSync(ctx, at); err != nil {
		t.Fatalf("SetLastSync() failed: %v", err)
	}
	got, err := s.LastSync(ctx)
	if err != nil {
		t.Fatalf("LastSync() failed: %v", err)
	}
	if !got.Equal(at) {
		t.Errorf("LastSync() = %v, want %v", got, at)
	}
}

func TestStore_PersistenceErrors(t *testing.T) {
	s := New(brokenOptions{}, 10)
	ctx := context.Background()

	if _, err := s.Load(ctx); !schema.IsPersistence(err) {
		t.Errorf("Load() error = %v, want persistence error", err)
	}
	if err := s.Save(ctx, schema.EmptySnapshot()); !schema.IsPersistence(err) {
		t.Errorf("Save() error = %v, want persistence error", err)
	}
	if err := s.AppendHistory(ctx, schema.HistoryEntry{Type: schema.HistorySyncReset}); !schema.IsPersistence(err) {
		t.Errorf("AppendHistory() error = %v, want persistence error", err)
	}
}

func TestNew_CapBounds(t *testing.T) {
	tests := []struct {
		in, want int
	}{
		{0, DefaultHistoryCap},
		{-1, DefaultHistoryCap},
		{30, 30},
		{MaxHistoryCap + 1, DefaultHistoryCap},
	}
	for _, tt := range tests {
		if got := New(brokenOptions{}, tt.in).HistoryCap(); got != tt.want {
			t.Errorf("New(cap=%d).HistoryCap() = %d, want %d", tt.in, got, tt.want)
		}
	}
}
