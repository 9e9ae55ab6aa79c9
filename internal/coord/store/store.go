// Package store implements the Version Store: the last-known snapshot and
// the bounded sync history, both persisted as opaque JSON values in the
// host options table.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"sort"
	"time"

	"github.com/cdswerx/cdsync/internal/coord/schema"
)

// Option keys owned by the Version Store.
const (
	KeySnapshot = "cdswerx_sync_versions"
	KeyHistory  = "cdswerx_sync_history"
	KeyLastSync = "cdswerx_last_sync"
)

const (
	// DefaultHistoryCap is the number of history entries kept when no cap is configured.
	DefaultHistoryCap = 50

	// MaxHistoryCap bounds configured caps.
	MaxHistoryCap = 1000
)

// Options is the host key-value settings API. *db.DB implements it.
type Options interface {
	GetOptionContext(ctx context.Context, name string) (string, bool, error)
	UpdateOptionContext(ctx context.Context, name, value string) error
	DeleteOptionContext(ctx context.Context, name string) error
}

// Store persists snapshots and history through Options.
//
// Writes replace whole values (never merged). There is no locking:
// concurrent writers race and the last one wins.
type Store struct {
	opts       Options
	historyCap int
	logger     *log.Logger
}

// errCorruptHistory marks a stored history value that does not decode.
var errCorruptHistory = errors.New("corrupt history")

// New creates a Store. A historyCap outside 1..MaxHistoryCap falls back to
// DefaultHistoryCap.
func New(opts Options, historyCap int) *Store {
	if historyCap <= 0 || historyCap > MaxHistoryCap {
		historyCap = DefaultHistoryCap
	}
	return &Store{
		opts:       opts,
		historyCap: historyCap,
		logger:     log.New(os.Stderr, "[store] ", log.LstdFlags),
	}
}

// WithLogger replaces the default stderr logger.
func (s *Store) WithLogger(logger *log.Logger) *Store {
	if logger != nil {
		s.logger = logger
	}
	return s
}

// HistoryCap returns the configured history bound.
func (s *Store) HistoryCap() int {
	return s.historyCap
}

// Load returns the last persisted snapshot, or an empty snapshot on first run.
func (s *Store) Load(ctx context.Context) (schema.Snapshot, error) {
	raw, found, err := s.opts.GetOptionContext(ctx, KeySnapshot)
	if err != nil {
		return schema.EmptySnapshot(), fmt.Errorf("failed to load snapshot: %w: %w", schema.ErrPersistence, err)
	}
	if !found || raw == "" {
		return schema.EmptySnapshot(), nil
	}

	var snap schema.Snapshot
	if err := json.Unmarshal([]byte(raw), &snap); err != nil {
		// A corrupt value is treated as first run; the next Save overwrites it.
		return schema.EmptySnapshot(), fmt.Errorf("failed to decode stored snapshot: %w: %w", schema.ErrPersistence, err)
	}
	return snap, nil
}

// Save replaces the stored snapshot with snap.
func (s *Store) Save(ctx context.Context, snap schema.Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}
	if err := s.opts.UpdateOptionContext(ctx, KeySnapshot, string(data)); err != nil {
		return fmt.Errorf("failed to save snapshot: %w: %w", schema.ErrPersistence, err)
	}
	return nil
}

// Clear removes the stored snapshot so the next pass behaves like a first run.
// History is kept.
func (s *Store) Clear(ctx context.Context) error {
	if err := s.opts.DeleteOptionContext(ctx, KeySnapshot); err != nil {
		return fmt.Errorf("failed to clear snapshot: %w: %w", schema.ErrPersistence, err)
	}
	return nil
}

// AppendHistory adds entries to the bounded log, evicting the oldest
// entries beyond the cap. Entries are kept ordered by timestamp; entries
// with equal timestamps keep insertion order.
//
// A stored log that does not decode is discarded and rewritten with the
// new entries.
func (s *Store) AppendHistory(ctx context.Context, entries ...schema.HistoryEntry) error {
	if len(entries) == 0 {
		return nil
	}

	hist, err := s.loadHistory(ctx)
	if errors.Is(err, errCorruptHistory) {
		s.logger.Printf("WARNING: discarding unreadable history: %v", err)
		hist, err = nil, nil
	}
	if err != nil {
		return err
	}

	for _, e := range entries {
		if e.Timestamp.IsZero() {
			e.Timestamp = time.Now().UTC()
		}
		// Insert after every entry that is not newer than e.
		i := sort.Search(len(hist), func(i int) bool { return hist[i].Timestamp.After(e.Timestamp) })
		hist = append(hist, schema.HistoryEntry{})
		copy(hist[i+1:], hist[i:])
		hist[i] = e
	}

	if over := len(hist) - s.historyCap; over > 0 {
		hist = hist[over:]
	}

	data, err := json.Marshal(hist)
	if err != nil {
		return fmt.Errorf("failed to encode history: %w", err)
	}
	if err := s.opts.UpdateOptionContext(ctx, KeyHistory, string(data)); err != nil {
		return fmt.Errorf("failed to save history: %w: %w", schema.ErrPersistence, err)
	}
	return nil
}

// ReadHistory returns up to limit entries, newest first.
// A limit <= 0 returns the whole log.
func (s *Store) ReadHistory(ctx context.Context, limit int) ([]schema.HistoryEntry, error) {
	hist, err := s.loadHistory(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]schema.HistoryEntry, 0, len(hist))
	for i := len(hist) - 1; i >= 0; i-- {
		out = append(out, hist[i])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

// HistorySince returns entries at or after since, newest first.
func (s *Store) HistorySince(ctx context.Context, since time.Time) ([]schema.HistoryEntry, error) {
	all, err := s.ReadHistory(ctx, 0)
	if err != nil {
		return nil, err
	}

	var out []schema.HistoryEntry
	for _, e := range all {
		if e.Timestamp.Before(since) {
			break
		}
		out = append(out, e)
	}
	return out, nil
}

// LastSync returns the completion time of the last successful pass.
func (s *Store) LastSync(ctx context.Context) (time.Time, error) {
	raw, found, err := s.opts.GetOptionContext(ctx, KeyLastSync)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to load last sync: %w: %w", schema.ErrPersistence, err)
	}
	if !found {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse last sync %q: %w", raw, err)
	}
	return t, nil
}

// SetLastSync records the completion time of a pass.
func (s *Store) SetLastSync(ctx context.Context, t time.Time) error {
	if err := s.opts.UpdateOptionContext(ctx, KeyLastSync, t.UTC().Format(time.RFC3339Nano)); err != nil {
		return fmt.Errorf("failed to save last sync: %w: %w", schema.ErrPersistence, err)
	}
	return nil
}

// loadHistory returns the stored log oldest first.
func (s *Store) loadHistory(ctx context.Context) ([]schema.HistoryEntry, error) {
	raw, found, err := s.opts.GetOptionContext(ctx, KeyHistory)
	if err != nil {
		return nil, fmt.Errorf("failed to load history: %w: %w", schema.ErrPersistence, err)
	}
	if !found || raw == "" {
		return nil, nil
	}

	var hist []schema.HistoryEntry
	if err := json.Unmarshal([]byte(raw), &hist); err != nil {
		return nil, fmt.Errorf("failed to decode history: %w: %w: %w", schema.ErrPersistence, errCorruptHistory, err)
	}
	return hist, nil
}
