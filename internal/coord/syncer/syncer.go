package syncer

import (
	"context"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/cdswerx/cdsync/internal/coord/compat"
	"github.com/cdswerx/cdsync/internal/coord/dispatch"
	"github.com/cdswerx/cdsync/internal/coord/drift"
	"github.com/cdswerx/cdsync/internal/coord/reader"
	"github.com/cdswerx/cdsync/internal/coord/schema"
)

// Trigger names the context a pass ran in.
type Trigger string

const (
	TriggerPageLoad Trigger = "page_load"
	TriggerManual   Trigger = "manual"
	TriggerSchedule Trigger = "schedule"
	TriggerWatch    Trigger = "watch"
)

// VersionStore is the persistence the coordinator needs. *store.Store implements it.
type VersionStore interface {
	Load(ctx context.Context) (schema.Snapshot, error)
	Save(ctx context.Context, snap schema.Snapshot) error
	Clear(ctx context.Context) error
	AppendHistory(ctx context.Context, entries ...schema.HistoryEntry) error
	SetLastSync(ctx context.Context, t time.Time) error
}

// PassResult describes one completed pass.
type PassResult struct {
	Trigger    Trigger              `json:"trigger"`
	StartedAt  time.Time            `json:"started_at"`
	FinishedAt time.Time            `json:"finished_at"`
	Events     []schema.ChangeEvent `json:"events"`
	Snapshot   schema.Snapshot      `json:"snapshot"`
	Compat     compat.Result        `json:"compat"`

	// HandlerErrors are the isolated reaction failures of this pass.
	HandlerErrors []error `json:"-"`

	// SaveErr is set when the snapshot could not be persisted.
	SaveErr error `json:"-"`
}

// Changed reports whether the pass detected any drift.
func (r PassResult) Changed() bool {
	return len(r.Events) > 0
}

// Observer is notified after every pass.
type Observer func(PassResult)

// Config holds what a Coordinator is built from.
type Config struct {
	Registry   *schema.Registry
	Reader     *reader.Reader
	Store      VersionStore
	Options    compat.Options
	Dispatcher *dispatch.Dispatcher

	// AutoSync is reported on status and gates CompatibilityStatus.SyncEnabled.
	AutoSync bool

	// Logger for pass activity (default: stderr with "[sync] " prefix)
	Logger *log.Logger

	// Now overrides the clock. Used by tests.
	Now func() time.Time
}

// Coordinator owns the pass and the observer list.
type Coordinator struct {
	reg        *schema.Registry
	reader     *reader.Reader
	store      VersionStore
	opts       compat.Options
	cache      *compat.Cache
	dispatcher *dispatch.Dispatcher
	autoSync   bool
	logger     *log.Logger
	now        func() time.Time

	mu        sync.Mutex
	memory    schema.Snapshot
	hasMemory bool
	dirty     bool // memory not yet persisted

	observersMu sync.RWMutex
	observers   []Observer
}

// New creates a Coordinator. Registry, Store and Options are required.
func New(cfg Config) (*Coordinator, error) {
	if cfg.Registry == nil {
		return nil, fmt.Errorf("registry cannot be nil")
	}
	if cfg.Store == nil {
		return nil, fmt.Errorf("store cannot be nil")
	}
	if cfg.Options == nil {
		return nil, fmt.Errorf("options cannot be nil")
	}
	if cfg.Logger == nil {
		cfg.Logger = log.New(os.Stderr, "[sync] ", log.LstdFlags)
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Reader == nil {
		cfg.Reader = reader.New(cfg.Logger)
	}
	if cfg.Dispatcher == nil {
		cfg.Dispatcher = dispatch.New(cfg.Logger)
	}

	return &Coordinator{
		reg:        cfg.Registry,
		reader:     cfg.Reader.WithClock(cfg.Now),
		store:      cfg.Store,
		opts:       cfg.Options,
		cache:      compat.NewCache(cfg.Options),
		dispatcher: cfg.Dispatcher,
		autoSync:   cfg.AutoSync,
		logger:     cfg.Logger,
		now:        cfg.Now,
	}, nil
}

// Registry returns the tracked components.
func (c *Coordinator) Registry() *schema.Registry {
	return c.reg
}

// Dispatcher returns the reaction dispatcher, for handler registration.
func (c *Coordinator) Dispatcher() *dispatch.Dispatcher {
	return c.dispatcher
}

// Cache returns the compatibility cache the pass refreshes.
func (c *Coordinator) Cache() *compat.Cache {
	return c.cache
}

// AutoSync reports whether automatic sync is enabled.
func (c *Coordinator) AutoSync() bool {
	return c.autoSync
}

// Subscribe adds an observer. Observers run synchronously after each pass,
// outside the pass lock, in subscription order.
func (c *Coordinator) Subscribe(o Observer) {
	c.observersMu.Lock()
	defer c.observersMu.Unlock()
	c.observers = append(c.observers, o)
}

// Memory returns the snapshot captured by the latest pass in this process.
func (c *Coordinator) Memory() (schema.Snapshot, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.memory, c.hasMemory
}

// Capture reads a live snapshot without running a pass.
func (c *Coordinator) Capture(ctx context.Context) schema.Snapshot {
	return c.reader.Read(ctx, c.reg.All())
}

// Run performs one coordination pass.
func (c *Coordinator) Run(ctx context.Context, trigger Trigger) (PassResult, error) {
	if err := ctx.Err(); err != nil {
		return PassResult{}, err
	}

	c.mu.Lock()
	result := c.pass(ctx, trigger)
	c.mu.Unlock()

	c.notify(result)
	return result, nil
}

// pass runs with c.mu held.
func (c *Coordinator) pass(ctx context.Context, trigger Trigger) PassResult {
	result := PassResult{Trigger: trigger, StartedAt: c.now().UTC()}

	baseline := c.baseline(ctx)
	captured := c.reader.Read(ctx, c.reg.All())
	result.Snapshot = captured

	result.Events = drift.Diff(baseline, captured, result.StartedAt)

	history := make([]schema.HistoryEntry, 0, len(result.Events))
	for _, e := range result.Events {
		c.logger.Printf("Detected %s", e)
		result.HandlerErrors = append(result.HandlerErrors, c.dispatcher.Dispatch(ctx, e)...)
		history = append(history, e.HistoryEntry())
	}

	if err := c.store.Save(ctx, captured); err != nil {
		c.logger.Printf("ERROR: failed to save snapshot, keeping it in memory: %v", err)
		result.SaveErr = err
		c.dirty = true
	} else {
		c.dirty = false
	}
	c.memory = captured
	c.hasMemory = true

	if err := c.store.AppendHistory(ctx, history...); err != nil {
		c.logger.Printf("ERROR: failed to record history: %v", err)
	}

	result.Compat = c.refreshCompat(ctx, captured)

	result.FinishedAt = c.now().UTC()
	if result.SaveErr == nil {
		if err := c.store.SetLastSync(ctx, result.FinishedAt); err != nil {
			c.logger.Printf("ERROR: failed to record sync time: %v", err)
		}
	}

	c.logger.Printf("Pass (%s) complete: components=%d changes=%d handler_errors=%d",
		trigger, captured.Len(), len(result.Events), len(result.HandlerErrors))
	return result
}

// baseline returns the snapshot to diff against.
func (c *Coordinator) baseline(ctx context.Context) schema.Snapshot {
	if c.dirty && c.hasMemory {
		return c.memory
	}

	stored, err := c.store.Load(ctx)
	if err != nil {
		c.logger.Printf("ERROR: failed to load stored snapshot: %v", err)
		if c.hasMemory {
			return c.memory
		}
		return schema.EmptySnapshot()
	}
	return stored
}

func (c *Coordinator) refreshCompat(ctx context.Context, present schema.Snapshot) compat.Result {
	active, err := compat.ActiveTheme(ctx, c.opts)
	if err != nil {
		c.logger.Printf("WARNING: %v", err)
	}

	res := compat.Derive(c.reg, present, active, c.autoSync, c.now())
	if err := c.cache.Put(ctx, res); err != nil {
		c.logger.Printf("WARNING: %v", err)
	}
	return res
}

// Reset clears the stored snapshot and the compatibility cache, so the next
// pass behaves like the first ever run. Installed components and history
// are left alone; a sync_reset entry is appended to history.
func (c *Coordinator) Reset(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var firstErr error
	if err := c.store.Clear(ctx); err != nil {
		c.logger.Printf("ERROR: %v", err)
		firstErr = err
	}
	if err := c.cache.Invalidate(ctx); err != nil {
		c.logger.Printf("WARNING: %v", err)
		if firstErr == nil {
			firstErr = err
		}
	}

	c.memory = schema.EmptySnapshot()
	c.hasMemory = false
	c.dirty = false

	entry := schema.HistoryEntry{
		Type:      schema.HistorySyncReset,
		Timestamp: c.now().UTC(),
	}
	if err := c.store.AppendHistory(ctx, entry); err != nil {
		c.logger.Printf("ERROR: failed to record reset: %v", err)
	}

	c.logger.Println("Sync state reset")
	return firstErr
}

func (c *Coordinator) notify(result PassResult) {
	c.observersMu.RLock()
	observers := append([]Observer(nil), c.observers...)
	c.observersMu.RUnlock()

	for _, o := range observers {
		func() {
			defer func() {
				if p := recover(); p != nil {
					c.logger.Printf("WARNING: pass observer panicked: %v", p)
				}
			}()
			o(result)
		}()
	}
}
