// Package daemon runs coordination passes on a schedule and when watched
// component files change.
//
// The daemon:
// 1. Optionally runs a pass on start
// 2. Runs a schedule pass every Interval
// 3. Watches the directories of file-backed version sources
// 4. Runs a watch pass once changes have settled for Debounce
// 5. Handles graceful shutdown
package daemon

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/cdswerx/cdsync/internal/coord/syncer"
)

// Runner runs one pass. *syncer.Coordinator implements it.
type Runner interface {
	Run(ctx context.Context, trigger syncer.Trigger) (syncer.PassResult, error)
}

// Config holds configuration for the daemon.
type Config struct {
	// Interval is how often to run a schedule pass
	Interval time.Duration

	// Debounce is how long watched files must be quiet before a watch pass
	Debounce time.Duration

	// Watch enables the file watcher
	Watch bool

	// RunOnStart runs a schedule pass before entering the loop
	RunOnStart bool

	// Logger for daemon activity
	Logger *log.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Interval:   12 * time.Hour,
		Debounce:   500 * time.Millisecond,
		Watch:      true,
		RunOnStart: true,
		Logger:     log.New(os.Stderr, "[daemon] ", log.LstdFlags),
	}
}

// Daemon owns the schedule ticker and the file watcher.
type Daemon struct {
	runner Runner
	files  map[string]bool
	dirs   []string
	config *Config

	watcher *fsnotify.Watcher

	pendingMu sync.Mutex
	pending   map[string]time.Time // path -> last event

	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// New creates a daemon with the default configuration.
//
// watchPaths are the files whose changes should trigger a pass, usually
// reader.WatchPaths over the registry. Use Start() to begin.
func New(runner Runner, watchPaths []string) (*Daemon, error) {
	return NewWithConfig(runner, watchPaths, DefaultConfig())
}

// NewWithConfig creates a daemon with custom configuration.
func NewWithConfig(runner Runner, watchPaths []string, config *Config) (*Daemon, error) {
	if runner == nil {
		return nil, fmt.Errorf("runner cannot be nil")
	}
	if config == nil {
		config = DefaultConfig()
	}
	if config.Interval <= 0 {
		return nil, fmt.Errorf("interval must be positive, got %s", config.Interval)
	}
	if config.Debounce <= 0 {
		config.Debounce = DefaultConfig().Debounce
	}
	if config.Logger == nil {
		config.Logger = DefaultConfig().Logger
	}

	files := make(map[string]bool, len(watchPaths))
	dirSet := make(map[string]bool)
	for _, p := range watchPaths {
		abs, err := filepath.Abs(p)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve watch path %s: %w", p, err)
		}
		files[abs] = true
		dirSet[filepath.Dir(abs)] = true
	}
	dirs := make([]string, 0, len(dirSet))
	for d := range dirSet {
		dirs = append(dirs, d)
	}
	sort.Strings(dirs)

	ctx, cancel := context.WithCancel(context.Background())

	return &Daemon{
		runner:  runner,
		files:   files,
		dirs:    dirs,
		config:  config,
		pending: make(map[string]time.Time),
		ctx:     ctx,
		cancel:  cancel,
	}, nil
}

// WatchedDirs returns the directories the watcher covers.
func (d *Daemon) WatchedDirs() []string {
	return append([]string(nil), d.dirs...)
}

// Start begins the daemon's operation.
//
// This blocks until ctx is cancelled or Stop is called.
func (d *Daemon) Start(ctx context.Context) error {
	d.config.Logger.Printf("Starting daemon (interval %s)", d.config.Interval)

	if d.config.RunOnStart {
		d.runPass(syncer.TriggerSchedule)
	}

	if d.config.Watch && len(d.dirs) > 0 {
		if err := d.startWatcher(); err != nil {
			d.cancel()
			return err
		}
	}

	d.wg.Add(1)
	go d.runSchedule()

	select {
	case <-ctx.Done():
		d.config.Logger.Println("Shutdown signal received")
		return d.Stop()
	case <-d.ctx.Done():
		return nil
	}
}

func (d *Daemon) startWatcher() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}

	watched := 0
	for _, dir := range d.dirs {
		if err := watcher.Add(dir); err != nil {
			// An absent component has no directory yet.
			d.config.Logger.Printf("WARNING: not watching %s: %v", dir, err)
			continue
		}
		watched++
	}
	if watched == 0 {
		_ = watcher.Close()
		d.config.Logger.Println("No watchable directories, file watch disabled")
		return nil
	}

	d.watcher = watcher
	d.config.Logger.Printf("Watching %d directories", watched)

	d.wg.Add(2)
	go d.watchFileEvents()
	go d.processChangeQueue()
	return nil
}

// Stop gracefully shuts down the daemon. It is safe to call more than once.
func (d *Daemon) Stop() error {
	d.stopOnce.Do(func() {
		d.config.Logger.Println("Stopping daemon")

		d.cancel()

		if d.watcher != nil {
			if err := d.watcher.Close(); err != nil {
				d.config.Logger.Printf("Error closing watcher: %v", err)
			}
		}

		d.wg.Wait()
		d.config.Logger.Println("Daemon stopped")
	})
	return nil
}

func (d *Daemon) runPass(trigger syncer.Trigger) {
	if _, err := d.runner.Run(d.ctx, trigger); err != nil && d.ctx.Err() == nil {
		d.config.Logger.Printf("ERROR: %s pass failed: %v", trigger, err)
	}
}

// runSchedule runs a pass every Interval.
func (d *Daemon) runSchedule() {
	defer d.wg.Done()

	ticker := time.NewTicker(d.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-d.ctx.Done():
			return
		case <-ticker.C:
			d.runPass(syncer.TriggerSchedule)
		}
	}
}

// watchFileEvents monitors filesystem events and queues changes.
func (d *Daemon) watchFileEvents() {
	defer d.wg.Done()

	for {
		select {
		case <-d.ctx.Done():
			return

		case event, ok := <-d.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			if !d.files[filepath.Clean(event.Name)] {
				continue
			}

			d.config.Logger.Printf("File event: %s %s", event.Op, event.Name)
			d.queueChange(event.Name)

		case err, ok := <-d.watcher.Errors:
			if !ok {
				return
			}
			d.config.Logger.Printf("Watcher error: %v", err)
		}
	}
}

func (d *Daemon) queueChange(path string) {
	d.pendingMu.Lock()
	defer d.pendingMu.Unlock()

	d.pending[path] = time.Now()
}

// processChangeQueue checks the queue every Debounce.
func (d *Daemon) processChangeQueue() {
	defer d.wg.Done()

	ticker := time.NewTicker(d.config.Debounce)
	defer ticker.Stop()

	for {
		select {
		case <-d.ctx.Done():
			return
		case <-ticker.C:
			if d.settled() {
				d.runPass(syncer.TriggerWatch)
			}
		}
	}
}

// settled drains the queue when every queued path has been quiet for
// Debounce. A single pass covers all queued paths.
func (d *Daemon) settled() bool {
	d.pendingMu.Lock()
	defer d.pendingMu.Unlock()

	if len(d.pending) == 0 {
		return false
	}

	now := time.Now()
	for _, queuedAt := range d.pending {
		if now.Sub(queuedAt) < d.config.Debounce {
			return false
		}
	}

	for path := range d.pending {
		d.config.Logger.Printf("Processing change: %s", path)
		delete(d.pending, path)
	}
	return true
}
