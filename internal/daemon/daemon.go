// Package daemon keeps the collection server in step with log files written
// by any process on the machine.
//
// The daemon:
//  1. Syncs every tracked file on startup
//  2. Watches the data directory for CSV writes
//  3. Debounces bursts of writes into one sync per file
//  4. Retries unacknowledged rows on a fixed interval
package daemon

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/rcsvlog/rcsv/internal/logger"
)

// Syncer is the part of the row logger the daemon drives.
type Syncer interface {
	Reload() error
	Recover(path string) error
	SyncAll(ctx context.Context) (logger.SyncReport, error)
}

// Config holds configuration for the daemon.
type Config struct {
	// DebounceInterval is how long a file must be quiet before it is synced.
	DebounceInterval time.Duration

	// RetryInterval is how often pending rows are retried. Zero disables
	// the retry loop.
	RetryInterval time.Duration

	// Ignore lists paths whose events are dropped, such as the log manager
	// file, which every sync rewrites.
	Ignore []string

	// Logger for daemon activity
	Logger *log.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		DebounceInterval: 250 * time.Millisecond,
		RetryInterval:    30 * time.Second,
		Logger:           log.New(os.Stderr, "[daemon] ", log.LstdFlags),
	}
}

// Daemon watches log files and pushes their unsynced rows.
type Daemon struct {
	syncer Syncer
	dirs   []string
	ignore map[string]bool
	config *Config

	watcher       *fsnotify.Watcher
	changeQueue   map[string]time.Time // filepath -> last event
	changeQueueMu sync.Mutex

	// syncMu serializes passes from the change queue and the retry loop.
	syncMu sync.Mutex
	passes int

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a daemon with default configuration.
func New(syncer Syncer, dirs ...string) (*Daemon, error) {
	return NewWithConfig(syncer, DefaultConfig(), dirs...)
}

// NewWithConfig creates a daemon watching dirs.
func NewWithConfig(syncer Syncer, config *Config, dirs ...string) (*Daemon, error) {
	if syncer == nil {
		return nil, fmt.Errorf("syncer cannot be nil")
	}
	if len(dirs) == 0 {
		return nil, fmt.Errorf("at least one directory must be watched")
	}
	if config == nil {
		config = DefaultConfig()
	}
	if config.Logger == nil {
		config.Logger = DefaultConfig().Logger
	}
	if config.DebounceInterval <= 0 {
		config.DebounceInterval = DefaultConfig().DebounceInterval
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	ignore := make(map[string]bool, len(config.Ignore))
	for _, p := range config.Ignore {
		ignore[absPath(p)] = true
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Daemon{
		syncer:      syncer,
		dirs:        dedupDirs(dirs),
		ignore:      ignore,
		config:      config,
		watcher:     watcher,
		changeQueue: make(map[string]time.Time),
		ctx:         ctx,
		cancel:      cancel,
	}, nil
}

// Start performs an initial sync, then watches and retries until ctx is
// cancelled or Stop is called.
func (d *Daemon) Start(ctx context.Context) error {
	d.config.Logger.Println("Starting daemon")

	// Watch before the initial sync so no write falls between the two.
	for _, dir := range d.dirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
		if err := d.watcher.Add(dir); err != nil {
			return fmt.Errorf("failed to watch %s: %w", dir, err)
		}
	}
	d.config.Logger.Printf("Watching: %s", strings.Join(d.dirs, ", "))

	// A failed initial sync is retried by the loops below.
	d.PerformFullSync()

	d.wg.Add(2)
	go d.watchFileEvents()
	go d.processChangeQueue()
	if d.config.RetryInterval > 0 {
		d.wg.Add(1)
		go d.retryPending()
	}

	select {
	case <-ctx.Done():
		d.config.Logger.Println("Shutdown signal received")
		return d.Stop()
	case <-d.ctx.Done():
		return nil
	}
}

// Stop gracefully shuts down the daemon.
func (d *Daemon) Stop() error {
	d.config.Logger.Println("Stopping daemon")

	d.cancel()

	if err := d.watcher.Close(); err != nil {
		d.config.Logger.Printf("Error closing watcher: %v", err)
	}

	d.wg.Wait()

	d.config.Logger.Println("Daemon stopped")
	return nil
}

// PerformFullSync reloads the manager and pushes every tracked file.
func (d *Daemon) PerformFullSync() {
	d.sync(nil)
}

// Passes returns the number of sync passes run so far.
func (d *Daemon) Passes() int {
	d.syncMu.Lock()
	defer d.syncMu.Unlock()
	return d.passes
}

// sync picks up new counts from disk, starts tracking changed files and
// pushes everything pending.
func (d *Daemon) sync(changed []string) {
	d.syncMu.Lock()
	defer d.syncMu.Unlock()
	d.passes++

	if err := d.syncer.Reload(); err != nil {
		d.config.Logger.Printf("WARNING: failed to reload log manager: %v", err)
	}
	for _, path := range changed {
		if err := d.syncer.Recover(path); err != nil {
			d.config.Logger.Printf("WARNING: failed to reconcile %s: %v", path, err)
		}
	}

	report, err := d.syncer.SyncAll(d.ctx)
	if err != nil {
		d.config.Logger.Printf("WARNING: sync incomplete (%d files, %d rows sent, %d failed): %v",
			report.Files, report.RowsSent, report.Failed, err)
		return
	}
	if report.RowsSent > 0 {
		d.config.Logger.Printf("Synced %d rows from %d files", report.RowsSent, report.Files)
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
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
				continue
			}
			if !strings.EqualFold(filepath.Ext(event.Name), ".csv") {
				continue
			}
			path := absPath(event.Name)
			if d.ignore[path] {
				continue
			}
			d.queueChange(path)

		case err, ok := <-d.watcher.Errors:
			if !ok {
				return
			}
			d.config.Logger.Printf("Watcher error: %v", err)
		}
	}
}

// queueChange records a write to path, restarting its debounce window.
func (d *Daemon) queueChange(path string) {
	d.changeQueueMu.Lock()
	defer d.changeQueueMu.Unlock()

	d.changeQueue[path] = time.Now()
}

// processChangeQueue syncs queued files once they have been quiet for the
// debounce interval.
func (d *Daemon) processChangeQueue() {
	defer d.wg.Done()

	ticker := time.NewTicker(d.config.DebounceInterval)
	defer ticker.Stop()

	for {
		select {
		case <-d.ctx.Done():
			return

		case <-ticker.C:
			if ready := d.takeReady(time.Now()); len(ready) > 0 {
				d.sync(ready)
			}
		}
	}
}

// takeReady removes and returns the queued paths that have been quiet for
// at least the debounce interval.
func (d *Daemon) takeReady(now time.Time) []string {
	d.changeQueueMu.Lock()
	defer d.changeQueueMu.Unlock()

	var ready []string
	for path, queuedAt := range d.changeQueue {
		if now.Sub(queuedAt) < d.config.DebounceInterval {
			continue
		}
		ready = append(ready, path)
		delete(d.changeQueue, path)
	}
	return ready
}

// retryPending periodically pushes rows a previous pass could not deliver.
func (d *Daemon) retryPending() {
	defer d.wg.Done()

	ticker := time.NewTicker(d.config.RetryInterval)
	defer ticker.Stop()

	for {
		select {
		case <-d.ctx.Done():
			return

		case <-ticker.C:
			d.sync(nil)
		}
	}
}

func absPath(p string) string {
	if abs, err := filepath.Abs(p); err == nil {
		return abs
	}
	return p
}

func dedupDirs(dirs []string) []string {
	seen := make(map[string]bool, len(dirs))
	out := make([]string, 0, len(dirs))
	for _, dir := range dirs {
		dir = absPath(dir)
		if seen[dir] {
			continue
		}
		seen[dir] = true
		out = append(out, dir)
	}
	return out
}
