// Package manager tracks, per log file, how many rows exist locally and how
// many the remote server has acknowledged.
//
// The mapping is small metadata and is rewritten whole on every Save. The
// storage backend is pluggable: the default is a CSV file
// (path,local,remote per line); SQLite and Pebble stores are available for
// hosts that already carry those databases.
package manager

import (
	"fmt"
	"log"
	"os"
	"sort"
)

// Counts is the bookkeeping for one log file.
type Counts struct {
	Local  int
	Remote int
}

// Pending returns how many rows still need to reach the server.
func (c Counts) Pending() int {
	if c.Local < c.Remote {
		return 0
	}
	return c.Local - c.Remote
}

// checkCounts validates persisted counts: negative values are rejected and
// a remote count above the local one is clamped to it.
func checkCounts(local, remote int) (Counts, error) {
	if local < 0 || remote < 0 {
		return Counts{}, fmt.Errorf("negative count (local %d, remote %d)", local, remote)
	}
	if remote > local {
		remote = local
	}
	return Counts{Local: local, Remote: remote}, nil
}

// Store persists the whole manager mapping.
type Store interface {
	// Load returns the persisted mapping. A store that does not exist yet
	// returns an empty mapping and no error.
	Load() (map[string]Counts, error)

	// Save replaces the persisted mapping with entries.
	Save(entries map[string]Counts) error

	// Close releases resources held by the store.
	Close() error
}

// Manager is the in-memory view of the persisted counts.
type Manager struct {
	store   Store
	entries map[string]Counts
	logger  *log.Logger
}

// Open loads the mapping from store. A store that fails to load is treated
// as empty: the failure is logged and a fresh mapping is used.
//
// If logger is nil, a default logger writing to stderr is used.
func Open(store Store, logger *log.Logger) *Manager {
	if logger == nil {
		logger = log.New(os.Stderr, "[manager] ", log.LstdFlags)
	}
	entries, err := store.Load()
	if err != nil {
		logger.Printf("WARNING: log manager unreadable, starting fresh: %v", err)
		entries = nil
	}
	if entries == nil {
		entries = make(map[string]Counts)
	}
	return &Manager{store: store, entries: entries, logger: logger}
}

// Get returns the counts for path and whether it is tracked.
func (m *Manager) Get(path string) (Counts, bool) {
	c, ok := m.entries[path]
	return c, ok
}

// Track sets the local count of path, creating the entry if needed. The
// remote count is clamped so it never exceeds the local count.
func (m *Manager) Track(path string, local int) Counts {
	if local < 0 {
		local = 0
	}
	c := m.entries[path]
	c.Local = local
	if c.Remote > c.Local {
		c.Remote = c.Local
	}
	m.entries[path] = c
	return c
}

// IncLocal records one more local row for path.
func (m *Manager) IncLocal(path string) Counts {
	c := m.entries[path]
	c.Local++
	m.entries[path] = c
	return c
}

// SetRemote records that the server holds n rows of path. The value is
// clamped to [current remote, local]: acknowledgements never move backwards.
func (m *Manager) SetRemote(path string, n int) Counts {
	c := m.entries[path]
	if n > c.Local {
		n = c.Local
	}
	if n > c.Remote {
		c.Remote = n
	}
	m.entries[path] = c
	return c
}

// AdvanceRemote records n more acknowledged rows for path.
func (m *Manager) AdvanceRemote(path string, n int) Counts {
	c := m.entries[path]
	return m.SetRemote(path, c.Remote+n)
}

// Reset forgets path entirely.
func (m *Manager) Reset(path string) {
	delete(m.entries, path)
}

// Pending returns local - remote for path.
func (m *Manager) Pending(path string) int {
	return m.entries[path].Pending()
}

// Paths returns the tracked paths in sorted order.
func (m *Manager) Paths() []string {
	paths := make([]string, 0, len(m.entries))
	for p := range m.entries {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// Snapshot returns a copy of the mapping.
func (m *Manager) Snapshot() map[string]Counts {
	out := make(map[string]Counts, len(m.entries))
	for k, v := range m.entries {
		out[k] = v
	}
	return out
}

// Reload replaces the in-memory mapping with the persisted one. Used when
// another process may have written the store.
func (m *Manager) Reload() error {
	entries, err := m.store.Load()
	if err != nil {
		return fmt.Errorf("failed to reload log manager: %w", err)
	}
	if entries == nil {
		entries = make(map[string]Counts)
	}
	m.entries = entries
	return nil
}

// Save persists the whole mapping.
func (m *Manager) Save() error {
	if err := m.store.Save(m.entries); err != nil {
		return fmt.Errorf("failed to save log manager: %w", err)
	}
	return nil
}

// Close closes the underlying store.
func (m *Manager) Close() error {
	return m.store.Close()
}
