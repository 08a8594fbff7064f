package daemon

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rcsvlog/rcsv/internal/logger"
	"github.com/rcsvlog/rcsv/internal/manager"
	"github.com/rcsvlog/rcsv/internal/remote"
)

// fakeSyncer records the calls the daemon makes.
type fakeSyncer struct {
	mu        sync.Mutex
	reloads   int
	syncs     int
	recovered []string
}

func (f *fakeSyncer) Reload() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reloads++
	return nil
}

func (f *fakeSyncer) Recover(path string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.recovered = append(f.recovered, path)
	return nil
}

func (f *fakeSyncer) SyncAll(ctx context.Context) (logger.SyncReport, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.syncs++
	return logger.SyncReport{}, nil
}

func (f *fakeSyncer) snapshot() (syncs int, recovered []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.syncs, append([]string(nil), f.recovered...)
}

func testConfig() *Config {
	return &Config{
		DebounceInterval: 20 * time.Millisecond,
		Logger:           log.New(io.Discard, "", 0),
	}
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("condition not met within %v", timeout)
}

// startDaemon runs d in the background and returns a stop function that
// waits for Start to return.
func startDaemon(t *testing.T, d *Daemon) func() {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- d.Start(ctx) }()

	waitFor(t, 2*time.Second, func() bool { return d.Passes() >= 1 })

	return func() {
		cancel()
		select {
		case err := <-errCh:
			if err != nil {
				t.Errorf("Start() returned error: %v", err)
			}
		case <-time.After(2 * time.Second):
			t.Error("daemon did not stop")
		}
	}
}

func TestNewWithConfig(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name    string
		syncer  Syncer
		dirs    []string
		wantErr bool
	}{
		{"valid", &fakeSyncer{}, []string{dir}, false},
		{"nil syncer", nil, []string{dir}, true},
		{"no dirs", &fakeSyncer{}, nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := NewWithConfig(tt.syncer, testConfig(), tt.dirs...)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NewWithConfig() error = %v, wantErr %v", err, tt.wantErr)
			}
			if d != nil {
				d.watcher.Close()
			}
		})
	}
}

func TestNewWithConfig_DedupsDirs(t *testing.T) {
	dir := t.TempDir()
	d, err := NewWithConfig(&fakeSyncer{}, testConfig(), dir, dir+string(filepath.Separator), dir)
	if err != nil {
		t.Fatalf("NewWithConfig() failed: %v", err)
	}
	defer d.watcher.Close()

	if len(d.dirs) != 1 {
		t.Errorf("dirs = %v, want one entry", d.dirs)
	}
}

func TestTakeReady_Debounce(t *testing.T) {
	d, err := NewWithConfig(&fakeSyncer{}, testConfig(), t.TempDir())
	if err != nil {
		t.Fatalf("NewWithConfig() failed: %v", err)
	}
	defer d.watcher.Close()

	now := time.Now()
	d.changeQueue["/data/old.csv"] = now.Add(-time.Second)
	d.changeQueue["/data/fresh.csv"] = now

	ready := d.takeReady(now)
	if len(ready) != 1 || ready[0] != "/data/old.csv" {
		t.Errorf("takeReady() = %v, want [/data/old.csv]", ready)
	}
	if _, ok := d.changeQueue["/data/fresh.csv"]; !ok {
		t.Error("fresh change should stay queued")
	}

	ready = d.takeReady(now.Add(time.Second))
	if len(ready) != 1 || ready[0] != "/data/fresh.csv" {
		t.Errorf("takeReady() = %v, want [/data/fresh.csv]", ready)
	}
}

func TestDaemon_RetriesOnInterval(t *testing.T) {
	syncer := &fakeSyncer{}
	cfg := testConfig()
	cfg.RetryInterval = 20 * time.Millisecond

	d, err := NewWithConfig(syncer, cfg, t.TempDir())
	if err != nil {
		t.Fatalf("NewWithConfig() failed: %v", err)
	}
	stop := startDaemon(t, d)
	defer stop()

	waitFor(t, 2*time.Second, func() bool {
		syncs, _ := syncer.snapshot()
		return syncs >= 3
	})
}

func TestDaemon_SyncsWrittenCSVFiles(t *testing.T) {
	dir := t.TempDir()
	managerPath := filepath.Join(dir, manager.DefaultFilename)
	csvPath := filepath.Join(dir, "session.csv")

	syncer := &fakeSyncer{}
	cfg := testConfig()
	cfg.Ignore = []string{managerPath}

	d, err := NewWithConfig(syncer, cfg, dir)
	if err != nil {
		t.Fatalf("NewWithConfig() failed: %v", err)
	}
	stop := startDaemon(t, d)
	defer stop()

	for _, p := range []string{managerPath, filepath.Join(dir, "notes.txt"), csvPath} {
		if err := os.WriteFile(p, []byte("a,b\n1,2\n"), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	waitFor(t, 2*time.Second, func() bool {
		_, recovered := syncer.snapshot()
		return len(recovered) > 0
	})

	_, recovered := syncer.snapshot()
	for _, p := range recovered {
		if p != csvPath {
			t.Errorf("unexpected reconcile of %s", p)
		}
	}
}

func TestDaemon_PushesRowsFromAnotherWriter(t *testing.T) {
	dir := t.TempDir()
	managerPath := filepath.Join(dir, manager.DefaultFilename)

	var mu sync.Mutex
	received := make(map[int]bool)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var b remote.Batch
		if err := json.NewDecoder(r.Body).Decode(&b); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		mu.Lock()
		for i := range b.Rows {
			received[b.From+i] = true
		}
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	quiet := log.New(io.Discard, "", 0)

	// The writer logs offline, the daemon owns the upload.
	writer, err := logger.New(&logger.Options{
		Filename: "trial.csv",
		DataDir:  dir,
		Header:   []string{"n"},
		Manager:  manager.Open(manager.NewCSVStore(managerPath), quiet),
		Logger:   quiet,
		Console:  io.Discard,
	})
	if err != nil {
		t.Fatalf("logger.New() failed: %v", err)
	}
	uploader, err := logger.New(&logger.Options{
		DataDir:   dir,
		ServerURL: srv.URL,
		Manager:   manager.Open(manager.NewCSVStore(managerPath), quiet),
		Logger:    quiet,
		Console:   io.Discard,
	})
	if err != nil {
		t.Fatalf("logger.New() failed: %v", err)
	}
	defer uploader.Close()

	cfg := testConfig()
	cfg.Ignore = []string{managerPath}
	d, err := NewWithConfig(uploader, cfg, dir)
	if err != nil {
		t.Fatalf("NewWithConfig() failed: %v", err)
	}
	stop := startDaemon(t, d)
	defer stop()

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		if err := writer.Log(ctx, i); err != nil {
			t.Fatalf("Log() failed: %v", err)
		}
	}

	waitFor(t, 3*time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(received) == 5
	})
}
