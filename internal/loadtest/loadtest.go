// Package loadtest drives concurrent writers through the logger to measure
// row latency and to check that a collector ends up holding every row.
//
// Each writer owns a log file and a log manager, as separate processes on
// one host would. Without a server URL an in-process collector is started
// on a loopback port so the remote path is exercised end to end.
package loadtest

import (
	"context"
	"fmt"
	"io"
	"log"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rcsvlog/rcsv/internal/collector"
	"github.com/rcsvlog/rcsv/internal/logfile"
	"github.com/rcsvlog/rcsv/internal/logger"
	"github.com/rcsvlog/rcsv/internal/manager"
	"github.com/rcsvlog/rcsv/internal/remote"
)

// Config describes one load test run.
type Config struct {
	// Dir holds the log files, managers and collected mirror.
	Dir string

	// Writers is the number of concurrent loggers.
	Writers int

	// Rows is the number of rows each writer logs.
	Rows int

	// Backend selects the manager store (csv, sqlite, pebble).
	Backend string

	// ServerURL targets an external collector. Empty starts one in-process.
	ServerURL string

	// Compression is passed to HTTP senders.
	Compression string

	// MaxBatchRows caps a single push (0 = unlimited).
	MaxBatchRows int

	// Logger receives diagnostics (default: discarded).
	Logger *log.Logger
}

// DefaultConfig returns a small run suitable for a quick check.
func DefaultConfig() *Config {
	return &Config{
		Writers: 8,
		Rows:    200,
		Backend: manager.BackendCSV,
	}
}

// LatencyStats captures per-row Log latency.
type LatencyStats struct {
	Min       time.Duration
	Max       time.Duration
	Mean      time.Duration
	P50       time.Duration // Median
	P95       time.Duration
	P99       time.Duration
	TotalRows int
	Errors    int
	Durations []time.Duration
}

// Report is the outcome of Run.
type Report struct {
	Stats    *LatencyStats
	Elapsed  time.Duration
	Files    []string
	Local    int
	Remote   int
	Received int
	Verified bool
}

// RowsPerSecond returns the aggregate logging throughput.
func (r *Report) RowsPerSecond() float64 {
	if r.Elapsed <= 0 {
		return 0
	}
	return float64(r.Local) / r.Elapsed.Seconds()
}

// Run starts the writers, waits for them, flushes what the inline pushes
// left behind and, with an in-process collector, checks its row counts.
func Run(ctx context.Context, cfg *Config) (*Report, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.Writers <= 0 || cfg.Rows <= 0 {
		return nil, fmt.Errorf("writers and rows must be positive")
	}
	if cfg.Logger == nil {
		cfg.Logger = log.New(io.Discard, "", 0)
	}
	if cfg.Dir == "" {
		dir, err := os.MkdirTemp("", "rcsv-loadtest-")
		if err != nil {
			return nil, fmt.Errorf("failed to create work directory: %w", err)
		}
		cfg.Dir = dir
	}

	serverURL := cfg.ServerURL
	var server *collector.Server
	if serverURL == "" {
		var err error
		server, err = collector.NewServer(&collector.Config{
			Addr:   "127.0.0.1:0",
			Dir:    filepath.Join(cfg.Dir, "collected"),
			Logger: cfg.Logger,
		})
		if err != nil {
			return nil, err
		}
		if err := server.Start(); err != nil {
			return nil, err
		}
		defer func() { _ = server.Stop() }()
		serverURL = "http://" + server.GetAddr() + "/api/rows"
	}

	writers := make([]*logger.Logger, 0, cfg.Writers)
	managers := make([]*manager.Manager, 0, cfg.Writers)
	defer func() {
		for _, w := range writers {
			_ = w.Close()
		}
		for _, m := range managers {
			_ = m.Close()
		}
	}()
	for i := 0; i < cfg.Writers; i++ {
		w, m, err := newWriter(cfg, serverURL, i)
		if err != nil {
			return nil, err
		}
		writers = append(writers, w)
		managers = append(managers, m)
	}

	start := time.Now()
	stats, err := runWriters(ctx, writers, cfg.Rows)
	if err != nil {
		return nil, err
	}

	report := &Report{Stats: stats, Elapsed: time.Since(start)}
	for _, w := range writers {
		if _, err := w.SyncAll(ctx); err != nil {
			cfg.Logger.Printf("WARNING: final sync of %s incomplete: %v", w.Path(), err)
		}
		for _, st := range w.Status() {
			report.Files = append(report.Files, st.Path)
			report.Local += st.Local
			report.Remote += st.Remote
		}
	}

	if server != nil {
		for _, info := range server.Store().Files() {
			report.Received += info.Rows
		}
		report.Verified = report.Received == report.Local && report.Remote == report.Local
	}
	return report, nil
}

// newWriter builds writer i with its own file and manager.
func newWriter(cfg *Config, serverURL string, i int) (*logger.Logger, *manager.Manager, error) {
	ext := map[string]string{
		manager.BackendSQLite: ".db",
		manager.BackendPebble: ".pebble",
	}[cfg.Backend]
	if ext == "" {
		ext = ".csv"
	}
	storePath := filepath.Join(cfg.Dir, "managers", fmt.Sprintf("writer-%03d%s", i, ext))
	if err := os.MkdirAll(filepath.Dir(storePath), 0o755); err != nil {
		return nil, nil, fmt.Errorf("failed to create manager directory: %w", err)
	}
	store, err := manager.OpenStore(cfg.Backend, storePath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open manager for writer %d: %w", i, err)
	}

	opts := logger.DefaultOptions()
	opts.Filename = fmt.Sprintf("writer-%03d.csv", i)
	opts.DataDir = filepath.Join(cfg.Dir, "logs")
	opts.Header = []string{"writer", "seq", "value"}
	opts.ServerURL = serverURL
	opts.MaxBatchRows = cfg.MaxBatchRows
	opts.Remote = remote.Options{
		Compression: cfg.Compression,
		InstanceID:  uuid.NewString(),
	}
	opts.Manager = manager.Open(store, cfg.Logger)
	opts.Logger = cfg.Logger

	l, err := logger.New(opts)
	if err != nil {
		_ = opts.Manager.Close()
		return nil, nil, err
	}
	return l, opts.Manager, nil
}

// runWriters logs rows on every writer concurrently and aggregates the
// latency of each Log call.
func runWriters(ctx context.Context, writers []*logger.Logger, rows int) (*LatencyStats, error) {
	var wg sync.WaitGroup
	resultsChan := make(chan []time.Duration, len(writers))
	errorsChan := make(chan error, len(writers))

	for i, w := range writers {
		wg.Add(1)
		go func(id int, w *logger.Logger) {
			defer wg.Done()

			rng := rand.New(rand.NewSource(int64(id)))
			durations := make([]time.Duration, 0, rows)
			for seq := 0; seq < rows; seq++ {
				if ctx.Err() != nil {
					break
				}
				start := time.Now()
				err := w.Log(ctx, id, seq, rng.Float64())
				durations = append(durations, time.Since(start))
				if err != nil {
					errorsChan <- fmt.Errorf("writer %d row %d failed: %w", id, seq, err)
					break
				}
			}
			resultsChan <- durations
		}(i, w)
	}

	wg.Wait()
	close(resultsChan)
	close(errorsChan)

	var all []time.Duration
	for durations := range resultsChan {
		all = append(all, durations...)
	}
	if len(all) == 0 {
		return nil, fmt.Errorf("no rows were logged")
	}

	stats := computeLatencyStats(all)
	for range errorsChan {
		stats.Errors++
	}
	return stats, nil
}

// computeLatencyStats calculates statistics from a slice of durations.
func computeLatencyStats(durations []time.Duration) *LatencyStats {
	if len(durations) == 0 {
		return &LatencyStats{}
	}

	sorted := make([]time.Duration, len(durations))
	copy(sorted, durations)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i] < sorted[j]
	})

	var sum time.Duration
	for _, d := range durations {
		sum += d
	}

	return &LatencyStats{
		Min:       sorted[0],
		Max:       sorted[len(sorted)-1],
		Mean:      sum / time.Duration(len(durations)),
		P50:       sorted[len(sorted)*50/100],
		P95:       sorted[len(sorted)*95/100],
		P99:       sorted[len(sorted)*99/100],
		TotalRows: len(durations),
		Durations: sorted,
	}
}

// CountLocal re-counts the rows on disk for files, independently of the
// managers.
func CountLocal(files []string) (int, error) {
	total := 0
	for _, f := range files {
		n, err := logfile.CountRows(f)
		if err != nil {
			return total, err
		}
		total += n
	}
	return total, nil
}

// PrintStats formats latency statistics to w.
func (s *LatencyStats) PrintStats(w io.Writer) {
	fmt.Fprintf(w, "Latency Statistics:\n")
	fmt.Fprintf(w, "  Total Rows:    %d\n", s.TotalRows)
	fmt.Fprintf(w, "  Errors:        %d\n", s.Errors)
	fmt.Fprintf(w, "  Min:           %v\n", s.Min)
	fmt.Fprintf(w, "  P50 (Median):  %v\n", s.P50)
	fmt.Fprintf(w, "  Mean:          %v\n", s.Mean)
	fmt.Fprintf(w, "  P95:           %v\n", s.P95)
	fmt.Fprintf(w, "  P99:           %v\n", s.P99)
	fmt.Fprintf(w, "  Max:           %v\n", s.Max)
}
