package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"

	"github.com/rcsvlog/rcsv/internal/loadtest"
	"github.com/rcsvlog/rcsv/internal/manager"
	"github.com/rcsvlog/rcsv/internal/ui"
)

var benchCmd = &cobra.Command{
	Use:     "bench",
	GroupID: "setup",
	Short:   "Measure logging latency with concurrent writers",
	Long: `Run concurrent writers, each logging to its own file with its own log
manager, and report per-row latency percentiles and throughput.

Without --server an in-process collector is started on a loopback port and
the rows it received are checked against the local counts.

Examples:
  # 8 writers, 200 rows each, CSV manager
  rcsv bench

  # Compare manager backends
  rcsv bench --backend sqlite --writers 32 --rows 500

  # Against a running collector with zstd
  rcsv bench --server http://localhost:8080/api/rows --compression zstd`,
	Run: runBench,
}

func init() {
	benchCmd.Flags().Int("writers", 8, "Number of concurrent writers")
	benchCmd.Flags().Int("rows", 200, "Rows logged by each writer")
	benchCmd.Flags().Int("max-batch-rows", 0, "Cap on rows per push (0 = unlimited)")
	benchCmd.Flags().String("compression", "", "HTTP body compression: gzip or zstd")
	benchCmd.Flags().String("dir", "", "Work directory (default: a new temp directory)")
	benchCmd.Flags().Bool("keep", false, "Keep the work directory")
	benchCmd.Flags().Bool("json", false, "Output JSON")
	rootCmd.AddCommand(benchCmd)
}

func runBench(cmd *cobra.Command, args []string) {
	writers, _ := cmd.Flags().GetInt("writers")
	rows, _ := cmd.Flags().GetInt("rows")
	maxBatch, _ := cmd.Flags().GetInt("max-batch-rows")
	compression, _ := cmd.Flags().GetString("compression")
	dir, _ := cmd.Flags().GetString("dir")
	keep, _ := cmd.Flags().GetBool("keep")
	asJSON, _ := cmd.Flags().GetBool("json")

	if writers <= 0 {
		fmt.Fprintf(os.Stderr, "Error: --writers must be positive\n")
		os.Exit(1)
	}
	if rows <= 0 {
		fmt.Fprintf(os.Stderr, "Error: --rows must be positive\n")
		os.Exit(1)
	}

	backend := cfg.Manager.Backend
	if backend == "" {
		backend = manager.BackendCSV
	}

	lt := &loadtest.Config{
		Dir:          dir,
		Writers:      writers,
		Rows:         rows,
		Backend:      backend,
		ServerURL:    cfg.ServerURL,
		Compression:  compression,
		MaxBatchRows: maxBatch,
		Logger:       diagLog,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if !asJSON {
		fmt.Printf("\n%s Logging %d rows with %d writers (%s manager)\n", ui.RenderAccent("🚀"), writers*rows, writers, backend)
	}

	report, err := loadtest.Run(ctx, lt)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if dir == "" && !keep {
		defer func() { _ = os.RemoveAll(lt.Dir) }()
	}

	if asJSON {
		out := map[string]any{
			"writers":        writers,
			"rows":           report.Local,
			"remote":         report.Remote,
			"received":       report.Received,
			"verified":       report.Verified,
			"elapsed_ms":     report.Elapsed.Milliseconds(),
			"rows_per_sec":   report.RowsPerSecond(),
			"errors":         report.Stats.Errors,
			"p50_us":         report.Stats.P50.Microseconds(),
			"p95_us":         report.Stats.P95.Microseconds(),
			"p99_us":         report.Stats.P99.Microseconds(),
			"max_us":         report.Stats.Max.Microseconds(),
			"work_directory": lt.Dir,
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(out)
		return
	}

	fmt.Println()
	report.Stats.PrintStats(os.Stdout)
	fmt.Printf("\nThroughput: %.0f rows/s over %v\n", report.RowsPerSecond(), report.Elapsed.Round(time.Millisecond))
	fmt.Printf("Local: %d  Acknowledged: %d\n", report.Local, report.Remote)

	switch {
	case cfg.ServerURL != "":
		fmt.Printf("\n%s Collector at %s not verified (external)\n\n", ui.RenderWarn("⚠"), cfg.ServerURL)
	case report.Verified:
		fmt.Printf("\n%s Collector holds all %d rows\n\n", ui.RenderPass("✓"), report.Received)
	default:
		fmt.Printf("\n%s Collector holds %d of %d rows\n\n", ui.RenderFail("✗"), report.Received, report.Local)
		os.Exit(1)
	}
	if keep || dir != "" {
		fmt.Printf("Work directory: %s\n\n", lt.Dir)
	}
}
