package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/rcsvlog/rcsv/internal/collector"
)

var collectCmd = &cobra.Command{
	Use:     "collect",
	GroupID: "sync",
	Short:   "Run a collection server",
	Long: `Run a reference collection server that receives rows from rcsv loggers.

Every client file is mirrored under --dir/<instance id>/<client path>.
Rows are de-duplicated by their row index, so re-sent rows are
acknowledged without being stored twice.

Endpoints:
  POST /api/rows   ingest a batch (JSON, optionally gzip or zstd)
  GET  /api/rows   ingest batches over a WebSocket
  GET  /api/files  mirrored files and their row counts
  GET  /ws         live feed of accepted rows
  GET  /health     health check

Example usage:
  rcsv collect                         # listen on :8080
  rcsv collect --addr :9000 --dir /srv/rows
  rcsv log --server http://localhost:9000/api/rows -f a.csv 1 2 3`,
	Run: func(cmd *cobra.Command, args []string) {
		if cmd.Flags().Changed("addr") {
			cfg.Collector.Addr, _ = cmd.Flags().GetString("addr")
		}
		if cmd.Flags().Changed("dir") {
			cfg.Collector.Dir, _ = cmd.Flags().GetString("dir")
		}

		server, err := collector.NewServer(&collector.Config{
			Addr:   cfg.Collector.Addr,
			Dir:    cfg.Collector.Dir,
			Logger: diagLog,
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		if err := server.Start(); err != nil {
			fmt.Fprintf(os.Stderr, "Error: failed to start collector: %v\n", err)
			os.Exit(1)
		}

		addr := server.GetAddr()
		fmt.Printf("Collector started on http://%s\n", addr)
		fmt.Printf("Ingest endpoint: http://%s/api/rows\n", addr)
		fmt.Printf("Live feed: ws://%s/ws\n", addr)
		fmt.Println("\nPress Ctrl+C to stop...")

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		<-ctx.Done()

		fmt.Println("\nShutting down collector...")
		if err := server.Stop(); err != nil {
			fmt.Fprintf(os.Stderr, "Error during shutdown: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("Collector stopped")
	},
}

func init() {
	collectCmd.Flags().String("addr", "", "Listen address (default: collector.addr, :8080)")
	collectCmd.Flags().String("dir", "", "Directory for received files (default: collector.dir)")

	rootCmd.AddCommand(collectCmd)
}
