package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/rcsvlog/rcsv/internal/daemon"
	"github.com/rcsvlog/rcsv/internal/ui"
)

var daemonCmd = &cobra.Command{
	Use:     "daemon",
	GroupID: "sync",
	Short:   "Watch log files and push new rows (foreground)",
	Long: `Run the sync daemon in the foreground.

The daemon:
  1. Pushes every unacknowledged row on startup
  2. Watches the data directory (and the directory of every tracked file)
  3. Pushes rows shortly after a CSV file is written, by any process
  4. Retries failed pushes every daemon.retry_interval

Loggers can then run without a server URL and leave the upload to the
daemon.`,
	Run: func(cmd *cobra.Command, args []string) {
		if cfg.ServerURL == "" {
			fmt.Fprintf(os.Stderr, "Error: no server configured (set server_url or use --server)\n")
			os.Exit(1)
		}

		s := mustOpenSession()

		dirs := []string{cfg.DataDir}
		for _, p := range s.manager.Paths() {
			dirs = append(dirs, filepath.Dir(p))
		}

		d, err := daemon.NewWithConfig(s.logger, &daemon.Config{
			DebounceInterval: cfg.Daemon.Debounce,
			RetryInterval:    cfg.Daemon.RetryInterval,
			Ignore:           []string{cfg.ManagerPath()},
			Logger:           diagLog,
		}, dirs...)
		if err != nil {
			_ = s.Close()
			fmt.Fprintf(os.Stderr, "Error creating daemon: %v\n", err)
			os.Exit(1)
		}

		fmt.Printf("%s Starting sync daemon for %s...\n", ui.RenderAccent("🚀"), cfg.ServerURL)
		fmt.Println("Press Ctrl+C to stop...")

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		runErr := d.Start(ctx)
		if err := s.Close(); err != nil && runErr == nil {
			runErr = err
		}
		if runErr != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", runErr)
			os.Exit(1)
		}
		fmt.Printf("%s Daemon stopped\n", ui.RenderPass("✓"))
	},
}

func init() {
	rootCmd.AddCommand(daemonCmd)
}
