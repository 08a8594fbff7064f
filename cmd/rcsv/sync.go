package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/rcsvlog/rcsv/internal/ui"
)

var syncCmd = &cobra.Command{
	Use:     "sync",
	GroupID: "sync",
	Short:   "Push every unacknowledged row to the server",
	Long: `Reconcile every tracked log file with the log manager and push the rows
the server has not acknowledged yet.

Files are reconciled first: if a file has more or fewer rows than the
manager recorded, the file wins.`,
	Run: func(cmd *cobra.Command, args []string) {
		if cfg.ServerURL == "" {
			fmt.Fprintf(os.Stderr, "Error: no server configured (set server_url or use --server)\n")
			os.Exit(1)
		}

		s := mustOpenSession()

		fmt.Printf("%s Syncing with %s...\n", ui.RenderAccent("🔄"), cfg.ServerURL)
		report, err := s.logger.SyncAll(cmd.Context())
		if cerr := s.Close(); cerr != nil && err == nil {
			err = cerr
		}

		if err != nil {
			fmt.Printf("%s Sent %d row(s) from %d file(s), %d failed\n",
				ui.RenderFail("✗"), report.RowsSent, report.Files, report.Failed)
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		if report.RowsSent == 0 {
			fmt.Printf("%s Everything is up to date\n", ui.RenderPass("✓"))
			return
		}
		fmt.Printf("%s Sent %d row(s) from %d file(s)\n", ui.RenderPass("✓"), report.RowsSent, report.Files)
	},
}

func init() {
	rootCmd.AddCommand(syncCmd)
}
