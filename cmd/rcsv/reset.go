package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/rcsvlog/rcsv/internal/ui"
)

var resetCmd = &cobra.Command{
	Use:     "reset [file...]",
	GroupID: "sync",
	Short:   "Forget the manager counts of log files",
	Long: `Remove files from the log manager. The files themselves are kept; a reset
file that is logged to or synced again is tracked from scratch and all of
its rows are sent again.

Use --all to forget every tracked file.`,
	Run: func(cmd *cobra.Command, args []string) {
		all, _ := cmd.Flags().GetBool("all")
		if !all && len(args) == 0 {
			fmt.Fprintf(os.Stderr, "Error: give file names or --all\n")
			os.Exit(1)
		}

		s := mustOpenSession()
		targets := args
		if all {
			targets = s.manager.Paths()
		}

		for _, name := range targets {
			if err := s.logger.ResetFile(name); err != nil {
				_ = s.Close()
				fmt.Fprintf(os.Stderr, "Error resetting %s: %v\n", name, err)
				os.Exit(1)
			}
			fmt.Printf("%s Reset %s\n", ui.RenderPass("✓"), s.logger.AbsolutePath(name))
		}

		if err := s.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	},
}

func init() {
	resetCmd.Flags().Bool("all", false, "Reset every tracked file")
	rootCmd.AddCommand(resetCmd)
}
