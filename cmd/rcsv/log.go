package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rcsvlog/rcsv/internal/row"
	"github.com/rcsvlog/rcsv/internal/ui"
)

var logCmd = &cobra.Command{
	Use:     "log [values...]",
	GroupID: "rows",
	Short:   "Append a row to a log file",
	Long: `Append one row built from the given values, or one row per input line
with --stdin (cells separated by commas).

Values written canonically (42, 0.5, true) are logged as numbers or
booleans and floats use the configured precision; anything else, such as
007 or 1e3, is logged verbatim. When a server is configured, the new
row and any earlier unacknowledged rows are pushed right away.

Examples:
  rcsv log -f trial.csv --header trial,rt,correct 1 0.532 true
  sensor-read | rcsv log -f sensor.csv --stdin`,
	Run: func(cmd *cobra.Command, args []string) {
		applyLogFlags(cmd)

		fromStdin, _ := cmd.Flags().GetBool("stdin")
		if !fromStdin && len(args) == 0 {
			fmt.Fprintf(os.Stderr, "Error: no values given (use --stdin to read rows)\n")
			os.Exit(1)
		}

		s := mustOpenSession()
		ctx := cmd.Context()

		var rows []row.Row
		if fromStdin {
			scanner := bufio.NewScanner(os.Stdin)
			for scanner.Scan() {
				if line := strings.TrimSpace(scanner.Text()); line != "" {
					rows = append(rows, row.ParseExactCells(row.SplitLine(line)))
				}
			}
			if err := scanner.Err(); err != nil {
				_ = s.Close()
				fmt.Fprintf(os.Stderr, "Error reading stdin: %v\n", err)
				os.Exit(1)
			}
		} else {
			rows = append(rows, row.ParseExactCells(args))
		}

		logged := 0
		for _, r := range rows {
			if err := s.logger.LogRow(ctx, r); err != nil {
				_ = s.Close()
				fmt.Fprintf(os.Stderr, "Error: row %d not logged: %v\n", logged+1, err)
				os.Exit(1)
			}
			logged++
		}

		path := s.logger.Path()
		pending := 0
		for _, st := range s.logger.Status() {
			if st.Path == path {
				pending = st.Pending()
			}
		}
		if err := s.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		fmt.Fprintf(os.Stderr, "%s Logged %d row(s) to %s\n", ui.RenderPass("✓"), logged, path)
		if cfg.ServerURL != "" && pending > 0 {
			fmt.Fprintf(os.Stderr, "%s %d row(s) not yet acknowledged by %s\n", ui.RenderWarn("⚠"), pending, cfg.ServerURL)
		}
	},
}

// applyLogFlags overrides the configured row settings with explicit flags.
func applyLogFlags(cmd *cobra.Command) {
	flags := cmd.Flags()
	if flags.Changed("file") {
		cfg.Filename, _ = flags.GetString("file")
	}
	if flags.Changed("header") {
		cfg.Header, _ = flags.GetStringSlice("header")
	}
	if flags.Changed("no-time") {
		noTime, _ := flags.GetBool("no-time")
		cfg.LogTime = !noTime
	}
	if flags.Changed("precision") {
		cfg.Precision, _ = flags.GetInt("precision")
	}
	if flags.Changed("console") {
		cfg.ToConsole, _ = flags.GetBool("console")
	}
}

func init() {
	logCmd.Flags().StringP("file", "f", "", "Log file name or path (default: filename from config)")
	logCmd.Flags().StringSlice("header", nil, "Column names, written when the file is created")
	logCmd.Flags().Bool("no-time", false, "Do not prefix rows with a timestamp")
	logCmd.Flags().Int("precision", 2, "Decimals for float values")
	logCmd.Flags().Bool("console", false, "Echo every row to stdout")
	logCmd.Flags().Bool("stdin", false, "Read one row per line from stdin")

	rootCmd.AddCommand(logCmd)
}
