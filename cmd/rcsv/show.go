package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/rcsvlog/rcsv/internal/logger"
	"github.com/rcsvlog/rcsv/internal/query"
	"github.com/rcsvlog/rcsv/internal/ui"
)

var showCmd = &cobra.Command{
	Use:     "show [file]",
	GroupID: "rows",
	Short:   "Print rows of a log file",
	Long: `Print the rows of a log file, optionally filtered.

--filter takes a CEL expression evaluated per row. Cells are available by
column name in 'row', typed as logged; 'index', 'text', 'cells' and 'ts_ms'
are also defined.

--since and --until accept log timestamps, RFC 3339, Go durations meaning
"that long ago", or plain English.

Examples:
  rcsv show trial.csv --filter 'row.correct && row.rt < 0.6'
  rcsv show trial.csv --since "2 hours ago" --tail 20
  rcsv show trial.csv --since yesterday --json`,
	Args: cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		name := cfg.Filename
		if len(args) == 1 {
			name = args[0]
		}
		if name == "" {
			fmt.Fprintf(os.Stderr, "Error: no file given and no filename configured\n")
			os.Exit(1)
		}

		path := logger.ResolvePath(cfg.DataDir, name)

		opts := query.Options{}
		opts.Filter, _ = cmd.Flags().GetString("filter")
		opts.Since, _ = cmd.Flags().GetString("since")
		opts.Until, _ = cmd.Flags().GetString("until")
		opts.Limit, _ = cmd.Flags().GetInt("limit")
		if tail, _ := cmd.Flags().GetInt("tail"); tail > 0 {
			opts.Limit = tail
			opts.Tail = true
		}

		res, err := query.Run(path, opts)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			out := make([]map[string]any, 0, len(res.Records))
			for _, rec := range res.Records {
				out = append(out, rec.Fields)
			}
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			_ = enc.Encode(out)
			return
		}

		if len(res.Records) == 0 {
			fmt.Printf("%s No matching rows in %s (%d scanned)\n", ui.RenderWarn("⚠"), path, res.Scanned)
			return
		}

		headers := append([]string{"#"}, res.Header...)
		rows := make([][]string, 0, len(res.Records))
		for _, rec := range res.Records {
			rows = append(rows, append([]string{strconv.Itoa(rec.Index)}, rec.Cells...))
		}
		fmt.Println(ui.Table(headers, rows))
		fmt.Println(ui.RenderMuted(fmt.Sprintf("%d of %d row(s) from %s", len(res.Records), res.Scanned, path)))
	},
}

func init() {
	showCmd.Flags().String("filter", "", "CEL row filter")
	showCmd.Flags().String("since", "", "Only rows at or after this time")
	showCmd.Flags().String("until", "", "Only rows at or before this time")
	showCmd.Flags().Int("limit", 0, "Show at most this many rows")
	showCmd.Flags().Int("tail", 0, "Show the last N matching rows")
	showCmd.Flags().Bool("json", false, "Output JSON")

	rootCmd.AddCommand(showCmd)
}
