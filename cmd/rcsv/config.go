package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/rcsvlog/rcsv/internal/config"
)

var configCmd = &cobra.Command{
	Use:     "config",
	GroupID: "setup",
	Short:   "Print the effective configuration",
	Long: `Print the configuration after merging defaults, the config file,
RCSV_* environment variables and flags, as YAML.`,
	Run: func(cmd *cobra.Command, args []string) {
		out, err := config.Dump(cfg)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		if used := settings.ConfigFileUsed(); used != "" {
			fmt.Printf("# from %s\n", used)
		} else {
			fmt.Println("# no config file found; defaults and environment only")
		}
		fmt.Print(string(out))
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
}
