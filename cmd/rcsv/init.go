package main

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/rcsvlog/rcsv/internal/config"
	"github.com/rcsvlog/rcsv/internal/manager"
	"github.com/rcsvlog/rcsv/internal/ui"
)

var initCmd = &cobra.Command{
	Use:     "init",
	GroupID: "setup",
	Short:   "Create a config file",
	Long: `Create an rcsv config file, asking for the common settings.

With --yes the defaults are written without prompting. The file is
written to ./rcsv.toml unless --path is given.`,
	Run: func(cmd *cobra.Command, args []string) {
		path, _ := cmd.Flags().GetString("path")
		force, _ := cmd.Flags().GetBool("force")
		yes, _ := cmd.Flags().GetBool("yes")

		c := config.Default()
		if !yes {
			if !ui.IsTerminal() {
				fmt.Fprintf(os.Stderr, "Error: not a terminal; use --yes to write defaults\n")
				os.Exit(1)
			}
			if err := runInitForm(&c); err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
		}

		if err := config.WriteFile(path, c, force); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			if !force {
				fmt.Fprintf(os.Stderr, "Use --force to overwrite\n")
			}
			os.Exit(1)
		}

		abs, _ := filepath.Abs(path)
		fmt.Printf("%s Wrote %s\n", ui.RenderPass("✓"), abs)
	},
}

// runInitForm asks for the settings most users change.
func runInitForm(c *config.Config) error {
	header := strings.Join(c.Header, ",")

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Default log file").
				Description("Name or path; relative names go under the data directory").
				Placeholder("session.csv").
				Value(&c.Filename),
			huh.NewInput().
				Title("Data directory").
				Value(&c.DataDir).
				Validate(func(s string) error {
					if strings.TrimSpace(s) == "" {
						return fmt.Errorf("data directory is required")
					}
					return nil
				}),
			huh.NewInput().
				Title("Columns").
				Description("Comma-separated column names, without the timestamp").
				Value(&header),
			huh.NewConfirm().
				Title("Prefix rows with a timestamp?").
				Value(&c.LogTime),
		),
		huh.NewGroup(
			huh.NewInput().
				Title("Server URL").
				Description("Leave empty to log locally only").
				Placeholder("http://localhost:8080/api/rows").
				Value(&c.ServerURL).
				Validate(validateServerURL),
			huh.NewSelect[string]().
				Title("Log manager backend").
				Options(huh.NewOptions(manager.BackendCSV, manager.BackendSQLite, manager.BackendPebble)...).
				Value(&c.Manager.Backend),
		),
	)
	if err := form.Run(); err != nil {
		return err
	}

	c.Header = nil
	for _, h := range strings.Split(header, ",") {
		if h = strings.TrimSpace(h); h != "" {
			c.Header = append(c.Header, h)
		}
	}
	return c.Validate()
}

func validateServerURL(s string) error {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	u, err := url.Parse(s)
	if err != nil {
		return err
	}
	switch u.Scheme {
	case "http", "https", "ws", "wss":
		return nil
	default:
		return fmt.Errorf("scheme must be http, https, ws or wss")
	}
}

func init() {
	initCmd.Flags().String("path", "rcsv.toml", "Where to write the config file")
	initCmd.Flags().Bool("force", false, "Overwrite an existing file")
	initCmd.Flags().BoolP("yes", "y", false, "Write defaults without prompting")

	rootCmd.AddCommand(initCmd)
}
