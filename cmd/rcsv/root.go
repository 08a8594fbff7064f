package main

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/rcsvlog/rcsv/internal/config"
	"github.com/rcsvlog/rcsv/internal/diag"
	"github.com/rcsvlog/rcsv/internal/logger"
	"github.com/rcsvlog/rcsv/internal/manager"
	"github.com/rcsvlog/rcsv/internal/remote"
)

var (
	settings = viper.New()
	cfg      config.Config
	diagLog  *log.Logger
	diagOut  io.Closer
)

var rootCmd = &cobra.Command{
	Use:   "rcsv",
	Short: "CSV row logger with remote mirroring",
	Long: `rcsv appends rows to local CSV log files and mirrors every row to a
collection server.

Each file's local and acknowledged row counts are kept in the log manager
(logManager.csv in the data directory by default). Rows the server has not
acknowledged are re-sent on the next log, sync or daemon pass.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "init" {
			cfg = config.Default()
			return nil
		}

		configPath, _ := cmd.Flags().GetString("config")
		loaded, err := config.Load(settings, configPath)
		if err != nil {
			return err
		}
		cfg = loaded

		quiet, _ := cmd.Flags().GetBool("quiet")
		diagLog, diagOut = diag.New(diag.Config{
			File:       cfg.Diagnostics.File,
			MaxSizeMB:  cfg.Diagnostics.MaxSizeMB,
			MaxBackups: cfg.Diagnostics.MaxBackups,
			MaxAgeDays: cfg.Diagnostics.MaxAgeDays,
			Quiet:      quiet,
		})
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if diagOut != nil {
			_ = diagOut.Close()
		}
	},
}

func init() {
	rootCmd.AddGroup(
		&cobra.Group{ID: "rows", Title: "Rows:"},
		&cobra.Group{ID: "sync", Title: "Sync:"},
		&cobra.Group{ID: "setup", Title: "Setup:"},
	)

	flags := rootCmd.PersistentFlags()
	flags.String("config", "", "Config file (default: ./rcsv.toml or ~/.config/rcsv/rcsv.toml)")
	flags.String("data-dir", "", "Directory for relative log file names")
	flags.String("server", "", "Collection server URL (http://, https://, ws:// or wss://)")
	flags.String("backend", "", "Log manager backend: csv, sqlite or pebble")
	flags.BoolP("quiet", "q", false, "Suppress diagnostics")

	_ = settings.BindPFlag("data_dir", flags.Lookup("data-dir"))
	_ = settings.BindPFlag("server_url", flags.Lookup("server"))
	_ = settings.BindPFlag("manager.backend", flags.Lookup("backend"))
}

// session is an open log manager plus a logger on top of it.
type session struct {
	manager *manager.Manager
	logger  *logger.Logger
}

// openSession opens the configured manager and builds a logger from cfg.
func openSession() (*session, error) {
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	store, err := manager.OpenStore(cfg.Manager.Backend, cfg.ManagerPath())
	if err != nil {
		return nil, fmt.Errorf("failed to open log manager: %w", err)
	}
	mgr := manager.Open(store, diagLog)

	opts := logger.DefaultOptions()
	opts.Filename = cfg.Filename
	opts.DataDir = cfg.DataDir
	opts.Header = cfg.Header
	opts.LogTime = cfg.LogTime
	opts.LogMillis = cfg.LogMillis
	opts.Precision = cfg.Precision
	opts.ToConsole = cfg.ToConsole
	opts.ServerURL = cfg.ServerURL
	opts.MaxBatchRows = cfg.Remote.MaxBatchRows
	opts.Manager = mgr
	opts.Logger = diagLog
	opts.Remote = remote.Options{
		Timeout:     cfg.Remote.Timeout,
		Compression: cfg.Remote.Compression,
	}

	if cfg.ServerURL != "" {
		id, err := remote.EnsureInstanceID(filepath.Join(filepath.Dir(cfg.ManagerPath()), remote.InstanceFilename))
		if err != nil {
			diagLog.Printf("WARNING: %v", err)
		}
		opts.Remote.InstanceID = id
	}

	l, err := logger.New(opts)
	if err != nil {
		_ = mgr.Close()
		return nil, err
	}
	return &session{manager: mgr, logger: l}, nil
}

// Close flushes the logger and closes the manager store.
func (s *session) Close() error {
	err := s.logger.Close()
	if cerr := s.manager.Close(); cerr != nil && err == nil {
		err = cerr
	}
	return err
}

// mustOpenSession is openSession for Run functions.
func mustOpenSession() *session {
	s, err := openSession()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	return s
}
