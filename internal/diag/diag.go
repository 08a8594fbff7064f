// Package diag builds the diagnostics logger shared by every rcsv component.
//
// Diagnostics go to stderr by default. When a file is configured, they are
// written to a size-rotated file instead.
package diag

import (
	"io"
	"log"
	"os"
	"path/filepath"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Prefix is the prefix of every diagnostics line.
const Prefix = "[rcsv] "

// Config configures the diagnostics destination.
type Config struct {
	// File is the rotating log file. Empty means stderr.
	File string

	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int

	// Quiet discards diagnostics entirely.
	Quiet bool
}

// New returns the logger described by cfg and a closer for its file.
func New(cfg Config) (*log.Logger, io.Closer) {
	switch {
	case cfg.Quiet:
		return log.New(io.Discard, Prefix, log.LstdFlags), nopCloser{}
	case cfg.File == "":
		return log.New(os.Stderr, Prefix, log.LstdFlags), nopCloser{}
	}

	// lumberjack creates the file lazily but not its parent directory.
	_ = os.MkdirAll(filepath.Dir(cfg.File), 0o755)

	out := &lumberjack.Logger{
		Filename:   cfg.File,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
		Compress:   true,
	}
	return log.New(out, Prefix, log.LstdFlags), out
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
