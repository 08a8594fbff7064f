package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// fileView is the on-disk TOML layout. Durations are written as strings so
// they read back through viper's duration hook.
type fileView struct {
	Filename  string   `toml:"filename"`
	DataDir   string   `toml:"data_dir"`
	LogTime   bool     `toml:"log_time"`
	LogMillis bool     `toml:"log_millis"`
	Precision int      `toml:"precision"`
	ToConsole bool     `toml:"to_console"`
	Header    []string `toml:"header"`
	ServerURL string   `toml:"server_url"`

	Manager struct {
		Backend string `toml:"backend"`
		Path    string `toml:"path,omitempty"`
	} `toml:"manager"`

	Remote struct {
		Timeout      string `toml:"timeout"`
		Compression  string `toml:"compression"`
		MaxBatchRows int    `toml:"max_batch_rows"`
	} `toml:"remote"`

	Daemon struct {
		Debounce      string `toml:"debounce"`
		RetryInterval string `toml:"retry_interval"`
	} `toml:"daemon"`

	Diagnostics struct {
		File       string `toml:"file"`
		MaxSizeMB  int    `toml:"max_size_mb"`
		MaxBackups int    `toml:"max_backups"`
		MaxAgeDays int    `toml:"max_age_days"`
	} `toml:"diagnostics"`

	Collector struct {
		Addr string `toml:"addr"`
		Dir  string `toml:"dir"`
	} `toml:"collector"`
}

func toFileView(c Config) fileView {
	var f fileView
	f.Filename = c.Filename
	f.DataDir = c.DataDir
	f.LogTime = c.LogTime
	f.LogMillis = c.LogMillis
	f.Precision = c.Precision
	f.ToConsole = c.ToConsole
	f.Header = c.Header
	if f.Header == nil {
		f.Header = []string{}
	}
	f.ServerURL = c.ServerURL
	f.Manager.Backend = c.Manager.Backend
	f.Manager.Path = c.Manager.Path
	f.Remote.Timeout = c.Remote.Timeout.String()
	f.Remote.Compression = c.Remote.Compression
	f.Remote.MaxBatchRows = c.Remote.MaxBatchRows
	f.Daemon.Debounce = c.Daemon.Debounce.String()
	f.Daemon.RetryInterval = c.Daemon.RetryInterval.String()
	f.Diagnostics.File = c.Diagnostics.File
	f.Diagnostics.MaxSizeMB = c.Diagnostics.MaxSizeMB
	f.Diagnostics.MaxBackups = c.Diagnostics.MaxBackups
	f.Diagnostics.MaxAgeDays = c.Diagnostics.MaxAgeDays
	f.Collector.Addr = c.Collector.Addr
	f.Collector.Dir = c.Collector.Dir
	return f
}

// WriteFile writes cfg as TOML to path. An existing file is only replaced
// when overwrite is set.
func WriteFile(path string, cfg Config, overwrite bool) error {
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config file %s already exists", path)
		}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	var buf bytes.Buffer
	buf.WriteString("# rcsv configuration\n\n")
	if err := toml.NewEncoder(&buf).Encode(toFileView(cfg)); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// Dump renders cfg as YAML.
func Dump(cfg Config) ([]byte, error) {
	out, err := yaml.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to render config: %w", err)
	}
	return out, nil
}
